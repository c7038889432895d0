package filter_test

import (
	"testing"

	"github.com/nomaai/deidgo/internal/filter"
)

func TestSimpleComparison(t *testing.T) {
	pred, err := filter.Parse("age >= 18")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ok, err := pred.Eval(map[string]any{"age": float64(21)})
	if err != nil || !ok {
		t.Fatalf("Eval(21) = %v, %v, want true, nil", ok, err)
	}
	ok, err = pred.Eval(map[string]any{"age": float64(10)})
	if err != nil || ok {
		t.Fatalf("Eval(10) = %v, %v, want false, nil", ok, err)
	}
}

func TestAndOrNot(t *testing.T) {
	pred, err := filter.Parse("not (country == 'US' and age < 18)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cases := []struct {
		row  map[string]any
		want bool
	}{
		{map[string]any{"country": "US", "age": float64(10)}, false},
		{map[string]any{"country": "US", "age": float64(30)}, true},
		{map[string]any{"country": "CA", "age": float64(5)}, true},
	}
	for _, c := range cases {
		got, err := pred.Eval(c.row)
		if err != nil {
			t.Fatalf("Eval(%v): %v", c.row, err)
		}
		if got != c.want {
			t.Errorf("Eval(%v) = %v, want %v", c.row, got, c.want)
		}
	}
}

func TestInList(t *testing.T) {
	pred, err := filter.Parse("status in ('active', 'pending')")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ok, _ := pred.Eval(map[string]any{"status": "active"})
	if !ok {
		t.Error("expected active to match")
	}
	ok, _ = pred.Eval(map[string]any{"status": "closed"})
	if ok {
		t.Error("expected closed not to match")
	}
}

func TestOrPrecedence(t *testing.T) {
	pred, err := filter.Parse("a == 1 or b == 2 and c == 3")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// and binds tighter than or: a==1 or (b==2 and c==3)
	ok, err := pred.Eval(map[string]any{"a": float64(1), "b": float64(0), "c": float64(0)})
	if err != nil || !ok {
		t.Fatalf("want true via a==1, got %v, %v", ok, err)
	}
	ok, err = pred.Eval(map[string]any{"a": float64(0), "b": float64(2), "c": float64(0)})
	if err != nil || ok {
		t.Fatalf("want false (b==2 but c!=3), got %v, %v", ok, err)
	}
}

func TestUnsupportedSyntaxIsHardError(t *testing.T) {
	if _, err := filter.Parse("age ~= 18"); err == nil {
		t.Fatal("expected parse error for unsupported operator")
	}
	if _, err := filter.Parse("age >"); err == nil {
		t.Fatal("expected parse error for incomplete comparison")
	}
	if _, err := filter.Parse(""); err == nil {
		t.Fatal("expected parse error for empty expression")
	}
}

func TestMissingColumnIsEvalError(t *testing.T) {
	pred, err := filter.Parse("missing == 1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := pred.Eval(map[string]any{"other": float64(1)}); err == nil {
		t.Fatal("expected eval error for missing column")
	}
}
