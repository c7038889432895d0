package identifier_test

import (
	"testing"

	"github.com/nomaai/deidgo/internal/identifier"
)

func TestIdentifierDerivedNames(t *testing.T) {
	id := identifier.Identifier{Name: "user_id", UID: "user_uid"}

	if got := id.DeidName(); got != "user_id" {
		t.Errorf("DeidName() = %q, want %q", got, "user_id")
	}
	if got := id.DeidUID(); got != "user_uid__deid" {
		t.Errorf("DeidUID() = %q, want %q", got, "user_uid__deid")
	}
	if got := id.ShiftUID(); got != "user_uid_shift" {
		t.Errorf("ShiftUID() = %q, want %q", got, "user_uid_shift")
	}
}

func TestFrameLookupAndAppend(t *testing.T) {
	f := identifier.NewFrame(nil)

	if _, ok := f.Lookup("101"); ok {
		t.Fatal("expected miss on empty frame")
	}
	if f.MaxDeid() != 0 {
		t.Fatalf("MaxDeid() on empty frame = %d, want 0", f.MaxDeid())
	}

	f.Append(identifier.Row{Value: "101", Deid: "1"})
	f.Append(identifier.Row{Value: "202", Deid: "2"})

	row, ok := f.Lookup("101")
	if !ok || row.Deid != "1" {
		t.Fatalf("Lookup(101) = %+v, %v", row, ok)
	}
	if f.MaxDeid() != 2 {
		t.Fatalf("MaxDeid() = %d, want 2", f.MaxDeid())
	}

	byDeid, ok := f.LookupByDeid("2")
	if !ok || byDeid.Value != "202" {
		t.Fatalf("LookupByDeid(2) = %+v, %v", byDeid, ok)
	}
	if _, ok := f.LookupByDeid("99"); ok {
		t.Fatal("expected miss for unknown surrogate")
	}
}

func TestFrameClone(t *testing.T) {
	f := identifier.NewFrame([]identifier.Row{{Value: "a", Deid: "1"}})
	clone := f.Clone()
	clone.Append(identifier.Row{Value: "b", Deid: "2"})

	if len(f.Rows) != 1 {
		t.Fatalf("original frame mutated by clone append: %d rows", len(f.Rows))
	}
	if len(clone.Rows) != 2 {
		t.Fatalf("clone has %d rows, want 2", len(clone.Rows))
	}
}
