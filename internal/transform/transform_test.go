package transform_test

import (
	"context"
	"testing"
	"time"

	"github.com/nomaai/deidgo/internal/ioadapter"
	"github.com/nomaai/deidgo/internal/refstore"
	"github.com/nomaai/deidgo/internal/table"
	"github.com/nomaai/deidgo/internal/transform"
)

func newStore(t *testing.T) *refstore.Store {
	t.Helper()
	backend, err := ioadapter.NewRefStore("filesystem", ioadapter.Config{"base_path": t.TempDir()})
	if err != nil {
		t.Fatalf("NewRefStore: %v", err)
	}
	return refstore.New(backend)
}

func TestIDTransformer_SurrogatesAndRoundTrip(t *testing.T) {
	xf, err := transform.Decode(transform.Config{
		UIDValue: "t1", Method: "id", Column: "email", Cast: "string",
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	f, err := table.NewFrame([]string{"email"}, [][]any{
		{"alice@example.com"}, {"bob@example.com"}, {"alice@example.com"},
	})
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}

	ctx := context.Background()
	refs := newStore(t)
	if err := xf.Apply(ctx, f, refs); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if f.Rows[0][0] != "1" || f.Rows[1][0] != "2" || f.Rows[2][0] != "1" {
		t.Fatalf("surrogates = %v, %v, %v", f.Rows[0][0], f.Rows[1][0], f.Rows[2][0])
	}

	if err := xf.Reverse(ctx, f, refs); err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if f.Rows[0][0] != "alice@example.com" || f.Rows[1][0] != "bob@example.com" {
		t.Fatalf("reversed = %v, %v", f.Rows[0][0], f.Rows[1][0])
	}
}

func TestIDTransformer_IntegerCast(t *testing.T) {
	xf, err := transform.Decode(transform.Config{
		UIDValue: "t1", Method: "id", Column: "uid", Cast: "integer",
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	f, _ := table.NewFrame([]string{"uid"}, [][]any{{"x"}})
	refs := newStore(t)
	if err := xf.Apply(context.Background(), f, refs); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if f.Rows[0][0] != 1 {
		t.Fatalf("got %v (%T), want int 1", f.Rows[0][0], f.Rows[0][0])
	}
}

func TestIDTransformer_RejectsUnsupportedCast(t *testing.T) {
	_, err := transform.Decode(transform.Config{
		UIDValue: "t1", Method: "id", Column: "email", Cast: "datetime",
	})
	if err == nil {
		t.Fatal("expected error for id+datetime cast combination")
	}
}

func TestDateTimeTransformer_ShiftAndReverse(t *testing.T) {
	xf, err := transform.Decode(transform.Config{
		UIDValue: "t2", Method: "datetime", DatetimeColumn: "visited_at",
		IDConfig:  &transform.IdentityRef{Name: "patient_id", UID: "patient_uid"},
		TimeShift: &transform.TimeShiftSpec{Method: "shift_by_days", MinRange: 10, MaxRange: 10},
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	f, err := table.NewFrame([]string{"visited_at", "patient_id"}, [][]any{
		{"2020-01-01", "p1"},
		{"2020-06-15", "p1"},
		{"2020-01-01", "p2"},
	})
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}

	ctx := context.Background()
	refs := newStore(t)
	if err := xf.Apply(ctx, f, refs); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	want := time.Date(2020, 1, 11, 0, 0, 0, 0, time.UTC)
	got, ok := f.Rows[0][0].(time.Time)
	if !ok || !got.Equal(want) {
		t.Fatalf("row 0 shifted = %v, want %v", f.Rows[0][0], want)
	}

	// Same entity (p1), different original date: same 10-day shift.
	want2 := time.Date(2020, 6, 25, 0, 0, 0, 0, time.UTC)
	got2, ok := f.Rows[1][0].(time.Time)
	if !ok || !got2.Equal(want2) {
		t.Fatalf("row 1 shifted = %v, want %v", f.Rows[1][0], want2)
	}

	if err := xf.Reverse(ctx, f, refs); err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	reversed, ok := f.Rows[0][0].(time.Time)
	if !ok || !reversed.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("reversed row 0 = %v, want 2020-01-01", f.Rows[0][0])
	}
}

func TestDateTimeTransformer_DistinctEntitiesGetDistinctShifts(t *testing.T) {
	xf, err := transform.Decode(transform.Config{
		UIDValue: "t2", Method: "datetime", DatetimeColumn: "visited_at",
		IDConfig:  &transform.IdentityRef{Name: "patient_id", UID: "patient_uid"},
		TimeShift: &transform.TimeShiftSpec{Method: "random_days", MinRange: 1, MaxRange: 365},
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	f, _ := table.NewFrame([]string{"visited_at", "patient_id"}, [][]any{
		{"2020-01-01", "p1"},
		{"2020-01-01", "p2"},
	})
	refs := newStore(t)
	if err := xf.Apply(context.Background(), f, refs); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	t1 := f.Rows[0][0].(time.Time)
	t2 := f.Rows[1][0].(time.Time)
	if t1.Equal(t2) {
		// Not impossible with a wide random range, but vanishingly unlikely
		// and would indicate the per-entity keying collapsed to one key.
		t.Fatal("distinct entities received identical random shifts")
	}
}

// TestDateTimeTransformer_ShiftByDaysIsPerEntityRange covers the fix
// for shift_by_days (and the other shift_by_* methods) sampling a
// range per entity, the same mechanism as random_days, rather than
// returning one fixed offset for every entity in the column.
func TestDateTimeTransformer_ShiftByDaysIsPerEntityRange(t *testing.T) {
	xf, err := transform.Decode(transform.Config{
		UIDValue: "t2", Method: "datetime", DatetimeColumn: "visited_at",
		IDConfig:  &transform.IdentityRef{Name: "patient_id", UID: "patient_uid"},
		TimeShift: &transform.TimeShiftSpec{Method: "shift_by_days", MinRange: 1, MaxRange: 1000},
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	f, _ := table.NewFrame([]string{"visited_at", "patient_id"}, [][]any{
		{"2020-01-01", "p1"},
		{"2020-01-01", "p2"},
	})
	refs := newStore(t)
	if err := xf.Apply(context.Background(), f, refs); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	t1 := f.Rows[0][0].(time.Time)
	t2 := f.Rows[1][0].(time.Time)
	if t1.Equal(t2) {
		t.Fatal("distinct entities received identical shift_by_days offsets")
	}
}

// TestDateTimeTransformer_EntityColumnDistinctFromDatetimeColumn covers
// the fix for the entity key coming from idconfig's column, not the
// datetime column itself: two entities sharing a timestamp must still
// get independent shifts.
func TestDateTimeTransformer_EntityColumnDistinctFromDatetimeColumn(t *testing.T) {
	xf, err := transform.Decode(transform.Config{
		UIDValue: "t2", Method: "datetime", DatetimeColumn: "visited_at",
		IDConfig:  &transform.IdentityRef{Name: "patient_id", UID: "patient_uid"},
		TimeShift: &transform.TimeShiftSpec{Method: "random_days", MinRange: 1, MaxRange: 1000},
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	f, _ := table.NewFrame([]string{"visited_at", "patient_id"}, [][]any{
		{"2020-01-01", "p1"},
		{"2020-01-01", "p2"},
	})
	refs := newStore(t)
	if err := xf.Apply(context.Background(), f, refs); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if f.Rows[0][0].(time.Time).Equal(f.Rows[1][0].(time.Time)) {
		t.Fatal("entities p1 and p2 shared a timestamp and must not share a shift")
	}
}

func TestIDTransformer_FloatCast(t *testing.T) {
	xf, err := transform.Decode(transform.Config{
		UIDValue: "t1", Method: "id", Column: "uid", Cast: "float",
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	f, _ := table.NewFrame([]string{"uid"}, [][]any{{"x"}})
	refs := newStore(t)
	if err := xf.Apply(context.Background(), f, refs); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if f.Rows[0][0] != 1.0 {
		t.Fatalf("got %v (%T), want float64 1", f.Rows[0][0], f.Rows[0][0])
	}
}

// TestIDTransformer_Reverse_UnresolvedSurrogateLeftUnchanged covers the
// fix for Reverse on an unknown surrogate: it must leave the cell
// unchanged and report it, not abort the whole table's reverse pass.
func TestIDTransformer_Reverse_UnresolvedSurrogateLeftUnchanged(t *testing.T) {
	xf, err := transform.Decode(transform.Config{
		UIDValue: "t1", Method: "id", Column: "email", Cast: "string",
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	f, err := table.NewFrame([]string{"email"}, [][]any{{"999"}})
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	refs := newStore(t)
	if err := xf.Reverse(context.Background(), f, refs); err != nil {
		t.Fatalf("Reverse: expected unresolved surrogates to not error, got %v", err)
	}
	if f.Rows[0][0] != "999" {
		t.Fatalf("cell = %v, want unchanged \"999\"", f.Rows[0][0])
	}
	id, ok := xf.(*transform.IDTransformer)
	if !ok {
		t.Fatal("expected *transform.IDTransformer")
	}
	got := id.UnresolvedSurrogates()
	if len(got) != 1 || got[0].Value != "999" || got[0].Row != 0 {
		t.Fatalf("UnresolvedSurrogates = %+v", got)
	}
}

func TestColumnDropperTransformer_DropsAndIsIrreversible(t *testing.T) {
	xf, err := transform.Decode(transform.Config{UIDValue: "t3", Method: "drop_column", Column: "ssn"})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	f, err := table.NewFrame([]string{"name", "ssn"}, [][]any{{"alice", "123-45-6789"}})
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	refs := newStore(t)
	if err := xf.Apply(context.Background(), f, refs); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if f.HasColumn("ssn") {
		t.Fatal("expected ssn column to be dropped")
	}
	if err := xf.Reverse(context.Background(), f, refs); err == nil {
		t.Fatal("expected ErrIrreversible from column dropper Reverse")
	}
}

func TestDecode_UnknownMethodIsError(t *testing.T) {
	if _, err := transform.Decode(transform.Config{UIDValue: "t4", Method: "nonexistent", Column: "x"}); err == nil {
		t.Fatal("expected error for unknown transformer method")
	}
}

func TestIDTransformer_RespectsFilter(t *testing.T) {
	xf, err := transform.Decode(transform.Config{
		UIDValue: "t5", Method: "id", Column: "email", Cast: "string", Filter: "country == 'US'",
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	f, err := table.NewFrame([]string{"email", "country"}, [][]any{
		{"alice@example.com", "US"},
		{"bob@example.com", "CA"},
	})
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	refs := newStore(t)
	if err := xf.Apply(context.Background(), f, refs); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if f.Rows[0][0] != "1" {
		t.Fatalf("filtered row not transformed: %v", f.Rows[0][0])
	}
	if f.Rows[1][0] != "bob@example.com" {
		t.Fatalf("unfiltered row should be untouched: %v", f.Rows[1][0])
	}
}
