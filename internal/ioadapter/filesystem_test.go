package ioadapter_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nomaai/deidgo/internal/identifier"
	"github.com/nomaai/deidgo/internal/ioadapter"
	"github.com/nomaai/deidgo/internal/table"
)

func TestFilesystemTableStore_SingleSegmentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := ioadapter.NewTableStore("filesystem", ioadapter.Config{"base_path": dir, "file_format": "csv"})
	if err != nil {
		t.Fatalf("NewTableStore: %v", err)
	}
	ctx := context.Background()

	f, err := table.NewFrame([]string{"name", "age"}, [][]any{
		{"alice", float64(30)},
		{"bob", float64(40)},
	})
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	if err := store.WriteSegment(ctx, "people", "", f); err != nil {
		t.Fatalf("WriteSegment: %v", err)
	}

	segs, err := store.ListSegments(ctx, "people")
	if err != nil {
		t.Fatalf("ListSegments: %v", err)
	}
	if len(segs) != 1 || segs[0] != "" {
		t.Fatalf("ListSegments = %v, want single empty segment", segs)
	}

	got, err := store.ReadSegment(ctx, "people", "")
	if err != nil {
		t.Fatalf("ReadSegment: %v", err)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(got.Rows))
	}
	if got.Rows[0][0] != "alice" || got.Rows[0][1] != float64(30) {
		t.Errorf("row 0 = %v", got.Rows[0])
	}
}

func TestFilesystemTableStore_SingleSegmentPrecedesDirectory(t *testing.T) {
	dir := t.TempDir()
	store, err := ioadapter.NewTableStore("filesystem", ioadapter.Config{"base_path": dir, "file_format": "csv"})
	if err != nil {
		t.Fatalf("NewTableStore: %v", err)
	}
	ctx := context.Background()

	f, _ := table.NewFrame([]string{"x"}, [][]any{{float64(1)}})
	if err := store.WriteSegment(ctx, "dual", "", f); err != nil {
		t.Fatalf("WriteSegment single: %v", err)
	}

	// Now also create a directory form; the single-segment file must win.
	if err := writeFile(filepath.Join(dir, "dual", "part-0.csv"), "x\n99\n"); err != nil {
		t.Fatalf("seed directory form: %v", err)
	}

	segs, err := store.ListSegments(ctx, "dual")
	if err != nil {
		t.Fatalf("ListSegments: %v", err)
	}
	if len(segs) != 1 || segs[0] != "" {
		t.Fatalf("ListSegments = %v, want single-segment precedence", segs)
	}
}

func TestFilesystemTableStore_MissingTableIsNotFound(t *testing.T) {
	dir := t.TempDir()
	store, err := ioadapter.NewTableStore("filesystem", ioadapter.Config{"base_path": dir})
	if err != nil {
		t.Fatalf("NewTableStore: %v", err)
	}
	if _, err := store.ListSegments(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for missing table")
	}
}

func TestFilesystemRefStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := ioadapter.NewRefStore("filesystem", ioadapter.Config{"base_path": dir})
	if err != nil {
		t.Fatalf("NewRefStore: %v", err)
	}
	ctx := context.Background()

	idFrame := identifier.NewFrame([]identifier.Row{
		{Value: "alice@example.com", Deid: "1"},
		{Value: "bob@example.com", Deid: "2"},
	})
	if err := store.WriteFrame(ctx, "user_uid", ioadapter.FrameKindID, idFrame); err != nil {
		t.Fatalf("WriteFrame id: %v", err)
	}

	shiftFrame := identifier.NewFrame([]identifier.Row{
		{Value: "alice@example.com", Shift: 3.5},
	})
	if err := store.WriteFrame(ctx, "user_uid", ioadapter.FrameKindShift, shiftFrame); err != nil {
		t.Fatalf("WriteFrame shift: %v", err)
	}

	uids, err := store.ListUIDs(ctx)
	if err != nil {
		t.Fatalf("ListUIDs: %v", err)
	}
	if len(uids) != 1 || uids[0] != "user_uid" {
		t.Fatalf("ListUIDs = %v, want [user_uid]", uids)
	}

	gotID, err := store.ReadFrame(ctx, "user_uid", ioadapter.FrameKindID)
	if err != nil {
		t.Fatalf("ReadFrame id: %v", err)
	}
	row, ok := gotID.Lookup("bob@example.com")
	if !ok || row.Deid != "2" {
		t.Fatalf("Lookup(bob) = %v, %v", row, ok)
	}

	gotShift, err := store.ReadFrame(ctx, "user_uid", ioadapter.FrameKindShift)
	if err != nil {
		t.Fatalf("ReadFrame shift: %v", err)
	}
	sRow, ok := gotShift.Lookup("alice@example.com")
	if !ok || sRow.Shift != 3.5 {
		t.Fatalf("Lookup(alice) shift = %v, %v", sRow, ok)
	}
}

func TestFilesystemRefStore_MissingFrameIsEmptyNotError(t *testing.T) {
	dir := t.TempDir()
	store, err := ioadapter.NewRefStore("filesystem", ioadapter.Config{"base_path": dir})
	if err != nil {
		t.Fatalf("NewRefStore: %v", err)
	}
	f, err := store.ReadFrame(context.Background(), "never_written", ioadapter.FrameKindID)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.MaxDeid() != 0 {
		t.Fatalf("expected empty frame, got MaxDeid=%d", f.MaxDeid())
	}
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
