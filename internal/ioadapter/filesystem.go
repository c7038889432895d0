package ioadapter

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nomaai/deidgo/internal/identifier"
	"github.com/nomaai/deidgo/internal/table"
)

func init() {
	RegisterTableStore("filesystem", func(cfg Config) (TableStore, error) { return newFilesystemTableStore(cfg) })
	RegisterRefStore("filesystem", func(cfg Config) (RefStore, error) { return newFilesystemRefStore(cfg) })
}

// FileFormat is a registered table segment encoding. Only csv and json
// are implemented; parquet/xlsx/xls/pickle are left as a
// clearly-erroring extension point (see DESIGN.md) rather than pulling
// in an otherwise-unused dependency to support them.
type FileFormat string

const (
	FormatCSV  FileFormat = "csv"
	FormatJSON FileFormat = "json"
)

// FileFormatError reports an unsupported segment encoding.
type FileFormatError struct{ Format string }

func (e *FileFormatError) Error() string {
	return fmt.Sprintf("unsupported file_format %q (only csv and json are implemented)", e.Format)
}

// FilesystemTableStore implements TableStore over a base directory.
// A table is either <base>/<name>.<fmt> (single-segment) or
// <base>/<name>/ (multi-segment, one file per segment). The
// single-segment file takes precedence when both exist.
type FilesystemTableStore struct {
	basePath  string
	format    FileFormat
	delimiter rune
}

func newFilesystemTableStore(cfg Config) (*FilesystemTableStore, error) {
	basePath, _ := cfg["base_path"].(string)
	if basePath == "" {
		return nil, fmt.Errorf("filesystem store: base_path is required")
	}
	format := FormatCSV
	if f, ok := cfg["file_format"].(string); ok && f != "" {
		format = FileFormat(f)
	}
	delim := ','
	if d, ok := cfg["delimiter"].(string); ok && len(d) > 0 {
		delim = rune(d[0])
	}
	switch format {
	case FormatCSV, FormatJSON:
	default:
		return nil, &FileFormatError{Format: string(format)}
	}
	return &FilesystemTableStore{basePath: basePath, format: format, delimiter: delim}, nil
}

func (s *FilesystemTableStore) singleSegmentPath(tableName string) string {
	return filepath.Join(s.basePath, tableName+"."+string(s.format))
}

func (s *FilesystemTableStore) segmentDir(tableName string) string {
	return filepath.Join(s.basePath, tableName)
}

// ListSegments returns ["" ] for a single-segment table (the empty
// segment name means "the whole table"), or the sorted list of
// filenames inside the segment directory.
func (s *FilesystemTableStore) ListSegments(_ context.Context, tableName string) ([]string, error) {
	if _, err := os.Stat(s.singleSegmentPath(tableName)); err == nil {
		return []string{""}, nil
	}
	dir := s.segmentDir(tableName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &TableNotFoundError{Table: tableName}
		}
		return nil, fmt.Errorf("list segments for %q: %w", tableName, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// TableNotFoundError reports a table absent from the store.
type TableNotFoundError struct{ Table string }

func (e *TableNotFoundError) Error() string { return fmt.Sprintf("table %q not found", e.Table) }

func (s *FilesystemTableStore) segmentPath(tableName, segment string) string {
	if segment == "" {
		return s.singleSegmentPath(tableName)
	}
	return filepath.Join(s.segmentDir(tableName), segment)
}

func (s *FilesystemTableStore) ReadSegment(_ context.Context, tableName, segment string) (*table.Frame, error) {
	path := s.segmentPath(tableName, segment)
	format := s.format
	if segment != "" {
		format = formatFromExt(segment, s.format)
	}
	switch format {
	case FormatJSON:
		return readJSONSegment(path)
	default:
		return readCSVSegment(path, s.delimiter)
	}
}

func (s *FilesystemTableStore) WriteSegment(_ context.Context, tableName, segment string, f *table.Frame) error {
	path := s.segmentPath(tableName, segment)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	format := s.format
	if segment != "" {
		format = formatFromExt(segment, s.format)
	}
	switch format {
	case FormatJSON:
		return writeJSONSegment(path, f)
	default:
		return writeCSVSegment(path, f, s.delimiter)
	}
}

func formatFromExt(segment string, fallback FileFormat) FileFormat {
	switch strings.ToLower(filepath.Ext(segment)) {
	case ".json":
		return FormatJSON
	case ".csv":
		return FormatCSV
	default:
		return fallback
	}
}

func readCSVSegment(path string, delim rune) (*table.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &TableNotFoundError{Table: path}
		}
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = delim
	r.FieldsPerRecord = -1 // validated below so a mismatch is reported with context
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv %q: %w", path, err)
	}
	if len(records) == 0 {
		return &table.Frame{}, nil
	}
	header := records[0]
	rows := make([][]any, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("csv %q: row %d has %d columns, want %d", path, i, len(rec), len(header))
		}
		row := make([]any, len(rec))
		for j, cell := range rec {
			row[j] = inferCSVValue(cell)
		}
		rows = append(rows, row)
	}
	return &table.Frame{Columns: header, Rows: rows}, nil
}

func writeCSVSegment(path string, f *table.Frame, delim rune) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	w.Comma = delim
	if err := w.Write(f.Columns); err != nil {
		return fmt.Errorf("write header to %q: %w", path, err)
	}
	for _, row := range f.Rows {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = formatCSVValue(v)
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write row to %q: %w", path, err)
		}
	}
	w.Flush()
	return w.Error()
}

// inferCSVValue tries numeric, then falls through to string. Empty
// cells decode to nil so that ID/DateTime transformers see a real
// null, not the string "".
func inferCSVValue(s string) any {
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func formatCSVValue(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func readJSONSegment(path string) (*table.Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &TableNotFoundError{Table: path}
		}
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse json %q: %w", path, err)
	}
	if len(raw) == 0 {
		return &table.Frame{}, nil
	}
	var cols []string
	seen := map[string]bool{}
	for _, rec := range raw {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	rows := make([][]any, len(raw))
	for i, rec := range raw {
		row := make([]any, len(cols))
		for j, c := range cols {
			row[j] = rec[c]
		}
		rows[i] = row
	}
	return &table.Frame{Columns: cols, Rows: rows}, nil
}

func writeJSONSegment(path string, f *table.Frame) error {
	out := make([]map[string]any, len(f.Rows))
	for i, row := range f.Rows {
		rec := make(map[string]any, len(f.Columns))
		for j, c := range f.Columns {
			rec[c] = row[j]
		}
		out[i] = rec
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}

// ── Reference store backend ─────────────────────────────────
// Each uid's ID map is persisted as <base>/<uid>.csv with columns
// (value, deid); each shift map as <base>/<uid>_shift.csv with columns
// (value, shift). Writes go to a temp file and are renamed into place
// on success, so a crash mid-write never leaves a torn reference file.

type FilesystemRefStore struct {
	basePath string
}

func newFilesystemRefStore(cfg Config) (*FilesystemRefStore, error) {
	basePath, _ := cfg["base_path"].(string)
	if basePath == "" {
		return nil, fmt.Errorf("filesystem ref store: base_path is required")
	}
	return &FilesystemRefStore{basePath: basePath}, nil
}

func (s *FilesystemRefStore) refPath(uid string, kind FrameKind) string {
	name := uid
	if kind == FrameKindShift {
		name = uid + "_shift"
	}
	return filepath.Join(s.basePath, name+".csv")
}

// ListUIDs discovers every uid with a persisted ID-map file. Missing
// base_path is not an error: a first run with no prior reference store
// is simply the empty map, not a failure.
func (s *FilesystemRefStore) ListUIDs(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list reference store %q: %w", s.basePath, err)
	}
	var uids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".csv")
		if !strings.HasSuffix(e.Name(), ".csv") || strings.HasSuffix(name, "_shift") {
			continue
		}
		uids = append(uids, name)
	}
	sort.Strings(uids)
	return uids, nil
}

func (s *FilesystemRefStore) ReadFrame(_ context.Context, uid string, kind FrameKind) (*identifier.Frame, error) {
	path := s.refPath(uid, kind)
	data, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return identifier.NewFrame(nil), nil
		}
		return nil, fmt.Errorf("open reference frame %q: %w", path, err)
	}
	defer data.Close()

	r := csv.NewReader(data)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("corrupt reference frame %q: %w", path, err)
	}
	if len(records) == 0 {
		return identifier.NewFrame(nil), nil
	}
	rows := make([]identifier.Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != 2 {
			return nil, fmt.Errorf("corrupt reference frame %q: row %d has %d columns, want 2", path, i, len(rec))
		}
		switch kind {
		case FrameKindShift:
			shift, err := strconv.ParseFloat(rec[1], 64)
			if err != nil {
				return nil, fmt.Errorf("corrupt reference frame %q: row %d shift %q is not numeric", path, i, rec[1])
			}
			rows = append(rows, identifier.Row{Value: rec[0], Shift: shift})
		default:
			rows = append(rows, identifier.Row{Value: rec[0], Deid: rec[1]})
		}
	}
	return identifier.NewFrame(rows), nil
}

func (s *FilesystemRefStore) WriteFrame(_ context.Context, uid string, kind FrameKind, f *identifier.Frame) error {
	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return fmt.Errorf("create reference store %q: %w", s.basePath, err)
	}
	path := s.refPath(uid, kind)
	// Suffixed with a fresh uuid rather than a fixed ".tmp" extension so
	// concurrent writers for the same reference path (tables in the same
	// DAG layer can share an identifier) never collide on the temp file.
	tmp := path + "." + uuid.New().String() + ".tmp"

	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp reference file %q: %w", tmp, err)
	}

	w := csv.NewWriter(out)
	valueCol := uid
	otherCol := uid + "__deid"
	if kind == FrameKindShift {
		otherCol = uid + "_shift"
	}
	if err := w.Write([]string{valueCol, otherCol}); err != nil {
		out.Close()
		return fmt.Errorf("write header to %q: %w", tmp, err)
	}
	for _, row := range f.Rows {
		other := row.Deid
		if kind == FrameKindShift {
			other = strconv.FormatFloat(row.Shift, 'f', -1, 64)
		}
		if err := w.Write([]string{row.Value, other}); err != nil {
			out.Close()
			return fmt.Errorf("write row to %q: %w", tmp, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		out.Close()
		return fmt.Errorf("flush %q: %w", tmp, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %q to %q: %w", tmp, path, err)
	}
	return nil
}
