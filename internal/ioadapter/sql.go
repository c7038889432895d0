package ioadapter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/nomaai/deidgo/internal/identifier"
	"github.com/nomaai/deidgo/internal/table"
)

func init() {
	RegisterTableStore("sql", func(cfg Config) (TableStore, error) { return newSQLTableStore(cfg) })
	RegisterRefStore("sql", func(cfg Config) (RefStore, error) { return newSQLRefStore(cfg) })
}

// sqlConn is the shared connection handle for both store flavors:
// sql.Open plus driver dispatch and pool tuning, with no
// cursor-pagination or schema-introspection concerns since a batch
// engine has no use for them.
type sqlConn struct {
	driver string
	db     *sql.DB
}

func openSQLConn(cfg Config) (*sqlConn, error) {
	driver, _ := cfg["driver"].(string)
	dsn, _ := cfg["dsn"].(string)
	if dsn == "" {
		return nil, fmt.Errorf("sql store: dsn is required")
	}
	switch driver {
	case "sqlite", "mysql", "postgres":
	case "":
		driver = "sqlite"
	default:
		return nil, fmt.Errorf("sql store: unsupported driver %q", driver)
	}
	driverName := driver
	if driver == "postgres" {
		driverName = "postgres"
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	return &sqlConn{driver: driver, db: db}, nil
}

func (c *sqlConn) quoteIdent(name string) string {
	if c.driver == "mysql" {
		return "`" + name + "`"
	}
	return `"` + name + `"`
}

func (c *sqlConn) placeholder(n int) string {
	if c.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (c *sqlConn) tableExists(ctx context.Context, name string) (bool, error) {
	var query string
	switch c.driver {
	case "sqlite":
		query = `SELECT name FROM sqlite_master WHERE type='table' AND name = ?`
	case "mysql":
		query = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`
	default: // postgres
		query = `SELECT table_name FROM information_schema.tables WHERE table_name = $1`
	}
	rows, err := c.db.QueryContext(ctx, query, name)
	if err != nil {
		return false, fmt.Errorf("check table %q: %w", name, err)
	}
	defer rows.Close()
	return rows.Next(), nil
}

func (c *sqlConn) readTable(ctx context.Context, name string) (*table.Frame, error) {
	exists, err := c.tableExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &TableNotFoundError{Table: name}
	}

	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", c.quoteIdent(name)))
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns of %q: %w", name, err)
	}

	var out [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row of %q: %w", name, err)
		}
		row := make([]any, len(cols))
		for i, v := range values {
			row[i] = normalizeSQLValue(v)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %q: %w", name, err)
	}
	return &table.Frame{Columns: cols, Rows: out}, nil
}

// normalizeSQLValue keeps typed numerics instead of collapsing
// everything to string, since transformers need to compare/shift
// actual values.
func normalizeSQLValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val
	default:
		return val
	}
}

func (c *sqlConn) writeTable(ctx context.Context, name string, f *table.Frame) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	quoted := c.quoteIdent(name)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quoted)); err != nil {
		return fmt.Errorf("drop existing %q: %w", name, err)
	}

	colDefs := make([]string, len(f.Columns))
	for i, col := range f.Columns {
		colDefs[i] = fmt.Sprintf("%s TEXT", c.quoteIdent(col))
	}
	createStmt := fmt.Sprintf("CREATE TABLE %s (%s)", quoted, strings.Join(colDefs, ", "))
	if _, err := tx.ExecContext(ctx, createStmt); err != nil {
		return fmt.Errorf("create %q: %w", name, err)
	}

	placeholders := make([]string, len(f.Columns))
	for i := range f.Columns {
		placeholders[i] = c.placeholder(i + 1)
	}
	insertStmt := fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoted, strings.Join(placeholders, ", "))
	stmt, err := tx.PrepareContext(ctx, insertStmt)
	if err != nil {
		return fmt.Errorf("prepare insert into %q: %w", name, err)
	}
	defer stmt.Close()

	for i, row := range f.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert row %d into %q: %w", i, name, err)
		}
	}
	return tx.Commit()
}

// ── SQLTableStore ────────────────────────────────────────────
// Reads address the SQL table named name (+"_"+segment if
// non-default). Writes go to the table named for name in the config's
// output_table_map, or to name+"_deid" (+"_"+segment if non-default)
// when there is no mapping. Most de-identification runs are single-segment;
// SQLTableStore treats the empty segment as the bare table name and
// any other segment as a suffix, so a caller that needs true
// multi-segment SQL tables can still address them individually.

type SQLTableStore struct {
	conn      *sqlConn
	outputMap map[string]string
}

func newSQLTableStore(cfg Config) (*SQLTableStore, error) {
	conn, err := openSQLConn(cfg)
	if err != nil {
		return nil, err
	}
	outputMap := map[string]string{}
	if raw, ok := cfg["output_table_map"].(map[string]any); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				outputMap[k] = s
			}
		}
	}
	return &SQLTableStore{conn: conn, outputMap: outputMap}, nil
}

func (s *SQLTableStore) resolveTableName(tableName string) string {
	if mapped, ok := s.outputMap[tableName]; ok {
		return mapped
	}
	return tableName + "_deid"
}

func segmentedName(tableName, segment string) string {
	if segment == "" {
		return tableName
	}
	return tableName + "_" + segment
}

func (s *SQLTableStore) ListSegments(ctx context.Context, tableName string) ([]string, error) {
	exists, err := s.conn.tableExists(ctx, tableName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &TableNotFoundError{Table: tableName}
	}
	return []string{""}, nil
}

func (s *SQLTableStore) ReadSegment(ctx context.Context, tableName, segment string) (*table.Frame, error) {
	return s.conn.readTable(ctx, segmentedName(tableName, segment))
}

// WriteSegment writes to the de-identified output table (name + "_deid",
// or the explicit output_table_map entry), never the source table, so
// the original table is always left untouched.
func (s *SQLTableStore) WriteSegment(ctx context.Context, tableName, segment string, f *table.Frame) error {
	outName := segmentedName(s.resolveTableName(tableName), segment)
	return s.conn.writeTable(ctx, outName, f)
}

// ── SQLRefStore ──────────────────────────────────────────────
// Both reference-frame kinds persist into a single table:
// deidgo_refs(uid TEXT, kind TEXT, value TEXT, mapped TEXT),
// where mapped holds the deid surrogate (kind="id") or the shift
// value rendered as text (kind="shift").

type SQLRefStore struct {
	conn *sqlConn
}

func newSQLRefStore(cfg Config) (*SQLRefStore, error) {
	conn, err := openSQLConn(cfg)
	if err != nil {
		return nil, err
	}
	store := &SQLRefStore{conn: conn}
	if err := store.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLRefStore) ensureSchema(ctx context.Context) error {
	_, err := s.conn.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS deidgo_refs (
		uid TEXT NOT NULL,
		kind TEXT NOT NULL,
		value TEXT NOT NULL,
		mapped TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create reference schema: %w", err)
	}
	return nil
}

func (s *SQLRefStore) ListUIDs(ctx context.Context) ([]string, error) {
	rows, err := s.conn.db.QueryContext(ctx, `SELECT DISTINCT uid FROM deidgo_refs WHERE kind = 'id'`)
	if err != nil {
		return nil, fmt.Errorf("list uids: %w", err)
	}
	defer rows.Close()

	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan uid: %w", err)
		}
		uids = append(uids, uid)
	}
	return uids, rows.Err()
}

func (s *SQLRefStore) ReadFrame(ctx context.Context, uid string, kind FrameKind) (*identifier.Frame, error) {
	rows, err := s.conn.db.QueryContext(ctx,
		`SELECT value, mapped FROM deidgo_refs WHERE uid = `+s.conn.placeholder(1)+` AND kind = `+s.conn.placeholder(2),
		uid, string(kind))
	if err != nil {
		return nil, fmt.Errorf("read reference frame %q/%s: %w", uid, kind, err)
	}
	defer rows.Close()

	var frameRows []identifier.Row
	for rows.Next() {
		var value, mapped string
		if err := rows.Scan(&value, &mapped); err != nil {
			return nil, fmt.Errorf("scan reference row: %w", err)
		}
		if kind == FrameKindShift {
			shift, err := parseShift(mapped)
			if err != nil {
				return nil, fmt.Errorf("corrupt shift value for uid %q: %w", uid, err)
			}
			frameRows = append(frameRows, identifier.Row{Value: value, Shift: shift})
		} else {
			frameRows = append(frameRows, identifier.Row{Value: value, Deid: mapped})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference rows: %w", err)
	}
	return identifier.NewFrame(frameRows), nil
}

func parseShift(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	return f, err
}

// WriteFrame replaces all rows for (uid, kind) inside one transaction,
// so a reader never observes a partially-written frame.
func (s *SQLRefStore) WriteFrame(ctx context.Context, uid string, kind FrameKind, f *identifier.Frame) error {
	tx, err := s.conn.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM deidgo_refs WHERE uid = `+s.conn.placeholder(1)+` AND kind = `+s.conn.placeholder(2),
		uid, string(kind)); err != nil {
		return fmt.Errorf("clear reference frame %q/%s: %w", uid, kind, err)
	}

	insertStmt := fmt.Sprintf("INSERT INTO deidgo_refs (uid, kind, value, mapped) VALUES (%s, %s, %s, %s)",
		s.conn.placeholder(1), s.conn.placeholder(2), s.conn.placeholder(3), s.conn.placeholder(4))
	stmt, err := tx.PrepareContext(ctx, insertStmt)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range f.Rows {
		mapped := row.Deid
		if kind == FrameKindShift {
			mapped = fmt.Sprintf("%g", row.Shift)
		}
		if _, err := stmt.ExecContext(ctx, uid, string(kind), row.Value, mapped); err != nil {
			return fmt.Errorf("insert reference row: %w", err)
		}
	}
	return tx.Commit()
}
