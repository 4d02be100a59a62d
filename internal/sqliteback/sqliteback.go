package sqliteback

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/simrec/internal/datum"
	"github.com/roach88/simrec/internal/recorder"
)

//go:embed schema.sql
var schemaSQL string

const fieldTypesTable = "FieldTypes"

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Backend persists records into SQLite tables.
//
// SQLite compares identifiers without regard to case, so titles that differ
// only in case name the same table.
type Backend struct {
	db      *sql.DB
	path    string
	tables  map[string]bool // keyed by tableKey
	pending []statement
	logger  *slog.Logger
}

type statement struct {
	query string
	args  []any
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger for table creation diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// Open creates or opens the SQLite database at path.
//
// Tables already present in the database are remembered so a reopened file
// is appended to without re-creating them.
func Open(path string, opts ...Option) (*Backend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	b := &Backend{
		db:     db,
		path:   path,
		tables: make(map[string]bool),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	if err := b.loadTables(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// loadTables caches the names of tables that already exist.
func (b *Backend) loadTables() error {
	rows, err := b.db.Query("SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan table name: %w", err)
		}
		b.tables[tableKey(name)] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate tables: %w", err)
	}
	return nil
}

// Name returns the database path.
func (b *Backend) Name() string {
	return b.path
}

// DB returns the underlying sql.DB for direct queries.
func (b *Backend) DB() *sql.DB {
	return b.db
}

// Notify queues table creation and insert statements for records and
// executes them in one transaction.
func (b *Backend) Notify(records []*recorder.Record) error {
	if b.db == nil {
		return errClosed(b.path)
	}
	var created []string
	fail := func(err error) error {
		b.pending = nil
		b.forget(created)
		return err
	}

	for _, rec := range records {
		title := rec.Title()
		if err := checkIdent(title); err != nil {
			return fail(err)
		}
		key := tableKey(title)
		if key == tableKey(fieldTypesTable) {
			return fail(fmt.Errorf("title %q is reserved", title))
		}
		if !b.tables[key] {
			if err := b.queueCreate(title, rec.Schema()); err != nil {
				return fail(err)
			}
			b.tables[key] = true
			created = append(created, key)
		}
		if err := b.queueInsert(rec); err != nil {
			return fail(err)
		}
	}

	if err := b.exec(context.Background()); err != nil {
		return fail(err)
	}
	for _, title := range created {
		b.logger.Debug("sqlite table created", "db", b.path, "table", title)
	}
	return nil
}

// forget drops table keys whose CREATE TABLE never committed.
func (b *Backend) forget(keys []string) {
	for _, k := range keys {
		delete(b.tables, k)
	}
}

func tableKey(name string) string {
	return strings.ToLower(name)
}

func errClosed(path string) error {
	return fmt.Errorf("%s: backend is closed", path)
}

func (b *Backend) queueCreate(title string, schema datum.Schema) error {
	query, err := CreateTableSQL(title, schema)
	if err != nil {
		return err
	}
	b.pending = append(b.pending, statement{query: query})
	for _, col := range schema.Sorted() {
		b.pending = append(b.pending, statement{
			query: "INSERT INTO " + fieldTypesTable + " (TableName, Field, Type) VALUES (?, ?, ?);",
			args:  []any{title, col.Name, int(col.Kind)},
		})
	}
	return nil
}

func (b *Backend) queueInsert(rec *recorder.Record) error {
	query, err := InsertSQL(rec.Title(), rec.Schema())
	if err != nil {
		return err
	}
	args := make([]any, 0, rec.Len())
	for _, f := range rec.Fields() {
		arg, err := bindValue(f.Value)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", rec.Title(), f.Name, err)
		}
		args = append(args, arg)
	}
	b.pending = append(b.pending, statement{query: query, args: args})
	return nil
}

// exec runs every pending statement in one transaction. The queue is cleared
// whether or not the transaction commits.
func (b *Backend) exec(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	pending := b.pending
	b.pending = nil

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, st := range pending {
		if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
			return fmt.Errorf("exec %q: %w", st.query, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Flush executes any queued statements.
func (b *Backend) Flush() error {
	return b.exec(context.Background())
}

// Close executes any queued statements and closes the database.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	if err := b.exec(context.Background()); err != nil {
		return err
	}
	err := b.db.Close()
	b.db = nil
	return err
}

// CreateTableSQL returns the CREATE TABLE statement for title with the
// schema's columns sorted by name. Column names that differ only in case
// are rejected.
func CreateTableSQL(title string, schema datum.Schema) (string, error) {
	if err := checkIdent(title); err != nil {
		return "", err
	}
	cols := make([]string, 0, len(schema))
	seen := make(map[string]string, len(schema))
	for _, col := range schema.Sorted() {
		if err := checkIdent(col.Name); err != nil {
			return "", err
		}
		if prev, ok := seen[tableKey(col.Name)]; ok {
			return "", fmt.Errorf("%s: columns %q and %q differ only in case", title, prev, col.Name)
		}
		seen[tableKey(col.Name)] = col.Name
		typ, err := SQLType(col.Kind)
		if err != nil {
			return "", fmt.Errorf("column %s: %w", col.Name, err)
		}
		cols = append(cols, col.Name+" "+typ)
	}
	return "CREATE TABLE " + title + " (" + strings.Join(cols, ", ") + ");", nil
}

// InsertSQL returns a parameterized INSERT naming only the given columns, in
// their given order.
func InsertSQL(title string, schema datum.Schema) (string, error) {
	if err := checkIdent(title); err != nil {
		return "", err
	}
	names := schema.Names()
	for _, name := range names {
		if err := checkIdent(name); err != nil {
			return "", err
		}
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	return "INSERT INTO " + title + " (" + strings.Join(names, ", ") + ") VALUES (" + marks + ");", nil
}

// SQLType maps a value kind to its column type.
func SQLType(k datum.Kind) (string, error) {
	switch k {
	case datum.KindInt:
		return "INTEGER", nil
	case datum.KindReal:
		return "REAL", nil
	case datum.KindText:
		return "VARCHAR(128)", nil
	case datum.KindBlob:
		return "BLOB", nil
	case datum.KindRunID:
		return "CHAR(36)", nil
	default:
		return "", fmt.Errorf("no SQL type for %s", k)
	}
}

// bindValue converts v to a database/sql argument.
func bindValue(v datum.Value) (any, error) {
	switch val := v.(type) {
	case datum.Int:
		return int64(val), nil
	case datum.Real:
		return float64(val), nil
	case datum.Text:
		return string(val), nil
	case datum.Blob:
		return []byte(val), nil
	case datum.RunID:
		return val.String(), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func checkIdent(name string) error {
	if !identRE.MatchString(name) {
		return fmt.Errorf("%q is not a valid SQL identifier", name)
	}
	return nil
}
