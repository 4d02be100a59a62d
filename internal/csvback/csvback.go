package csvback

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/simrec/internal/datum"
	"github.com/roach88/simrec/internal/recorder"
)

const (
	fileExt  = ".csv"
	blobExt  = ".blob"
	sep      = ", "
	emptyVal = `""`
)

// Backend writes one delimited text file per record title into a directory.
type Backend struct {
	dir    string
	tables map[string]*tableFile
	logger *slog.Logger
}

// tableFile is the per-title state: the column order fixed by the first
// record this backend saw, and the open append handle.
type tableFile struct {
	path    string
	columns datum.Schema
	file    *os.File
	w       *bufio.Writer
}

// Option configures a Backend.
type Option func(*options)

type options struct {
	overwrite bool
	logger    *slog.Logger
}

// WithOverwrite removes the target directory and its contents before use.
func WithOverwrite(overwrite bool) Option {
	return func(o *options) { o.overwrite = overwrite }
}

// WithLogger sets the logger for file creation diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Open prepares dir for writing, creating it if needed.
//
// Existing files are appended to; a title whose file already exists gets no
// new header line.
func Open(dir string, opts ...Option) (*Backend, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if o.overwrite {
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("failed to clear %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	return &Backend{
		dir:    dir,
		tables: make(map[string]*tableFile),
		logger: o.logger,
	}, nil
}

// Name returns the target directory.
func (b *Backend) Name() string {
	return b.dir
}

// Notify appends one line per record to its title's file, then flushes.
func (b *Backend) Notify(records []*recorder.Record) error {
	for _, rec := range records {
		tf, err := b.table(rec)
		if err != nil {
			return err
		}
		line, err := b.formatRow(tf, rec)
		if err != nil {
			return err
		}
		if _, err := tf.w.WriteString(line); err != nil {
			return fmt.Errorf("write %s: %w", tf.path, err)
		}
		if err := tf.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write %s: %w", tf.path, err)
		}
	}
	return b.Flush()
}

// Flush pushes buffered lines of every open file to disk.
func (b *Backend) Flush() error {
	for _, tf := range b.tables {
		if err := tf.w.Flush(); err != nil {
			return fmt.Errorf("flush %s: %w", tf.path, err)
		}
	}
	return nil
}

// Close flushes and releases every file handle. The Backend must not be used
// afterwards.
func (b *Backend) Close() error {
	var firstErr error
	for title, tf := range b.tables {
		if err := tf.w.Flush(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flush %s: %w", tf.path, err)
		}
		if err := tf.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", tf.path, err)
		}
		delete(b.tables, title)
	}
	return firstErr
}

// table returns the open file for rec's title, creating it on first use.
func (b *Backend) table(rec *recorder.Record) (*tableFile, error) {
	title := rec.Title()
	if tf, ok := b.tables[title]; ok {
		return tf, nil
	}
	if title == "" || strings.ContainsAny(title, `/\`) || title == "." || title == ".." {
		return nil, fmt.Errorf("title %q is not a valid file name", title)
	}

	path := filepath.Join(b.dir, title+fileExt)
	_, statErr := os.Stat(path)
	exists := statErr == nil

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	tf := &tableFile{
		path:    path,
		columns: rec.Schema(),
		file:    f,
		w:       bufio.NewWriter(f),
	}
	if !exists {
		if _, err := tf.w.WriteString(strings.Join(tf.columns.Names(), sep) + "\n"); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header %s: %w", path, err)
		}
	}

	b.tables[title] = tf
	b.logger.Debug("csv table opened", "path", path, "header", !exists, "columns", len(tf.columns))
	return tf, nil
}

// formatRow renders rec in the table's column order. Columns the record does
// not carry are written as an empty quoted slot.
func (b *Backend) formatRow(tf *tableFile, rec *recorder.Record) (string, error) {
	for _, f := range rec.Fields() {
		if tf.columns.Index(f.Name) < 0 {
			return "", fmt.Errorf("%s: field %q is not a column of %s", b.dir, f.Name, tf.path)
		}
	}

	cells := make([]string, len(tf.columns))
	for i, col := range tf.columns {
		v, ok := rec.Get(col.Name)
		if !ok {
			cells[i] = emptyVal
			continue
		}
		cell, err := b.formatValue(v)
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", rec.Title(), col.Name, err)
		}
		cells[i] = cell
	}
	return strings.Join(cells, sep), nil
}

// formatValue quotes text-like kinds and leaves numbers bare. Blobs are
// written to a sibling file and referenced by name.
func (b *Backend) formatValue(v datum.Value) (string, error) {
	switch val := v.(type) {
	case datum.Int:
		return strconv.FormatInt(int64(val), 10), nil
	case datum.Real:
		return strconv.FormatFloat(float64(val), 'g', -1, 64), nil
	case datum.Text:
		return quote(string(val)), nil
	case datum.RunID:
		return quote(val.String()), nil
	case datum.Blob:
		name, err := b.writeBlob(val)
		if err != nil {
			return "", err
		}
		return quote(name), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// writeBlob stores data in a uniquely named side file and returns its base
// name.
func (b *Backend) writeBlob(data datum.Blob) (string, error) {
	name := uuid.NewString() + blobExt
	path := filepath.Join(b.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob %s: %w", path, err)
	}
	return name, nil
}

func quote(s string) string {
	return `"` + s + `"`
}
