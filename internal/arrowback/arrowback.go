package arrowback

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/roach88/simrec/internal/datum"
	"github.com/roach88/simrec/internal/recorder"
)

const (
	fileExt = ".arrow"

	// BlobTable is the file holding blob bytes keyed by digest. It is not a
	// valid record title.
	BlobTable = "_blobs"

	// RowColumn holds each packed row as FixedSizeBinary(RowSize), after the
	// typed per-slot columns. It is not a valid field name.
	RowColumn = "_row"

	blobDigestCol = "digest"
	blobDataCol   = "data"
)

// Backend writes one Arrow IPC file of fixed-width rows per record title.
type Backend struct {
	dir    string
	mem    memory.Allocator
	types  *slotTypes
	tables map[string]*tableWriter
	blobs  *blobWriter
	logger *slog.Logger
}

// slotTypes holds the fixed-width Arrow types shared by every table.
type slotTypes struct {
	text   *arrow.FixedSizeBinaryType
	runID  *arrow.FixedSizeBinaryType
	digest *arrow.FixedSizeBinaryType
}

type tableWriter struct {
	layout *Layout
	schema *arrow.Schema
	path   string
	file   *os.File
	w      *ipc.FileWriter
}

type blobWriter struct {
	schema *arrow.Schema
	path   string
	file   *os.File
	w      *ipc.FileWriter
	seen   map[[DigestSize]byte]bool
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

// Open creates the container directory dir and allocates the memory pool
// and slot types used by every table.
//
// A table file is created the first time its title is seen, replacing any
// file of that name left by an earlier run.
func Open(dir string, opts ...Option) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	b := &Backend{
		dir: dir,
		mem: memory.NewGoAllocator(),
		types: &slotTypes{
			text:   &arrow.FixedSizeBinaryType{ByteWidth: TextSize},
			runID:  &arrow.FixedSizeBinaryType{ByteWidth: RunIDSize},
			digest: &arrow.FixedSizeBinaryType{ByteWidth: DigestSize},
		},
		tables: make(map[string]*tableWriter),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Name returns the container directory.
func (b *Backend) Name() string {
	return b.dir
}

// Notify groups records by title in first-appearance order and appends each
// group to its table as one record batch.
func (b *Backend) Notify(records []*recorder.Record) error {
	if b.types == nil {
		return fmt.Errorf("%s: backend is closed", b.dir)
	}

	var order []string
	groups := make(map[string][]*recorder.Record)
	for _, rec := range records {
		if _, ok := groups[rec.Title()]; !ok {
			order = append(order, rec.Title())
		}
		groups[rec.Title()] = append(groups[rec.Title()], rec)
	}

	for _, title := range order {
		if err := b.appendGroup(title, groups[title]); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) appendGroup(title string, recs []*recorder.Record) error {
	tw, err := b.table(title, recs[0].Schema())
	if err != nil {
		return err
	}

	rows := make([][]byte, 0, len(recs))
	var blobs []datum.Blob
	for _, rec := range recs {
		row, err := tw.layout.Pack(rec.Fields())
		if err != nil {
			return err
		}
		rows = append(rows, row)
		for _, f := range rec.Fields() {
			if blob, ok := f.Value.(datum.Blob); ok {
				blobs = append(blobs, blob)
			}
		}
	}

	if err := b.storeBlobs(blobs); err != nil {
		return err
	}

	rb := array.NewRecordBuilder(b.mem, tw.schema)
	defer rb.Release()
	for i, slot := range tw.layout.Slots {
		if err := appendSlot(rb.Field(i), slot, rows); err != nil {
			return fmt.Errorf("%s.%s: %w", title, slot.Name, err)
		}
	}
	packed := rb.Field(len(tw.layout.Slots)).(*array.FixedSizeBinaryBuilder)
	for _, row := range rows {
		packed.Append(row)
	}

	batch := rb.NewRecord()
	defer batch.Release()
	if err := tw.w.Write(batch); err != nil {
		return fmt.Errorf("write %s: %w", tw.path, err)
	}
	return nil
}

// appendSlot copies one slot of every packed row into a typed column.
func appendSlot(builder array.Builder, slot Slot, rows [][]byte) error {
	switch bld := builder.(type) {
	case *array.Int64Builder:
		for _, row := range rows {
			bld.Append(int64(binary.LittleEndian.Uint64(row[slot.Offset:])))
		}
	case *array.Float64Builder:
		for _, row := range rows {
			bld.Append(math.Float64frombits(binary.LittleEndian.Uint64(row[slot.Offset:])))
		}
	case *array.FixedSizeBinaryBuilder:
		for _, row := range rows {
			bld.Append(row[slot.Offset : slot.Offset+slot.Size])
		}
	default:
		return fmt.Errorf("unsupported builder type: %T", builder)
	}
	return nil
}

// table returns the writer for title, creating the table file from schema on
// first use.
func (b *Backend) table(title string, schema datum.Schema) (*tableWriter, error) {
	if tw, ok := b.tables[title]; ok {
		return tw, nil
	}
	if title == "" || strings.ContainsAny(title, `/\`) || title == "." || title == ".." || title == BlobTable {
		return nil, fmt.Errorf("title %q is not a valid table name", title)
	}

	if _, ok := schema.Lookup(RowColumn); ok {
		return nil, fmt.Errorf("%s: field name %q is reserved", title, RowColumn)
	}
	layout, err := NewLayout(title, schema)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", title, err)
	}
	arrowSchema := b.tableSchema(layout)

	path := filepath.Join(b.dir, title+fileExt)
	f, w, err := b.createFile(path, arrowSchema)
	if err != nil {
		return nil, err
	}

	tw := &tableWriter{layout: layout, schema: arrowSchema, path: path, file: f, w: w}
	b.tables[title] = tw
	b.logger.Debug("arrow table created", "path", path, "row_size", layout.RowSize, "columns", len(layout.Slots))
	return tw, nil
}

func (b *Backend) createFile(path string, schema *arrow.Schema) (*os.File, *ipc.FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(b.mem))
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to create Arrow writer for %s: %w", path, err)
	}
	return f, w, nil
}

// tableSchema renders layout as an Arrow schema: one typed field per slot,
// carrying the slot's kind, offset and size, then the packed row column. The
// schema carries the title and row size.
func (b *Backend) tableSchema(layout *Layout) *arrow.Schema {
	fields := make([]arrow.Field, len(layout.Slots), len(layout.Slots)+1)
	for i, slot := range layout.Slots {
		fields[i] = arrow.Field{
			Name:     slot.Name,
			Type:     b.arrowType(slot.Kind),
			Metadata: arrow.MetadataFrom(slotMetadata(slot)),
		}
	}
	fields = append(fields, arrow.Field{
		Name: RowColumn,
		Type: &arrow.FixedSizeBinaryType{ByteWidth: layout.RowSize},
	})
	md := arrow.NewMetadata(
		[]string{metaTitle, metaRowSize},
		[]string{layout.Title, fmt.Sprint(layout.RowSize)},
	)
	return arrow.NewSchema(fields, &md)
}

func (b *Backend) arrowType(k datum.Kind) arrow.DataType {
	switch k {
	case datum.KindInt:
		return arrow.PrimitiveTypes.Int64
	case datum.KindReal:
		return arrow.PrimitiveTypes.Float64
	case datum.KindText:
		return b.types.text
	case datum.KindRunID:
		return b.types.runID
	default:
		return b.types.digest
	}
}

// storeBlobs appends blobs not yet in the blob table, once per digest.
func (b *Backend) storeBlobs(blobs []datum.Blob) error {
	if len(blobs) == 0 {
		return nil
	}
	if b.blobs == nil {
		schema := arrow.NewSchema([]arrow.Field{
			{Name: blobDigestCol, Type: b.types.digest},
			{Name: blobDataCol, Type: arrow.BinaryTypes.Binary},
		}, nil)
		path := filepath.Join(b.dir, BlobTable+fileExt)
		f, w, err := b.createFile(path, schema)
		if err != nil {
			return err
		}
		b.blobs = &blobWriter{
			schema: schema,
			path:   path,
			file:   f,
			w:      w,
			seen:   make(map[[DigestSize]byte]bool),
		}
	}

	rb := array.NewRecordBuilder(b.mem, b.blobs.schema)
	defer rb.Release()
	digests := rb.Field(0).(*array.FixedSizeBinaryBuilder)
	data := rb.Field(1).(*array.BinaryBuilder)

	added := 0
	for _, blob := range blobs {
		sum := Digest(blob)
		if b.blobs.seen[sum] {
			continue
		}
		b.blobs.seen[sum] = true
		digests.Append(sum[:])
		data.Append(blob)
		added++
	}
	if added == 0 {
		return nil
	}

	batch := rb.NewRecord()
	defer batch.Release()
	if err := b.blobs.w.Write(batch); err != nil {
		return fmt.Errorf("write %s: %w", b.blobs.path, err)
	}
	return nil
}

// Close writes the footer of every table file and the blob table, closes
// them, and releases the allocator and slot types.
func (b *Backend) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	closeFile := func(path string, f *os.File, w *ipc.FileWriter) {
		if err := w.Close(); err != nil {
			record(fmt.Errorf("failed to close Arrow writer for %s: %w", path, err))
		}
		if err := f.Close(); err != nil {
			record(fmt.Errorf("close %s: %w", path, err))
		}
	}

	for title, tw := range b.tables {
		closeFile(tw.path, tw.file, tw.w)
		delete(b.tables, title)
	}
	if b.blobs != nil {
		closeFile(b.blobs.path, b.blobs.file, b.blobs.w)
		b.blobs = nil
	}
	b.types = nil
	b.mem = nil
	return firstErr
}
