package arrowback

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/roach88/simrec/internal/datum"
)

// Table is a table read back from a container directory.
type Table struct {
	Layout *Layout
	Rows   [][]datum.Field
}

// ReadTable reads every row of title from dir. Blob columns are resolved
// through the blob table.
func ReadTable(dir, title string) (*Table, error) {
	path := filepath.Join(dir, title+fileExt)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	mem := memory.NewGoAllocator()
	fr, err := ipc.NewFileReader(f, ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("failed to create Arrow reader for %s: %w", path, err)
	}
	defer fr.Close()

	layout, err := layoutFromSchema(fr.Schema())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rowIdx := fr.Schema().FieldIndices(RowColumn)
	if len(rowIdx) != 1 {
		return nil, fmt.Errorf("%s: schema has no %s column", path, RowColumn)
	}

	var blobs map[[DigestSize]byte][]byte
	table := &Table{Layout: layout, Rows: [][]datum.Field{}}
	for i := 0; i < fr.NumRecords(); i++ {
		batch, err := fr.Record(i)
		if err != nil {
			return nil, fmt.Errorf("read %s batch %d: %w", path, i, err)
		}
		rows, err := packedRows(layout, batch.Column(rowIdx[0]))
		if err != nil {
			return nil, fmt.Errorf("%s batch %d: %w", path, i, err)
		}
		for _, row := range rows {
			fields, err := layout.Unpack(row)
			if err != nil {
				return nil, err
			}
			for j, field := range fields {
				digest, ok := field.Value.(datum.Blob)
				if !ok {
					continue
				}
				if blobs == nil {
					if blobs, err = readBlobs(dir, mem); err != nil {
						return nil, err
					}
				}
				data, ok := blobs[[DigestSize]byte(digest)]
				if !ok {
					return nil, fmt.Errorf("%s.%s: blob %x not found", title, field.Name, []byte(digest))
				}
				fields[j].Value = datum.NewBlob(data)
			}
			table.Rows = append(table.Rows, fields)
		}
	}
	return table, nil
}

// packedRows copies the fixed-width rows out of a row column.
func packedRows(layout *Layout, col arrow.Array) ([][]byte, error) {
	packed, ok := col.(*array.FixedSizeBinary)
	if !ok {
		return nil, fmt.Errorf("%s column is %T", RowColumn, col)
	}
	if w := packed.DataType().(*arrow.FixedSizeBinaryType).ByteWidth; w != layout.RowSize {
		return nil, fmt.Errorf("%s column is %d bytes wide, layout rows are %d", RowColumn, w, layout.RowSize)
	}
	rows := make([][]byte, packed.Len())
	for r := range rows {
		rows[r] = append([]byte(nil), packed.Value(r)...)
	}
	return rows, nil
}

// layoutFromSchema recovers the row layout stored in a table schema.
func layoutFromSchema(schema *arrow.Schema) (*Layout, error) {
	md := schema.Metadata()
	title, ok := metaValue(md, metaTitle)
	if !ok {
		return nil, errors.New("schema has no title metadata")
	}
	rawSize, _ := metaValue(md, metaRowSize)
	rowSize, err := strconv.Atoi(rawSize)
	if err != nil {
		return nil, fmt.Errorf("row size: %w", err)
	}

	layout := &Layout{Title: title, RowSize: rowSize}
	for _, field := range schema.Fields() {
		if field.Name == RowColumn {
			continue
		}
		kv := make(map[string]string, field.Metadata.Len())
		for i, k := range field.Metadata.Keys() {
			kv[k] = field.Metadata.Values()[i]
		}
		slot, err := parseSlot(field.Name, kv)
		if err != nil {
			return nil, err
		}
		if slot.Offset+slot.Size > rowSize {
			return nil, fmt.Errorf("column %s overruns row size %d", slot.Name, rowSize)
		}
		layout.Slots = append(layout.Slots, slot)
	}
	return layout, nil
}

func metaValue(md arrow.Metadata, key string) (string, bool) {
	i := md.FindKey(key)
	if i < 0 {
		return "", false
	}
	return md.Values()[i], true
}

// readBlobs loads the blob table of dir. A missing table reads as empty.
func readBlobs(dir string, mem memory.Allocator) (map[[DigestSize]byte][]byte, error) {
	blobs := make(map[[DigestSize]byte][]byte)
	path := filepath.Join(dir, BlobTable+fileExt)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return blobs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	fr, err := ipc.NewFileReader(f, ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("failed to create Arrow reader for %s: %w", path, err)
	}
	defer fr.Close()

	for i := 0; i < fr.NumRecords(); i++ {
		batch, err := fr.Record(i)
		if err != nil {
			return nil, fmt.Errorf("read %s batch %d: %w", path, i, err)
		}
		digests, ok := batch.Column(0).(*array.FixedSizeBinary)
		if !ok {
			return nil, fmt.Errorf("%s: digest column is %T", path, batch.Column(0))
		}
		data, ok := batch.Column(1).(*array.Binary)
		if !ok {
			return nil, fmt.Errorf("%s: data column is %T", path, batch.Column(1))
		}
		for r := 0; r < int(batch.NumRows()); r++ {
			blobs[[DigestSize]byte(digests.Value(r))] = append([]byte(nil), data.Value(r)...)
		}
	}
	return blobs, nil
}
