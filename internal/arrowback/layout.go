package arrowback

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"

	"github.com/roach88/simrec/internal/datum"
)

// Slot widths in bytes.
const (
	WordSize   = 8
	TextSize   = 16
	RunIDSize  = 16
	DigestSize = sha256.Size
)

// Slot is one column of a fixed-width row.
type Slot struct {
	Name   string
	Kind   datum.Kind
	Offset int
	Size   int
}

// Layout is the physical row format of one table. Slots appear in the
// insertion order of the record that created the table.
type Layout struct {
	Title   string
	Slots   []Slot
	RowSize int
}

// SlotSize returns the fixed width of a column of kind k.
func SlotSize(k datum.Kind) (int, error) {
	switch k {
	case datum.KindInt, datum.KindReal:
		return WordSize, nil
	case datum.KindText:
		return TextSize, nil
	case datum.KindRunID:
		return RunIDSize, nil
	case datum.KindBlob:
		return DigestSize, nil
	default:
		return 0, fmt.Errorf("no slot size for %s", k)
	}
}

// NewLayout assigns cumulative offsets to schema's columns in order.
func NewLayout(title string, schema datum.Schema) (*Layout, error) {
	l := &Layout{Title: title, Slots: make([]Slot, 0, len(schema))}
	for _, col := range schema {
		size, err := SlotSize(col.Kind)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		l.Slots = append(l.Slots, Slot{
			Name:   col.Name,
			Kind:   col.Kind,
			Offset: l.RowSize,
			Size:   size,
		})
		l.RowSize += size
	}
	return l, nil
}

// Slot returns the slot named name.
func (l *Layout) Slot(name string) (Slot, bool) {
	for _, s := range l.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return Slot{}, false
}

// Pack encodes fields into one row of l.RowSize bytes. Slots the fields do
// not cover stay zero. Blob slots receive the digest of the blob bytes; the
// caller stores the bytes themselves.
func (l *Layout) Pack(fields []datum.Field) ([]byte, error) {
	row := make([]byte, l.RowSize)
	for _, f := range fields {
		s, ok := l.Slot(f.Name)
		if !ok {
			return nil, fmt.Errorf("field %q is not a column of %s", f.Name, l.Title)
		}
		if k := datum.KindOf(f.Value); k != s.Kind {
			return nil, fmt.Errorf("field %q of %s is %s, column is %s", f.Name, l.Title, k, s.Kind)
		}
		putSlot(row[s.Offset:s.Offset+s.Size], f.Value)
	}
	return row, nil
}

func putSlot(dst []byte, v datum.Value) {
	switch val := v.(type) {
	case datum.Int:
		binary.LittleEndian.PutUint64(dst, uint64(val))
	case datum.Real:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(float64(val)))
	case datum.Text:
		// Truncated to the slot; shorter text leaves trailing NULs.
		copy(dst, val)
	case datum.RunID:
		copy(dst, val[:])
	case datum.Blob:
		sum := sha256.Sum256(val)
		copy(dst, sum[:])
	}
}

// Unpack decodes a row produced by Pack. Blob slots decode to the raw
// digest, see Digest.
func (l *Layout) Unpack(row []byte) ([]datum.Field, error) {
	if len(row) != l.RowSize {
		return nil, fmt.Errorf("row is %d bytes, %s rows are %d", len(row), l.Title, l.RowSize)
	}
	fields := make([]datum.Field, 0, len(l.Slots))
	for _, s := range l.Slots {
		b := row[s.Offset : s.Offset+s.Size]
		var v datum.Value
		switch s.Kind {
		case datum.KindInt:
			v = datum.NewInt(int64(binary.LittleEndian.Uint64(b)))
		case datum.KindReal:
			v = datum.NewReal(math.Float64frombits(binary.LittleEndian.Uint64(b)))
		case datum.KindText:
			v = datum.NewText(string(bytes.TrimRight(b, "\x00")))
		case datum.KindRunID:
			id, err := uuid.FromBytes(b)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", s.Name, err)
			}
			v = datum.NewRunID(id)
		case datum.KindBlob:
			v = datum.NewBlob(b)
		}
		fields = append(fields, datum.F(s.Name, v))
	}
	return fields, nil
}

// Digest returns the blob-table key for data.
func Digest(data []byte) [DigestSize]byte {
	return sha256.Sum256(data)
}

// Layout metadata keys stored in the table schema.
const (
	metaKind    = "simrec.kind"
	metaOffset  = "simrec.offset"
	metaSize    = "simrec.size"
	metaTitle   = "simrec.title"
	metaRowSize = "simrec.row_size"
)

func slotMetadata(s Slot) map[string]string {
	return map[string]string{
		metaKind:   s.Kind.String(),
		metaOffset: strconv.Itoa(s.Offset),
		metaSize:   strconv.Itoa(s.Size),
	}
}

func parseSlot(name string, md map[string]string) (Slot, error) {
	kind, err := datum.ParseKind(md[metaKind])
	if err != nil {
		return Slot{}, fmt.Errorf("column %s: %w", name, err)
	}
	offset, err := strconv.Atoi(md[metaOffset])
	if err != nil {
		return Slot{}, fmt.Errorf("column %s offset: %w", name, err)
	}
	size, err := strconv.Atoi(md[metaSize])
	if err != nil {
		return Slot{}, fmt.Errorf("column %s size: %w", name, err)
	}
	return Slot{Name: name, Kind: kind, Offset: offset, Size: size}, nil
}
