package datum

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Value is a sealed interface over the recordable value kinds.
// Only Int, Real, Text, Blob and RunID implement it.
type Value interface {
	Kind() Kind
	datum() // Sealed
}

// Int is a 64-bit integer value.
type Int int64

func (Int) datum() {}

// Kind implements Value.
func (Int) Kind() Kind { return KindInt }

// Real is a 64-bit floating point value.
type Real float64

func (Real) datum() {}

// Kind implements Value.
func (Real) Kind() Kind { return KindReal }

// Text is a string value.
type Text string

func (Text) datum() {}

// Kind implements Value.
func (Text) Kind() Kind { return KindText }

// Blob is an opaque byte string. Construct with NewBlob so the value does not
// alias caller memory.
type Blob []byte

func (Blob) datum() {}

// Kind implements Value.
func (Blob) Kind() Kind { return KindBlob }

// RunID is the fixed-width identifier of one simulation run.
type RunID uuid.UUID

func (RunID) datum() {}

// Kind implements Value.
func (RunID) Kind() Kind { return KindRunID }

// String returns the canonical hyphenated form.
func (r RunID) String() string {
	return uuid.UUID(r).String()
}

// NewInt creates an Int value.
func NewInt(n int64) Int {
	return Int(n)
}

// NewReal creates a Real value.
func NewReal(f float64) Real {
	return Real(f)
}

// NewText creates a Text value.
func NewText(s string) Text {
	return Text(s)
}

// NewBlob creates a Blob holding a copy of b.
func NewBlob(b []byte) Blob {
	return Blob(bytes.Clone(b))
}

// NewRunID creates a RunID from a uuid.
func NewRunID(id uuid.UUID) RunID {
	return RunID(id)
}

// ParseRunID parses the canonical text form of a run identifier.
func ParseRunID(s string) (RunID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return RunID{}, fmt.Errorf("parse run id %q: %w", s, err)
	}
	return RunID(id), nil
}

// Equal reports whether a and b hold the same kind and contents.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Blob:
		bv, ok := b.(Blob)
		return ok && bytes.Equal(av, bv)
	case nil:
		return b == nil
	default:
		return a == b
	}
}

// Format renders v as plain text: integers in decimal, reals in the shortest
// form that round-trips, text verbatim, run ids hyphenated. Blobs render as
// their length since their bytes are not printable in general.
func Format(v Value) string {
	switch val := v.(type) {
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Real:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Text:
		return string(val)
	case Blob:
		return fmt.Sprintf("<blob %d bytes>", len(val))
	case RunID:
		return val.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("<unknown %T>", v)
	}
}
