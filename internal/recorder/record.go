package recorder

import (
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/simrec/internal/datum"
)

// SimIDField is the name of the field injected into every record.
const SimIDField = "SimID"

// Record is an ordered, append-only set of named values under one title.
//
// A Record is owned by the caller until Commit, after which it belongs to the
// Recorder and must not be modified. Backends receive committed records and
// only use the read accessors.
type Record struct {
	title     string
	fields    []datum.Field
	owner     *Recorder
	committed bool
}

// AddVal appends a named value to the record.
//
// Returns a DUPLICATE_FIELD error if name is already present, leaving the
// field list unchanged, an INVALID_VALUE error if v is nil, and a
// RECORD_FINALIZED error after Commit.
// Names are normalized to NFC before comparison.
func (r *Record) AddVal(name string, v datum.Value) error {
	if r.committed {
		return newRecordFinalizedError(r.title)
	}
	name = norm.NFC.String(name)
	if !datum.KindOf(v).Valid() {
		return newInvalidValueError(r.title, name)
	}
	for _, f := range r.fields {
		if f.Name == name {
			return newDuplicateFieldError(r.title, name)
		}
	}
	r.fields = append(r.fields, datum.Field{Name: name, Value: v})
	return nil
}

// AddVals appends fields in order, stopping at the first error.
func (r *Record) AddVals(fields ...datum.Field) error {
	for _, f := range fields {
		if err := r.AddVal(f.Name, f.Value); err != nil {
			return err
		}
	}
	return nil
}

// Commit finalizes the record and hands it to the owning Recorder.
//
// The record is finalized even when the Recorder rejects it, so a second
// Commit always fails with RECORD_FINALIZED. Schema errors mean the record was
// discarded; BACKEND_IO errors mean the record was accepted but a dispatch it
// triggered failed.
func (r *Record) Commit() error {
	if r.committed {
		return newRecordFinalizedError(r.title)
	}
	r.committed = true
	return r.owner.accept(r)
}

// Title returns the record's grouping key.
func (r *Record) Title() string {
	return r.title
}

// Fields returns the fields in insertion order. The slice must not be modified.
func (r *Record) Fields() []datum.Field {
	return r.fields
}

// Len returns the number of fields, SimID included.
func (r *Record) Len() int {
	return len(r.fields)
}

// Get returns the value of the named field.
func (r *Record) Get(name string) (datum.Value, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Schema returns the column list implied by this record's fields.
func (r *Record) Schema() datum.Schema {
	return datum.SchemaOf(r.fields)
}

// Committed reports whether Commit has been called.
func (r *Record) Committed() bool {
	return r.committed
}
