package recorder

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/simrec/internal/datum"
)

// DefaultBufferThreshold is the number of records buffered before dispatch.
const DefaultBufferThreshold = 100

// Recorder collects committed records, enforces per-title schemas and
// dispatches batches to its registered backends.
//
// A Recorder is not safe for concurrent use. All backend I/O happens
// synchronously inside Commit, Flush and Close.
type Recorder struct {
	runID     uuid.UUID
	schemas   map[string]datum.Schema
	buf       []*Record
	threshold int
	backends  []Backend
	closed    bool

	logger   *slog.Logger
	observer Observer
}

// Option configures a Recorder.
type Option func(*Recorder) error

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id uuid.UUID) Option {
	return func(r *Recorder) error {
		if id == uuid.Nil {
			return newInvalidConfigError("run id must not be the nil uuid")
		}
		r.runID = id
		return nil
	}
}

// WithBufferThreshold sets the dispatch threshold. n must be at least 1.
func WithBufferThreshold(n int) Option {
	return func(r *Recorder) error {
		return r.SetBufferThreshold(n)
	}
}

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) error {
		if l != nil {
			r.logger = l
		}
		return nil
	}
}

// WithObserver installs an Observer, e.g. a metrics collector.
func WithObserver(o Observer) Option {
	return func(r *Recorder) error {
		if o != nil {
			r.observer = o
		}
		return nil
	}
}

// New creates a Recorder with a fresh UUIDv7 run id and the default
// threshold, then applies opts.
func New(opts ...Option) (*Recorder, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	r := &Recorder{
		runID:     id,
		schemas:   make(map[string]datum.Schema),
		threshold: DefaultBufferThreshold,
		logger:    slog.Default(),
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RunID returns the identifier stamped on every record as SimID.
func (r *Recorder) RunID() uuid.UUID {
	return r.runID
}

// NewRecord returns an empty record for title with SimID already set.
func (r *Recorder) NewRecord(title string) *Record {
	return &Record{
		title:  norm.NFC.String(title),
		fields: []datum.Field{{Name: SimIDField, Value: datum.NewRunID(r.runID)}},
		owner:  r,
	}
}

// SetBufferThreshold sets how many records are buffered before dispatch.
// Values below 1 fail with INVALID_CONFIG and leave the threshold unchanged.
// Lowering the threshold does not trigger a dispatch by itself.
func (r *Recorder) SetBufferThreshold(n int) error {
	if n < 1 {
		return newInvalidConfigError(fmt.Sprintf("buffer threshold must be >= 1, got %d", n))
	}
	r.threshold = n
	return nil
}

// BufferThreshold returns the dispatch threshold.
func (r *Recorder) BufferThreshold() int {
	return r.threshold
}

// RegisterBackend appends b to the dispatch list. Registering the same
// backend twice notifies it twice.
func (r *Recorder) RegisterBackend(b Backend) {
	r.backends = append(r.backends, b)
}

// Backends returns the registered backends in dispatch order.
func (r *Recorder) Backends() []Backend {
	return r.backends
}

// Schema returns the canonical schema established for title.
func (r *Recorder) Schema(title string) (datum.Schema, bool) {
	s, ok := r.schemas[title]
	return s, ok
}

// Buffered returns the number of records awaiting dispatch.
func (r *Recorder) Buffered() int {
	return len(r.buf)
}

// accept validates rec against its title's schema, buffers it and
// dispatches when the buffer is full.
func (r *Recorder) accept(rec *Record) error {
	if r.closed {
		r.observer.RecordRejected(rec.title, ErrCodeRecorderClosed)
		return newRecorderClosedError(rec.title)
	}

	schema, ok := r.schemas[rec.title]
	if !ok {
		// First record of a title freezes the schema.
		r.schemas[rec.title] = rec.Schema()
		r.logger.Debug("schema established", "title", rec.title, "columns", len(rec.fields))
	} else if err := validate(rec, schema); err != nil {
		r.observer.RecordRejected(rec.title, ErrCodeSchemaMismatch)
		return err
	}

	r.buf = append(r.buf, rec)
	r.observer.RecordAccepted(rec.title)

	if len(r.buf) >= r.threshold {
		return r.dispatch()
	}
	return nil
}

func validate(rec *Record, schema datum.Schema) error {
	for _, f := range rec.fields {
		col, ok := schema.Lookup(f.Name)
		if !ok {
			return newSchemaMismatchError(rec.title, f.Name, "field not in schema")
		}
		if kind := datum.KindOf(f.Value); kind != col.Kind {
			return newSchemaMismatchError(rec.title, f.Name,
				fmt.Sprintf("kind %s does not match schema kind %s", kind, col.Kind))
		}
	}
	return nil
}

// dispatch detaches the buffer and notifies every backend in registration
// order. The first backend failure stops dispatch; records already delivered
// to earlier backends stay delivered.
func (r *Recorder) dispatch() error {
	if len(r.buf) == 0 {
		return nil
	}
	batch := r.buf
	r.buf = nil

	for _, b := range r.backends {
		start := time.Now()
		err := b.Notify(batch)
		r.observer.Dispatched(b.Name(), len(batch), time.Since(start), err)
		if err != nil {
			r.logger.Warn("backend notify failed", "backend", b.Name(), "records", len(batch), "error", err)
			return newBackendIOError(b.Name(), "notify", err)
		}
		r.logger.Debug("batch dispatched", "backend", b.Name(), "records", len(batch))
	}
	return nil
}

// Flush dispatches buffered records, then flushes every backend that
// implements Flusher.
func (r *Recorder) Flush() error {
	if err := r.dispatch(); err != nil {
		return err
	}
	for _, b := range r.backends {
		f, ok := b.(Flusher)
		if !ok {
			continue
		}
		if err := f.Flush(); err != nil {
			return newBackendIOError(b.Name(), "flush", err)
		}
	}
	return nil
}

// Close dispatches any buffered records and closes every backend in
// registration order.
//
// After a successful Close, further Close calls return nil and commits fail
// with RECORDER_CLOSED. If Close fails the recorder stays open; calling Close
// again re-closes every backend, which backends may not tolerate.
func (r *Recorder) Close() error {
	if r.closed {
		return nil
	}
	if err := r.dispatch(); err != nil {
		return err
	}
	for _, b := range r.backends {
		if err := b.Close(); err != nil {
			r.logger.Warn("backend close failed", "backend", b.Name(), "error", err)
			return newBackendIOError(b.Name(), "close", err)
		}
	}
	r.closed = true
	r.logger.Debug("recorder closed", "run_id", r.runID, "titles", len(r.schemas))
	return nil
}
