package recorder

import "time"

// Backend persists batches of committed records for one simulation run.
//
// Notify receives every buffered record in commit order, across all titles;
// grouping by title is the backend's job. Close is called once, after the
// final Notify. Backends run on the caller's goroutine and must not retain
// the batch slice past Notify, though they may retain the records.
type Backend interface {
	Notify(records []*Record) error
	Close() error
	Name() string
}

// Flusher is implemented by backends that buffer output internally and can
// push it to durable storage on demand.
type Flusher interface {
	Flush() error
}

// Observer receives recorder lifecycle events. Implementations must be cheap;
// they run inline with Commit.
type Observer interface {
	RecordAccepted(title string)
	RecordRejected(title string, code ErrorCode)
	Dispatched(backend string, size int, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) RecordAccepted(string)                        {}
func (nopObserver) RecordRejected(string, ErrorCode)             {}
func (nopObserver) Dispatched(string, int, time.Duration, error) {}
