package testutil

import (
	"errors"

	"github.com/roach88/simrec/internal/recorder"
)

// ErrInjected is returned by CaptureBackend when a failure is injected.
var ErrInjected = errors.New("injected backend failure")

// CaptureBackend is a recorder.Backend that remembers every call it receives.
//
// Set FailNotify or FailClose to make the next calls fail with ErrInjected.
type CaptureBackend struct {
	BackendName string

	// Batches holds each Notify batch in call order.
	Batches [][]*recorder.Record

	NotifyCount int
	FlushCount  int
	CloseCount  int

	// Calls is the ordered log of method names: "notify", "flush", "close".
	Calls []string

	FailNotify bool
	FailClose  bool
}

// NewCaptureBackend creates a CaptureBackend reporting name from Name().
func NewCaptureBackend(name string) *CaptureBackend {
	return &CaptureBackend{BackendName: name}
}

// Notify implements recorder.Backend.
func (b *CaptureBackend) Notify(records []*recorder.Record) error {
	b.NotifyCount++
	b.Calls = append(b.Calls, "notify")
	if b.FailNotify {
		return ErrInjected
	}
	batch := make([]*recorder.Record, len(records))
	copy(batch, records)
	b.Batches = append(b.Batches, batch)
	return nil
}

// Flush implements recorder.Flusher.
func (b *CaptureBackend) Flush() error {
	b.FlushCount++
	b.Calls = append(b.Calls, "flush")
	return nil
}

// Close implements recorder.Backend.
func (b *CaptureBackend) Close() error {
	b.CloseCount++
	b.Calls = append(b.Calls, "close")
	if b.FailClose {
		return ErrInjected
	}
	return nil
}

// Name implements recorder.Backend.
func (b *CaptureBackend) Name() string {
	return b.BackendName
}

// Records returns every captured record across batches, in order.
func (b *CaptureBackend) Records() []*recorder.Record {
	var all []*recorder.Record
	for _, batch := range b.Batches {
		all = append(all, batch...)
	}
	return all
}

// LastBatch returns the most recent batch, or nil.
func (b *CaptureBackend) LastBatch() []*recorder.Record {
	if len(b.Batches) == 0 {
		return nil
	}
	return b.Batches[len(b.Batches)-1]
}
