package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/simrec/internal/arrowback"
	"github.com/roach88/simrec/internal/csvback"
	"github.com/roach88/simrec/internal/recorder"
	"github.com/roach88/simrec/internal/sqliteback"
	"github.com/roach88/simrec/internal/testutil"
)

// Backend locations inside the scenario directory.
const (
	csvDir     = "csv"
	sqliteFile = "sim.db"
	arrowDir   = "arrow"
)

// Harness executes one scenario against a fresh recorder.
type Harness struct {
	rec    *recorder.Recorder
	result *Result
	paths  map[string]string
	logger *slog.Logger
}

// tracer records recorder events into a Result. Backends are reported by
// type rather than by path.
type tracer struct {
	result *Result
	labels map[string]string
}

func (t *tracer) RecordAccepted(title string) {
	t.result.AddTrace(TraceEvent{Type: EventAccepted, Title: title})
}

func (t *tracer) RecordRejected(title string, code recorder.ErrorCode) {
	t.result.AddTrace(TraceEvent{Type: EventRejected, Title: title, Code: string(code)})
}

func (t *tracer) Dispatched(backend string, size int, _ time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	label, ok := t.labels[backend]
	if !ok {
		label = backend
	}
	t.result.AddTrace(TraceEvent{Type: EventDispatched, Backend: label, Records: size, Status: status})
}

// Run executes a scenario with backends placed under dir and returns the
// result.
//
// Execution flow:
// 1. Create the recorder with the fixed run id and a tracing observer
// 2. Open and register the scenario's backends in order
// 3. Execute steps, checking each against its expected error code
// 4. Close the recorder unless a step already did
// 5. Evaluate assertions against the closed backends' output
//
// The returned error reports setup failures only; step and assertion
// failures are collected in the Result.
func Run(scenario *Scenario, dir string) (*Result, error) {
	runID := testutil.FixedRunID
	if scenario.RunID != "" {
		id, err := uuid.Parse(scenario.RunID)
		if err != nil {
			return nil, fmt.Errorf("run_id: %w", err)
		}
		runID = id
	}

	result := NewResult()
	tr := &tracer{result: result, labels: make(map[string]string)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	opts := []recorder.Option{
		recorder.WithRunID(runID),
		recorder.WithLogger(logger),
		recorder.WithObserver(tr),
	}
	if scenario.Threshold > 0 {
		opts = append(opts, recorder.WithBufferThreshold(scenario.Threshold))
	}
	rec, err := recorder.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create recorder: %w", err)
	}

	h := &Harness{
		rec:    rec,
		result: result,
		paths:  make(map[string]string),
		logger: logger,
	}
	if err := h.openBackends(scenario.Backends, dir, tr); err != nil {
		return nil, err
	}

	closed := false
	for i, step := range scenario.Steps {
		err := h.executeStep(step)
		h.checkStep(i, step, err)
		if step.Close && err == nil {
			closed = true
		}
	}
	if !closed {
		if err := rec.Close(); err != nil {
			result.AddError(fmt.Sprintf("close: %v", err))
		} else {
			result.AddTrace(TraceEvent{Type: EventClose})
		}
	}

	actx := &AssertionContext{
		Ctx:      context.Background(),
		Recorder: rec,
		Trace:    result.Trace,
		Paths:    h.paths,
		Logger:   logger,
	}
	for i, a := range scenario.Assertions {
		if err := evaluateAssertion(actx, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return result, nil
}

func (h *Harness) openBackends(types []string, dir string, tr *tracer) error {
	for _, typ := range types {
		var b recorder.Backend
		var err error
		switch typ {
		case BackendCSV:
			path := filepath.Join(dir, csvDir)
			b, err = csvback.Open(path, csvback.WithLogger(h.logger))
			h.paths[typ] = path
		case BackendSQLite:
			path := filepath.Join(dir, sqliteFile)
			b, err = sqliteback.Open(path, sqliteback.WithLogger(h.logger))
			h.paths[typ] = path
		case BackendArrow:
			path := filepath.Join(dir, arrowDir)
			b, err = arrowback.Open(path, arrowback.WithLogger(h.logger))
			h.paths[typ] = path
		default:
			err = fmt.Errorf("unknown backend %q", typ)
		}
		if err != nil {
			for _, opened := range h.rec.Backends() {
				opened.Close()
			}
			return fmt.Errorf("failed to open %s backend: %w", typ, err)
		}
		tr.labels[b.Name()] = typ
		h.rec.RegisterBackend(b)
	}
	return nil
}

func (h *Harness) executeStep(step Step) error {
	switch {
	case step.Flush:
		if err := h.rec.Flush(); err != nil {
			return err
		}
		h.result.AddTrace(TraceEvent{Type: EventFlush})
		return nil
	case step.Close:
		if err := h.rec.Close(); err != nil {
			return err
		}
		h.result.AddTrace(TraceEvent{Type: EventClose})
		return nil
	default:
		return h.commit(step)
	}
}

// commit builds and commits one record. A field that fails to add aborts the
// step without committing; the record must be unchanged by the failed add.
func (h *Harness) commit(step Step) error {
	r := h.rec.NewRecord(step.Commit)
	for _, f := range step.Fields {
		v, err := f.Value()
		if err != nil {
			return err
		}
		before := r.Len()
		if err := r.AddVal(f.Name, v); err != nil {
			if r.Len() != before {
				h.result.AddError(fmt.Sprintf("%s: failed add of %q changed the record", step.Commit, f.Name))
			}
			return err
		}
	}
	return r.Commit()
}

func (h *Harness) checkStep(index int, step Step, err error) {
	code := string(recorder.Code(err))
	switch {
	case step.ExpectError == "" && err != nil:
		h.result.AddError(fmt.Sprintf("steps[%d]: unexpected error: %v", index, err))
	case step.ExpectError != "" && err == nil:
		h.result.AddError(fmt.Sprintf("steps[%d]: expected %s, step succeeded", index, step.ExpectError))
	case step.ExpectError != "" && code != step.ExpectError:
		h.result.AddError(fmt.Sprintf("steps[%d]: expected %s, got %v", index, step.ExpectError, err))
	}
}
