// Package ingest replays JSON-lines event files into a Recorder.
//
// Each non-blank line is one record:
//
//	{"title":"DumbTitle","fields":[{"name":"animal","text":"monkey"},{"name":"weight","int":10}]}
//
// A field carries exactly one of the value keys text, int, real, blob
// (base64) or runid (canonical uuid text).
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"

	gojson "github.com/goccy/go-json"

	"github.com/roach88/simrec/internal/datum"
	"github.com/roach88/simrec/internal/recorder"
)

const maxLineSize = 16 << 20

// Event is one decoded line.
type Event struct {
	Title  string       `json:"title"`
	Fields []FieldEvent `json:"fields"`
}

// FieldEvent is one named value of an Event.
type FieldEvent struct {
	Name  string   `json:"name" yaml:"name"`
	Text  *string  `json:"text,omitempty" yaml:"text,omitempty"`
	Int   *int64   `json:"int,omitempty" yaml:"int,omitempty"`
	Real  *float64 `json:"real,omitempty" yaml:"real,omitempty"`
	Blob  *string  `json:"blob,omitempty" yaml:"blob,omitempty"`
	RunID *string  `json:"runid,omitempty" yaml:"runid,omitempty"`
}

// Value converts the single populated value key to a datum.Value.
func (f FieldEvent) Value() (datum.Value, error) {
	var (
		v   datum.Value
		set int
	)
	if f.Text != nil {
		v, set = datum.NewText(*f.Text), set+1
	}
	if f.Int != nil {
		v, set = datum.NewInt(*f.Int), set+1
	}
	if f.Real != nil {
		v, set = datum.NewReal(*f.Real), set+1
	}
	if f.Blob != nil {
		data, err := base64.StdEncoding.DecodeString(*f.Blob)
		if err != nil {
			return nil, fmt.Errorf("field %q: blob: %w", f.Name, err)
		}
		v, set = datum.NewBlob(data), set+1
	}
	if f.RunID != nil {
		id, err := datum.ParseRunID(*f.RunID)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		v, set = id, set+1
	}
	if set != 1 {
		return nil, fmt.Errorf("field %q: want exactly one value, got %d", f.Name, set)
	}
	return v, nil
}

// DecodeEvent parses one line. Unknown keys are rejected.
func DecodeEvent(line []byte) (Event, error) {
	var ev Event
	dec := gojson.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ev); err != nil {
		return Event{}, err
	}
	if ev.Title == "" {
		return Event{}, fmt.Errorf("missing title")
	}
	return ev, nil
}

// Apply commits ev as one record of rec.
func Apply(rec *recorder.Recorder, ev Event) error {
	r := rec.NewRecord(ev.Title)
	for _, f := range ev.Fields {
		v, err := f.Value()
		if err != nil {
			return err
		}
		if err := r.AddVal(f.Name, v); err != nil {
			return err
		}
	}
	return r.Commit()
}

// Stats summarizes a Replay.
type Stats struct {
	Lines   int
	Records int
	Titles  map[string]int
}

// Replay reads events from r and commits each into rec, stopping at the
// first malformed line or rejected record. ctx is checked between lines.
func Replay(ctx context.Context, r io.Reader, rec *recorder.Recorder) (*Stats, error) {
	stats := &Stats{Titles: make(map[string]int)}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for sc.Scan() {
		stats.Lines++
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, err := DecodeEvent(line)
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", stats.Lines, err)
		}
		if err := Apply(rec, ev); err != nil {
			return stats, fmt.Errorf("line %d: %w", stats.Lines, err)
		}
		stats.Records++
		stats.Titles[ev.Title]++
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("read events: %w", err)
	}
	return stats, nil
}
