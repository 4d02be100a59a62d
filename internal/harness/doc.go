// Package harness runs recorder conformance scenarios.
//
// A scenario drives a Recorder with a fixed run id through a list of steps
// against real backends in a scratch directory, then checks what the
// backends wrote.
//
// # Scenario Format
//
//	name: scenario_a
//	description: "Two records reach the CSV backend at the threshold"
//	threshold: 2
//	backends: [csv]
//	steps:
//	  - commit: DumbTitle
//	    fields:
//	      - {name: animal, text: monkey}
//	      - {name: weight, int: 10}
//	  - commit: DumbTitle
//	    fields:
//	      - {name: weight, text: heavy}
//	    expect_error: SCHEMA_MISMATCH
//	  - flush: true
//	assertions:
//	  - type: csv_lines
//	    table: DumbTitle
//	    lines: ["SimID, animal, weight", ...]
//
// The recorder is closed after the last step unless a step already closed
// it.
//
// # Assertion Types
//
//   - trace_count: number of trace events of an event type, optionally for
//     one title or backend
//   - schema: the recorder's canonical schema of a title, as name:kind
//   - csv_lines: exact lines of a delimited text table
//   - csv_blob: a blob cell names a side file holding the given content
//   - sql_rows: rows of a SQLite table, cells formatted as text
//   - arrow_rows: rows of an Arrow table, cells formatted as text
//
// # Golden Traces
//
// RunWithGolden compares the trace against testdata/golden/<name>.golden.
// Regenerate with:
//
//	go test ./internal/harness -update
package harness
