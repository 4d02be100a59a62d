package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/simrec/internal/arrowback"
	"github.com/roach88/simrec/internal/datum"
	"github.com/roach88/simrec/internal/recorder"
	"github.com/roach88/simrec/internal/sqliteback"
)

// csvSep separates cells of the delimited text tables.
const csvSep = ", "

// AssertionContext is what assertions evaluate against: the closed
// recorder, its trace and the output path of each registered backend type.
type AssertionContext struct {
	Ctx      context.Context
	Recorder *recorder.Recorder
	Trace    []TraceEvent
	Paths    map[string]string
	Logger   *slog.Logger
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", ev.Seq, ev.Type)
			if ev.Title != "" {
				fmt.Fprintf(&buf, " %s", ev.Title)
			}
			if ev.Backend != "" {
				fmt.Fprintf(&buf, " %s records=%d %s", ev.Backend, ev.Records, ev.Status)
			}
			if ev.Code != "" {
				fmt.Fprintf(&buf, " %s", ev.Code)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

func evaluateAssertion(ctx *AssertionContext, a Assertion) error {
	switch a.Type {
	case AssertTraceCount:
		return assertTraceCount(ctx.Trace, a)
	case AssertSchema:
		return assertSchema(ctx.Recorder, a)
	case AssertCSVLines:
		return assertCSVLines(ctx.Paths[BackendCSV], a)
	case AssertCSVBlob:
		return assertCSVBlob(ctx.Paths[BackendCSV], a)
	case AssertSQLRows:
		return assertSQLRows(ctx, a)
	case AssertArrowRows:
		return assertArrowRows(ctx.Paths[BackendArrow], a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertTraceCount checks how many events of a type the trace holds,
// optionally for one title or backend.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Type != a.Event {
			continue
		}
		if a.Title != "" && ev.Title != a.Title {
			continue
		}
		if a.Backend != "" && ev.Backend != a.Backend {
			continue
		}
		count++
	}
	if count == a.Count {
		return nil
	}

	target := a.Event
	if a.Title != "" {
		target += " " + a.Title
	}
	if a.Backend != "" {
		target += " " + a.Backend
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%s appears %d times", target, a.Count),
		Actual:   fmt.Sprintf("%s appears %d times", target, count),
		Trace:    trace,
	}
}

// assertSchema compares the recorder's schema of a title, as name:kind.
func assertSchema(rec *recorder.Recorder, a Assertion) error {
	schema, ok := rec.Schema(a.Table)
	if !ok {
		return &AssertionError{
			Type:     AssertSchema,
			Expected: fmt.Sprintf("schema for %s", a.Table),
			Actual:   "title never accepted",
		}
	}
	got := make([]string, len(schema))
	for i, col := range schema {
		got[i] = col.Name + ":" + col.Kind.String()
	}
	if !slices.Equal(got, a.Columns) {
		return &AssertionError{
			Type:     AssertSchema,
			Expected: strings.Join(a.Columns, ", "),
			Actual:   strings.Join(got, ", "),
		}
	}
	return nil
}

func readCSV(dir, table string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, table+".csv"))
	if err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n"), nil
}

// assertCSVLines compares a delimited text table line by line.
func assertCSVLines(dir string, a Assertion) error {
	lines, err := readCSV(dir, a.Table)
	if err != nil {
		return err
	}
	if !slices.Equal(lines, a.Lines) {
		return &AssertionError{
			Type:     AssertCSVLines,
			Expected: strings.Join(a.Lines, "\n"),
			Actual:   strings.Join(lines, "\n"),
		}
	}
	return nil
}

// assertCSVBlob checks that every row's cell in a blob column names a side
// file in the table directory holding the expected content.
func assertCSVBlob(dir string, a Assertion) error {
	lines, err := readCSV(dir, a.Table)
	if err != nil {
		return err
	}
	col := slices.Index(strings.Split(lines[0], csvSep), a.Column)
	if col < 0 {
		return fmt.Errorf("%s has no column %q", a.Table, a.Column)
	}
	if len(lines) < 2 {
		return fmt.Errorf("%s has no rows", a.Table)
	}

	for i, line := range lines[1:] {
		cells := strings.Split(line, csvSep)
		if col >= len(cells) {
			return fmt.Errorf("%s row %d has %d cells", a.Table, i+1, len(cells))
		}
		name := strings.Trim(cells[col], `"`)
		if name == "" || strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("%s row %d: %q is not a blob file name", a.Table, i+1, cells[col])
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if string(data) != a.Content {
			return &AssertionError{
				Type:     AssertCSVBlob,
				Expected: fmt.Sprintf("%s contains %q", name, a.Content),
				Actual:   fmt.Sprintf("%q", data),
			}
		}
	}
	return nil
}

// assertSQLRows reopens the closed database and compares a table's rows.
func assertSQLRows(ctx *AssertionContext, a Assertion) error {
	b, err := sqliteback.Open(ctx.Paths[BackendSQLite], sqliteback.WithLogger(ctx.Logger))
	if err != nil {
		return err
	}
	defer b.Close()

	res, err := b.Query(ctx.Ctx, a.Table)
	if err != nil {
		return err
	}
	rows := make([][]string, len(res.Rows))
	for i, row := range res.Rows {
		rows[i] = formatCells(row)
	}
	return compareRows(AssertSQLRows, res.Fields, rows, a)
}

// assertArrowRows reads a table back from the Arrow container and compares
// its rows.
func assertArrowRows(dir string, a Assertion) error {
	table, err := arrowback.ReadTable(dir, a.Table)
	if err != nil {
		return err
	}
	names := make([]string, len(table.Layout.Slots))
	for i, s := range table.Layout.Slots {
		names[i] = s.Name
	}
	rows := make([][]string, len(table.Rows))
	for i, row := range table.Rows {
		vals := make([]datum.Value, len(row))
		for j, f := range row {
			vals[j] = f.Value
		}
		rows[i] = formatCells(vals)
	}
	return compareRows(AssertArrowRows, names, rows, a)
}

func formatCells(vals []datum.Value) []string {
	cells := make([]string, len(vals))
	for i, v := range vals {
		cells[i] = datum.Format(v)
	}
	return cells
}

// compareRows projects rows onto a.Columns, or keeps every column when none
// are named, and compares them with a.Rows.
func compareRows(typ string, names []string, rows [][]string, a Assertion) error {
	if len(a.Columns) > 0 {
		idx := make([]int, len(a.Columns))
		for i, c := range a.Columns {
			idx[i] = slices.Index(names, c)
			if idx[i] < 0 {
				return fmt.Errorf("%s has no column %q (columns: %s)", a.Table, c, strings.Join(names, ", "))
			}
		}
		projected := make([][]string, len(rows))
		for i, row := range rows {
			projected[i] = make([]string, len(idx))
			for j, k := range idx {
				projected[i][j] = row[k]
			}
		}
		rows = projected
	}

	if !slices.EqualFunc(rows, a.Rows, slices.Equal[[]string]) {
		return &AssertionError{
			Type:     typ,
			Expected: fmt.Sprintf("%s rows %v", a.Table, a.Rows),
			Actual:   fmt.Sprintf("%s rows %v", a.Table, rows),
		}
	}
	return nil
}
