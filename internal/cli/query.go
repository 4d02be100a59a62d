package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/simrec/internal/datum"
	"github.com/roach88/simrec/internal/sqliteback"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Where []string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <db> [table]",
		Short: "Read a table from a SQLite recording",
		Long: `Print the rows of a table recorded by the SQLite backend, in insertion
order. Without a table name, list the recorded tables.

Each --where is "<field> <op> <value>" with op one of = != < > <= >=; the
value is parsed as the column's kind. Conditions are combined with AND.

Examples:
  simrec query run.db
  simrec query run.db DumbTitle --where "weight > 100"
  simrec query run.db DumbTitle --where "animal = monkey" --format json`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args, cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Where, "where", "w", nil, `condition "<field> <op> <value>" (repeatable)`)

	return cmd
}

func runQuery(opts *QueryOptions, args []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	dbPath := args[0]
	if _, err := os.Stat(dbPath); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	b, err := sqliteback.Open(dbPath, sqliteback.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr())))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer b.Close()

	out := opts.formatter(cmd)
	if len(args) == 1 {
		tables, err := b.Tables(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to list tables", err)
		}
		if opts.Format == "json" {
			return out.Success(tables)
		}
		return out.Success(strings.Join(tables, "\n"))
	}

	table := args[1]
	schema, err := b.TableInfo(ctx, table)
	if err != nil {
		return WrapExitError(ExitCommandError, "unknown table", err)
	}
	conds := make([]sqliteback.Cond, 0, len(opts.Where))
	for _, expr := range opts.Where {
		c, err := parseCond(expr, schema)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --where", err)
		}
		conds = append(conds, c)
	}

	res, err := b.Query(ctx, table, conds...)
	if err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}

	result := TableOutput{Table: table, Rows: formatRows(res.Rows)}
	for i, name := range res.Fields {
		result.Columns = append(result.Columns, ColumnOutput{Name: name, Kind: res.Kinds[i].String()})
	}
	return out.Success(result)
}

// parseCond parses "<field> <op> <value>", typing value by the field's kind.
func parseCond(expr string, schema datum.Schema) (sqliteback.Cond, error) {
	parts := strings.Fields(expr)
	if len(parts) < 3 {
		return sqliteback.Cond{}, fmt.Errorf("%q: want <field> <op> <value>", expr)
	}
	field, op := parts[0], parts[1]
	raw := strings.Trim(strings.Join(parts[2:], " "), `"'`)

	col, ok := schema.Lookup(field)
	if !ok {
		return sqliteback.Cond{}, fmt.Errorf("%q: no column %q", expr, field)
	}
	v, err := parseValue(col.Kind, raw)
	if err != nil {
		return sqliteback.Cond{}, fmt.Errorf("%q: %w", expr, err)
	}
	return sqliteback.Cond{Field: field, Op: op, Value: v}, nil
}

func parseValue(kind datum.Kind, raw string) (datum.Value, error) {
	switch kind {
	case datum.KindInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		return datum.NewInt(n), nil
	case datum.KindReal:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		return datum.NewReal(f), nil
	case datum.KindText:
		return datum.NewText(raw), nil
	case datum.KindRunID:
		return datum.ParseRunID(raw)
	default:
		return nil, fmt.Errorf("cannot compare %s columns", kind)
	}
}

// formatRows renders every cell as text. NULL cells render empty.
func formatRows(rows [][]datum.Value) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = datum.Format(v)
		}
		out[i] = cells
	}
	return out
}
