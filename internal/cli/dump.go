package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/simrec/internal/arrowback"
	"github.com/roach88/simrec/internal/datum"
)

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <dir> <title>",
		Short: "Read a table from an Arrow recording",
		Long: `Print the rows of a table recorded by the Arrow backend, with blob
columns resolved from the blob table. JSON output includes each column's
byte offset and size within the fixed-width row.

Examples:
  simrec dump ./arrow DumbTitle
  simrec dump ./arrow DumbTitle --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runDump(opts *RootOptions, dir, title string, cmd *cobra.Command) error {
	table, err := arrowback.ReadTable(dir, title)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read table", err)
	}

	result := TableOutput{
		Table:   title,
		RowSize: table.Layout.RowSize,
		Rows:    make([][]string, len(table.Rows)),
	}
	for _, slot := range table.Layout.Slots {
		offset := slot.Offset
		result.Columns = append(result.Columns, ColumnOutput{
			Name:   slot.Name,
			Kind:   slot.Kind.String(),
			Offset: &offset,
			Size:   slot.Size,
		})
	}
	for i, row := range table.Rows {
		cells := make([]string, len(row))
		for j, f := range row {
			cells[j] = datum.Format(f.Value)
		}
		result.Rows[i] = cells
	}
	return opts.formatter(cmd).Success(result)
}
