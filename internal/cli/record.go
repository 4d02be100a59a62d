package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/simrec/internal/arrowback"
	"github.com/roach88/simrec/internal/config"
	"github.com/roach88/simrec/internal/csvback"
	"github.com/roach88/simrec/internal/ingest"
	"github.com/roach88/simrec/internal/metrics"
	"github.com/roach88/simrec/internal/recorder"
	"github.com/roach88/simrec/internal/sqliteback"
)

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	ConfigPath  string
	CSVDir      string
	SQLitePath  string
	ArrowDir    string
	Overwrite   bool
	Threshold   int
	RunID       string
	MetricsFile string
}

// RecordSummary is the output of the record command.
type RecordSummary struct {
	RunID    string         `json:"run_id"`
	Lines    int            `json:"lines"`
	Records  int            `json:"records"`
	Titles   map[string]int `json:"titles"`
	Backends []string       `json:"backends"`
}

func (s RecordSummary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Recorded %d records under run %s", s.Records, s.RunID)
	titles := make([]string, 0, len(s.Titles))
	for t := range s.Titles {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	for _, t := range titles {
		fmt.Fprintf(&sb, "\n  %s: %d", t, s.Titles[t])
	}
	for _, b := range s.Backends {
		fmt.Fprintf(&sb, "\n  -> %s", b)
	}
	return sb.String()
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record <events.jsonl>",
		Short: "Record a JSON-lines event file",
		Long: `Replay a JSON-lines event file into a recorder and persist it through
the configured backends.

Backends come from --config and from the --csv, --sqlite and --arrow flags,
registered in that order. Each line of the event file is one record:

  {"title":"DumbTitle","fields":[{"name":"animal","text":"monkey"},{"name":"weight","int":10}]}

Examples:
  simrec record --csv ./out events.jsonl
  simrec record --config simrec.yaml --sqlite run.db --threshold 500 events.jsonl`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.CSVDir, "csv", "", "write delimited text tables to this directory")
	cmd.Flags().StringVar(&opts.SQLitePath, "sqlite", "", "write tables to this SQLite database")
	cmd.Flags().StringVar(&opts.ArrowDir, "arrow", "", "write Arrow tables to this directory")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "discard existing --csv and --sqlite output first")
	cmd.Flags().IntVar(&opts.Threshold, "threshold", config.Default().BufferThreshold, "records buffered before dispatch")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "fixed run id (default: new UUIDv7)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	return cmd
}

func runRecord(opts *RecordOptions, eventsPath string, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := resolveConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if len(cfg.Backends) == 0 {
		return NewExitError(ExitCommandError, "no backends configured: use --config, --csv, --sqlite or --arrow")
	}

	events, err := os.Open(eventsPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open events", err)
	}
	defer events.Close()

	recOpts := []recorder.Option{
		recorder.WithBufferThreshold(cfg.BufferThreshold),
		recorder.WithLogger(logger),
	}
	if id, ok, err := cfg.FixedRunID(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	} else if ok {
		recOpts = append(recOpts, recorder.WithRunID(id))
	}
	reg := prometheus.NewRegistry()
	if opts.MetricsFile != "" {
		recOpts = append(recOpts, recorder.WithObserver(metrics.New(reg)))
	}

	rec, err := recorder.New(recOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	backends, err := openBackends(cfg.Backends, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open backend", err)
	}
	names := make([]string, len(backends))
	for i, b := range backends {
		rec.RegisterBackend(b)
		names[i] = b.Name()
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("recording", "events", eventsPath, "run_id", rec.RunID(), "backends", len(backends))
	stats, replayErr := ingest.Replay(ctx, events, rec)

	// Records accepted before a failure are still flushed.
	closeErr := rec.Close()

	if opts.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.MetricsFile, reg); err != nil {
			logger.Error("failed to write metrics", "path", opts.MetricsFile, "error", err)
		}
	}

	if replayErr != nil {
		if errors.Is(replayErr, context.Canceled) {
			return WrapExitError(ExitFailure, "recording interrupted", replayErr)
		}
		return WrapExitError(ExitFailure, "recording failed", replayErr)
	}
	if closeErr != nil {
		return WrapExitError(ExitFailure, "failed to close recorder", closeErr)
	}

	logger.Info("recording complete", "records", stats.Records)
	return opts.formatter(cmd).Success(RecordSummary{
		RunID:    rec.RunID().String(),
		Lines:    stats.Lines,
		Records:  stats.Records,
		Titles:   stats.Titles,
		Backends: names,
	})
}

// resolveConfig loads --config and applies flag overrides on top.
func resolveConfig(opts *RecordOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("threshold") {
		if opts.Threshold < 1 {
			return nil, fmt.Errorf("--threshold must be at least 1, got %d", opts.Threshold)
		}
		cfg.BufferThreshold = opts.Threshold
	}
	if opts.RunID != "" {
		if _, err := uuid.Parse(opts.RunID); err != nil {
			return nil, fmt.Errorf("--run-id: %w", err)
		}
		cfg.RunID = opts.RunID
	}
	if opts.CSVDir != "" {
		cfg.Backends = append(cfg.Backends, config.Backend{Type: config.BackendCSV, Path: opts.CSVDir, Overwrite: opts.Overwrite})
	}
	if opts.SQLitePath != "" {
		cfg.Backends = append(cfg.Backends, config.Backend{Type: config.BackendSQLite, Path: opts.SQLitePath, Overwrite: opts.Overwrite})
	}
	if opts.ArrowDir != "" {
		cfg.Backends = append(cfg.Backends, config.Backend{Type: config.BackendArrow, Path: opts.ArrowDir})
	}
	return cfg, nil
}

// openBackends opens every configured backend in order. On failure the
// backends already opened are closed.
func openBackends(specs []config.Backend, logger *slog.Logger) ([]recorder.Backend, error) {
	var opened []recorder.Backend
	for _, spec := range specs {
		b, err := openBackend(spec, logger)
		if err != nil {
			for _, o := range opened {
				o.Close()
			}
			return nil, fmt.Errorf("%s %s: %w", spec.Type, spec.Path, err)
		}
		logger.Debug("backend opened", "type", spec.Type, "path", spec.Path)
		opened = append(opened, b)
	}
	return opened, nil
}

func openBackend(spec config.Backend, logger *slog.Logger) (recorder.Backend, error) {
	switch spec.Type {
	case config.BackendCSV:
		return csvback.Open(spec.Path, csvback.WithOverwrite(spec.Overwrite), csvback.WithLogger(logger))
	case config.BackendSQLite:
		if spec.Overwrite {
			if err := os.Remove(spec.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to remove %s: %w", spec.Path, err)
			}
		}
		return sqliteback.Open(spec.Path, sqliteback.WithLogger(logger))
	case config.BackendArrow:
		return arrowback.Open(spec.Path, arrowback.WithLogger(logger))
	default:
		return nil, fmt.Errorf("unknown backend type %q", spec.Type)
	}
}
