package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/simrec/internal/ingest"
	"github.com/roach88/simrec/internal/recorder"
)

// Backend types a scenario may register.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
	BackendArrow  = "arrow"
)

var backendTypes = []string{BackendCSV, BackendSQLite, BackendArrow}

var errorCodes = []recorder.ErrorCode{
	recorder.ErrCodeDuplicateField,
	recorder.ErrCodeInvalidValue,
	recorder.ErrCodeRecordFinalized,
	recorder.ErrCodeSchemaMismatch,
	recorder.ErrCodeInvalidConfig,
	recorder.ErrCodeBackendIO,
	recorder.ErrCodeRecorderClosed,
}

// Scenario defines a recorder conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Threshold is the buffer threshold. Zero means the recorder default.
	Threshold int `yaml:"threshold,omitempty"`

	// RunID overrides the fixed test run id.
	RunID string `yaml:"run_id,omitempty"`

	// Backends are registered in order, each under its own path in the
	// scenario directory.
	Backends []string `yaml:"backends"`

	Steps []Step `yaml:"steps"`

	// Assertions run after the recorder is closed.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action against the recorder. Exactly one of Commit, Flush and
// Close is set.
type Step struct {
	// Commit is the title of a record built from Fields and committed.
	Commit string              `yaml:"commit,omitempty"`
	Fields []ingest.FieldEvent `yaml:"fields,omitempty"`

	Flush bool `yaml:"flush,omitempty"`
	Close bool `yaml:"close,omitempty"`

	// ExpectError is the error code the step must fail with. Empty means
	// the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates the recorder or backend output after the run.
type Assertion struct {
	Type string `yaml:"type"`

	// Event and Count are used by trace_count. Title and Backend narrow the
	// events counted.
	Event   string `yaml:"event,omitempty"`
	Count   int    `yaml:"count,omitempty"`
	Backend string `yaml:"backend,omitempty"`

	// Table names the record title (schema, csv_*, sql_rows, arrow_rows).
	Table string `yaml:"table,omitempty"`

	// Title narrows trace_count to one record title.
	Title string `yaml:"title,omitempty"`

	// Columns lists name:kind pairs (schema) or the columns to project
	// (sql_rows, arrow_rows). Empty projects every column.
	Columns []string `yaml:"columns,omitempty"`

	// Lines are the exact file lines (csv_lines).
	Lines []string `yaml:"lines,omitempty"`

	// Column and Content are used by csv_blob.
	Column  string `yaml:"column,omitempty"`
	Content string `yaml:"content,omitempty"`

	// Rows are the expected cells, formatted as text (sql_rows, arrow_rows).
	Rows [][]string `yaml:"rows,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceCount = "trace_count"
	AssertSchema     = "schema"
	AssertCSVLines   = "csv_lines"
	AssertCSVBlob    = "csv_blob"
	AssertSQLRows    = "sql_rows"
	AssertArrowRows  = "arrow_rows"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Threshold < 0 {
		return fmt.Errorf("threshold must be non-negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[string]bool)
	for i, b := range s.Backends {
		if !slices.Contains(backendTypes, b) {
			return fmt.Errorf("backends[%d]: unknown backend %q", i, b)
		}
		if seen[b] {
			return fmt.Errorf("backends[%d]: %s listed twice", i, b)
		}
		seen[b] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, seen); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step) error {
	actions := 0
	if step.Commit != "" {
		actions++
	}
	if step.Flush {
		actions++
	}
	if step.Close {
		actions++
	}
	if actions != 1 {
		return fmt.Errorf("steps[%d]: exactly one of commit, flush, close is required", index)
	}
	if step.Commit == "" && len(step.Fields) > 0 {
		return fmt.Errorf("steps[%d]: fields require commit", index)
	}
	if step.ExpectError != "" && !slices.Contains(errorCodes, recorder.ErrorCode(step.ExpectError)) {
		return fmt.Errorf("steps[%d]: unknown error code %q", index, step.ExpectError)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
// Backend-specific assertions require that backend to be registered.
func validateAssertion(index int, a *Assertion, backends map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	needs := ""
	switch a.Type {
	case AssertTraceCount:
		if !slices.Contains(eventTypes, a.Event) {
			return fmt.Errorf("assertions[%d]: unknown event %q for trace_count", index, a.Event)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertSchema:
		if len(a.Columns) == 0 {
			return fmt.Errorf("assertions[%d]: columns is required for schema", index)
		}
	case AssertCSVLines:
		if len(a.Lines) == 0 {
			return fmt.Errorf("assertions[%d]: lines is required for csv_lines", index)
		}
		needs = BackendCSV
	case AssertCSVBlob:
		if a.Column == "" {
			return fmt.Errorf("assertions[%d]: column is required for csv_blob", index)
		}
		needs = BackendCSV
	case AssertSQLRows:
		needs = BackendSQLite
	case AssertArrowRows:
		needs = BackendArrow
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Type != AssertTraceCount && a.Table == "" {
		return fmt.Errorf("assertions[%d]: table is required for %s", index, a.Type)
	}
	if needs != "" && !backends[needs] {
		return fmt.Errorf("assertions[%d]: %s requires the %s backend", index, a.Type, needs)
	}
	return nil
}
