package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simrec/internal/testutil"
)

const animalEvents = `{"title":"DumbTitle","fields":[{"name":"animal","text":"monkey"},{"name":"weight","int":10},{"name":"height","real":5.5}]}
{"title":"DumbTitle","fields":[{"name":"animal","text":"elephant"},{"name":"weight","int":1000},{"name":"height","real":7.2}]}
{"title":"Blobbo","fields":[{"name":"data","blob":"bXkgbmFtZSBpcyBmbGlwcGVy"}]}
`

func writeEvents(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd := newRootCommand(&RootOptions{})
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(append([]string{"--format", format}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestRecord_AllBackends(t *testing.T) {
	out := t.TempDir()
	csvDir := filepath.Join(out, "csv")
	dbPath := filepath.Join(out, "run.db")
	arrowDir := filepath.Join(out, "arrow")
	events := writeEvents(t, animalEvents)

	stdout, err := runCommand(t, "json", "record",
		"--csv", csvDir, "--sqlite", dbPath, "--arrow", arrowDir,
		"--threshold", "2", "--run-id", testutil.FixedRunIDString, events)
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   RecordSummary `json:"data"`
	}
	require.NoError(t, gojson.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, testutil.FixedRunIDString, resp.Data.RunID)
	assert.Equal(t, 3, resp.Data.Records)
	assert.Equal(t, map[string]int{"DumbTitle": 2, "Blobbo": 1}, resp.Data.Titles)
	assert.Equal(t, []string{csvDir, dbPath, arrowDir}, resp.Data.Backends)

	data, err := os.ReadFile(filepath.Join(csvDir, "DumbTitle.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, []string{
		"SimID, animal, weight, height",
		`"` + testutil.FixedRunIDString + `", "monkey", 10, 5.5`,
		`"` + testutil.FixedRunIDString + `", "elephant", 1000, 7.2`,
	}, lines)

	_, err = os.Stat(filepath.Join(arrowDir, "DumbTitle.arrow"))
	assert.NoError(t, err)
}

func TestRecord_TextSummary(t *testing.T) {
	events := writeEvents(t, animalEvents)

	stdout, err := runCommand(t, "text", "record", "--csv", t.TempDir(), events)
	require.NoError(t, err)

	assert.Contains(t, stdout, "Recorded 3 records under run ")
	assert.Contains(t, stdout, "  Blobbo: 1\n  DumbTitle: 2")
}

func TestRecord_ConfigFile(t *testing.T) {
	out := t.TempDir()
	cfgPath := filepath.Join(out, "simrec.yaml")
	csvDir := filepath.Join(out, "csv")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"buffer_threshold: 1\nrun_id: "+testutil.FixedRunIDString+"\nbackends:\n  - type: csv\n    path: "+csvDir+"\n",
	), 0o644))
	events := writeEvents(t, animalEvents)

	stdout, err := runCommand(t, "json", "record", "--config", cfgPath, events)
	require.NoError(t, err)
	assert.Contains(t, stdout, testutil.FixedRunIDString)

	_, err = os.Stat(filepath.Join(csvDir, "Blobbo.csv"))
	assert.NoError(t, err)
}

func TestRecord_MetricsFile(t *testing.T) {
	out := t.TempDir()
	metricsPath := filepath.Join(out, "simrec.prom")
	events := writeEvents(t, animalEvents)

	_, err := runCommand(t, "text", "record", "--csv", filepath.Join(out, "csv"), "--metrics-file", metricsPath, events)
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `simrec_records_accepted_total{title="DumbTitle"} 2`)
}

func TestRecord_NoBackends(t *testing.T) {
	events := writeEvents(t, animalEvents)

	_, err := runCommand(t, "text", "record", events)

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no backends configured")
}

func TestRecord_MissingEvents(t *testing.T) {
	_, err := runCommand(t, "text", "record", "--csv", t.TempDir(), filepath.Join(t.TempDir(), "nope.jsonl"))

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRecord_InvalidThreshold(t *testing.T) {
	events := writeEvents(t, animalEvents)

	_, err := runCommand(t, "text", "record", "--csv", t.TempDir(), "--threshold", "0", events)

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRecord_RejectedRecordStillFlushesAccepted(t *testing.T) {
	csvDir := t.TempDir()
	events := writeEvents(t, `{"title":"T","fields":[{"name":"n","int":1}]}
{"title":"T","fields":[{"name":"n","text":"one"}]}
`)

	_, err := runCommand(t, "text", "record", "--csv", csvDir, events)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "SCHEMA_MISMATCH")

	data, err := os.ReadFile(filepath.Join(csvDir, "T.csv"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestExecute_JSONError(t *testing.T) {
	events := writeEvents(t, `{"title":"T","fields":[{"name":"n","int":1},{"name":"n","int":2}]}`)
	var stdout, stderr bytes.Buffer

	code := Execute([]string{"--format", "json", "record", "--csv", t.TempDir(), events}, &stdout, &stderr)

	assert.Equal(t, ExitFailure, code)
	var resp CLIResponse
	require.NoError(t, gojson.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "DUPLICATE_FIELD", resp.Error.Code)
}
