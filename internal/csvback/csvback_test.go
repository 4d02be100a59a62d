package csvback

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simrec/internal/datum"
	"github.com/roach88/simrec/internal/recorder"
	"github.com/roach88/simrec/internal/testutil"
)

func newRecorder(t *testing.T, threshold int) *recorder.Recorder {
	t.Helper()
	rec, err := recorder.New(
		recorder.WithRunID(testutil.FixedRunID),
		recorder.WithBufferThreshold(threshold),
	)
	require.NoError(t, err)
	return rec
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func commitAnimal(t *testing.T, rec *recorder.Recorder, animal string, weight int64, height float64) {
	t.Helper()
	r := rec.NewRecord("DumbTitle")
	require.NoError(t, r.AddVals(
		datum.F("animal", datum.NewText(animal)),
		datum.F("weight", datum.NewInt(weight)),
		datum.F("height", datum.NewReal(height)),
	))
	require.NoError(t, r.Commit())
}

func TestOpen_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "csv")

	b, err := Open(dir)
	require.NoError(t, err)
	defer b.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, dir, b.Name())
}

func TestOpen_Overwrite(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "Stale.csv")
	require.NoError(t, os.WriteFile(stale, []byte("old\n"), 0o644))

	b, err := Open(dir, WithOverwrite(true))
	require.NoError(t, err)
	defer b.Close()

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestScenarioA_Golden(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	require.NoError(t, err)

	rec := newRecorder(t, 2)
	rec.RegisterBackend(b)

	commitAnimal(t, rec, "monkey", 10, 5.5)
	commitAnimal(t, rec, "elephant", 1000, 7.2)
	require.NoError(t, rec.Close())

	data, err := os.ReadFile(filepath.Join(dir, "DumbTitle.csv"))
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "DumbTitle", data)
}

func TestScenarioA_WrittenAtThreshold(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	require.NoError(t, err)
	defer b.Close()

	rec := newRecorder(t, 2)
	rec.RegisterBackend(b)

	commitAnimal(t, rec, "monkey", 10, 5.5)
	_, err = os.Stat(filepath.Join(dir, "DumbTitle.csv"))
	assert.True(t, os.IsNotExist(err), "nothing written below threshold")

	commitAnimal(t, rec, "elephant", 1000, 7.2)
	lines := readLines(t, filepath.Join(dir, "DumbTitle.csv"))
	require.Len(t, lines, 3)
	assert.Equal(t, "SimID, animal, weight, height", lines[0])
}

func TestNotify_HeaderNotRewrittenOnReopen(t *testing.T) {
	dir := t.TempDir()

	for i := 0; i < 2; i++ {
		b, err := Open(dir)
		require.NoError(t, err)
		rec := newRecorder(t, 10)
		rec.RegisterBackend(b)
		commitAnimal(t, rec, "monkey", 10, 5.5)
		require.NoError(t, rec.Close())
	}

	lines := readLines(t, filepath.Join(dir, "DumbTitle.csv"))
	require.Len(t, lines, 3)
	assert.Equal(t, "SimID, animal, weight, height", lines[0])
	assert.Equal(t, lines[1], lines[2])
}

func TestNotify_SparseRecordPadded(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	require.NoError(t, err)

	rec := newRecorder(t, 10)
	rec.RegisterBackend(b)
	commitAnimal(t, rec, "monkey", 10, 5.5)

	sparse := rec.NewRecord("DumbTitle")
	require.NoError(t, sparse.AddVal("height", datum.NewReal(2)))
	require.NoError(t, sparse.Commit())
	require.NoError(t, rec.Close())

	lines := readLines(t, filepath.Join(dir, "DumbTitle.csv"))
	require.Len(t, lines, 3)
	assert.Equal(t, `"`+testutil.FixedRunIDString+`", "", "", 2`, lines[2])
}

func TestNotify_ColumnOrderFromFirstRecord(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	require.NoError(t, err)

	rec := newRecorder(t, 10)
	rec.RegisterBackend(b)
	commitAnimal(t, rec, "monkey", 10, 5.5)

	reordered := rec.NewRecord("DumbTitle")
	require.NoError(t, reordered.AddVals(
		datum.F("height", datum.NewReal(7.2)),
		datum.F("animal", datum.NewText("elephant")),
		datum.F("weight", datum.NewInt(1000)),
	))
	require.NoError(t, reordered.Commit())
	require.NoError(t, rec.Close())

	lines := readLines(t, filepath.Join(dir, "DumbTitle.csv"))
	assert.Equal(t, `"`+testutil.FixedRunIDString+`", "elephant", 1000, 7.2`, lines[2])
}

func TestScenarioC_BlobSideFile(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	require.NoError(t, err)

	rec := newRecorder(t, 1)
	rec.RegisterBackend(b)
	r := rec.NewRecord("Blobbo")
	require.NoError(t, r.AddVal("data", datum.NewBlob([]byte("my name is flipper"))))
	require.NoError(t, r.Commit())
	require.NoError(t, rec.Close())

	lines := readLines(t, filepath.Join(dir, "Blobbo.csv"))
	require.Len(t, lines, 2)
	assert.Equal(t, "SimID, data", lines[0])

	cells := strings.Split(lines[1], ", ")
	require.Len(t, cells, 2)
	name := strings.Trim(cells[1], `"`)
	assert.True(t, strings.HasSuffix(name, ".blob"))

	contents, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, []byte("my name is flipper"), contents)
}

func TestNotify_BlobNamesUnique(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	require.NoError(t, err)
	defer b.Close()

	first, err := b.writeBlob(datum.NewBlob([]byte("a")))
	require.NoError(t, err)
	second, err := b.writeBlob(datum.NewBlob([]byte("a")))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestNotify_MultipleTitles(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	require.NoError(t, err)

	rec := newRecorder(t, 10)
	rec.RegisterBackend(b)
	commitAnimal(t, rec, "monkey", 10, 5.5)
	other := rec.NewRecord("Inventory")
	require.NoError(t, other.AddVal("qty", datum.NewInt(4)))
	require.NoError(t, other.Commit())
	require.NoError(t, rec.Close())

	lines := readLines(t, filepath.Join(dir, "Inventory.csv"))
	assert.Equal(t, []string{"SimID, qty", `"` + testutil.FixedRunIDString + `", 4`}, lines)
}

func TestNotify_UnknownFieldFails(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	require.NoError(t, err)
	defer b.Close()

	// Drive the backend through two recorders so the second record bypasses
	// the first recorder's schema check.
	first := newRecorder(t, 1)
	r := first.NewRecord("DumbTitle")
	require.NoError(t, r.AddVal("animal", datum.NewText("monkey")))
	require.NoError(t, r.Commit())
	require.NoError(t, b.Notify([]*recorder.Record{r}))

	second := newRecorder(t, 1)
	extra := second.NewRecord("DumbTitle")
	require.NoError(t, extra.AddVal("color", datum.NewText("grey")))
	require.NoError(t, extra.Commit())

	err = b.Notify([]*recorder.Record{extra})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "color"`)
}

func TestNotify_InvalidTitle(t *testing.T) {
	b, err := Open(t.TempDir())
	require.NoError(t, err)
	defer b.Close()

	rec := newRecorder(t, 10)
	r := rec.NewRecord("../escape")
	require.NoError(t, r.Commit())

	err = b.Notify([]*recorder.Record{r})
	assert.Error(t, err)
}

func TestRecorder_BackendErrorWrapped(t *testing.T) {
	b, err := Open(t.TempDir())
	require.NoError(t, err)
	defer b.Close()

	rec := newRecorder(t, 1)
	rec.RegisterBackend(b)

	err = rec.NewRecord("a/b").Commit()
	require.Error(t, err)
	assert.True(t, recorder.IsBackendIO(err))
	var re *recorder.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, b.Name(), re.Backend)
}

func TestClose_ReleasesHandles(t *testing.T) {
	b, err := Open(t.TempDir())
	require.NoError(t, err)

	rec := newRecorder(t, 1)
	rec.RegisterBackend(b)
	commitAnimal(t, rec, "monkey", 10, 5.5)
	require.Len(t, b.tables, 1)

	require.NoError(t, rec.Close())
	assert.Empty(t, b.tables)
}

func TestFormatValue(t *testing.T) {
	b := &Backend{dir: t.TempDir()}

	tests := []struct {
		v    datum.Value
		want string
	}{
		{datum.NewInt(10), "10"},
		{datum.NewInt(-3), "-3"},
		{datum.NewReal(5.5), "5.5"},
		{datum.NewReal(0.1), "0.1"},
		{datum.NewText("monkey"), `"monkey"`},
		{datum.NewText(""), `""`},
		{datum.NewRunID(testutil.FixedRunID), `"` + testutil.FixedRunIDString + `"`},
	}
	for _, tt := range tests {
		got, err := b.formatValue(tt.v)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
