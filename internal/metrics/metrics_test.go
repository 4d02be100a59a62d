package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simrec/internal/datum"
	"github.com/roach88/simrec/internal/recorder"
	"github.com/roach88/simrec/internal/testutil"
)

func newObserved(t *testing.T, threshold int) (*Observer, *recorder.Recorder, *testutil.CaptureBackend) {
	t.Helper()
	obs := New(prometheus.NewRegistry())
	rec, err := recorder.New(
		recorder.WithRunID(testutil.FixedRunID),
		recorder.WithBufferThreshold(threshold),
		recorder.WithObserver(obs),
	)
	require.NoError(t, err)
	capture := testutil.NewCaptureBackend("capture")
	rec.RegisterBackend(capture)
	return obs, rec, capture
}

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := New(reg)
	obs.RecordAccepted("DumbTitle")
	obs.RecordRejected("DumbTitle", recorder.ErrCodeSchemaMismatch)
	obs.Dispatched("capture", 2, time.Millisecond, nil)

	n, err := promtest.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestObserver_CountsAcceptedAndRejected(t *testing.T) {
	obs, rec, _ := newObserved(t, 10)

	r := rec.NewRecord("DumbTitle")
	require.NoError(t, r.AddVal("weight", datum.NewInt(10)))
	require.NoError(t, r.Commit())

	bad := rec.NewRecord("DumbTitle")
	require.NoError(t, bad.AddVal("weight", datum.NewText("heavy")))
	require.Error(t, bad.Commit())

	assert.Equal(t, 1.0, promtest.ToFloat64(obs.accepted.WithLabelValues("DumbTitle")))
	assert.Equal(t, 1.0, promtest.ToFloat64(
		obs.rejected.WithLabelValues("DumbTitle", string(recorder.ErrCodeSchemaMismatch))))
}

func TestObserver_Dispatch(t *testing.T) {
	obs, rec, capture := newObserved(t, 2)

	for i := 0; i < 2; i++ {
		require.NoError(t, rec.NewRecord("DumbTitle").Commit())
	}

	assert.Equal(t, 1.0, promtest.ToFloat64(obs.dispatch.WithLabelValues("capture", StatusOK)))
	assert.Equal(t, 2.0, promtest.ToFloat64(obs.batchSize.WithLabelValues("capture")))

	capture.FailNotify = true
	require.NoError(t, rec.NewRecord("DumbTitle").Commit())
	require.Error(t, rec.NewRecord("DumbTitle").Commit())

	assert.Equal(t, 1.0, promtest.ToFloat64(obs.dispatch.WithLabelValues("capture", StatusError)))
}

func TestObserver_Exposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := New(reg)
	obs.RecordAccepted("DumbTitle")
	obs.RecordAccepted("DumbTitle")

	expected := `
# HELP simrec_records_accepted_total Records accepted into the dispatch buffer
# TYPE simrec_records_accepted_total counter
simrec_records_accepted_total{title="DumbTitle"} 2
`
	err := promtest.GatherAndCompare(reg, strings.NewReader(expected), "simrec_records_accepted_total")
	assert.NoError(t, err)
}
