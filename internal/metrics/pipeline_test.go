package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestIncJobFailedLabelsStage(t *testing.T) {
	before := counterValue(t, JobsFailedTotal.WithLabelValues("loading"))
	IncJobFailed("loading")
	require.Equal(t, before+1, counterValue(t, JobsFailedTotal.WithLabelValues("loading")))
}

func TestIncJobFailedEmptyStage(t *testing.T) {
	before := counterValue(t, JobsFailedTotal.WithLabelValues("unknown"))
	IncJobFailed("")
	require.Equal(t, before+1, counterValue(t, JobsFailedTotal.WithLabelValues("unknown")))
}

func TestObserveStageRecords(t *testing.T) {
	ObserveStage("morphing", 1.25)

	m := &dto.Metric{}
	h, err := StageDurationSeconds.GetMetricWithLabelValues("morphing")
	require.NoError(t, err)
	require.NoError(t, h.(interface{ Write(*dto.Metric) error }).Write(m))
	require.GreaterOrEqual(t, m.GetHistogram().GetSampleCount(), uint64(1))
}

func TestFramesMorphedByMode(t *testing.T) {
	before := counterValue(t, FramesMorphedTotal.WithLabelValues("blend"))
	FramesMorphedTotal.WithLabelValues("blend").Add(5)
	require.Equal(t, before+5, counterValue(t, FramesMorphedTotal.WithLabelValues("blend")))
}
