package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udpwatch/internal/model"
)

func TestSummarize_PerChannel(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	items := []model.HistoryRecord{
		{Timestamp: now.Add(-2 * time.Hour), Channel: "RCKTV", Outcome: model.Remediated, PID: 1},
		{Timestamp: now.Add(-10 * time.Second), Channel: "RCKTV", Outcome: model.Healthy, PID: 2, Duration: 10 * time.Millisecond},
		{Timestamp: now.Add(-5 * time.Second), Channel: "RCKTV", Outcome: model.Remediated, PID: 2, Duration: 5000 * time.Millisecond},
		{Timestamp: now.Add(-3 * time.Second), Channel: "ALPHA", Outcome: model.NotRunning},
	}

	got := Summarize(items, now.Add(-time.Minute))
	require.Len(t, got, 2)

	assert.Equal(t, "ALPHA", got[0].Channel)
	assert.Equal(t, 1, got[0].Counts[model.NotRunning])

	rcktv := got[1]
	assert.Equal(t, 2, rcktv.Count)
	assert.Equal(t, 1, rcktv.Counts[model.Healthy])
	assert.Equal(t, 1, rcktv.Counts[model.Remediated])
	assert.Equal(t, model.Remediated, rcktv.LastOutcome)
	assert.Equal(t, 2, rcktv.LastPID)
	assert.Equal(t, 2505*time.Millisecond, rcktv.AvgDuration)
	assert.Equal(t, 5*time.Second, rcktv.P95Duration)
	assert.Equal(t, now.Add(-10*time.Second), rcktv.From)
}

func TestPercentile_Edges(t *testing.T) {
	t.Parallel()

	values := []float64{1, 2, 3, 4}
	assert.Equal(t, 1.0, percentile(values, 0))
	assert.Equal(t, 4.0, percentile(values, 1))
	assert.Equal(t, 0.0, percentile(nil, 0.5))
}
