package agent

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/statsexporter/internal/stats"
)

// instantClock never blocks; Sleep only reports cancellation.
type instantClock struct{}

func (instantClock) Now() time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (instantClock) Sleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Exporter.Interval = time.Hour
	cfg.Driver.Iterations = 10
	cfg.Driver.MaxLatency = 2
	cfg.Driver.Seed = 42

	return cfg
}

func messages(hook *logrustest.Hook) []string {
	entries := hook.AllEntries()
	out := make([]string, 0, len(entries))

	for _, e := range entries {
		out = append(out, e.Message)
	}

	return out
}

func containsMessage(hook *logrustest.Hook, substr string) bool {
	for _, m := range messages(hook) {
		if strings.Contains(m, substr) {
			return true
		}
	}

	return false
}

func TestAgent_RunExportsLatencyView(t *testing.T) {
	log, hook := logrustest.NewNullLogger()

	a, err := newAgent(log, testConfig(), instantClock{}, &bytes.Buffer{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop() })

	res, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, res.Recorded)
	assert.False(t, res.Interrupted)

	assert.True(t, containsMessage(hook,
		"Name: statsexporter/latency, type: CUMULATIVE_DISTRIBUTION"),
		"messages: %v", messages(hook))
	assert.True(t, containsMessage(hook, "count=10,"))
	assert.True(t, containsMessage(hook, "bounds=[0 5 10 15 20]"))

	assert.Equal(t, float64(10), testutil.ToFloat64(
		a.health.MeasurementsRecorded.WithLabelValues("example/latency")))
}

func TestAgent_RunInterrupted(t *testing.T) {
	log, hook := logrustest.NewNullLogger()

	a, err := newAgent(log, testConfig(), instantClock{}, &bytes.Buffer{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := a.Run(ctx)
	require.NoError(t, err)

	// The first sample is recorded before the sleep notices cancellation.
	assert.Equal(t, 1, res.Recorded)
	assert.True(t, res.Interrupted)

	// The final export still runs with its own deadline.
	assert.True(t, containsMessage(hook, "count=1,"))
	assert.Equal(t, float64(1), testutil.ToFloat64(a.health.DriverInterruptions))
}

func TestAgent_StdoutExporter(t *testing.T) {
	log, _ := logrustest.NewNullLogger()

	cfg := testConfig()
	cfg.Stdout.Enabled = true

	var buf bytes.Buffer

	a, err := newAgent(log, cfg, instantClock{}, &buf)
	require.NoError(t, err)
	require.Len(t, a.readers, 2)

	_, err = a.Run(context.Background())
	require.NoError(t, err)

	// The stdout reader flushes when the agent stops.
	require.NoError(t, a.Stop())
	assert.Contains(t, buf.String(), `"Name": "statsexporter/latency"`)
}

func TestAgent_StopIdempotent(t *testing.T) {
	log, _ := logrustest.NewNullLogger()

	a, err := newAgent(log, testConfig(), instantClock{}, &bytes.Buffer{})
	require.NoError(t, err)

	_, err = a.Run(context.Background())
	require.NoError(t, err)

	assert.NoError(t, a.Stop())
	assert.NoError(t, a.Stop())
}

func TestAgent_StopWithoutRun(t *testing.T) {
	log, _ := logrustest.NewNullLogger()

	a, err := newAgent(log, testConfig(), instantClock{}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.NoError(t, a.Stop())
}

func TestAgent_RunTwice(t *testing.T) {
	log, _ := logrustest.NewNullLogger()

	a, err := newAgent(log, testConfig(), instantClock{}, &bytes.Buffer{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop() })

	_, err = a.Run(context.Background())
	require.NoError(t, err)

	_, err = a.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, stats.ErrRegistrySealed)
}

func TestAgent_HandleError(t *testing.T) {
	log, hook := logrustest.NewNullLogger()

	a, err := newAgent(log, testConfig(), instantClock{}, &bytes.Buffer{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop() })

	a.HandleError(errors.New("export failed"))

	assert.Equal(t, float64(1), testutil.ToFloat64(a.health.ExportErrors))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "Metric pipeline error", entry.Message)
	assert.EqualError(t, entry.Data[logrus.ErrorKey].(error), "export failed")
}

func TestAgent_InvalidConfig(t *testing.T) {
	log, _ := logrustest.NewNullLogger()

	cfg := testConfig()
	cfg.Driver.MaxLatency = 0

	_, err := newAgent(log, cfg, instantClock{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "driver.max_latency must be positive")
}

func TestViews(t *testing.T) {
	vs := views()
	require.Len(t, vs, 1)

	v := vs[0]
	assert.Equal(t, "statsexporter/latency", v.Name)
	assert.Equal(t, "The distribution of latencies", v.Description)
	assert.Equal(t, "example/latency", v.Measure.Name)
	assert.Equal(t, "ms", v.Measure.Unit)
	assert.Equal(t, stats.AggregationDistribution, v.Aggregation.Kind)
	assert.Equal(t, []float64{0, 5, 10, 15, 20}, v.Aggregation.Bounds)
	assert.Empty(t, v.Columns)
	assert.NoError(t, v.Validate())
}
