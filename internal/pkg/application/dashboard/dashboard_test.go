package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/diwise/iot-vitals-monitor/internal/pkg/infrastructure/cache"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/infrastructure/timeseries"
	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/matryer/is"
)

func TestDashboardOmitsMetricsWithoutData(t *testing.T) {
	is, ctx := is.New(t), context.Background()

	series := timeseries.NewMemoryStore()
	now := time.Now().UTC()

	for i, v := range []float64{70, 72, 75} {
		series.Append(ctx, "42", types.HeartRate, types.Entry{Value: v, Timestamp: now.Add(time.Duration(i-3) * time.Minute)})
	}
	series.Append(ctx, "42", types.SpO2, types.Entry{Value: 97, Timestamp: now.Add(-time.Minute)})

	alerts := &alertHistory{alerts: []types.Alert{
		{Severity: types.SeverityCritical},
		{Severity: types.SeverityCritical},
	}}

	d, err := New(series, alerts, cache.New(nil)).Get(ctx, "42")
	is.NoErr(err)

	is.Equal(d.SubjectID, "42")
	is.Equal(len(d.Latest), 2)
	is.Equal(d.Latest[types.HeartRate].Value, 75.0)

	is.Equal(len(d.Summary), 2)
	is.Equal(d.Summary[types.HeartRate], types.Summary{Avg: 72.3, Min: 70, Max: 75, Count: 3})

	_, ok := d.Summary[types.Temperature]
	is.True(!ok)

	is.Equal(d.AlertCounts[types.SeverityCritical], 2)
	is.Equal(d.AlertCounts[types.SeverityWarning], 0)
	_, ok = d.AlertCounts[types.SeverityWarning]
	is.True(ok)
}

func TestDashboardIsServedFromCache(t *testing.T) {
	is, ctx := is.New(t), context.Background()

	series := timeseries.NewMemoryStore()
	series.Append(ctx, "42", types.Temperature, types.Entry{Value: 37.2, Timestamp: time.Now().UTC()})

	alerts := &alertHistory{}
	agg := New(series, alerts, cache.New(nil))

	first, err := agg.Get(ctx, "42")
	is.NoErr(err)

	series.Append(ctx, "42", types.Temperature, types.Entry{Value: 39.0, Timestamp: time.Now().UTC()})

	second, err := agg.Get(ctx, "42")
	is.NoErr(err)

	is.Equal(alerts.calls, 1)
	is.Equal(second.Latest[types.Temperature].Value, first.Latest[types.Temperature].Value)
}

func TestDashboardForUnknownSubjectIsEmpty(t *testing.T) {
	is, ctx := is.New(t), context.Background()

	d, err := New(timeseries.NewMemoryStore(), &alertHistory{}, cache.New(nil)).Get(ctx, "nobody")
	is.NoErr(err)
	is.Equal(len(d.Latest), 0)
	is.Equal(len(d.Summary), 0)
	is.Equal(len(d.AlertCounts), 2)
}

func TestSummarizeRoundsHalfAwayFromZero(t *testing.T) {
	is := is.New(t)

	s := Summarize([]types.Entry{{Value: 0.5}, {Value: 0.25}})
	is.Equal(s.Avg, 0.4)
	is.Equal(s.Min, 0.25)
	is.Equal(s.Max, 0.5)
	is.Equal(s.Count, 2)
}

type alertHistory struct {
	alerts []types.Alert
	calls  int
}

func (a *alertHistory) Recent(_ context.Context, _ string, limit int) ([]types.Alert, error) {
	a.calls++
	if len(a.alerts) > limit {
		return a.alerts[:limit], nil
	}
	return a.alerts, nil
}
