package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/diwise/iot-vitals-monitor/internal/pkg/infrastructure/cache"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/infrastructure/timeseries"
	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const (
	CacheTTL         = 60 * time.Second
	alertCountWindow = 50
)

//go:generate moq -rm -out dashboard_mock.go . Aggregator

type Aggregator interface {
	Get(ctx context.Context, subject string) (types.Dashboard, error)
}

type AlertHistory interface {
	Recent(ctx context.Context, subject string, limit int) ([]types.Alert, error)
}

type aggregator struct {
	series timeseries.Store
	alerts AlertHistory
	cache  cache.Cache
	now    func() time.Time
}

func New(series timeseries.Store, alerts AlertHistory, c cache.Cache) Aggregator {
	return &aggregator{
		series: series,
		alerts: alerts,
		cache:  c,
		now:    time.Now,
	}
}

func cacheKey(subject string) string {
	return fmt.Sprintf("vitals_dashboard:%s", subject)
}

func (a *aggregator) Get(ctx context.Context, subject string) (types.Dashboard, error) {
	log := logging.GetFromContext(ctx)

	if b, ok := a.cache.Get(ctx, cacheKey(subject)); ok {
		var d types.Dashboard
		if err := json.Unmarshal(b, &d); err == nil {
			return d, nil
		}
		log.Warn().Str("subject_id", subject).Msg("discarding unreadable cached dashboard")
	}

	d, err := a.compute(ctx, subject)
	if err != nil {
		return types.Dashboard{}, err
	}

	if b, err := json.Marshal(d); err == nil {
		a.cache.Set(ctx, cacheKey(subject), b, CacheTTL)
	}

	return d, nil
}

func (a *aggregator) compute(ctx context.Context, subject string) (types.Dashboard, error) {
	now := a.now().UTC()

	d := types.Dashboard{
		SubjectID: subject,
		Latest:    map[types.Metric]types.Entry{},
		Summary:   map[types.Metric]types.Summary{},
		AlertCounts: map[types.Severity]int{
			types.SeverityWarning:  0,
			types.SeverityCritical: 0,
		},
		AsOf: now,
	}

	for _, m := range types.TrackedMetrics {
		latest, ok, err := a.series.QueryLatest(ctx, subject, m)
		if err != nil {
			return types.Dashboard{}, fmt.Errorf("failed to query latest %s: %w", m, err)
		}
		if ok {
			d.Latest[m] = latest
		}

		entries, err := a.series.QueryRange(ctx, subject, m, now.Add(-timeseries.Retention))
		if err != nil {
			return types.Dashboard{}, fmt.Errorf("failed to query range for %s: %w", m, err)
		}
		if len(entries) > 0 {
			d.Summary[m] = Summarize(entries)
		}
	}

	recent, err := a.alerts.Recent(ctx, subject, alertCountWindow)
	if err != nil {
		return types.Dashboard{}, fmt.Errorf("failed to read recent alerts: %w", err)
	}

	for _, alert := range recent {
		d.AlertCounts[alert.Severity]++
	}

	return d, nil
}

// Summarize computes avg (one decimal), min, max and count. entries must not be empty.
func Summarize(entries []types.Entry) types.Summary {
	s := types.Summary{
		Min:   entries[0].Value,
		Max:   entries[0].Value,
		Count: len(entries),
	}

	sum := 0.0
	for _, e := range entries {
		sum += e.Value
		s.Min = math.Min(s.Min, e.Value)
		s.Max = math.Max(s.Max, e.Value)
	}

	s.Avg = round1(sum / float64(len(entries)))

	return s
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
