package timeseries

import (
	"context"
	"fmt"
	"time"

	"github.com/diwise/iot-vitals-monitor/pkg/types"
)

// Retention is the window during which entries stay queryable.
const Retention = 24 * time.Hour

type Store interface {
	Append(ctx context.Context, subject string, metric types.Metric, entry types.Entry) error
	// QueryRange returns entries newer than since, oldest first. since is clamped to the retention window.
	QueryRange(ctx context.Context, subject string, metric types.Metric, since time.Time) ([]types.Entry, error)
	QueryLatest(ctx context.Context, subject string, metric types.Metric) (types.Entry, bool, error)
	Evict(ctx context.Context, before time.Time) error
}

func key(subject string, metric types.Metric) string {
	return fmt.Sprintf("vitals:%s:%s", subject, metric)
}

func clamp(since, now time.Time) time.Time {
	oldest := now.Add(-Retention)
	if since.Before(oldest) {
		return oldest
	}
	return since
}
