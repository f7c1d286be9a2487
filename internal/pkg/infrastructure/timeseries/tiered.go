package timeseries

import (
	"context"
	"time"

	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

type tieredStore struct {
	primary   Store
	secondary Store
}

// NewTieredStore combines a shared primary store with a process local secondary.
// Writes always reach the secondary, reads fall back to it when the primary fails.
// A nil primary leaves only the secondary in use.
func NewTieredStore(primary, secondary Store) Store {
	return &tieredStore{
		primary:   primary,
		secondary: secondary,
	}
}

func (s *tieredStore) Append(ctx context.Context, subject string, metric types.Metric, entry types.Entry) error {
	if err := s.secondary.Append(ctx, subject, metric, entry); err != nil {
		return err
	}

	if s.primary != nil {
		if err := s.primary.Append(ctx, subject, metric, entry); err != nil {
			log := logging.GetFromContext(ctx)
			log.Warn().Err(err).Str("subject_id", subject).Str("metric", string(metric)).Msg("primary time series store unavailable, entry kept in memory only")
		}
	}

	return nil
}

func (s *tieredStore) QueryRange(ctx context.Context, subject string, metric types.Metric, since time.Time) ([]types.Entry, error) {
	if s.primary != nil {
		entries, err := s.primary.QueryRange(ctx, subject, metric, since)
		if err == nil {
			return entries, nil
		}

		log := logging.GetFromContext(ctx)
		log.Warn().Err(err).Str("subject_id", subject).Msg("primary time series store unavailable, reading from memory")
	}

	return s.secondary.QueryRange(ctx, subject, metric, since)
}

func (s *tieredStore) QueryLatest(ctx context.Context, subject string, metric types.Metric) (types.Entry, bool, error) {
	if s.primary != nil {
		entry, ok, err := s.primary.QueryLatest(ctx, subject, metric)
		if err == nil {
			return entry, ok, nil
		}

		log := logging.GetFromContext(ctx)
		log.Warn().Err(err).Str("subject_id", subject).Msg("primary time series store unavailable, reading from memory")
	}

	return s.secondary.QueryLatest(ctx, subject, metric)
}

func (s *tieredStore) Evict(ctx context.Context, before time.Time) error {
	err := s.secondary.Evict(ctx, before)

	if s.primary != nil {
		if perr := s.primary.Evict(ctx, before); perr != nil {
			return perr
		}
	}

	return err
}
