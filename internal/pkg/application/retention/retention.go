package retention

import (
	"context"
	"time"

	"github.com/diwise/iot-vitals-monitor/internal/pkg/infrastructure/timeseries"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const DefaultInterval = 10 * time.Minute

type Sweeper interface {
	Start(ctx context.Context)
	Stop()
}

type DeviceMarker interface {
	MarkInactiveDevices(ctx context.Context, olderThan time.Time) (int64, error)
}

type Option func(*sweeper)

// WithInactiveDevices flips devices that have not been seen within after to inactive on every sweep.
func WithInactiveDevices(devices DeviceMarker, after time.Duration) Option {
	return func(s *sweeper) {
		if after > 0 {
			s.devices = devices
			s.inactiveAfter = after
		}
	}
}

type sweeper struct {
	store         timeseries.Store
	interval      time.Duration
	window        time.Duration
	devices       DeviceMarker
	inactiveAfter time.Duration
	done          chan bool
	stopped       chan struct{}
	now           func() time.Time
}

func New(store timeseries.Store, interval, window time.Duration, opts ...Option) Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if window <= 0 {
		window = timeseries.Retention
	}

	s := &sweeper{
		store:    store,
		interval: interval,
		window:   window,
		done:     make(chan bool),
		stopped:  make(chan struct{}),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *sweeper) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *sweeper) Stop() {
	select {
	case s.done <- true:
		<-s.stopped
	case <-s.stopped:
	}
}

func (s *sweeper) run(ctx context.Context) {
	defer close(s.stopped)

	log := logging.GetFromContext(ctx)

	var last time.Time

	for {
		wait := timeToNextSweep(last, s.interval, s.now())
		log.Debug().Msgf("next retention sweep in %s", wait)

		timer := time.NewTimer(wait)

		select {
		case <-s.done:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			last = s.now()
			s.sweep(ctx, last)
		}
	}
}

func (s *sweeper) sweep(ctx context.Context, now time.Time) {
	log := logging.GetFromContext(ctx)

	if err := s.store.Evict(ctx, now.Add(-s.window)); err != nil {
		log.Error().Err(err).Msg("could not evict expired vitals")
	}

	if s.devices == nil {
		return
	}

	n, err := s.devices.MarkInactiveDevices(ctx, now.Add(-s.inactiveAfter))
	if err != nil {
		log.Error().Err(err).Msg("could not mark inactive devices")
		return
	}

	if n > 0 {
		log.Info().Msgf("marked %d devices as inactive", n)
	}
}

// timeToNextSweep returns how long to wait until the next sweep. A sweeper that
// has never run sweeps immediately.
func timeToNextSweep(last time.Time, interval time.Duration, now time.Time) time.Duration {
	if last.IsZero() {
		return 0
	}

	next := last.Add(interval).Sub(now)
	if next < 0 {
		return 0
	}

	return next
}
