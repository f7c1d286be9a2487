package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/diwise/iot-vitals-monitor/internal/pkg/infrastructure/alertstore"
	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

var ErrNotification = fmt.Errorf("notification failed")

//go:generate moq -rm -out notifier_mock.go . Notifier

// Notifier forwards an alert to an external channel.
type Notifier interface {
	Notify(ctx context.Context, alert types.Alert) error
}

type Sink interface {
	Record(ctx context.Context, subject string, alert types.Alert) error
	Recent(ctx context.Context, subject string, limit int) ([]types.Alert, error)
	// Notify hands the alert to the notifiers without waiting for them.
	Notify(ctx context.Context, subject string, alert types.Alert)

	Start(ctx context.Context)
	Stop()
}

type Config struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		QueueSize: 256,
		Workers:   2,
		Timeout:   10 * time.Second,
	}
}

type sink struct {
	store     alertstore.Store
	notifiers []Notifier
	cfg       Config

	mu      sync.Mutex
	queue   chan types.Alert
	stopped bool
	wg      sync.WaitGroup
}

func NewSink(store alertstore.Store, cfg Config, notifiers ...Notifier) Sink {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	return &sink{
		store:     store,
		notifiers: notifiers,
		cfg:       cfg,
		queue:     make(chan types.Alert, cfg.QueueSize),
	}
}

func (s *sink) Record(ctx context.Context, subject string, alert types.Alert) error {
	return s.store.Push(ctx, subject, alert)
}

func (s *sink) Recent(ctx context.Context, subject string, limit int) ([]types.Alert, error) {
	return s.store.Recent(ctx, subject, limit)
}

func (s *sink) Notify(ctx context.Context, subject string, alert types.Alert) {
	if len(s.notifiers) == 0 {
		return
	}

	log := logging.GetFromContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		log.Warn().Str("subject_id", subject).Str("alert_id", alert.ID).Msg("alert sink stopped, notification dropped")
		return
	}

	select {
	case s.queue <- alert:
	default:
		log.Warn().Str("subject_id", subject).Str("alert_id", alert.ID).Msg("notification queue full, notification dropped")
	}
}

func (s *sink) Start(ctx context.Context) {
	// notifications already queued are still delivered after ctx is cancelled
	ctx = context.WithoutCancel(ctx)

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for alert := range s.queue {
				s.deliver(ctx, alert)
			}
		}()
	}
}

// Stop closes the queue and waits for queued notifications to be delivered.
func (s *sink) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.queue)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *sink) deliver(ctx context.Context, alert types.Alert) {
	log := logging.GetFromContext(ctx)

	for _, n := range s.notifiers {
		nctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		err := n.Notify(nctx, alert)
		cancel()

		if err != nil {
			err = fmt.Errorf("%w: %w", ErrNotification, err)
			log.Error().Err(err).Str("subject_id", alert.SubjectID).Str("alert_id", alert.ID).Msgf("could not notify %T", n)
		}
	}
}
