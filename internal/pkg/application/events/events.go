package events

import (
	"context"
	"errors"
	"fmt"
	"io"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/samber/lo"
	"golang.org/x/sys/unix"
	yaml "gopkg.in/yaml.v2"
)

const AlertEventType = "diwise.vitals.alert"

type EventSender interface {
	Notify(ctx context.Context, alert types.Alert) error
}

type eventSender struct {
	subscribers map[string][]SubscriberConfig
	client      cloudevents.Client
}

func New(cfg *Config) (EventSender, error) {
	c, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, err
	}

	e := &eventSender{
		subscribers: make(map[string][]SubscriberConfig),
		client:      c,
	}

	if cfg != nil {
		for _, s := range cfg.Notifications {
			e.subscribers[s.Type] = append(e.subscribers[s.Type], s.Subscribers...)
		}
	}

	return e, nil
}

func (e *eventSender) Notify(ctx context.Context, alert types.Alert) error {
	subscribers := e.subscribers[AlertEventType]
	if len(subscribers) == 0 {
		return nil
	}

	event := cloudevents.NewEvent()
	event.SetID(alert.ID)
	event.SetTime(alert.Timestamp)
	event.SetSource("github.com/diwise/iot-vitals-monitor")
	event.SetType(AlertEventType)
	event.SetSubject(alert.SubjectID)

	err := event.SetData(cloudevents.ApplicationJSON, alert)
	if err != nil {
		return err
	}

	logger := logging.GetFromContext(ctx)

	for _, s := range subscribers {
		if !s.accepts(alert) {
			continue
		}

		ctxWithTarget := cloudevents.ContextWithTarget(ctx, s.Endpoint)

		result := e.client.Send(ctxWithTarget, event)
		if cloudevents.IsUndelivered(result) || errors.Is(result, unix.ECONNREFUSED) {
			logger.Error().Err(result).Msgf("failed to send event to %s", s.Endpoint)
			err = fmt.Errorf("%w", result)
		} else if !cloudevents.IsACK(result) {
			logger.Warn().Err(result).Msgf("event to %s was not acknowledged", s.Endpoint)
		}
	}

	return err
}

type SubscriberConfig struct {
	Endpoint string `yaml:"endpoint"`
	// Severities limits the subscriber to alerts of the listed severities. Empty means all.
	Severities []string `yaml:"severities"`
	// Metrics limits the subscriber to alerts on the listed metrics. Empty means all.
	Metrics []string `yaml:"metrics"`
}

func (s SubscriberConfig) accepts(alert types.Alert) bool {
	if len(s.Severities) > 0 && !lo.Contains(s.Severities, string(alert.Severity)) {
		return false
	}
	return len(s.Metrics) == 0 || lo.Contains(s.Metrics, string(alert.Metric))
}

type Notification struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name"`
	Type        string             `yaml:"type"`
	Subscribers []SubscriberConfig `yaml:"subscribers"`
}

type Config struct {
	Notifications []Notification `yaml:"notifications"`
}

func LoadConfiguration(data io.Reader) (*Config, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := Config{}
	if err := yaml.Unmarshal(buf, &cfg); err == nil {
		return &cfg, nil
	} else {
		return nil, err
	}
}
