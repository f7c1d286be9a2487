package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/diwise/iot-vitals-monitor/internal/pkg/application/alerts"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/application/thresholds"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/infrastructure/timeseries"
	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

var ErrDeviceNotFound = database.ErrDeviceNotFound
var ErrNoVitalData = fmt.Errorf("no vital data in payload")
var ErrTransientStore = fmt.Errorf("store temporarily unavailable")

// Timeout bounds a single ingestion from any device facing source.
const Timeout = 10 * time.Second

var tracer = otel.Tracer("iot-vitals-monitor/ingestion")

type DeviceStore interface {
	GetDeviceByDeviceID(ctx context.Context, deviceID string) (types.Device, error)
	TouchLastSeen(ctx context.Context, deviceID string, timestamp time.Time) error
	SaveReading(ctx context.Context, deviceID string, vitals types.Vitals, payload []byte, timestamp time.Time) error
	SaveAlert(ctx context.Context, alert types.Alert) error
}

type Evaluator interface {
	Evaluate(metric types.Metric, value float64) []thresholds.Candidate
}

type Broadcaster interface {
	SendToSubject(ctx context.Context, subject string, message any) (int, error)
}

//go:generate moq -rm -out ingestion_mock.go . Ingester

type Ingester interface {
	Ingest(ctx context.Context, deviceID string, payload []byte) (Result, error)
}

type Result struct {
	DeviceID  string        `json:"device_id"`
	SubjectID string        `json:"-"`
	Strategy  string        `json:"-"`
	Vitals    types.Vitals  `json:"vitals"`
	Alerts    []types.Alert `json:"alerts"`
	Timestamp time.Time     `json:"timestamp"`
}

type pipeline struct {
	devices     DeviceStore
	series      timeseries.Store
	evaluator   Evaluator
	sink        alerts.Sink
	broadcaster Broadcaster
	now         func() time.Time
}

func New(devices DeviceStore, series timeseries.Store, evaluator Evaluator, sink alerts.Sink, broadcaster Broadcaster) Ingester {
	return &pipeline{
		devices:     devices,
		series:      series,
		evaluator:   evaluator,
		sink:        sink,
		broadcaster: broadcaster,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (p *pipeline) Ingest(ctx context.Context, deviceID string, payload []byte) (Result, error) {
	var err error

	ctx, span := tracer.Start(ctx, "ingest")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	log := logging.GetFromContext(ctx).With().Str("device_id", deviceID).Logger()
	ctx = logging.NewContextWithLogger(ctx, log)

	device, err := p.devices.GetDeviceByDeviceID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, database.ErrDeviceNotFound) {
			log.Info().Msg("ingestion from unknown device")
			err = ErrDeviceNotFound
			return Result{}, err
		}
		err = fmt.Errorf("%w: could not look up device: %w", ErrTransientStore, err)
		return Result{}, err
	}

	if device.Status == types.DeviceInactive {
		log.Info().Msg("ingestion from inactive device")
		err = ErrDeviceNotFound
		return Result{}, err
	}

	subject := device.SubjectID
	log = log.With().Str("subject_id", subject).Logger()
	ctx = logging.NewContextWithLogger(ctx, log)

	vitals, strategy := Normalize(decodePayload(payload))
	now := p.now()

	if len(vitals) == 0 {
		if terr := p.devices.TouchLastSeen(ctx, device.DeviceID, now); terr != nil {
			log.Error().Err(terr).Msg("could not update last seen")
		}
		err = ErrNoVitalData
		return Result{}, err
	}

	log.Debug().Str("strategy", strategy).Int("metrics", len(vitals)).Msg("payload normalized")

	err = p.devices.SaveReading(ctx, device.DeviceID, vitals, payload, now)
	if err != nil {
		err = fmt.Errorf("%w: could not persist reading: %w", ErrTransientStore, err)
		return Result{}, err
	}

	err = p.devices.TouchLastSeen(ctx, device.DeviceID, now)
	if err != nil {
		err = fmt.Errorf("%w: could not update last seen: %w", ErrTransientStore, err)
		return Result{}, err
	}

	for _, metric := range types.Metrics {
		value, ok := vitals[metric]
		if !ok {
			continue
		}

		err = p.series.Append(ctx, subject, metric, types.Entry{Value: value, Timestamp: now, DeviceID: device.DeviceID})
		if err != nil {
			err = fmt.Errorf("%w: could not append %s: %w", ErrTransientStore, metric, err)
			return Result{}, err
		}
	}

	generated := p.evaluate(ctx, device, vitals, now)

	p.broadcast(ctx, device, vitals, generated, now)

	return Result{
		DeviceID:  device.DeviceID,
		SubjectID: subject,
		Strategy:  strategy,
		Vitals:    vitals,
		Alerts:    generated,
		Timestamp: now,
	}, nil
}

func (p *pipeline) evaluate(ctx context.Context, device types.Device, vitals types.Vitals, now time.Time) []types.Alert {
	log := logging.GetFromContext(ctx)

	generated := []types.Alert{}

	for _, metric := range types.Metrics {
		value, ok := vitals[metric]
		if !ok {
			continue
		}

		for _, c := range p.evaluator.Evaluate(metric, value) {
			alert := types.Alert{
				ID:        uuid.New().String(),
				SubjectID: device.SubjectID,
				DeviceID:  device.DeviceID,
				Severity:  c.Severity,
				Metric:    c.Metric,
				Value:     c.Value,
				Threshold: c.Threshold,
				Direction: c.Direction,
				Message:   c.Message(),
				Timestamp: now,
			}

			log.Info().Str("metric", string(metric)).Str("severity", string(alert.Severity)).Msg(alert.Message)

			if err := p.devices.SaveAlert(ctx, alert); err != nil {
				log.Error().Err(err).Str("alert_id", alert.ID).Msg("could not store alert audit record")
			}

			if err := p.sink.Record(ctx, device.SubjectID, alert); err != nil {
				log.Error().Err(err).Str("alert_id", alert.ID).Msg("could not record alert")
			}

			p.sink.Notify(ctx, device.SubjectID, alert)

			generated = append(generated, alert)
		}
	}

	return generated
}

func (p *pipeline) broadcast(ctx context.Context, device types.Device, vitals types.Vitals, generated []types.Alert, now time.Time) {
	log := logging.GetFromContext(ctx)

	if _, err := p.broadcaster.SendToSubject(ctx, device.SubjectID, types.NewVitalUpdate(device.DeviceID, vitals, now)); err != nil {
		log.Error().Err(err).Msg("could not broadcast vital update")
	}

	for _, a := range generated {
		if _, err := p.broadcaster.SendToSubject(ctx, device.SubjectID, types.NewAlertMessage(a)); err != nil {
			log.Error().Err(err).Str("alert_id", a.ID).Msg("could not broadcast alert")
		}
	}
}

func decodePayload(payload []byte) map[string]any {
	m := map[string]any{}

	d := json.NewDecoder(bytes.NewReader(payload))
	d.UseNumber()

	if err := d.Decode(&m); err != nil {
		return map[string]any{}
	}

	return m
}
