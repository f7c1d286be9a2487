package ingestion

import (
	"context"
	"testing"

	"github.com/matryer/is"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

func TestVitalsReceivedHandler(t *testing.T) {
	is := is.New(t)

	var hasDeadline bool
	ingester := &IngesterMock{
		IngestFunc: func(ctx context.Context, deviceID string, payload []byte) (Result, error) {
			_, hasDeadline = ctx.Deadline()
			return Result{DeviceID: deviceID}, nil
		},
	}

	handler := NewVitalsReceivedHandler(ingester)
	handler(context.Background(), amqp.Delivery{
		RoutingKey: VitalsReceivedTopic,
		Body:       []byte(`{"device_id":"wristband-001","data":{"HR":72,"SPO2":98}}`),
	}, zerolog.Nop())

	calls := ingester.IngestCalls()
	is.Equal(len(calls), 1)
	is.Equal(calls[0].DeviceID, "wristband-001")
	is.Equal(string(calls[0].Payload), `{"HR":72,"SPO2":98}`)
	is.True(hasDeadline)
}

func TestVitalsReceivedHandlerIgnoresBadMessages(t *testing.T) {
	is := is.New(t)

	ingester := &IngesterMock{
		IngestFunc: func(ctx context.Context, deviceID string, payload []byte) (Result, error) {
			return Result{}, nil
		},
	}

	handler := NewVitalsReceivedHandler(ingester)

	for _, body := range []string{`not json`, `{"data":{"HR":72}}`, `{"device_id":"wristband-001"}`} {
		handler(context.Background(), amqp.Delivery{RoutingKey: VitalsReceivedTopic, Body: []byte(body)}, zerolog.Nop())
	}

	is.Equal(len(ingester.IngestCalls()), 0)
}
