package ingestion

import (
	"context"
	"encoding/json"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const VitalsReceivedTopic string = "vitals.received"

// NewVitalsReceivedHandler feeds {device_id, data} messages published by
// gateways on the topic exchange into the pipeline.
func NewVitalsReceivedHandler(ingester Ingester) messaging.TopicMessageHandler {
	return func(ctx context.Context, msg amqp.Delivery, logger zerolog.Logger) {
		message := struct {
			DeviceID string          `json:"device_id"`
			Data     json.RawMessage `json:"data"`
		}{}

		err := json.Unmarshal(msg.Body, &message)
		if err != nil {
			logger.Error().Err(err).Msgf("failed to unmarshal message from %s", msg.RoutingKey)
			return
		}

		if message.DeviceID == "" || len(message.Data) == 0 {
			logger.Warn().Msgf("message from %s has no device id or data", msg.RoutingKey)
			return
		}

		logger = logger.With().Str("device_id", message.DeviceID).Logger()

		ctx, cancel := context.WithTimeout(logging.NewContextWithLogger(ctx, logger), Timeout)
		defer cancel()

		result, err := ingester.Ingest(ctx, message.DeviceID, message.Data)
		if err != nil {
			logger.Error().Err(err).Msg("failed to ingest vitals")
			return
		}

		logger.Debug().Int("alerts", len(result.Alerts)).Msgf("%s handled", msg.RoutingKey)
	}
}
