package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/diwise/iot-vitals-monitor/internal/pkg/application/ingestion"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const DefaultTopic = "vitals/+/data"

var ErrMissingDeviceID = errors.New("no device id in topic or payload")

type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
}

type MessageHandler func(topic string, payload []byte) error

type Client struct {
	client paho.Client
	cfg    Config
	log    zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn().Err(err).Msg("lost connection to mqtt broker")
	})

	client := paho.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker: %w", token.Error())
	}

	return &Client{
		client: client,
		cfg:    cfg,
		log:    log,
	}, nil
}

func (c *Client) Subscribe(handler MessageHandler) error {
	if token := c.client.Subscribe(c.cfg.Topic, 1, func(_ paho.Client, msg paho.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("failed to handle mqtt message")
		}
	}); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", c.cfg.Topic, token.Error())
	}

	c.log.Info().Str("topic", c.cfg.Topic).Msg("subscribed to mqtt topic")

	return nil
}

func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

type envelope struct {
	DeviceID string          `json:"device_id"`
	Data     json.RawMessage `json:"data"`
}

// NewMessageHandler feeds messages from vitals/{deviceID}/data topics, or
// {device_id, data} envelopes on any topic, into the ingestion pipeline.
func NewMessageHandler(ctx context.Context, ingester ingestion.Ingester) MessageHandler {
	return func(topic string, payload []byte) error {
		deviceID, data := deviceAndData(topic, payload)
		if deviceID == "" {
			return ErrMissingDeviceID
		}

		log := logging.GetFromContext(ctx).With().Str("topic", topic).Logger()
		msgCtx, cancel := context.WithTimeout(logging.NewContextWithLogger(ctx, log), ingestion.Timeout)
		defer cancel()

		result, err := ingester.Ingest(msgCtx, deviceID, data)
		if err != nil {
			return fmt.Errorf("failed to ingest message from %s: %w", deviceID, err)
		}

		log.Debug().Str("device_id", deviceID).Int("alerts", len(result.Alerts)).Msg("ingested mqtt message")

		return nil
	}
}

func deviceAndData(topic string, payload []byte) (string, []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err == nil && env.DeviceID != "" && len(env.Data) > 0 {
		return env.DeviceID, env.Data
	}

	segments := strings.Split(topic, "/")
	if len(segments) >= 3 && segments[1] != "" && segments[1] != "+" {
		return segments[1], payload
	}

	return "", payload
}
