package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/diwise/messaging-golang/pkg/messaging"
)

// RabbitMQ publishes alert.created events on the messaging topic exchange.
type RabbitMQ struct {
	messenger messaging.MsgContext
}

func NewRabbitMQNotifier(messenger messaging.MsgContext) *RabbitMQ {
	return &RabbitMQ{messenger: messenger}
}

func (r *RabbitMQ) Notify(ctx context.Context, alert types.Alert) error {
	msg := &types.AlertCreated{
		Alert:     alert,
		SubjectID: alert.SubjectID,
		Timestamp: time.Now().UTC(),
	}

	if err := r.messenger.PublishOnTopic(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s for alert %s: %w", msg.TopicName(), alert.ID, err)
	}

	return nil
}
