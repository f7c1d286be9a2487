package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/matryer/is"
)

func TestTelegramNotifier(t *testing.T) {
	is := is.New(t)

	var path string
	var body map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := NewTelegramNotifier(TelegramConfig{APIURL: server.URL, BotToken: "token", ChatID: "1234"})

	err := n.Notify(context.Background(), testAlert())
	is.NoErr(err)
	is.Equal("/bottoken/sendMessage", path)
	is.Equal("1234", body["chat_id"])
	is.True(strings.Contains(body["text"], "Patient ID:</b> 42"))
}

func TestTelegramNotifierReturnsErrorOnFailure(t *testing.T) {
	is := is.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"ok":false,"description":"Unauthorized"}`))
	}))
	defer server.Close()

	n := NewTelegramNotifier(TelegramConfig{APIURL: server.URL, BotToken: "bad", ChatID: "1"})

	err := n.Notify(context.Background(), testAlert())
	is.True(err != nil)
}

func TestFormatTelegramMessage(t *testing.T) {
	is := is.New(t)

	msg := FormatTelegramMessage(testAlert())
	is.True(strings.HasPrefix(msg, "🚨"))
	is.True(strings.Contains(msg, "<b>Level:</b> CRITICAL"))
	is.True(strings.Contains(msg, "<b>Value:</b> 125 bpm"))
	is.True(strings.Contains(msg, "<b>Time:</b> 2024-03-01 10:00:00"))

	warning := testAlert()
	warning.Severity = types.SeverityWarning
	is.True(strings.HasPrefix(FormatTelegramMessage(warning), "⚠️"))
}

func TestFormatTelegramMessageEscapesHTML(t *testing.T) {
	is := is.New(t)

	alert := testAlert()
	alert.SubjectID = "ward<7>&bed"
	alert.Message = "value < threshold & rising"

	msg := FormatTelegramMessage(alert)
	is.True(strings.Contains(msg, "<b>Patient ID:</b> ward&lt;7&gt;&amp;bed"))
	is.True(strings.Contains(msg, "<b>Message:</b> value &lt; threshold &amp; rising"))
	is.True(!strings.Contains(msg, "ward<7>"))
}

func TestRabbitMQNotifierPublishesAlertCreated(t *testing.T) {
	is := is.New(t)

	messenger := &messaging.MsgContextMock{}
	n := NewRabbitMQNotifier(messenger)

	err := n.Notify(context.Background(), testAlert())
	is.NoErr(err)
	is.Equal(len(messenger.PublishOnTopicCalls()), 1)

	msg := messenger.PublishOnTopicCalls()[0].Message
	is.Equal("alert.created", msg.TopicName())
	is.Equal("application/json", msg.ContentType())

	created, ok := msg.(*types.AlertCreated)
	is.True(ok)
	is.Equal("42", created.SubjectID)
	is.Equal(types.HeartRate, created.Alert.Metric)
}

func TestRabbitMQNotifierReturnsPublishError(t *testing.T) {
	is := is.New(t)

	messenger := &messaging.MsgContextMock{
		PublishOnTopicFunc: func(ctx context.Context, message messaging.TopicMessage) error {
			return errors.New("channel closed")
		},
	}

	err := NewRabbitMQNotifier(messenger).Notify(context.Background(), testAlert())
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "alert.created"))
}

func testAlert() types.Alert {
	ts, _ := time.Parse(time.RFC3339, "2024-03-01T10:00:00Z")
	return types.Alert{
		ID:        "alert-1",
		SubjectID: "42",
		Severity:  types.SeverityCritical,
		Metric:    types.HeartRate,
		Value:     125,
		Threshold: 120,
		Direction: types.DirectionHigh,
		Message:   "Critical: Heart rate 125 bpm (threshold 120, high)",
		Timestamp: ts,
	}
}
