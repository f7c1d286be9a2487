package notification

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const DefaultTelegramAPI = "https://api.telegram.org"

type TelegramConfig struct {
	APIURL   string
	BotToken string
	ChatID   string
	Timeout  time.Duration
}

type Telegram struct {
	client *resty.Client
	token  string
	chatID string
}

func NewTelegramNotifier(cfg TelegramConfig) *Telegram {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultTelegramAPI
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetTransport(otelhttp.NewTransport(http.DefaultTransport)).
		SetBaseURL(cfg.APIURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Telegram{
		client: client,
		token:  cfg.BotToken,
		chatID: cfg.ChatID,
	}
}

func (t *Telegram) Notify(ctx context.Context, alert types.Alert) error {
	body := map[string]string{
		"chat_id":    t.chatID,
		"text":       FormatTelegramMessage(alert),
		"parse_mode": "HTML",
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/bot" + t.token + "/sendMessage")

	if err != nil {
		return fmt.Errorf("failed to call telegram api: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("telegram api returned status %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}

// FormatTelegramMessage renders the alert as Telegram HTML. Text fields are escaped.
func FormatTelegramMessage(alert types.Alert) string {
	emoji := "⚠️"
	if alert.Severity == types.SeverityCritical {
		emoji = "🚨"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s <b>Vitals alert</b>\n\n", emoji)
	fmt.Fprintf(&sb, "<b>Patient ID:</b> %s\n", html.EscapeString(alert.SubjectID))
	fmt.Fprintf(&sb, "<b>Level:</b> %s\n", strings.ToUpper(string(alert.Severity)))
	fmt.Fprintf(&sb, "<b>Metric:</b> %s\n", html.EscapeString(alert.Metric.Label()))
	fmt.Fprintf(&sb, "<b>Value:</b> %g %s\n", alert.Value, html.EscapeString(alert.Metric.Unit()))
	fmt.Fprintf(&sb, "<b>Message:</b> %s\n", html.EscapeString(alert.Message))
	fmt.Fprintf(&sb, "<b>Time:</b> %s", alert.Timestamp.UTC().Format("2006-01-02 15:04:05"))

	return sb.String()
}
