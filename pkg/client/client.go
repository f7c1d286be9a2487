package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrNoVitalData    = errors.New("no vital data")
	ErrRejected       = errors.New("request rejected")
)

type VitalsClient interface {
	SendIoT(ctx context.Context, deviceID string, data map[string]any) (IngestResult, error)
	SendVitals(ctx context.Context, deviceID string, vitals types.Vitals) (IngestResult, error)
}

type IngestResult struct {
	Status    string       `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Vitals    types.Vitals `json:"vitals"`
	Alerts    int          `json:"alerts"`
}

type vitalsClient struct {
	url        string
	httpClient http.Client
}

var tracer = otel.Tracer("iot-vitals-monitor-client")

func New(url string) VitalsClient {
	return &vitalsClient{
		url: strings.TrimSuffix(url, "/"),
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   15 * time.Second,
		},
	}
}

func (c *vitalsClient) SendIoT(ctx context.Context, deviceID string, data map[string]any) (IngestResult, error) {
	var err error
	ctx, span := tracer.Start(ctx, "send-iot")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	body, err := json.Marshal(types.IngestRequest{DeviceID: deviceID, Data: data})
	if err != nil {
		err = fmt.Errorf("failed to marshal request: %w", err)
		return IngestResult{}, err
	}

	result, err := c.post(ctx, "/api/v0/vitals/iot", body)
	return result, err
}

func (c *vitalsClient) SendVitals(ctx context.Context, deviceID string, vitals types.Vitals) (IngestResult, error) {
	var err error
	ctx, span := tracer.Start(ctx, "send-vitals")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	body, err := json.Marshal(map[string]any{"device_id": deviceID, "vitals": vitals})
	if err != nil {
		err = fmt.Errorf("failed to marshal request: %w", err)
		return IngestResult{}, err
	}

	result, err := c.post(ctx, "/api/v0/vitals", body)
	return result, err
}

func (c *vitalsClient) post(ctx context.Context, path string, body []byte) (IngestResult, error) {
	log := logging.GetFromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, bytes.NewReader(body))
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to send vitals: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Reason string `json:"reason"`
		}
		json.Unmarshal(respBody, &e)

		log.Debug().Msgf("request failed with status code %d (%s)", resp.StatusCode, e.Reason)

		switch e.Reason {
		case "device_not_found":
			return IngestResult{}, ErrDeviceNotFound
		case "no_vital_data":
			return IngestResult{}, ErrNoVitalData
		}

		return IngestResult{}, fmt.Errorf("%w: status code %d", ErrRejected, resp.StatusCode)
	}

	result := IngestResult{}
	if err = json.Unmarshal(respBody, &result); err != nil {
		return IngestResult{}, fmt.Errorf("failed to unmarshal response body: %w", err)
	}

	return result, nil
}
