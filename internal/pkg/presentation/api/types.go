package api

import (
	"encoding/json"
	"time"

	"github.com/diwise/iot-vitals-monitor/pkg/types"
)

type iotRequest struct {
	DeviceID string          `json:"device_id"`
	Data     json.RawMessage `json:"data"`
}

type vitalsRequest struct {
	DeviceID string          `json:"device_id"`
	Vitals   json.RawMessage `json:"vitals"`
}

type ingestResponse struct {
	Status    string       `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Vitals    types.Vitals `json:"vitals"`
	Alerts    int          `json:"alerts"`
}

type errorResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (r errorResponse) Byte() []byte {
	b, _ := json.Marshal(r)
	return b
}

type point struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

func toPoints(entries []types.Entry, max int) []point {
	if len(entries) > max {
		entries = entries[len(entries)-max:]
	}

	points := make([]point, 0, len(entries))
	for _, e := range entries {
		points = append(points, point{Value: e.Value, Timestamp: e.Timestamp})
	}

	return points
}
