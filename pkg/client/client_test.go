package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/matryer/is"
)

func TestSendIoT(t *testing.T) {
	is := is.New(t)

	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.URL.Path, "/api/v0/vitals/iot")
		is.Equal(r.Method, http.MethodPost)
		is.Equal(r.Header.Get("Content-Type"), "application/json")

		b, _ := io.ReadAll(r.Body)
		is.NoErr(json.Unmarshal(b, &received))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","timestamp":"2024-01-01T00:00:00Z","vitals":{"heart_rate":72},"alerts":0}`))
	}))
	defer server.Close()

	result, err := New(server.URL).SendIoT(context.Background(), "dev-1", map[string]any{"HR": 72})
	is.NoErr(err)
	is.Equal(result.Status, "success")
	is.Equal(result.Vitals[types.HeartRate], 72.0)

	is.Equal(received["device_id"], "dev-1")
	is.Equal(received["data"].(map[string]any)["HR"], 72.0)
}

func TestSendVitals(t *testing.T) {
	is := is.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.URL.Path, "/api/v0/vitals")

		var body struct {
			DeviceID string       `json:"device_id"`
			Vitals   types.Vitals `json:"vitals"`
		}
		is.NoErr(json.NewDecoder(r.Body).Decode(&body))
		is.Equal(body.Vitals[types.SpO2], 97.0)

		w.Write([]byte(`{"status":"success","vitals":{"spo2":97},"alerts":0}`))
	}))
	defer server.Close()

	_, err := New(server.URL+"/").SendVitals(context.Background(), "dev-1", types.Vitals{types.SpO2: 97})
	is.NoErr(err)
}

func TestErrorsAreMappedFromReason(t *testing.T) {
	is := is.New(t)

	_, err := sendTo(t, http.StatusNotFound, "device_not_found")
	is.True(errors.Is(err, ErrDeviceNotFound))

	_, err = sendTo(t, http.StatusBadRequest, "no_vital_data")
	is.True(errors.Is(err, ErrNoVitalData))

	_, err = sendTo(t, http.StatusInternalServerError, "internal_error")
	is.True(errors.Is(err, ErrRejected))
}

func sendTo(t *testing.T, status int, reason string) (IngestResult, error) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(`{"status":"error","reason":"` + reason + `"}`))
	}))
	defer server.Close()

	return New(server.URL).SendIoT(context.Background(), "dev-1", map[string]any{"HR": 72})
}
