package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/diwise/iot-vitals-monitor/internal/pkg/application/alerts"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/application/dashboard"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/application/ingestion"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/infrastructure/timeseries"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/presentation/api/auth"
	"github.com/diwise/iot-vitals-monitor/internal/pkg/presentation/live"
	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("iot-vitals-monitor/api")

const (
	maxHistoryPoints = 100
	maxHistoryHours  = 24
	defaultAlerts    = 20
	maxAlerts        = 100
)

func RegisterHandlers(ctx context.Context, router *chi.Mux, policies io.Reader, validator auth.TokenValidator, ingester ingestion.Ingester, series timeseries.Store, sink alerts.Sink, dash dashboard.Aggregator, registry *live.Registry, repo database.DeviceRepository) (*chi.Mux, error) {

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	log := logging.GetFromContext(ctx)

	authenticator, err := auth.NewAuthenticator(ctx, validator, policies)
	if err != nil {
		return nil, fmt.Errorf("failed to create api authenticator: %w", err)
	}

	ws := live.NewWebsocketHandler(ctx, registry)
	router.Get("/ws", ws)
	router.Get("/ws/{connectionID}", ws)

	router.Route("/api/v0", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(ingestion.Timeout))

			r.Post("/vitals/iot", ingestIoTHandler(log, ingester))
			r.Post("/vitals", ingestVitalsHandler(log, ingester))
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticator.RequireAccess())

			r.Get("/vitals/latest", getLatestHandler(log, series))
			r.Get("/vitals/history/{metric}", getHistoryHandler(log, series))
			r.Get("/vitals/alerts", getAlertsHandler(log, sink))
			r.Get("/vitals/alerts/history", getAlertHistoryHandler(log, repo))
			r.Get("/vitals/dashboard", getDashboardHandler(log, dash))

			r.Get("/subjects/{subjectID}/dashboard", getDashboardHandler(log, dash))
			r.Get("/subjects/{subjectID}/history/{metric}", getHistoryHandler(log, series))

			r.Get("/devices", getDevicesHandler(log, repo))
			r.Get("/connections", getConnectionsHandler(registry))
		})
	})

	return router, nil
}

func ingestIoTHandler(log zerolog.Logger, ingester ingestion.Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "ingest-iot")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		var req iotRequest
		if err = json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" {
			requestLogger.Info().Err(err).Msg("invalid ingestion payload")
			writeError(w, http.StatusBadRequest, "invalid_payload")
			return
		}

		err = ingest(ctx, w, ingester, req.DeviceID, req.Data)
	}
}

// ingestVitalsHandler wraps already structured readings in the canonical shape and feeds them through the same pipeline.
func ingestVitalsHandler(log zerolog.Logger, ingester ingestion.Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "ingest-vitals")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		var req vitalsRequest
		if err = json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" {
			requestLogger.Info().Err(err).Msg("invalid vitals payload")
			writeError(w, http.StatusBadRequest, "invalid_payload")
			return
		}

		payload, _ := json.Marshal(map[string]json.RawMessage{"vitals": req.Vitals})
		if len(req.Vitals) == 0 {
			payload = nil
		}

		err = ingest(ctx, w, ingester, req.DeviceID, payload)
	}
}

func ingest(ctx context.Context, w http.ResponseWriter, ingester ingestion.Ingester, deviceID string, data []byte) error {
	log := logging.GetFromContext(ctx)

	if len(data) == 0 {
		data = []byte("{}")
	}

	result, err := ingester.Ingest(ctx, deviceID, data)
	if err != nil {
		switch {
		case errors.Is(err, ingestion.ErrDeviceNotFound):
			writeError(w, http.StatusNotFound, "device_not_found")
		case errors.Is(err, ingestion.ErrNoVitalData):
			writeError(w, http.StatusBadRequest, "no_vital_data")
		default:
			log.Error().Err(err).Msg("ingestion failed")
			writeError(w, http.StatusInternalServerError, "internal_error")
		}
		return err
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		Status:    "success",
		Timestamp: result.Timestamp,
		Vitals:    result.Vitals,
		Alerts:    len(result.Alerts),
	})

	return nil
}

func getLatestHandler(log zerolog.Logger, series timeseries.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "get-latest")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		subject := subjectFromRequest(r)
		latest := map[types.Metric]types.Entry{}

		for _, m := range types.TrackedMetrics {
			entry, ok, qerr := series.QueryLatest(ctx, subject, m)
			if qerr != nil {
				err = qerr
				requestLogger.Error().Err(err).Msg("could not query latest vitals")
				writeError(w, http.StatusInternalServerError, "internal_error")
				return
			}
			if ok {
				latest[m] = entry
			}
		}

		writeJSON(w, http.StatusOK, latest)
	}
}

func getHistoryHandler(log zerolog.Logger, series timeseries.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "get-history")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		metric, ok := types.ParseMetric(chi.URLParam(r, "metric"))
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown_metric")
			return
		}

		hours := queryInt(r, "hours", maxHistoryHours, 1, maxHistoryHours)
		since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

		entries, err := series.QueryRange(ctx, subjectFromRequest(r), metric, since)
		if err != nil {
			requestLogger.Error().Err(err).Msg("could not query history")
			writeError(w, http.StatusInternalServerError, "internal_error")
			return
		}

		writeJSON(w, http.StatusOK, toPoints(entries, maxHistoryPoints))
	}
}

func getAlertsHandler(log zerolog.Logger, sink alerts.Sink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "get-alerts")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		limit := queryInt(r, "limit", defaultAlerts, 1, maxAlerts)

		recent, err := sink.Recent(ctx, subjectFromRequest(r), limit)
		if err != nil {
			requestLogger.Error().Err(err).Msg("could not read recent alerts")
			writeError(w, http.StatusInternalServerError, "internal_error")
			return
		}

		if recent == nil {
			recent = []types.Alert{}
		}

		writeJSON(w, http.StatusOK, recent)
	}
}

// getAlertHistoryHandler reads the durable alert audit trail rather than the capped recent list.
func getAlertHistoryHandler(log zerolog.Logger, repo database.DeviceRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "get-alert-history")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		hours := queryInt(r, "hours", 24, 1, 24*30)
		limit := queryInt(r, "limit", maxAlerts, 1, 1000)
		since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

		history, err := repo.GetAlerts(ctx, subjectFromRequest(r), since, limit)
		if err != nil {
			requestLogger.Error().Err(err).Msg("could not read alert history")
			writeError(w, http.StatusInternalServerError, "internal_error")
			return
		}

		if history == nil {
			history = []types.Alert{}
		}

		writeJSON(w, http.StatusOK, history)
	}
}

func getDashboardHandler(log zerolog.Logger, dash dashboard.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "get-dashboard")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		d, err := dash.Get(ctx, subjectFromRequest(r))
		if err != nil {
			requestLogger.Error().Err(err).Msg("could not compute dashboard")
			writeError(w, http.StatusInternalServerError, "internal_error")
			return
		}

		writeJSON(w, http.StatusOK, d)
	}
}

func getDevicesHandler(log zerolog.Logger, repo database.DeviceRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "get-devices")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		devices, err := repo.GetDevices(ctx, subjectFromRequest(r))
		if err != nil {
			requestLogger.Error().Err(err).Msg("unable to fetch devices")
			writeError(w, http.StatusInternalServerError, "internal_error")
			return
		}

		if devices == nil {
			devices = []types.Device{}
		}

		writeJSON(w, http.StatusOK, devices)
	}
}

func getConnectionsHandler(registry *live.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, registry.Stats())
	}
}

// subjectFromRequest returns the subject named in the path, or the caller when there is none.
func subjectFromRequest(r *http.Request) string {
	if subject := chi.URLParam(r, "subjectID"); subject != "" {
		return subject
	}

	claims, _ := auth.GetClaimsFromContext(r.Context())
	return claims.Subject
}

func queryInt(r *http.Request, name string, def, min, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}

	if v < min {
		return min
	}
	if v > max {
		return max
	}

	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func writeError(w http.ResponseWriter, status int, reason string) {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(errorResponse{Status: "error", Reason: reason}.Byte())
}
