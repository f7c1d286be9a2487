package main

import (
	"context"
	"errors"
	"flag"
	"math/rand"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/diwise/iot-vitals-monitor/pkg/client"
	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const serviceName string = "vitals-simulator"

func main() {
	ctx, logger := logging.NewLogger(context.Background(), serviceName, buildinfo.SourceVersion())

	url := flag.String("url", env.GetVariableOrDefault(logger, "VITALS_URL", "http://localhost:8080"), "base url of the vitals service")
	devices := flag.String("devices", env.GetVariableOrDefault(logger, "DEVICES", "wristband-001,wristband-002,oximeter-017"), "comma separated device ids")
	interval := flag.Duration("interval", 5*time.Second, "time between readings per device")
	flag.Parse()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(*url)
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	ids := strings.Split(*devices, ",")

	for round := 0; ; round++ {
		for _, id := range ids {
			id = strings.TrimSpace(id)

			result, err := send(ctx, c, id, round, rnd)
			if err != nil {
				if errors.Is(err, client.ErrDeviceNotFound) {
					logger.Warn().Str("device_id", id).Msg("device is not registered")
					continue
				}
				logger.Error().Err(err).Str("device_id", id).Msg("failed to send reading")
				continue
			}

			logger.Info().Str("device_id", id).Int("alerts", result.Alerts).Msg("reading sent")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// send rotates between the payload shapes the service understands.
func send(ctx context.Context, c client.VitalsClient, deviceID string, round int, rnd *rand.Rand) (client.IngestResult, error) {
	hr := 55 + rnd.Float64()*75
	spo2 := 88 + rnd.Float64()*12
	temp := 36 + rnd.Float64()*3.5
	sys := 105 + rnd.Float64()*85

	switch round % 3 {
	case 0:
		return c.SendVitals(ctx, deviceID, types.Vitals{
			types.HeartRate:             hr,
			types.SpO2:                  spo2,
			types.Temperature:           temp,
			types.BloodPressureSystolic: sys,
		})
	case 1:
		return c.SendIoT(ctx, deviceID, map[string]any{"HR": hr, "SPO2": spo2, "TEMP": temp, "BPS": sys})
	default:
		return c.SendIoT(ctx, deviceID, map[string]any{"pulse": hr, "oxygen": spo2, "temp": temp, "sys": sys})
	}
}
