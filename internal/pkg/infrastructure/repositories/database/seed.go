package database

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

// Seed reads devices from a semicolon separated file with the header
// deviceID;subjectID;name;status and stores the ones not already known.
func Seed(ctx context.Context, repo DeviceRepository, reader io.Reader) error {
	r := csv.NewReader(reader)
	r.Comma = ';'

	rows, err := r.ReadAll()
	if err != nil {
		return err
	}

	records, err := getRecordsFromRows(rows)
	if err != nil {
		return err
	}

	log := logging.GetFromContext(ctx)
	log.Info().Msgf("loaded %d devices from file", len(records))

	for _, device := range records {
		_, err := repo.GetDeviceByDeviceID(ctx, device.DeviceID)
		if errors.Is(err, ErrDeviceNotFound) {
			err := repo.Save(ctx, device)
			if err != nil {
				log.Error().Err(err).Str("device_id", device.DeviceID).Msg("could not seed device")
			}
		} else if err != nil {
			log.Error().Err(err).Str("device_id", device.DeviceID).Msg("unable to check if device exists")
		}
	}

	return nil
}

func newDeviceRecord(r []string) (types.Device, error) {
	if len(r) < 3 {
		return types.Device{}, fmt.Errorf("expected at least 3 columns, got %d", len(r))
	}

	d := types.Device{
		DeviceID:  strings.ToLower(strings.TrimSpace(r[0])),
		SubjectID: strings.TrimSpace(r[1]),
		Name:      strings.TrimSpace(r[2]),
		Status:    types.DeviceActive,
	}

	if len(r) > 3 && strings.TrimSpace(r[3]) != "" {
		d.Status = types.DeviceStatus(strings.ToLower(strings.TrimSpace(r[3])))
	}

	if d.DeviceID == "" || d.SubjectID == "" {
		return types.Device{}, fmt.Errorf("row with device %q is missing device or subject id", d.DeviceID)
	}

	if d.Status != types.DeviceActive && d.Status != types.DeviceInactive {
		return types.Device{}, fmt.Errorf("row with %s contains invalid status %s", d.DeviceID, d.Status)
	}

	return d, nil
}

func getRecordsFromRows(rows [][]string) ([]types.Device, error) {
	records := []types.Device{}

	for i, row := range rows {
		if i == 0 {
			continue
		}
		rec, err := newDeviceRecord(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		records = append(records, rec)
	}

	return records, nil
}
