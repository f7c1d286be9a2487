package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func NewDeviceRepository(connect ConnectorFunc) (DeviceRepository, error) {
	impl, err := connect()
	if err != nil {
		return nil, err
	}

	err = impl.AutoMigrate(&Device{}, &Reading{}, &AlertRecord{})
	if err != nil {
		return nil, err
	}

	return &deviceRepository{
		db: impl,
	}, nil
}

//go:generate moq -rm -out devicerepository_mock.go . DeviceRepository

type DeviceRepository interface {
	GetDevices(ctx context.Context, subjectID string) ([]types.Device, error)
	GetDeviceByDeviceID(ctx context.Context, deviceID string) (types.Device, error)
	Save(ctx context.Context, device types.Device) error
	TouchLastSeen(ctx context.Context, deviceID string, timestamp time.Time) error
	MarkInactiveDevices(ctx context.Context, lastSeenBefore time.Time) (int64, error)

	SaveReading(ctx context.Context, deviceID string, vitals types.Vitals, payload []byte, timestamp time.Time) error
	SaveAlert(ctx context.Context, alert types.Alert) error
	GetAlerts(ctx context.Context, subjectID string, since time.Time, limit int) ([]types.Alert, error)
}

var ErrDeviceNotFound = fmt.Errorf("device not found")
var ErrRepositoryError = fmt.Errorf("could not fetch data from repository")

type deviceRepository struct {
	db *gorm.DB
}

func (d *deviceRepository) GetDevices(ctx context.Context, subjectID string) ([]types.Device, error) {
	var devices []Device

	result := d.db.WithContext(ctx).Where(&Device{SubjectID: subjectID}).Order("device_id").Find(&devices)
	if result.Error != nil {
		return nil, result.Error
	}

	mapped := make([]types.Device, 0, len(devices))
	for _, device := range devices {
		mapped = append(mapped, device.Into())
	}

	return mapped, nil
}

func (d *deviceRepository) GetDeviceByDeviceID(ctx context.Context, deviceID string) (types.Device, error) {
	device, err := d.getDevice(ctx, deviceID)
	if err != nil {
		return types.Device{}, err
	}
	return device.Into(), nil
}

func (d *deviceRepository) getDevice(ctx context.Context, deviceID string) (Device, error) {
	logger := logging.GetFromContext(ctx)

	var device = Device{}
	result := d.db.WithContext(ctx).Where(&Device{DeviceID: strings.ToLower(deviceID)}).First(&device)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return Device{}, ErrDeviceNotFound
		}

		logger.Error().Err(result.Error).Msg("gorm error")

		return Device{}, ErrRepositoryError
	}

	return device, nil
}

func (d *deviceRepository) Save(ctx context.Context, device types.Device) error {
	status := device.Status
	if status == "" {
		status = types.DeviceActive
	}

	dbDevice := Device{
		DeviceID:  strings.ToLower(device.DeviceID),
		SubjectID: device.SubjectID,
		Name:      device.Name,
		Status:    string(status),
		LastSeen:  device.LastSeen,
	}

	result := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"subject_id", "name", "status", "updated_at"}),
	}).Create(&dbDevice)

	return result.Error
}

// TouchLastSeen records that the device reported at timestamp. A silent device becomes active again.
func (d *deviceRepository) TouchLastSeen(ctx context.Context, deviceID string, timestamp time.Time) error {
	result := d.db.WithContext(ctx).Model(&Device{}).
		Where("device_id = ?", strings.ToLower(deviceID)).
		Updates(map[string]any{
			"last_seen": timestamp.UTC(),
			"status":    gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", string(types.DeviceSilent), string(types.DeviceActive)),
		})

	if result.Error != nil {
		return fmt.Errorf("could not update last seen for %s: %w", deviceID, result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// MarkInactiveDevices marks active devices that have reported, but not since lastSeenBefore, as silent.
// Devices that never reported are left alone.
func (d *deviceRepository) MarkInactiveDevices(ctx context.Context, lastSeenBefore time.Time) (int64, error) {
	result := d.db.WithContext(ctx).Model(&Device{}).
		Where("status = ? AND last_seen IS NOT NULL AND last_seen > ? AND last_seen < ?", string(types.DeviceActive), time.Time{}, lastSeenBefore.UTC()).
		Update("status", string(types.DeviceSilent))

	return result.RowsAffected, result.Error
}

func (d *deviceRepository) SaveReading(ctx context.Context, deviceID string, vitals types.Vitals, payload []byte, timestamp time.Time) error {
	device, err := d.getDevice(ctx, deviceID)
	if err != nil {
		return err
	}

	v, err := json.Marshal(vitals)
	if err != nil {
		return err
	}

	if !json.Valid(payload) {
		payload = []byte("null")
	}

	reading := Reading{
		DeviceID:   device.ID,
		SubjectID:  device.SubjectID,
		ObservedAt: timestamp.UTC(),
		Vitals:     datatypes.JSON(v),
		Payload:    datatypes.JSON(payload),
	}

	return d.db.WithContext(ctx).Omit(clause.Associations).Create(&reading).Error
}

func (d *deviceRepository) SaveAlert(ctx context.Context, alert types.Alert) error {
	record := newAlertRecord(alert)
	return d.db.WithContext(ctx).Create(&record).Error
}

func (d *deviceRepository) GetAlerts(ctx context.Context, subjectID string, since time.Time, limit int) ([]types.Alert, error) {
	var records []AlertRecord

	result := d.db.WithContext(ctx).
		Where("subject_id = ? AND generated_at >= ?", subjectID, since.UTC()).
		Order("generated_at desc").
		Limit(limit).
		Find(&records)

	if result.Error != nil {
		return nil, result.Error
	}

	alerts := make([]types.Alert, 0, len(records))
	for _, r := range records {
		alerts = append(alerts, r.Into())
	}

	return alerts, nil
}
