package database

import (
	"time"

	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"gorm.io/datatypes"
)

type Device struct {
	ID        uint   `gorm:"primaryKey"`
	DeviceID  string `gorm:"uniqueIndex"`
	SubjectID string `gorm:"index"`
	Name      string
	Status    string `gorm:"index"`
	LastSeen  time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (d Device) Into() types.Device {
	return types.Device{
		DeviceID:  d.DeviceID,
		SubjectID: d.SubjectID,
		Name:      d.Name,
		Status:    types.DeviceStatus(d.Status),
		LastSeen:  d.LastSeen,
	}
}

// Reading is one composite row per ingestion event.
type Reading struct {
	ID         uint `gorm:"primaryKey"`
	DeviceID   uint `gorm:"index"`
	Device     Device
	SubjectID  string    `gorm:"index"`
	ObservedAt time.Time `gorm:"index"`
	Vitals     datatypes.JSON
	Payload    datatypes.JSON
}

type AlertRecord struct {
	ID          uint   `gorm:"primaryKey"`
	AlertID     string `gorm:"uniqueIndex"`
	SubjectID   string `gorm:"index"`
	DeviceID    string
	Severity    string
	Metric      string
	Value       float64
	Threshold   float64
	Direction   string
	Message     string
	GeneratedAt time.Time `gorm:"index"`
}

func newAlertRecord(a types.Alert) AlertRecord {
	return AlertRecord{
		AlertID:     a.ID,
		SubjectID:   a.SubjectID,
		DeviceID:    a.DeviceID,
		Severity:    string(a.Severity),
		Metric:      string(a.Metric),
		Value:       a.Value,
		Threshold:   a.Threshold,
		Direction:   string(a.Direction),
		Message:     a.Message,
		GeneratedAt: a.Timestamp.UTC(),
	}
}

func (a AlertRecord) Into() types.Alert {
	return types.Alert{
		ID:        a.AlertID,
		SubjectID: a.SubjectID,
		DeviceID:  a.DeviceID,
		Severity:  types.Severity(a.Severity),
		Metric:    types.Metric(a.Metric),
		Value:     a.Value,
		Threshold: a.Threshold,
		Direction: types.Direction(a.Direction),
		Message:   a.Message,
		Timestamp: a.GeneratedAt,
	}
}
