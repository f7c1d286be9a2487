package types

import (
	"time"
)

type Metric string

const (
	HeartRate              Metric = "heart_rate"
	SpO2                   Metric = "spo2"
	BloodPressureSystolic  Metric = "blood_pressure_systolic"
	BloodPressureDiastolic Metric = "blood_pressure_diastolic"
	Temperature            Metric = "temperature"
	ActivityLevel          Metric = "activity_level"
)

var Metrics = []Metric{HeartRate, SpO2, BloodPressureSystolic, BloodPressureDiastolic, Temperature, ActivityLevel}

// TrackedMetrics are the metrics summarized on the dashboard.
var TrackedMetrics = []Metric{HeartRate, SpO2, Temperature, BloodPressureSystolic}

func ParseMetric(s string) (Metric, bool) {
	for _, m := range Metrics {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// Label and unit used when rendering alert messages.
func (m Metric) Label() string {
	switch m {
	case HeartRate:
		return "Heart rate"
	case SpO2:
		return "SpO2"
	case BloodPressureSystolic:
		return "Systolic blood pressure"
	case BloodPressureDiastolic:
		return "Diastolic blood pressure"
	case Temperature:
		return "Temperature"
	case ActivityLevel:
		return "Activity level"
	}
	return string(m)
}

func (m Metric) Unit() string {
	switch m {
	case HeartRate:
		return "bpm"
	case SpO2:
		return "%"
	case BloodPressureSystolic, BloodPressureDiastolic:
		return "mmHg"
	case Temperature:
		return "°C"
	}
	return ""
}

// Vitals is the canonical, normalized set of readings from one ingestion.
type Vitals map[Metric]float64

type Entry struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id,omitempty"`
}

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type Direction string

const (
	DirectionHigh Direction = "high"
	DirectionLow  Direction = "low"
)

type Alert struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	DeviceID  string    `json:"device_id,omitempty"`
	Severity  Severity  `json:"severity"`
	Metric    Metric    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Direction Direction `json:"direction"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type DeviceStatus string

const (
	DeviceActive   DeviceStatus = "active"
	DeviceInactive DeviceStatus = "inactive"
	// DeviceSilent is set when an active device stops reporting. Its next reading makes it active again.
	DeviceSilent DeviceStatus = "silent"
)

type Device struct {
	DeviceID  string       `json:"device_id"`
	SubjectID string       `json:"subject_id"`
	Name      string       `json:"name,omitempty"`
	Status    DeviceStatus `json:"status"`
	LastSeen  time.Time    `json:"last_seen"`
}

type Summary struct {
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

type Dashboard struct {
	SubjectID   string             `json:"subject_id"`
	Latest      map[Metric]Entry   `json:"latest"`
	Summary     map[Metric]Summary `json:"summary"`
	AlertCounts map[Severity]int   `json:"alert_counts"`
	AsOf        time.Time          `json:"as_of"`
}

// IngestRequest is the body accepted by the device facing ingestion endpoint.
type IngestRequest struct {
	DeviceID string         `json:"device_id"`
	Data     map[string]any `json:"data"`
}
