package types

import "time"

type AlertCreated struct {
	Alert     Alert     `json:"alert"`
	SubjectID string    `json:"subject_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (a *AlertCreated) ContentType() string {
	return "application/json"
}
func (a *AlertCreated) TopicName() string {
	return "alert.created"
}

// Messages pushed to live connections.

type VitalUpdate struct {
	Type      string    `json:"type"`
	DeviceID  string    `json:"device_id"`
	Data      Vitals    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

func NewVitalUpdate(deviceID string, vitals Vitals, ts time.Time) VitalUpdate {
	return VitalUpdate{Type: "vital_update", DeviceID: deviceID, Data: vitals, Timestamp: ts}
}

type AlertMessage struct {
	Type  string   `json:"type"`
	Data  Alert    `json:"data"`
	Level Severity `json:"level"`
}

func NewAlertMessage(alert Alert) AlertMessage {
	return AlertMessage{Type: "alert", Data: alert, Level: alert.Severity}
}

type SystemNotice struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSystemNotice(message string) SystemNotice {
	return SystemNotice{Type: "system", Message: message, Timestamp: time.Now().UTC()}
}
