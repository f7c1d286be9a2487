package database

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/matryer/is"
)

func TestSaveAndGetDevice(t *testing.T) {
	is, ctx, r := testSetupDeviceRepository(t)

	err := r.Save(ctx, types.Device{DeviceID: "PULSE_001", SubjectID: "42", Name: "wrist"})
	is.NoErr(err)

	d, err := r.GetDeviceByDeviceID(ctx, "pulse_001")
	is.NoErr(err)
	is.Equal("pulse_001", d.DeviceID)
	is.Equal("42", d.SubjectID)
	is.Equal(types.DeviceActive, d.Status)
}

func TestSaveExistingDeviceUpdatesIt(t *testing.T) {
	is, ctx, r := testSetupDeviceRepository(t)

	is.NoErr(r.Save(ctx, types.Device{DeviceID: "dev-1", SubjectID: "1"}))
	is.NoErr(r.Save(ctx, types.Device{DeviceID: "dev-1", SubjectID: "2", Status: types.DeviceInactive}))

	d, err := r.GetDeviceByDeviceID(ctx, "dev-1")
	is.NoErr(err)
	is.Equal("2", d.SubjectID)
	is.Equal(types.DeviceInactive, d.Status)
}

func TestGetUnknownDeviceReturnsErrDeviceNotFound(t *testing.T) {
	is, ctx, r := testSetupDeviceRepository(t)

	_, err := r.GetDeviceByDeviceID(ctx, "ghost_999")
	is.Equal(err, ErrDeviceNotFound)
}

func TestGetDevicesForSubject(t *testing.T) {
	is, ctx, r := testSetupDeviceRepository(t)

	is.NoErr(r.Save(ctx, types.Device{DeviceID: "dev-1", SubjectID: "1"}))
	is.NoErr(r.Save(ctx, types.Device{DeviceID: "dev-2", SubjectID: "1"}))
	is.NoErr(r.Save(ctx, types.Device{DeviceID: "dev-3", SubjectID: "2"}))

	devices, err := r.GetDevices(ctx, "1")
	is.NoErr(err)
	is.Equal(2, len(devices))
	is.Equal("dev-1", devices[0].DeviceID)
}

func TestTouchLastSeen(t *testing.T) {
	is, ctx, r := testSetupDeviceRepository(t)

	is.NoErr(r.Save(ctx, types.Device{DeviceID: "dev-1", SubjectID: "1"}))

	now := time.Now().UTC().Truncate(time.Second)
	is.NoErr(r.TouchLastSeen(ctx, "dev-1", now))

	d, err := r.GetDeviceByDeviceID(ctx, "dev-1")
	is.NoErr(err)
	is.True(d.LastSeen.Equal(now))

	err = r.TouchLastSeen(ctx, "nosuchdevice", now)
	is.Equal(err, ErrDeviceNotFound)
}

func TestMarkInactiveDevices(t *testing.T) {
	is, ctx, r := testSetupDeviceRepository(t)

	now := time.Now().UTC()

	is.NoErr(r.Save(ctx, types.Device{DeviceID: "stale", SubjectID: "1"}))
	is.NoErr(r.Save(ctx, types.Device{DeviceID: "fresh", SubjectID: "1"}))
	is.NoErr(r.TouchLastSeen(ctx, "stale", now.Add(-2*time.Hour)))
	is.NoErr(r.TouchLastSeen(ctx, "fresh", now))

	n, err := r.MarkInactiveDevices(ctx, now.Add(-1*time.Hour))
	is.NoErr(err)
	is.Equal(int64(1), n)

	stale, _ := r.GetDeviceByDeviceID(ctx, "stale")
	is.Equal(types.DeviceSilent, stale.Status)

	fresh, _ := r.GetDeviceByDeviceID(ctx, "fresh")
	is.Equal(types.DeviceActive, fresh.Status)
}

func TestMarkInactiveDevicesSkipsDevicesThatNeverReported(t *testing.T) {
	is, ctx, r := testSetupDeviceRepository(t)

	is.NoErr(r.Save(ctx, types.Device{DeviceID: "PULSE_001", SubjectID: "42"}))

	n, err := r.MarkInactiveDevices(ctx, time.Now().UTC().Add(-1*time.Hour))
	is.NoErr(err)
	is.Equal(int64(0), n)

	d, _ := r.GetDeviceByDeviceID(ctx, "pulse_001")
	is.Equal(types.DeviceActive, d.Status)
}

func TestSilentDeviceIsReactivatedByNextReading(t *testing.T) {
	is, ctx, r := testSetupDeviceRepository(t)

	now := time.Now().UTC()

	is.NoErr(r.Save(ctx, types.Device{DeviceID: "dev-1", SubjectID: "42"}))
	is.NoErr(r.TouchLastSeen(ctx, "dev-1", now.Add(-2*time.Hour)))

	n, err := r.MarkInactiveDevices(ctx, now.Add(-1*time.Hour))
	is.NoErr(err)
	is.Equal(int64(1), n)

	is.NoErr(r.TouchLastSeen(ctx, "dev-1", now))

	d, _ := r.GetDeviceByDeviceID(ctx, "dev-1")
	is.Equal(types.DeviceActive, d.Status)
}

func TestTouchLastSeenKeepsDecommissionedDevicesInactive(t *testing.T) {
	is, ctx, r := testSetupDeviceRepository(t)

	is.NoErr(r.Save(ctx, types.Device{DeviceID: "dev-1", SubjectID: "42", Status: types.DeviceInactive}))
	is.NoErr(r.TouchLastSeen(ctx, "dev-1", time.Now().UTC()))

	d, _ := r.GetDeviceByDeviceID(ctx, "dev-1")
	is.Equal(types.DeviceInactive, d.Status)
}

func TestSaveReading(t *testing.T) {
	is, ctx, r := testSetupDeviceRepository(t)

	is.NoErr(r.Save(ctx, types.Device{DeviceID: "dev-1", SubjectID: "42"}))

	err := r.SaveReading(ctx, "dev-1", types.Vitals{types.HeartRate: 72}, []byte(`{"HR":72}`), time.Now())
	is.NoErr(err)

	var readings []Reading
	is.NoErr(r.(*deviceRepository).db.Find(&readings).Error)
	is.Equal(1, len(readings))
	is.Equal("42", readings[0].SubjectID)
	is.Equal(`{"heart_rate":72}`, string(readings[0].Vitals))

	err = r.SaveReading(ctx, "ghost", types.Vitals{types.HeartRate: 72}, nil, time.Now())
	is.Equal(err, ErrDeviceNotFound)
}

func TestSaveAndGetAlerts(t *testing.T) {
	is, ctx, r := testSetupDeviceRepository(t)

	now := time.Now().UTC()

	is.NoErr(r.SaveAlert(ctx, types.Alert{ID: "a1", SubjectID: "42", Severity: types.SeverityWarning, Metric: types.HeartRate, Value: 105, Threshold: 100, Direction: types.DirectionHigh, Timestamp: now.Add(-2 * time.Minute)}))
	is.NoErr(r.SaveAlert(ctx, types.Alert{ID: "a2", SubjectID: "42", Severity: types.SeverityCritical, Metric: types.HeartRate, Value: 125, Threshold: 120, Direction: types.DirectionHigh, Timestamp: now.Add(-1 * time.Minute)}))
	is.NoErr(r.SaveAlert(ctx, types.Alert{ID: "a3", SubjectID: "7", Severity: types.SeverityCritical, Metric: types.SpO2, Value: 85, Threshold: 90, Direction: types.DirectionLow, Timestamp: now}))
	is.NoErr(r.SaveAlert(ctx, types.Alert{ID: "a4", SubjectID: "42", Severity: types.SeverityWarning, Metric: types.Temperature, Value: 37.8, Threshold: 37.5, Direction: types.DirectionHigh, Timestamp: now.Add(-48 * time.Hour)}))

	alerts, err := r.GetAlerts(ctx, "42", now.Add(-24*time.Hour), 10)
	is.NoErr(err)
	is.Equal(2, len(alerts))
	is.Equal("a2", alerts[0].ID) // newest first
	is.Equal(types.SeverityCritical, alerts[0].Severity)
}

func TestSeed(t *testing.T) {
	is, ctx, r := testSetupDeviceRepository(t)

	is.NoErr(Seed(ctx, r, strings.NewReader(devicesCsv)))

	d, err := r.GetDeviceByDeviceID(ctx, "pulse_001")
	is.NoErr(err)
	is.Equal("42", d.SubjectID)

	d, err = r.GetDeviceByDeviceID(ctx, "old_002")
	is.NoErr(err)
	is.Equal(types.DeviceInactive, d.Status)
}

func TestSeedRejectsInvalidStatus(t *testing.T) {
	is, ctx, r := testSetupDeviceRepository(t)

	err := Seed(ctx, r, strings.NewReader("deviceID;subjectID;name;status\ndev;1;name;broken\n"))
	is.True(err != nil)
}

const devicesCsv string = `deviceID;subjectID;name;status
PULSE_001;42;Pulse oximeter;active
old_002;42;Old thermometer;inactive
bp_003;7;Blood pressure cuff;`

func testSetupDeviceRepository(t *testing.T) (*is.I, context.Context, DeviceRepository) {
	is := is.New(t)
	ctx := context.Background()

	r, err := NewDeviceRepository(NewSQLiteConnector(ctx))
	is.NoErr(err)

	return is, ctx, r
}
