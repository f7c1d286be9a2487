package ingestion

import (
	"encoding/json"
	"testing"

	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"github.com/matryer/is"
)

func TestAllShapesNormalizeToTheSameVitals(t *testing.T) {
	is := is.New(t)

	expected := types.Vitals{
		types.HeartRate:              72,
		types.SpO2:                   98,
		types.Temperature:            36.6,
		types.BloodPressureSystolic:  120,
		types.BloodPressureDiastolic: 80,
	}

	shapes := map[string]string{
		"canonical": `{"vitals":{"heart_rate":72,"spo2":98,"temperature":36.6,"blood_pressure_systolic":120,"blood_pressure_diastolic":80}}`,
		"alias":     `{"HR":72,"SPO2":98,"TEMP":36.6,"BPS":120,"BPD":80}`,
		"generic":   `{"pulse":72,"oxygen":98,"temp":36.6,"sys":120,"dia":80}`,
	}

	for name, payload := range shapes {
		vitals, strategy := Normalize(decode(t, payload))
		is.Equal(name, strategy)
		is.Equal(expected, vitals)
	}
}

func TestCanonicalAcceptsLegacyBloodPressureKeys(t *testing.T) {
	is := is.New(t)

	vitals, _ := Normalize(decode(t, `{"vitals":{"bp_systolic":130,"bp_diastolic":85}}`))
	is.Equal(types.Vitals{types.BloodPressureSystolic: 130, types.BloodPressureDiastolic: 85}, vitals)
}

func TestFlatCanonicalKeysAreHandledByAliasStrategy(t *testing.T) {
	is := is.New(t)

	vitals, strategy := Normalize(decode(t, `{"heart_rate":80,"spo2":97,"activity_level":3}`))
	is.Equal("alias", strategy)
	is.Equal(types.Vitals{types.HeartRate: 80, types.SpO2: 97, types.ActivityLevel: 3}, vitals)
}

func TestNullsAreDroppedNotZeroed(t *testing.T) {
	is := is.New(t)

	vitals, _ := Normalize(decode(t, `{"HR":55,"SPO2":null,"TEMP":"n/a"}`))
	is.Equal(types.Vitals{types.HeartRate: 55}, vitals)

	vitals, strategy := Normalize(decode(t, `{"vitals":{"heart_rate":null}}`))
	is.Equal(0, len(vitals))
	is.Equal("", strategy)
}

func TestEmptyCanonicalWrapperFallsThrough(t *testing.T) {
	is := is.New(t)

	vitals, strategy := Normalize(decode(t, `{"vitals":{},"pulse":60}`))
	is.Equal("generic", strategy)
	is.Equal(types.Vitals{types.HeartRate: 60}, vitals)
}

func TestNumericStringsAreAccepted(t *testing.T) {
	is := is.New(t)

	vitals, _ := Normalize(decode(t, `{"HR":"72","TEMP":" 37.1 "}`))
	is.Equal(types.Vitals{types.HeartRate: 72, types.Temperature: 37.1}, vitals)
}

func TestUnknownShapeGivesNothing(t *testing.T) {
	is := is.New(t)

	vitals, strategy := Normalize(decode(t, `{"battery":87,"rssi":-70}`))
	is.Equal(0, len(vitals))
	is.Equal("", strategy)
}

func decode(t *testing.T, s string) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatal(err)
	}
	return m
}
