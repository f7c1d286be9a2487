package ingestion

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/diwise/iot-vitals-monitor/pkg/types"
)

// Strategy turns a decoded device payload into canonical vitals. Parse must
// accept any payload and return an empty map when the shape is not its own.
type Strategy struct {
	Name  string
	Parse func(payload map[string]any) types.Vitals
}

type alias struct {
	key    string
	metric types.Metric
}

var canonicalKeys = []alias{
	{"heart_rate", types.HeartRate},
	{"spo2", types.SpO2},
	{"blood_pressure_systolic", types.BloodPressureSystolic},
	{"blood_pressure_diastolic", types.BloodPressureDiastolic},
	{"temperature", types.Temperature},
	{"activity_level", types.ActivityLevel},
	{"bp_systolic", types.BloodPressureSystolic},
	{"bp_diastolic", types.BloodPressureDiastolic},
}

var shortAliasKeys = append([]alias{
	{"HR", types.HeartRate},
	{"SPO2", types.SpO2},
	{"TEMP", types.Temperature},
	{"BPS", types.BloodPressureSystolic},
	{"BPD", types.BloodPressureDiastolic},
}, canonicalKeys...)

var genericKeys = []alias{
	{"pulse", types.HeartRate},
	{"oxygen", types.SpO2},
	{"temp", types.Temperature},
	{"sys", types.BloodPressureSystolic},
	{"dia", types.BloodPressureDiastolic},
	{"activity", types.ActivityLevel},
}

// Strategies are tried in order and the first non empty result is used.
var Strategies = []Strategy{
	{Name: "canonical", Parse: parseCanonical},
	{Name: "alias", Parse: parseWith(shortAliasKeys)},
	{Name: "generic", Parse: parseWith(genericKeys)},
}

func parseCanonical(payload map[string]any) types.Vitals {
	nested, ok := payload["vitals"].(map[string]any)
	if !ok {
		return types.Vitals{}
	}
	return extract(nested, canonicalKeys)
}

func parseWith(keys []alias) func(map[string]any) types.Vitals {
	return func(payload map[string]any) types.Vitals {
		return extract(payload, keys)
	}
}

// extract reads the keys in order, an earlier key wins over a later key for the same metric.
func extract(payload map[string]any, keys []alias) types.Vitals {
	vitals := types.Vitals{}

	for _, k := range keys {
		if _, done := vitals[k.metric]; done {
			continue
		}

		raw, ok := payload[k.key]
		if !ok {
			continue
		}

		if v, ok := toFloat(raw); ok {
			vitals[k.metric] = v
		}
	}

	return vitals
}

// Normalize runs the strategies and returns the vitals together with the name of
// the strategy that produced them.
func Normalize(payload map[string]any) (types.Vitals, string) {
	for _, s := range Strategies {
		if v := s.Parse(payload); len(v) > 0 {
			return v, s.Name
		}
	}
	return types.Vitals{}, ""
}

func toFloat(v any) (float64, bool) {
	var f float64

	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	return f, true
}
