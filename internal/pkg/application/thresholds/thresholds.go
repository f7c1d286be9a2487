package thresholds

import (
	"fmt"
	"io"
	"math"

	"github.com/diwise/iot-vitals-monitor/pkg/types"
	"gopkg.in/yaml.v2"
)

// Spec holds the optional boundaries for one metric. A nil boundary is never checked.
type Spec struct {
	CriticalHigh *float64 `yaml:"critical_high"`
	CriticalLow  *float64 `yaml:"critical_low"`
	High         *float64 `yaml:"high"`
	Low          *float64 `yaml:"low"`
}

type Table map[types.Metric]Spec

func f(v float64) *float64 { return &v }

func DefaultTable() Table {
	return Table{
		types.HeartRate:             {Low: f(50), High: f(100), CriticalHigh: f(120)},
		types.SpO2:                  {CriticalLow: f(90), Low: f(95)},
		types.Temperature:           {High: f(37.5), CriticalHigh: f(39.0)},
		types.BloodPressureSystolic: {High: f(140), CriticalHigh: f(180)},
	}
}

type Candidate struct {
	Metric    types.Metric
	Value     float64
	Threshold float64
	Severity  types.Severity
	Direction types.Direction
}

func (c Candidate) Message() string {
	level := "Warning"
	if c.Severity == types.SeverityCritical {
		level = "Critical"
	}

	value := fmt.Sprintf("%g", c.Value)
	if unit := c.Metric.Unit(); unit != "" {
		value += " " + unit
	}

	return fmt.Sprintf("%s: %s %s (threshold %g, %s)", level, c.Metric.Label(), value, c.Threshold, c.Direction)
}

type Evaluator struct {
	table Table
}

func NewEvaluator(table Table) *Evaluator {
	t := make(Table, len(table))
	for m, s := range table {
		t[m] = s
	}
	return &Evaluator{table: t}
}

type check struct {
	bound     func(Spec) *float64
	breached  func(value, bound float64) bool
	severity  types.Severity
	direction types.Direction
}

var above = func(v, b float64) bool { return v >= b }
var below = func(v, b float64) bool { return v <= b }

// checks are evaluated in priority order, first match wins
var checks = []check{
	{func(s Spec) *float64 { return s.CriticalHigh }, above, types.SeverityCritical, types.DirectionHigh},
	{func(s Spec) *float64 { return s.CriticalLow }, below, types.SeverityCritical, types.DirectionLow},
	{func(s Spec) *float64 { return s.High }, above, types.SeverityWarning, types.DirectionHigh},
	{func(s Spec) *float64 { return s.Low }, below, types.SeverityWarning, types.DirectionLow},
}

// Evaluate returns at most one candidate for the metric.
func (e *Evaluator) Evaluate(metric types.Metric, value float64) []Candidate {
	spec, ok := e.table[metric]
	if !ok || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}

	for _, c := range checks {
		bound := c.bound(spec)
		if bound == nil {
			continue
		}

		if c.breached(value, *bound) {
			return []Candidate{{
				Metric:    metric,
				Value:     value,
				Threshold: *bound,
				Severity:  c.severity,
				Direction: c.direction,
			}}
		}
	}

	return nil
}

type Config struct {
	Thresholds map[string]Spec `yaml:"thresholds"`
}

// LoadConfiguration reads a thresholds section and merges it over the defaults.
// Metrics present in the file replace the default spec for that metric entirely.
func LoadConfiguration(data io.Reader) (Table, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := Config{}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, err
	}

	table := DefaultTable()

	for name, spec := range cfg.Thresholds {
		metric, ok := types.ParseMetric(name)
		if !ok {
			return nil, fmt.Errorf("unknown metric %q in thresholds", name)
		}
		table[metric] = spec
	}

	return table, nil
}
