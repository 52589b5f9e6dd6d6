package optimizer

import "fmt"

// Preset names. Each preset is a fixed, read-only rule batch loaded once;
// callers get a fresh copy per evaluation so no process-wide mutable rule
// list ever exists.
const (
	PresetConservative = "conservative"
	PresetBalanced     = "balanced"
	PresetAggressive   = "aggressive"
)

var presets = map[string][]Rule{
	PresetConservative: {
		{Metric: MetricCPC, Condition: GreaterThan, Threshold: 5.0, Action: AdjustBudget(-10)},
		{Metric: MetricCTR, Condition: LessThan, Threshold: 0.5, Action: Notify()},
	},
	PresetBalanced: {
		{Metric: MetricCPC, Condition: GreaterThan, Threshold: 3.0, Action: AdjustBudget(-10)},
		{Metric: MetricCTR, Condition: LessThan, Threshold: 1.0, Action: AdjustBudget(-10)},
		{Metric: MetricCTR, Condition: GreaterThan, Threshold: 3.0, Action: AdjustBudget(10)},
	},
	PresetAggressive: {
		{Metric: MetricCPC, Condition: GreaterThan, Threshold: 2.0, Action: Pause()},
		{Metric: MetricCTR, Condition: LessThan, Threshold: 0.8, Action: Pause()},
		{Metric: MetricCTR, Condition: GreaterThan, Threshold: 3.0, Action: AdjustBudget(20)},
		{Metric: MetricCPM, Condition: GreaterThan, Threshold: 50.0, Action: AdjustBudget(-20)},
	},
}

// PresetNames lists the available presets in escalating order.
func PresetNames() []string {
	return []string{PresetConservative, PresetBalanced, PresetAggressive}
}

// Preset returns a copy of the named rule batch, falling back to balanced
// for unknown names. Use LookupPreset when an unknown name must be an error.
func Preset(name string) []Rule {
	rules, ok := presets[name]
	if !ok {
		rules = presets[PresetBalanced]
	}
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// LookupPreset returns a copy of the named rule batch or an error for
// unknown names.
func LookupPreset(name string) ([]Rule, error) {
	rules, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q (have: conservative, balanced, aggressive)", name)
	}
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out, nil
}
