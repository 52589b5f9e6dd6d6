package optimizer

import "time"

// Snapshot holds campaign metrics for one entity over one time window.
// A metric the platform did not report is an absent key, never a zero:
// "no data" and "measured zero" are different facts and the evaluator
// treats them differently.
type Snapshot map[Metric]float64

// Value looks up a metric. The second return is false when the metric
// was not reported for the window.
func (s Snapshot) Value(m Metric) (float64, bool) {
	if s == nil {
		return 0, false
	}
	v, ok := s[m]
	return v, ok
}

// Window scopes an insights request. Either a named preset understood by the
// ads platform ("last_7d", "maximum", ...) or an explicit start/stop range.
type Window struct {
	Preset string
	Since  time.Time
	Until  time.Time
}

// LastNDays date presets accepted by the insights endpoint.
const (
	PresetToday     = "today"
	PresetYesterday = "yesterday"
	PresetLast7d    = "last_7d"
	PresetLast14d   = "last_14d"
	PresetLast30d   = "last_30d"
	PresetLast90d   = "last_90d"
	PresetMaximum   = "maximum"
)
