package optimizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidRule marks a malformed rule definition. A malformed rule can only
// come from a programming or config defect, so it fails the whole batch.
var ErrInvalidRule = errors.New("invalid optimization rule")

// Metric identifies a campaign performance metric from insights.
type Metric string

const (
	MetricCTR         Metric = "ctr"
	MetricCPC         Metric = "cpc"
	MetricCPM         Metric = "cpm"
	MetricSpend       Metric = "spend"
	MetricClicks      Metric = "clicks"
	MetricReach       Metric = "reach"
	MetricImpressions Metric = "impressions"
)

var validMetrics = map[Metric]bool{
	MetricCTR:         true,
	MetricCPC:         true,
	MetricCPM:         true,
	MetricSpend:       true,
	MetricClicks:      true,
	MetricReach:       true,
	MetricImpressions: true,
}

// LowerIsBetter reports whether a smaller value of the metric is preferable,
// which matters when ranking A/B variants (lower CPC wins, higher CTR wins).
func (m Metric) LowerIsBetter() bool {
	switch m {
	case MetricCPC, MetricCPM, MetricSpend:
		return true
	}
	return false
}

func (m Metric) Valid() bool {
	return validMetrics[m]
}

// ParseMetric validates a user-supplied metric name.
func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown metric %q", s)
	}
	return m, nil
}

// Condition is the comparison applied between a metric value and a threshold.
// Both comparisons are strict: a value exactly equal to the threshold never
// triggers.
type Condition string

const (
	GreaterThan Condition = "greater_than"
	LessThan    Condition = "less_than"
)

func (c Condition) Valid() bool {
	return c == GreaterThan || c == LessThan
}

// ActionKind discriminates the action variants.
type ActionKind string

const (
	ActionNotify       ActionKind = "notify"
	ActionPause        ActionKind = "pause"
	ActionAdjustBudget ActionKind = "adjust_budget"
)

// Action is what happens when a rule triggers. Budget adjustments carry a
// signed percentage delta applied to the current remote budget at execution
// time, never to a cached value.
type Action struct {
	Kind    ActionKind
	Percent int // signed, only meaningful for ActionAdjustBudget
}

func Notify() Action { return Action{Kind: ActionNotify} }

func Pause() Action { return Action{Kind: ActionPause} }

func AdjustBudget(percent int) Action { return Action{Kind: ActionAdjustBudget, Percent: percent} }

func (a Action) Valid() bool {
	switch a.Kind {
	case ActionNotify, ActionPause:
		return a.Percent == 0
	case ActionAdjustBudget:
		return a.Percent != 0 && a.Percent > -100
	}
	return false
}

// String renders the wire form used in presets and stored rule batches, e.g.
// "increase_budget_10pct" or "pause".
func (a Action) String() string {
	switch a.Kind {
	case ActionAdjustBudget:
		if a.Percent < 0 {
			return fmt.Sprintf("decrease_budget_%dpct", -a.Percent)
		}
		return fmt.Sprintf("increase_budget_%dpct", a.Percent)
	default:
		return string(a.Kind)
	}
}

// ParseAction decodes the wire form of an action. Budget actions embed the
// percentage in the tag ("increase_budget_20pct"); parsing happens once here
// so the decision path works with a typed magnitude.
func ParseAction(s string) (Action, error) {
	switch {
	case s == string(ActionNotify):
		return Notify(), nil
	case s == string(ActionPause):
		return Pause(), nil
	case strings.HasPrefix(s, "increase_budget_") && strings.HasSuffix(s, "pct"):
		pct, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(s, "increase_budget_"), "pct"))
		if err != nil || pct <= 0 {
			return Action{}, fmt.Errorf("%w: bad action %q", ErrInvalidRule, s)
		}
		return AdjustBudget(pct), nil
	case strings.HasPrefix(s, "decrease_budget_") && strings.HasSuffix(s, "pct"):
		pct, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(s, "decrease_budget_"), "pct"))
		if err != nil || pct <= 0 || pct >= 100 {
			return Action{}, fmt.Errorf("%w: bad action %q", ErrInvalidRule, s)
		}
		return AdjustBudget(-pct), nil
	}
	return Action{}, fmt.Errorf("%w: unknown action %q", ErrInvalidRule, s)
}

func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Rule is one condition-action pair: if [metric] [condition] [threshold],
// then [action]. Rules are immutable once loaded into an evaluation batch.
type Rule struct {
	Metric    Metric    `json:"metric"`
	Condition Condition `json:"condition"`
	Threshold float64   `json:"threshold"`
	Action    Action    `json:"action"`
}

// Validate checks the rule for unknown enum members and non-finite thresholds.
func (r Rule) Validate() error {
	if !r.Metric.Valid() {
		return fmt.Errorf("%w: unknown metric %q", ErrInvalidRule, r.Metric)
	}
	if !r.Condition.Valid() {
		return fmt.Errorf("%w: unknown condition %q", ErrInvalidRule, r.Condition)
	}
	if !r.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidRule, r.Action)
	}
	if math.IsNaN(r.Threshold) || math.IsInf(r.Threshold, 0) {
		return fmt.Errorf("%w: threshold must be finite, got %v", ErrInvalidRule, r.Threshold)
	}
	return nil
}

// ValidateRules checks every rule in a batch before evaluation starts.
func ValidateRules(rules []Rule) error {
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}
