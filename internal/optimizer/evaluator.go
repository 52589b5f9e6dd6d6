package optimizer

import (
	"encoding/json"
	"fmt"
)

// Verdict is the outcome of checking one rule against one snapshot.
// HasValue distinguishes "condition not met" from "metric not reported":
// both leave Triggered false, but only the first carries an observed value.
type Verdict struct {
	Rule      Rule    `json:"rule"`
	Triggered bool    `json:"triggered"`
	Value     float64 `json:"actual_value"`
	HasValue  bool    `json:"has_value"`
}

// MarshalJSON omits actual_value entirely when the metric was not reported,
// so consumers never mistake missing data for an observed zero.
func (v Verdict) MarshalJSON() ([]byte, error) {
	wire := struct {
		Rule      Rule     `json:"rule"`
		Triggered bool     `json:"triggered"`
		Value     *float64 `json:"actual_value,omitempty"`
		HasValue  bool     `json:"has_value"`
	}{
		Rule:      v.Rule,
		Triggered: v.Triggered,
		HasValue:  v.HasValue,
	}
	if v.HasValue {
		wire.Value = &v.Value
	}
	return json.Marshal(wire)
}

// Reason renders a short human explanation of why the rule fired, e.g.
// "cpc (3.20) greater_than 2.50".
func (v Verdict) Reason() string {
	if !v.HasValue {
		return fmt.Sprintf("%s unavailable for window", v.Rule.Metric)
	}
	return fmt.Sprintf("%s (%.2f) %s %.2f", v.Rule.Metric, v.Value, v.Rule.Condition, v.Rule.Threshold)
}

// Evaluate checks every rule in the batch against the snapshot and returns
// one verdict per rule in input order. Rules are independent: there is no
// short-circuiting and order carries no semantics beyond report ordering.
//
// A rule whose metric is absent from the snapshot yields an untriggered
// verdict with HasValue false. That is insufficient data, not an error, and
// callers must not apply the rule's action. The only error condition is a
// malformed rule, which fails the whole batch with ErrInvalidRule.
func Evaluate(rules []Rule, snapshot Snapshot) ([]Verdict, error) {
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}

	verdicts := make([]Verdict, 0, len(rules))
	for _, rule := range rules {
		v := Verdict{Rule: rule}

		if value, ok := snapshot.Value(rule.Metric); ok {
			v.Value = value
			v.HasValue = true
			switch rule.Condition {
			case GreaterThan:
				v.Triggered = value > rule.Threshold
			case LessThan:
				v.Triggered = value < rule.Threshold
			}
		}

		verdicts = append(verdicts, v)
	}

	return verdicts, nil
}
