package optimizer

// ResolvedAction is a concrete remote mutation derived from a triggered rule.
// RuleIndex points back at the verdict that produced it so reports can tie
// outcomes to rules.
type ResolvedAction struct {
	Action    Action `json:"action"`
	RuleIndex int    `json:"rule_index"`
	Reason    string `json:"reason"`
	DryRun    bool   `json:"dry_run,omitempty"`
}

// Resolve turns triggered verdicts into the list of mutations to request.
// The list preserves verdict order and is deliberately not deduplicated:
// two rules resolving to the same budget change both execute, compounding
// sequentially, and a pause does not suppress a budget change (a paused
// campaign's budget still matters for when it resumes).
//
// With dryRun set the same list is produced but each entry is marked so the
// executor is never called; calling Resolve twice with identical inputs
// yields identical output.
func Resolve(verdicts []Verdict, dryRun bool) []ResolvedAction {
	var actions []ResolvedAction
	for i, v := range verdicts {
		if !v.Triggered {
			continue
		}
		actions = append(actions, ResolvedAction{
			Action:    v.Rule.Action,
			RuleIndex: i,
			Reason:    v.Reason(),
			DryRun:    dryRun,
		})
	}
	return actions
}
