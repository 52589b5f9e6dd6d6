package optimizer

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// MinBudgetMinorUnits is the floor for any budget adjustment: 100 minor
// units (e.g. $1.00). An adjustment never produces a non-positive budget.
const MinBudgetMinorUnits = 100

// StatusActive and StatusPaused are the remote delivery states the executor
// writes. Pausing an already-paused entity succeeds on the platform side,
// which is what gives pause its at-most-once semantics.
const (
	StatusActive = "ACTIVE"
	StatusPaused = "PAUSED"
)

// CampaignGateway is the remote mutation surface the executor drives.
// Implemented by the platform client; every call is a network round trip.
type CampaignGateway interface {
	UpdateStatus(ctx context.Context, entityID, status string) error
	// GetDailyBudget returns the current daily budget in minor currency
	// units, or 0 when the entity has no daily budget of its own (lifetime
	// or ad-set level budgets).
	GetDailyBudget(ctx context.Context, entityID string) (int64, error)
	UpdateDailyBudget(ctx context.Context, entityID string, minorUnits int64) error
}

// MetricsGateway produces fresh metric snapshots for an entity and window.
type MetricsGateway interface {
	GetInsights(ctx context.Context, entityID string, window Window) (Snapshot, error)
}

// ExecStatus describes how a resolved action ended up.
type ExecStatus string

const (
	ExecApplied    ExecStatus = "applied"
	ExecFailed     ExecStatus = "failed"
	ExecSkipped    ExecStatus = "skipped"     // cycle cancelled before dispatch
	ExecWouldApply ExecStatus = "would_apply" // dry run sentinel, never dispatched
)

// ExecutionResult records the outcome of one resolved action. Dispatched
// reports whether a remote call was actually issued: after a mid-cycle
// cancellation, callers reconcile using this flag rather than assuming the
// batch was atomic.
type ExecutionResult struct {
	Action     ResolvedAction `json:"action"`
	Status     ExecStatus     `json:"status"`
	Detail     string         `json:"detail,omitempty"`
	Error      string         `json:"error,omitempty"`
	Dispatched bool           `json:"dispatched"`
}

// Executor applies resolved actions to the remote platform, one mutating
// call per action. A single action's failure is recorded in its result and
// does not abort the rest of the batch; only an authentication failure is
// cycle-fatal, since no partial report is meaningful when every further call
// will be rejected too.
type Executor struct {
	gateway CampaignGateway
	log     *zap.Logger
}

func NewExecutor(gateway CampaignGateway, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{gateway: gateway, log: log}
}

// Apply executes a single resolved action against the target entity. The
// returned error is non-nil only for cycle-fatal conditions (auth failure);
// ordinary action failures are recorded in the result and return a nil
// error. Dry-run actions come back as would-apply without touching the
// gateway.
func (e *Executor) Apply(ctx context.Context, action ResolvedAction, targetID string) (ExecutionResult, error) {
	res := ExecutionResult{Action: action}

	if action.DryRun {
		res.Status = ExecWouldApply
		res.Detail = "dry run, not executed"
		return res, nil
	}

	switch action.Action.Kind {
	case ActionNotify:
		// No remote mutation; the audit record is the notification.
		res.Status = ExecApplied
		res.Detail = "notification recorded"
		return res, nil

	case ActionPause:
		res.Dispatched = true
		if err := e.gateway.UpdateStatus(ctx, targetID, StatusPaused); err != nil {
			return e.failure(res, targetID, err)
		}
		res.Status = ExecApplied
		res.Detail = "campaign paused"
		return res, nil

	case ActionAdjustBudget:
		return e.adjustBudget(ctx, res, targetID, action.Action.Percent)
	}

	res.Status = ExecFailed
	res.Error = fmt.Sprintf("unknown action kind %q", action.Action.Kind)
	return res, nil
}

// adjustBudget reads the current remote budget immediately before writing the
// new one, so the percentage applies to live state rather than anything
// cached at resolve time.
func (e *Executor) adjustBudget(ctx context.Context, res ExecutionResult, targetID string, percent int) (ExecutionResult, error) {
	res.Dispatched = true

	current, err := e.gateway.GetDailyBudget(ctx, targetID)
	if err != nil {
		return e.failure(res, targetID, err)
	}
	if current <= 0 {
		res.Status = ExecFailed
		res.Error = "budget adjustment unavailable: entity uses lifetime or ad-set level budget"
		return res, nil
	}

	newBudget := (current*int64(100+percent) + 50) / 100 // round to nearest minor unit
	if newBudget < MinBudgetMinorUnits {
		newBudget = MinBudgetMinorUnits
	}

	if err := e.gateway.UpdateDailyBudget(ctx, targetID, newBudget); err != nil {
		return e.failure(res, targetID, err)
	}

	direction := "increased"
	if percent < 0 {
		direction = "decreased"
	}
	res.Status = ExecApplied
	res.Detail = fmt.Sprintf("daily budget %s %d%%: %d -> %d minor units", direction, abs(percent), current, newBudget)
	return res, nil
}

func (e *Executor) failure(res ExecutionResult, targetID string, err error) (ExecutionResult, error) {
	e.log.Warn("action failed",
		zap.String("target", targetID),
		zap.String("action", res.Action.Action.String()),
		zap.Error(err))
	res.Status = ExecFailed
	res.Error = err.Error()
	if IsAuthError(err) {
		return res, fmt.Errorf("authentication failed applying %s: %w", res.Action.Action, err)
	}
	return res, nil
}

// ApplyAll runs a batch of resolved actions sequentially against one target.
// Pauses execute before budget changes; an inactive campaign's budget change
// is still meaningful for when it resumes. The relative order within each
// group is preserved.
//
// The returned slice always has one entry per input action. If the context is
// cancelled mid-batch, actions not yet dispatched are marked skipped and
// already-dispatched ones keep their real outcome; remote mutations are not
// rolled back. An authentication failure stops dispatching and is returned
// alongside the complete enumeration, since nothing later in the batch can
// succeed.
func (e *Executor) ApplyAll(ctx context.Context, actions []ResolvedAction, targetID string) ([]ExecutionResult, error) {
	ordered := make([]ResolvedAction, len(actions))
	copy(ordered, actions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return applyRank(ordered[i].Action) < applyRank(ordered[j].Action)
	})

	results := make([]ExecutionResult, 0, len(ordered))
	var fatal error

	for _, action := range ordered {
		if fatal != nil || ctx.Err() != nil {
			results = append(results, ExecutionResult{
				Action: action,
				Status: ExecSkipped,
				Detail: "not dispatched",
			})
			continue
		}

		res, err := e.Apply(ctx, action, targetID)
		results = append(results, res)
		if err != nil {
			fatal = err
		}
	}

	return results, fatal
}

func applyRank(a Action) int {
	if a.Kind == ActionPause {
		return 0
	}
	return 1
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
