package optimizer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditSink records finished optimization runs. The engine writes after
// evaluating and never reads back: persistence is a sink, not a dependency
// of the decision itself.
type AuditSink interface {
	RecordOptimization(ctx context.Context, rec RunRecord) error
}

// RunRecord is the audit trail of one optimization cycle.
type RunRecord struct {
	ID         string
	CampaignID string
	Window     Window
	DryRun     bool
	Rules      []Rule
	Verdicts   []Verdict
	Actions    []ExecutionResult
	CreatedAt  time.Time
}

// Options configure one optimization cycle.
type Options struct {
	Window Window
	DryRun bool
}

// Report is the complete result of one cycle. Verdicts and Actions are full
// enumerations even when entries reflect missing data or failed actions: a
// caller never receives a silently truncated result for non-fatal
// conditions.
type Report struct {
	RunID      string            `json:"run_id"`
	CampaignID string            `json:"campaign_id"`
	DatePreset string            `json:"date_preset,omitempty"`
	DryRun     bool              `json:"dry_run"`
	Insights   Snapshot          `json:"insights"`
	Verdicts   []Verdict         `json:"rules_evaluated"`
	Actions    []ExecutionResult `json:"actions_applied"`
	Summary    string            `json:"summary"`
}

// TriggeredCount counts verdicts that fired.
func (r *Report) TriggeredCount() int {
	n := 0
	for _, v := range r.Verdicts {
		if v.Triggered {
			n++
		}
	}
	return n
}

// Engine runs the optimizer path: fetch metrics, evaluate rules, resolve and
// apply actions, record the run. It holds no state between cycles beyond its
// collaborators, so independent campaigns can be optimized concurrently by
// an external scheduler.
type Engine struct {
	metrics  MetricsGateway
	executor *Executor
	audit    AuditSink
	log      *zap.Logger
}

func NewEngine(metrics MetricsGateway, executor *Executor, audit AuditSink, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{metrics: metrics, executor: executor, audit: audit, log: log}
}

// RunOptimization evaluates one rule batch against one campaign's current
// metrics and applies the resulting actions.
//
// Failure handling follows the taxonomy: a malformed rule or an auth failure
// aborts the cycle with an error; an unavailable metrics snapshot degrades
// to all-absent values (no rule triggers, the verdict list is still
// complete); individual action failures are recorded per action inside the
// report.
func (e *Engine) RunOptimization(ctx context.Context, campaignID string, rules []Rule, opts Options) (*Report, error) {
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}

	snapshot, err := e.metrics.GetInsights(ctx, campaignID, opts.Window)
	if err != nil {
		if IsAuthError(err) {
			return nil, fmt.Errorf("fetching insights for %s: %w", campaignID, err)
		}
		// Recoverable: treat as missing metrics so the cycle still produces
		// a complete, all-untriggered verdict enumeration.
		e.log.Warn("insights unavailable, treating metrics as missing",
			zap.String("campaign_id", campaignID),
			zap.Error(err))
		snapshot = nil
	}

	verdicts, err := Evaluate(rules, snapshot)
	if err != nil {
		return nil, err
	}

	resolved := Resolve(verdicts, opts.DryRun)

	results, execErr := e.executor.ApplyAll(ctx, resolved, campaignID)

	report := &Report{
		RunID:      uuid.NewString(),
		CampaignID: campaignID,
		DatePreset: opts.Window.Preset,
		DryRun:     opts.DryRun,
		Insights:   snapshot,
		Verdicts:   verdicts,
		Actions:    results,
	}
	report.Summary = summarize(report)

	if execErr != nil {
		return nil, execErr
	}

	e.log.Info("optimization cycle complete",
		zap.String("run_id", report.RunID),
		zap.String("campaign_id", campaignID),
		zap.Int("rules", len(verdicts)),
		zap.Int("triggered", report.TriggeredCount()),
		zap.Bool("dry_run", opts.DryRun))

	// Dry runs are simulations; they leave no audit trail, matching the
	// behavior callers expect from repeated what-if invocations.
	if e.audit != nil && !opts.DryRun {
		rec := RunRecord{
			ID:         report.RunID,
			CampaignID: campaignID,
			Window:     opts.Window,
			DryRun:     opts.DryRun,
			Rules:      rules,
			Verdicts:   verdicts,
			Actions:    results,
			CreatedAt:  time.Now().UTC(),
		}
		if err := e.audit.RecordOptimization(ctx, rec); err != nil {
			// The decision already happened; a failed audit write must not
			// unmake it.
			e.log.Warn("failed to record optimization run", zap.String("run_id", report.RunID), zap.Error(err))
		}
	}

	return report, nil
}

func summarize(r *Report) string {
	mode := "executed"
	if r.DryRun {
		mode = "simulated"
	}
	return fmt.Sprintf("%d of %d rule(s) triggered, %d action(s) %s",
		r.TriggeredCount(), len(r.Verdicts), len(r.Actions), mode)
}
