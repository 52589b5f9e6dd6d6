package experiment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/adpilot/adpilot/internal/optimizer"
	"github.com/adpilot/adpilot/internal/stats"
	"github.com/adpilot/adpilot/internal/store"
)

// DefaultFetchTimeout bounds each per-variant metrics fetch. One variant's
// slow or failing fetch degrades to "missing metric" for that variant
// instead of blanking the whole evaluation.
const DefaultFetchTimeout = 15 * time.Second

// TestStore is the slice of persistence the evaluator needs: load the test
// record before deciding, write the outcome after.
type TestStore interface {
	GetTest(ctx context.Context, id string) (*store.ABTest, error)
	SaveEvaluation(ctx context.Context, test *store.ABTest) error
}

// Result is the outcome of one evaluation call. Confidence is present only
// for CTR tests where the top two variants carry click and impression
// counts; it is the probability the winner's true rate beats the runner-up.
type Result struct {
	TestID         string                      `json:"test_id"`
	Metric         optimizer.Metric            `json:"metric"`
	Winner         *VariantResult              `json:"winner"`
	Ranking        []VariantResult             `json:"ranking"`
	Confidence     *float64                    `json:"confidence,omitempty"`
	ActionsApplied []optimizer.ExecutionResult `json:"actions_applied"`
	AutoApplied    bool                        `json:"auto_applied"`
}

// Evaluator resolves A/B tests: fetch fresh metrics per variant, rank them,
// pick a winner, optionally pause the losers.
type Evaluator struct {
	store        TestStore
	metrics      optimizer.MetricsGateway
	executor     *optimizer.Executor
	fetchTimeout time.Duration
	log          *zap.Logger
}

func NewEvaluator(s TestStore, metrics optimizer.MetricsGateway, executor *optimizer.Executor, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{
		store:        s,
		metrics:      metrics,
		executor:     executor,
		fetchTimeout: DefaultFetchTimeout,
		log:          log,
	}
}

// SetFetchTimeout overrides the per-variant fetch timeout.
func (e *Evaluator) SetFetchTimeout(d time.Duration) {
	if d > 0 {
		e.fetchTimeout = d
	}
}

// Evaluate runs one evaluation cycle on the named test.
//
// autoApply overrides the test's stored auto-apply setting when non-nil.
// With auto-apply on and a winner found, every non-winning variant that is
// not already paused gets one pause action through the executor; outcomes
// land in ActionsApplied. Re-running Evaluate on an already-evaluated test
// recomputes the winner but skips variants paused by a prior evaluation, so
// repeated calls are safe.
//
// If no variant has the metric defined, the result carries a nil winner and
// an empty ranking; that is a defined outcome, not an error.
func (e *Evaluator) Evaluate(ctx context.Context, testID string, autoApply *bool) (*Result, error) {
	test, err := e.store.GetTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("loading test %s: %w", testID, err)
	}

	metric := optimizer.Metric(test.Metric)
	if !metric.Valid() {
		return nil, fmt.Errorf("%w: test %s ranks by unknown metric %q", optimizer.ErrInvalidRule, testID, test.Metric)
	}

	shouldApply := test.AutoApply
	if autoApply != nil {
		shouldApply = *autoApply
	}

	results, err := e.fetchVariantMetrics(ctx, test, metric)
	if err != nil {
		return nil, err
	}

	ranked := Rank(results, metric)
	ctrIntervals(metric, ranked)
	winner := PickWinner(ranked)
	if winner == nil {
		// No variant has the metric yet; report a defined empty outcome and
		// leave the stored test untouched so a later call can still resolve.
		e.log.Info("no variant has ranking metric yet",
			zap.String("test_id", testID),
			zap.String("metric", string(metric)))
		return &Result{TestID: testID, Metric: metric, Ranking: []VariantResult{}}, nil
	}

	var applied []optimizer.ExecutionResult
	if shouldApply {
		applied, err = e.pauseLosers(ctx, test, ranked, winner)
		if err != nil {
			return nil, err
		}
	}

	test.Status = store.StatusEvaluated
	test.Winner = &store.Winner{
		Name:   winner.Variant.Name,
		AdID:   winner.Variant.AdID,
		Metric: string(metric),
		Value:  winner.Value,
	}
	test.Results = make(map[string]map[string]float64, len(ranked))
	for _, r := range ranked {
		raw := make(map[string]float64, len(r.Snapshot))
		for m, v := range r.Snapshot {
			raw[string(m)] = v
		}
		test.Results[r.Variant.AdID] = raw
	}

	if err := e.store.SaveEvaluation(ctx, test); err != nil {
		// The remote mutations already happened; surface the persistence
		// failure without discarding the computed result.
		e.log.Warn("failed to persist evaluation", zap.String("test_id", testID), zap.Error(err))
	}

	e.log.Info("experiment evaluated",
		zap.String("test_id", testID),
		zap.String("winner", winner.Variant.Name),
		zap.String("metric", string(metric)),
		zap.Float64("value", winner.Value),
		zap.Bool("auto_applied", shouldApply))

	return &Result{
		TestID:         testID,
		Metric:         metric,
		Winner:         winner,
		Ranking:        ranked,
		Confidence:     winnerConfidence(metric, ranked),
		ActionsApplied: applied,
		AutoApplied:    shouldApply,
	}, nil
}

// winnerConfidence runs a two-proportion z-test between the top two ranked
// variants of a CTR test. It needs raw clicks and impressions for both;
// without them there is no honest significance claim to make.
func winnerConfidence(metric optimizer.Metric, ranked []VariantResult) *float64 {
	if metric != optimizer.MetricCTR || len(ranked) < 2 {
		return nil
	}
	top, ok := clickStats(ranked[0].Snapshot)
	if !ok {
		return nil
	}
	next, ok := clickStats(ranked[1].Snapshot)
	if !ok {
		return nil
	}
	c := stats.Confidence(top, next)
	return &c
}

// ctrIntervals fills 95% Wilson bounds for every variant whose raw counts
// are available. The platform reports CTR as a percentage while the
// interval math works on the click fraction, so the bounds are scaled to
// bracket the reported value.
func ctrIntervals(metric optimizer.Metric, ranked []VariantResult) {
	if metric != optimizer.MetricCTR {
		return
	}
	for i := range ranked {
		cs, ok := clickStats(ranked[i].Snapshot)
		if !ok {
			continue
		}
		lower, upper := stats.WilsonInterval(cs, 0.95)
		lower *= 100
		upper *= 100
		ranked[i].CILower = &lower
		ranked[i].CIUpper = &upper
	}
}

func clickStats(snap optimizer.Snapshot) (stats.ClickStats, bool) {
	clicks, okClicks := snap.Value(optimizer.MetricClicks)
	impressions, okImpr := snap.Value(optimizer.MetricImpressions)
	if !okClicks || !okImpr || impressions <= 0 {
		return stats.ClickStats{}, false
	}
	return stats.ClickStats{Clicks: int64(clicks), Impressions: int64(impressions)}, true
}

// fetchVariantMetrics pulls a fresh snapshot per variant, in parallel.
// There is no ordering dependency between fetches; ranking happens only
// after all complete. A fetch error or timeout becomes a missing metric for
// that variant alone, except auth failures, which are cycle-fatal.
func (e *Evaluator) fetchVariantMetrics(ctx context.Context, test *store.ABTest, metric optimizer.Metric) ([]VariantResult, error) {
	results := make([]VariantResult, len(test.Variants))

	g, gctx := errgroup.WithContext(ctx)
	for i, variant := range test.Variants {
		i, variant := i, variant
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, e.fetchTimeout)
			defer cancel()

			snapshot, err := e.metrics.GetInsights(fetchCtx, variant.AdID, optimizer.Window{Preset: optimizer.PresetMaximum})
			if err != nil {
				if optimizer.IsAuthError(err) {
					return fmt.Errorf("fetching metrics for variant %s: %w", variant.AdID, err)
				}
				e.log.Warn("variant metrics unavailable",
					zap.String("test_id", test.ID),
					zap.String("ad_id", variant.AdID),
					zap.Error(err))
				snapshot = nil
			}

			res := VariantResult{Variant: variant, Snapshot: snapshot}
			res.Value, res.HasValue = snapshot.Value(metric)
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// pauseLosers issues one pause per non-winning, not-yet-paused variant.
// Already-paused variants are skipped rather than re-paused, which is what
// makes re-evaluation idempotent. Individual pause failures are recorded
// and do not stop the remaining losers from being paused.
func (e *Evaluator) pauseLosers(ctx context.Context, test *store.ABTest, ranked []VariantResult, winner *VariantResult) ([]optimizer.ExecutionResult, error) {
	var applied []optimizer.ExecutionResult

	for _, r := range ranked {
		if r.Variant.AdID == winner.Variant.AdID {
			continue
		}
		if r.Variant.Paused {
			continue
		}

		action := optimizer.ResolvedAction{
			Action: optimizer.Pause(),
			Reason: fmt.Sprintf("lost to %s on %s", winner.Variant.Name, test.Metric),
		}
		res, err := e.executor.Apply(ctx, action, r.Variant.AdID)
		applied = append(applied, res)
		if err != nil {
			return applied, err
		}

		if res.Status == optimizer.ExecApplied {
			for i := range test.Variants {
				if test.Variants[i].AdID == r.Variant.AdID {
					test.Variants[i].Paused = true
				}
			}
		}
	}

	return applied, nil
}
