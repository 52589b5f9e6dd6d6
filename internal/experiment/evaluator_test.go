package experiment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adpilot/adpilot/internal/experiment"
	"github.com/adpilot/adpilot/internal/optimizer"
	"github.com/adpilot/adpilot/internal/store"
)

// fakeTestStore holds one test record in memory.
type fakeTestStore struct {
	test    *store.ABTest
	saved   int
	saveErr error
}

func (f *fakeTestStore) GetTest(ctx context.Context, id string) (*store.ABTest, error) {
	if f.test == nil || f.test.ID != id {
		return nil, store.ErrNotFound
	}
	cp := *f.test
	cp.Variants = append([]store.TestVariant(nil), f.test.Variants...)
	return &cp, nil
}

func (f *fakeTestStore) SaveEvaluation(ctx context.Context, test *store.ABTest) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved++
	f.test = test
	return nil
}

// fakeVariantMetrics serves per-ad snapshots; ads not in the map fail.
type fakeVariantMetrics struct {
	byAd map[string]optimizer.Snapshot
	errs map[string]error
}

func (f *fakeVariantMetrics) GetInsights(ctx context.Context, entityID string, window optimizer.Window) (optimizer.Snapshot, error) {
	if err, ok := f.errs[entityID]; ok {
		return nil, err
	}
	if snap, ok := f.byAd[entityID]; ok {
		return snap, nil
	}
	return nil, errors.New("no insight data")
}

// pauseGateway counts pause calls per ad.
type pauseGateway struct {
	paused    []string
	pauseErrs map[string]error
}

func (g *pauseGateway) UpdateStatus(ctx context.Context, entityID, status string) error {
	if err, ok := g.pauseErrs[entityID]; ok {
		return err
	}
	g.paused = append(g.paused, entityID)
	return nil
}

func (g *pauseGateway) GetDailyBudget(ctx context.Context, entityID string) (int64, error) {
	return 0, errors.New("not used")
}

func (g *pauseGateway) UpdateDailyBudget(ctx context.Context, entityID string, minorUnits int64) error {
	return errors.New("not used")
}

func runningTest() *store.ABTest {
	return &store.ABTest{
		ID:         "ab_test1",
		Name:       "headline copy test",
		CampaignID: "camp_1",
		AdSetID:    "adset_1",
		Metric:     "ctr",
		Status:     store.StatusRunning,
		AutoApply:  true,
		Variants: []store.TestVariant{
			{Name: "benefit", AdID: "ad_1"},
			{Name: "urgency", AdID: "ad_2"},
			{Name: "social proof", AdID: "ad_3"},
		},
		CreatedAt: time.Now(),
	}
}

func newEvaluator(ts *fakeTestStore, metrics *fakeVariantMetrics, gw *pauseGateway) *experiment.Evaluator {
	return experiment.NewEvaluator(ts, metrics, optimizer.NewExecutor(gw, nil), nil)
}

func TestEvaluate_WinnerAndAutoApply(t *testing.T) {
	ts := &fakeTestStore{test: runningTest()}
	metrics := &fakeVariantMetrics{byAd: map[string]optimizer.Snapshot{
		"ad_1": {optimizer.MetricCTR: 1.0},
		"ad_2": {optimizer.MetricCTR: 3.2},
		"ad_3": {optimizer.MetricCTR: 2.1},
	}}
	gw := &pauseGateway{}

	result, err := newEvaluator(ts, metrics, gw).Evaluate(context.Background(), "ab_test1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Winner == nil || result.Winner.Variant.Name != "urgency" {
		t.Fatalf("winner = %+v, want urgency", result.Winner)
	}
	if len(result.Ranking) != 3 {
		t.Fatalf("ranking should enumerate all variants, got %d", len(result.Ranking))
	}
	if len(gw.paused) != 2 {
		t.Fatalf("expected 2 losers paused, got %v", gw.paused)
	}
	for _, id := range gw.paused {
		if id == "ad_2" {
			t.Error("winner was paused")
		}
	}
	if ts.saved != 1 {
		t.Errorf("evaluation not persisted")
	}
	if ts.test.Status != store.StatusEvaluated {
		t.Errorf("status = %s, want evaluated", ts.test.Status)
	}
	if ts.test.Winner == nil || ts.test.Winner.AdID != "ad_2" {
		t.Errorf("persisted winner = %+v", ts.test.Winner)
	}
}

func TestEvaluate_Reevaluation_SkipsAlreadyPaused(t *testing.T) {
	ts := &fakeTestStore{test: runningTest()}
	metrics := &fakeVariantMetrics{byAd: map[string]optimizer.Snapshot{
		"ad_1": {optimizer.MetricCTR: 1.0},
		"ad_2": {optimizer.MetricCTR: 3.2},
		"ad_3": {optimizer.MetricCTR: 2.1},
	}}
	gw := &pauseGateway{}
	ev := newEvaluator(ts, metrics, gw)

	if _, err := ev.Evaluate(context.Background(), "ab_test1", nil); err != nil {
		t.Fatalf("first evaluation: %v", err)
	}
	firstPauses := len(gw.paused)

	result, err := ev.Evaluate(context.Background(), "ab_test1", nil)
	if err != nil {
		t.Fatalf("re-evaluation: %v", err)
	}
	if len(gw.paused) != firstPauses {
		t.Errorf("re-evaluation issued %d extra pauses", len(gw.paused)-firstPauses)
	}
	if result.Winner == nil || result.Winner.Variant.Name != "urgency" {
		t.Errorf("re-evaluation changed the winner: %+v", result.Winner)
	}
}

func TestEvaluate_CostMetricRanksAscending(t *testing.T) {
	test := runningTest()
	test.Metric = "cpc"
	ts := &fakeTestStore{test: test}
	metrics := &fakeVariantMetrics{byAd: map[string]optimizer.Snapshot{
		"ad_1": {optimizer.MetricCPC: 3.0},
		"ad_2": {optimizer.MetricCPC: 1.5},
		"ad_3": {optimizer.MetricCPC: 2.2},
	}}

	result, err := newEvaluator(ts, metrics, &pauseGateway{}).Evaluate(context.Background(), "ab_test1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Winner == nil || result.Winner.Variant.AdID != "ad_2" {
		t.Errorf("winner = %+v, want ad_2 (lowest cpc)", result.Winner)
	}
}

func TestEvaluate_OneVariantFetchFailureDegrades(t *testing.T) {
	ts := &fakeTestStore{test: runningTest()}
	metrics := &fakeVariantMetrics{
		byAd: map[string]optimizer.Snapshot{
			"ad_1": {optimizer.MetricCTR: 1.0},
			"ad_3": {optimizer.MetricCTR: 2.1},
		},
		errs: map[string]error{"ad_2": errors.New("rate limited")},
	}

	result, err := newEvaluator(ts, metrics, &pauseGateway{}).Evaluate(context.Background(), "ab_test1", nil)
	if err != nil {
		t.Fatalf("one failed fetch must not blank the evaluation: %v", err)
	}
	if len(result.Ranking) != 3 {
		t.Fatalf("failed-fetch variant dropped from ranking")
	}
	if result.Ranking[2].Variant.AdID != "ad_2" || result.Ranking[2].HasValue {
		t.Errorf("failed-fetch variant should rank last with no value")
	}
	if result.Winner == nil || result.Winner.Variant.AdID != "ad_3" {
		t.Errorf("winner = %+v, want ad_3", result.Winner)
	}
}

func TestEvaluate_NoMetricsAnywhere(t *testing.T) {
	ts := &fakeTestStore{test: runningTest()}
	metrics := &fakeVariantMetrics{} // every fetch fails

	result, err := newEvaluator(ts, metrics, &pauseGateway{}).Evaluate(context.Background(), "ab_test1", nil)
	if err != nil {
		t.Fatalf("zero data is a defined outcome, not an error: %v", err)
	}
	if result.Winner != nil {
		t.Errorf("winner = %+v, want none", result.Winner)
	}
	if len(result.Ranking) != 0 {
		t.Errorf("expected empty ranking, got %d entries", len(result.Ranking))
	}
	if ts.saved != 0 {
		t.Errorf("inconclusive evaluation should not transition the test")
	}
	if ts.test.Status != store.StatusRunning {
		t.Errorf("status changed to %s without a winner", ts.test.Status)
	}
}

func TestEvaluate_AutoApplyOverride(t *testing.T) {
	test := runningTest()
	test.AutoApply = true
	ts := &fakeTestStore{test: test}
	metrics := &fakeVariantMetrics{byAd: map[string]optimizer.Snapshot{
		"ad_1": {optimizer.MetricCTR: 1.0},
		"ad_2": {optimizer.MetricCTR: 3.2},
		"ad_3": {optimizer.MetricCTR: 2.1},
	}}
	gw := &pauseGateway{}

	off := false
	result, err := newEvaluator(ts, metrics, gw).Evaluate(context.Background(), "ab_test1", &off)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AutoApplied {
		t.Error("override to false was ignored")
	}
	if len(gw.paused) != 0 {
		t.Errorf("losers paused despite auto-apply off: %v", gw.paused)
	}
	if result.Winner == nil {
		t.Error("winner should still be computed without auto-apply")
	}
}

func TestEvaluate_PartialPauseFailure(t *testing.T) {
	ts := &fakeTestStore{test: runningTest()}
	metrics := &fakeVariantMetrics{byAd: map[string]optimizer.Snapshot{
		"ad_1": {optimizer.MetricCTR: 1.0},
		"ad_2": {optimizer.MetricCTR: 3.2},
		"ad_3": {optimizer.MetricCTR: 2.1},
	}}
	gw := &pauseGateway{pauseErrs: map[string]error{"ad_1": errors.New("platform error")}}

	result, err := newEvaluator(ts, metrics, gw).Evaluate(context.Background(), "ab_test1", nil)
	if err != nil {
		t.Fatalf("one failed pause must not abort the evaluation: %v", err)
	}
	if len(result.ActionsApplied) != 2 {
		t.Fatalf("expected both pause outcomes enumerated, got %d", len(result.ActionsApplied))
	}

	var failed, applied int
	for _, a := range result.ActionsApplied {
		switch a.Status {
		case optimizer.ExecFailed:
			failed++
		case optimizer.ExecApplied:
			applied++
		}
	}
	if failed != 1 || applied != 1 {
		t.Errorf("failed=%d applied=%d, want 1 and 1", failed, applied)
	}

	// The variant whose pause failed stays unpaused in the stored record,
	// so the next evaluation retries it.
	for _, v := range ts.test.Variants {
		if v.AdID == "ad_1" && v.Paused {
			t.Error("failed pause recorded as paused")
		}
	}
}

func TestEvaluate_UnknownTest(t *testing.T) {
	ts := &fakeTestStore{}
	_, err := newEvaluator(ts, &fakeVariantMetrics{}, &pauseGateway{}).Evaluate(context.Background(), "ab_missing", nil)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEvaluate_CTRConfidence(t *testing.T) {
	ts := &fakeTestStore{test: runningTest()}
	metrics := &fakeVariantMetrics{byAd: map[string]optimizer.Snapshot{
		"ad_1": {optimizer.MetricCTR: 20.0, optimizer.MetricClicks: 200, optimizer.MetricImpressions: 1000},
		"ad_2": {optimizer.MetricCTR: 10.0, optimizer.MetricClicks: 100, optimizer.MetricImpressions: 1000},
		"ad_3": {optimizer.MetricCTR: 9.0, optimizer.MetricClicks: 90, optimizer.MetricImpressions: 1000},
	}}

	result, err := newEvaluator(ts, metrics, &pauseGateway{}).Evaluate(context.Background(), "ab_test1", nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Confidence == nil {
		t.Fatal("expected a confidence for a CTR test with click counts")
	}
	if *result.Confidence < 0.99 {
		t.Errorf("confidence = %v, want >= 0.99 for a 2x rate gap", *result.Confidence)
	}
	for _, r := range result.Ranking {
		if r.CILower == nil || r.CIUpper == nil {
			t.Fatalf("variant %s: expected CI bounds for a CTR test with click counts", r.Variant.Name)
		}
		if *r.CILower > r.Value || *r.CIUpper < r.Value {
			t.Errorf("variant %s: CI [%v, %v] does not bracket the observed rate %v",
				r.Variant.Name, *r.CILower, *r.CIUpper, r.Value)
		}
	}
}

func TestEvaluate_NoConfidenceWithoutCounts(t *testing.T) {
	ts := &fakeTestStore{test: runningTest()}
	metrics := &fakeVariantMetrics{byAd: map[string]optimizer.Snapshot{
		"ad_1": {optimizer.MetricCTR: 2.0},
		"ad_2": {optimizer.MetricCTR: 1.0},
		"ad_3": {optimizer.MetricCTR: 0.5},
	}}

	result, err := newEvaluator(ts, metrics, &pauseGateway{}).Evaluate(context.Background(), "ab_test1", nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Confidence != nil {
		t.Errorf("confidence = %v, want nil without click and impression counts", *result.Confidence)
	}
	for _, r := range result.Ranking {
		if r.CILower != nil || r.CIUpper != nil {
			t.Errorf("variant %s: expected no CI bounds without click and impression counts", r.Variant.Name)
		}
	}
}
