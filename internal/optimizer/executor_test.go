package optimizer_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/adpilot/adpilot/internal/optimizer"
)

// fakeGateway records mutations and lets tests inject failures.
type fakeGateway struct {
	dailyBudget  int64
	statusCalls  []string // "id:STATUS"
	budgetCalls  []int64
	statusErr    error
	getBudgetErr error
	setBudgetErr error
}

func (f *fakeGateway) UpdateStatus(ctx context.Context, entityID, status string) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statusCalls = append(f.statusCalls, entityID+":"+status)
	return nil
}

func (f *fakeGateway) GetDailyBudget(ctx context.Context, entityID string) (int64, error) {
	if f.getBudgetErr != nil {
		return 0, f.getBudgetErr
	}
	return f.dailyBudget, nil
}

func (f *fakeGateway) UpdateDailyBudget(ctx context.Context, entityID string, minorUnits int64) error {
	if f.setBudgetErr != nil {
		return f.setBudgetErr
	}
	f.budgetCalls = append(f.budgetCalls, minorUnits)
	f.dailyBudget = minorUnits
	return nil
}

// fakePlatformErr mimics the classification surface of the platform client.
type fakePlatformErr struct {
	msg       string
	auth      bool
	retryable bool
}

func (e *fakePlatformErr) Error() string    { return e.msg }
func (e *fakePlatformErr) AuthFailed() bool { return e.auth }
func (e *fakePlatformErr) Retryable() bool  { return e.retryable }

func pauseAction() optimizer.ResolvedAction {
	return optimizer.ResolvedAction{Action: optimizer.Pause(), Reason: "ctr (0.80) less_than 1.00"}
}

func budgetAction(pct int) optimizer.ResolvedAction {
	return optimizer.ResolvedAction{Action: optimizer.AdjustBudget(pct), Reason: "test"}
}

func TestExecutor_Pause(t *testing.T) {
	gw := &fakeGateway{}
	exec := optimizer.NewExecutor(gw, nil)

	res, err := exec.Apply(context.Background(), pauseAction(), "camp_1")
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if res.Status != optimizer.ExecApplied {
		t.Errorf("status = %s, want applied", res.Status)
	}
	if !res.Dispatched {
		t.Error("pause should be marked dispatched")
	}
	if len(gw.statusCalls) != 1 || gw.statusCalls[0] != "camp_1:PAUSED" {
		t.Errorf("unexpected status calls %v", gw.statusCalls)
	}
}

func TestExecutor_Notify_NoRemoteCall(t *testing.T) {
	gw := &fakeGateway{}
	exec := optimizer.NewExecutor(gw, nil)

	res, err := exec.Apply(context.Background(), optimizer.ResolvedAction{Action: optimizer.Notify()}, "camp_1")
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if res.Status != optimizer.ExecApplied {
		t.Errorf("notify must always succeed, got %s", res.Status)
	}
	if res.Dispatched {
		t.Error("notify must not dispatch a remote call")
	}
	if len(gw.statusCalls) != 0 || len(gw.budgetCalls) != 0 {
		t.Error("notify touched the gateway")
	}
}

func TestExecutor_BudgetAdjustment(t *testing.T) {
	tests := []struct {
		name    string
		current int64
		percent int
		want    int64
	}{
		{"increase 10pct", 5000, 10, 5500},
		{"decrease 20pct", 5000, -20, 4000},
		{"rounding", 333, 10, 366}, // 366.3 rounds to nearest minor unit
		{"floor at minimum", 110, -50, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{dailyBudget: tt.current}
			exec := optimizer.NewExecutor(gw, nil)

			res, err := exec.Apply(context.Background(), budgetAction(tt.percent), "camp_1")
			if err != nil {
				t.Fatalf("unexpected fatal error: %v", err)
			}
			if res.Status != optimizer.ExecApplied {
				t.Fatalf("status = %s (%s)", res.Status, res.Error)
			}
			if len(gw.budgetCalls) != 1 || gw.budgetCalls[0] != tt.want {
				t.Errorf("budget calls = %v, want [%d]", gw.budgetCalls, tt.want)
			}
		})
	}
}

func TestExecutor_BudgetUnavailable(t *testing.T) {
	// Entities billed at lifetime or ad-set level report a zero daily
	// budget; that is a semantic rejection, not a retryable failure.
	gw := &fakeGateway{dailyBudget: 0}
	exec := optimizer.NewExecutor(gw, nil)

	res, err := exec.Apply(context.Background(), budgetAction(10), "camp_1")
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if res.Status != optimizer.ExecFailed {
		t.Errorf("status = %s, want failed", res.Status)
	}
	if !strings.Contains(res.Error, "lifetime") {
		t.Errorf("unexpected error detail %q", res.Error)
	}
	if len(gw.budgetCalls) != 0 {
		t.Error("no budget write should happen without a current daily budget")
	}
}

func TestExecutor_DryRunNeverDispatches(t *testing.T) {
	gw := &fakeGateway{dailyBudget: 5000}
	exec := optimizer.NewExecutor(gw, nil)

	action := budgetAction(10)
	action.DryRun = true

	res, err := exec.Apply(context.Background(), action, "camp_1")
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if res.Status != optimizer.ExecWouldApply {
		t.Errorf("status = %s, want would_apply", res.Status)
	}
	if res.Dispatched || len(gw.budgetCalls) != 0 || len(gw.statusCalls) != 0 {
		t.Error("dry run must not reach the gateway")
	}
}

func TestExecutor_PartialFailure(t *testing.T) {
	// One action fails, the other succeeds; both outcomes are enumerated
	// and the batch completes without error.
	gw := &fakeGateway{dailyBudget: 5000, statusErr: &fakePlatformErr{msg: "invalid state transition"}}
	exec := optimizer.NewExecutor(gw, nil)

	results, err := exec.ApplyAll(context.Background(), []optimizer.ResolvedAction{
		budgetAction(10),
		pauseAction(),
	}, "camp_1")
	if err != nil {
		t.Fatalf("partial failure must not abort the batch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	var applied, failed int
	for _, r := range results {
		switch r.Status {
		case optimizer.ExecApplied:
			applied++
		case optimizer.ExecFailed:
			failed++
		}
	}
	if applied != 1 || failed != 1 {
		t.Errorf("applied=%d failed=%d, want 1 and 1", applied, failed)
	}
}

func TestExecutor_PauseBeforeBudgetChange(t *testing.T) {
	gw := &fakeGateway{dailyBudget: 5000}
	exec := optimizer.NewExecutor(gw, nil)

	results, err := exec.ApplyAll(context.Background(), []optimizer.ResolvedAction{
		budgetAction(-10),
		pauseAction(),
	}, "camp_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Action.Action.Kind != optimizer.ActionPause {
		t.Errorf("first executed action = %s, want pause", results[0].Action.Action.Kind)
	}
	if results[1].Action.Action.Kind != optimizer.ActionAdjustBudget {
		t.Errorf("second executed action = %s, want adjust_budget", results[1].Action.Action.Kind)
	}
}

func TestExecutor_CompoundingBudgetChanges(t *testing.T) {
	// Two +10% adjustments apply sequentially against live state:
	// 5000 to 5500, then 6050.
	gw := &fakeGateway{dailyBudget: 5000}
	exec := optimizer.NewExecutor(gw, nil)

	results, err := exec.ApplyAll(context.Background(), []optimizer.ResolvedAction{
		budgetAction(10),
		budgetAction(10),
	}, "camp_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	want := []int64{5500, 6050}
	for i, w := range want {
		if gw.budgetCalls[i] != w {
			t.Errorf("budget call %d = %d, want %d", i, gw.budgetCalls[i], w)
		}
	}
}

func TestExecutor_AuthFailureIsFatal(t *testing.T) {
	gw := &fakeGateway{statusErr: &fakePlatformErr{msg: "token expired", auth: true}}
	exec := optimizer.NewExecutor(gw, nil)

	results, err := exec.ApplyAll(context.Background(), []optimizer.ResolvedAction{
		pauseAction(),
		budgetAction(10),
	}, "camp_1")
	if err == nil {
		t.Fatal("expected fatal error for auth failure")
	}
	// The enumeration stays complete: the failed action plus the skipped one.
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Status != optimizer.ExecFailed {
		t.Errorf("first result = %s, want failed", results[0].Status)
	}
	if results[1].Status != optimizer.ExecSkipped {
		t.Errorf("second result = %s, want skipped", results[1].Status)
	}
}

func TestExecutor_CancellationReportsDispatchedVsSkipped(t *testing.T) {
	gw := &fakeGateway{dailyBudget: 5000}
	exec := optimizer.NewExecutor(gw, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := exec.ApplyAll(ctx, []optimizer.ResolvedAction{
		pauseAction(),
		budgetAction(10),
	}, "camp_1")
	if err != nil {
		t.Fatalf("cancellation must not surface as fatal: %v", err)
	}
	for i, r := range results {
		if r.Status != optimizer.ExecSkipped {
			t.Errorf("result %d = %s, want skipped after cancellation", i, r.Status)
		}
		if r.Dispatched {
			t.Errorf("result %d marked dispatched despite cancellation", i)
		}
	}
}

func TestIsAuthError(t *testing.T) {
	if !optimizer.IsAuthError(&fakePlatformErr{msg: "x", auth: true}) {
		t.Error("expected auth error to classify as fatal")
	}
	if optimizer.IsAuthError(&fakePlatformErr{msg: "x"}) {
		t.Error("non-auth platform error misclassified")
	}
	if optimizer.IsAuthError(errors.New("plain")) {
		t.Error("plain error misclassified as auth failure")
	}
}
