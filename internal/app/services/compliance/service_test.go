package compliance

import (
	"context"
	"testing"

	"github.com/TraceChain-Network/ledger_layer/internal/app/core"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/access"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/product"
	"github.com/TraceChain-Network/ledger_layer/internal/app/events"
	"github.com/TraceChain-Network/ledger_layer/internal/app/services/accessctrl"
	"github.com/TraceChain-Network/ledger_layer/internal/app/services/registry"
	"github.com/TraceChain-Network/ledger_layer/internal/app/storage/memory"
)

type fixture struct {
	svc *Service
	pid uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	ring := events.NewRing(100)

	acl, err := accessctrl.New(store, "owner", ring, nil)
	if err != nil {
		t.Fatalf("access control: %v", err)
	}
	if err := acl.GrantRole(ctx, "owner", access.RoleProcessor, "auditor"); err != nil {
		t.Fatalf("grant processor: %v", err)
	}

	reg, err := registry.New(store, acl, ring, nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if err := acl.GrantRole(ctx, "owner", access.RoleProcessor, "maker"); err != nil {
		t.Fatalf("grant processor: %v", err)
	}
	p, err := reg.Register(ctx, "maker", product.Input{Name: "Coffee", Type: "food", BatchNumber: "LOT-001"})
	if err != nil {
		t.Fatalf("register product: %v", err)
	}

	svc, err := New(store, acl, store, 70, ring, nil)
	if err != nil {
		t.Fatalf("compliance: %v", err)
	}
	return &fixture{svc: svc, pid: p.ID}
}

func TestAddRuleValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.AddRule(ctx, "owner", RuleInput{Code: "R-1", Title: "T", Weight: 0}); !core.IsValidationError(err) {
		t.Fatalf("weight 0 must be rejected, got %v", err)
	}
	if _, err := f.svc.AddRule(ctx, "owner", RuleInput{Code: "R-1", Title: "T", Weight: 11}); !core.IsValidationError(err) {
		t.Fatalf("weight 11 must be rejected, got %v", err)
	}
	if _, err := f.svc.AddRule(ctx, "auditor", RuleInput{Code: "R-1", Title: "T", Weight: 5}); !core.IsForbidden(err) {
		t.Fatalf("non-admin must be rejected, got %v", err)
	}

	if _, err := f.svc.AddRule(ctx, "owner", RuleInput{Code: "R-1", Title: "T", Weight: 5}); err != nil {
		t.Fatalf("add rule: %v", err)
	}
	if _, err := f.svc.AddRule(ctx, "owner", RuleInput{Code: "R-1", Title: "T2", Weight: 5}); !core.IsConflict(err) {
		t.Fatalf("duplicate code must conflict, got %v", err)
	}
}

func TestScoreComputedFromEvidence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	required := []string{"origin-certificate", "lab-report"}
	if _, err := f.svc.AddRule(ctx, "owner", RuleInput{
		Code: "R-1", Title: "Sourcing", Weight: 10, RequiredEvidence: required,
	}); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	// A check carries no asserted score: missing evidence scores zero.
	check, err := f.svc.RunCheck(ctx, "auditor", CheckInput{ProductID: f.pid, RuleCode: "R-1"})
	if err != nil {
		t.Fatalf("check without evidence: %v", err)
	}
	if check.Score != 0 || check.Passed {
		t.Fatalf("no evidence must score 0 and fail, got score=%d passed=%v", check.Score, check.Passed)
	}

	check, err = f.svc.RunCheck(ctx, "auditor", CheckInput{
		ProductID: f.pid,
		RuleCode:  "R-1",
		Evidence:  map[string]string{"origin-certificate": "doc-1", "lab-report": "doc-2"},
	})
	if err != nil {
		t.Fatalf("check with full evidence: %v", err)
	}
	if check.Score != 100 || !check.Passed {
		t.Fatalf("full evidence at weight 10 must score 100, got score=%d passed=%v", check.Score, check.Passed)
	}

	// Half the evidence halves the completeness fraction.
	check, err = f.svc.RunCheck(ctx, "auditor", CheckInput{
		ProductID: f.pid,
		RuleCode:  "R-1",
		Evidence:  map[string]string{"origin-certificate": "doc-1"},
	})
	if err != nil {
		t.Fatalf("check with partial evidence: %v", err)
	}
	if check.Score != 50 || check.Passed {
		t.Fatalf("partial evidence must score 50 and fail, got score=%d passed=%v", check.Score, check.Passed)
	}
}

func TestThresholdBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Full evidence scores (10+weight)*5: weight 4 lands exactly on the
	// threshold, weight 3 just under it.
	if _, err := f.svc.AddRule(ctx, "owner", RuleInput{Code: "R-4", Title: "T", Weight: 4}); err != nil {
		t.Fatalf("add rule: %v", err)
	}
	if _, err := f.svc.AddRule(ctx, "owner", RuleInput{Code: "R-3", Title: "T", Weight: 3}); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	check, err := f.svc.RunCheck(ctx, "auditor", CheckInput{ProductID: f.pid, RuleCode: "R-4"})
	if err != nil {
		t.Fatalf("check at threshold: %v", err)
	}
	if check.Score != 70 || !check.Passed {
		t.Fatalf("score 70 must pass at threshold 70, got score=%d passed=%v", check.Score, check.Passed)
	}

	check, err = f.svc.RunCheck(ctx, "auditor", CheckInput{ProductID: f.pid, RuleCode: "R-3"})
	if err != nil {
		t.Fatalf("check below threshold: %v", err)
	}
	if check.Score != 65 || check.Passed {
		t.Fatalf("score 65 must fail at threshold 70, got score=%d passed=%v", check.Score, check.Passed)
	}
}

func TestApplicableType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.AddRule(ctx, "owner", RuleInput{Code: "EL-1", Title: "RoHS", ApplicableType: "electronics", Weight: 5}); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	_, err := f.svc.RunCheck(ctx, "auditor", CheckInput{ProductID: f.pid, RuleCode: "EL-1"})
	if !core.IsValidationError(err) {
		t.Fatalf("type-restricted rule must not apply to food, got %v", err)
	}
}

func TestReplaceRuleLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.AddRule(ctx, "owner", RuleInput{Code: "R-1", Title: "v1", Weight: 3}); err != nil {
		t.Fatalf("add rule: %v", err)
	}
	replaced, err := f.svc.ReplaceRule(ctx, "owner", "R-1", RuleInput{Title: "v2", Weight: 8})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if replaced.Weight != 8 || replaced.Code != "R-1" {
		t.Fatalf("replaced = %+v", replaced)
	}

	if _, err := f.svc.RunCheck(ctx, "auditor", CheckInput{ProductID: f.pid, RuleCode: "R-1"}); err != nil {
		t.Fatalf("check: %v", err)
	}
	if _, err := f.svc.ReplaceRule(ctx, "owner", "R-1", RuleInput{Title: "v3", Weight: 9}); !core.IsConflict(err) {
		t.Fatalf("replace after checks must conflict, got %v", err)
	}
}

func TestStatsAggregates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	required := []string{"a", "b", "c", "d"}
	if _, err := f.svc.AddRule(ctx, "owner", RuleInput{
		Code: "R-1", Title: "T", Weight: 5, RequiredEvidence: required,
	}); err != nil {
		t.Fatalf("add rule: %v", err)
	}
	// Weight 5 scores 75/56/37 for 4, 3, and 2 present keys.
	for _, present := range []int{4, 3, 2} {
		evidence := make(map[string]string)
		for _, key := range required[:present] {
			evidence[key] = "ref"
		}
		if _, err := f.svc.RunCheck(ctx, "auditor", CheckInput{ProductID: f.pid, RuleCode: "R-1", Evidence: evidence}); err != nil {
			t.Fatalf("check with %d keys: %v", present, err)
		}
	}

	stats, err := f.svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Rules != 1 || stats.Checks != 3 || stats.Passed != 1 || stats.Failed != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.AvgScore != 56 {
		t.Fatalf("avg score = %d, want 56", stats.AvgScore)
	}
}

type recordingSink struct {
	rules  int64
	checks int64
}

func (r *recordingSink) UpdateRuleCount(_ context.Context, delta int64) error {
	r.rules += delta
	return nil
}

func (r *recordingSink) UpdateCheckCount(_ context.Context, delta int64) error {
	r.checks += delta
	return nil
}

func TestCounterSinkReceivesDeltas(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	acl, err := accessctrl.New(store, "owner", events.NewRing(10), nil)
	if err != nil {
		t.Fatalf("access control: %v", err)
	}
	if err := acl.GrantRole(ctx, "owner", access.RoleProcessor, "auditor"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	sink := &recordingSink{}
	svc, err := New(store, acl, nil, 70, events.NewRing(10), nil, WithCounterSink(sink))
	if err != nil {
		t.Fatalf("compliance: %v", err)
	}

	if _, err := svc.AddRule(ctx, "owner", RuleInput{Code: "R-1", Title: "T", Weight: 5}); err != nil {
		t.Fatalf("add rule: %v", err)
	}
	if _, err := svc.RunCheck(ctx, "auditor", CheckInput{ProductID: 7, RuleCode: "R-1"}); err != nil {
		t.Fatalf("check: %v", err)
	}

	if sink.rules != 1 || sink.checks != 1 {
		t.Fatalf("sink = %+v", sink)
	}
}
