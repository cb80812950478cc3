// Package compliance implements the compliance engine: weighted rules,
// recorded checks with evidence, and O(1) aggregate statistics.
package compliance

import (
	"context"
	"fmt"

	"github.com/TraceChain-Network/ledger_layer/internal/app/core"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/access"
	compliancedomain "github.com/TraceChain-Network/ledger_layer/internal/app/domain/compliance"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/product"
	"github.com/TraceChain-Network/ledger_layer/internal/app/events"
	"github.com/TraceChain-Network/ledger_layer/internal/app/metrics"
	"github.com/TraceChain-Network/ledger_layer/internal/app/services/accessctrl"
	"github.com/TraceChain-Network/ledger_layer/internal/app/storage"
	"github.com/TraceChain-Network/ledger_layer/pkg/logger"
)

const serviceName = "compliance"

const (
	minWeight = 1
	maxWeight = 10
)

// ProductReader resolves products for applicability checks. Nil skips them.
type ProductReader interface {
	GetProduct(ctx context.Context, id uint64) (product.Product, error)
}

// CounterSink receives rule and check count deltas. Factory deployments wire
// this back to the parent so factory-level stats stay O(1).
type CounterSink interface {
	UpdateRuleCount(ctx context.Context, delta int64) error
	UpdateCheckCount(ctx context.Context, delta int64) error
}

// Service is the compliance engine component.
type Service struct {
	store     storage.ComplianceStore
	acl       *accessctrl.Service
	products  ProductReader
	sink      CounterSink
	events    events.Logger
	logger    *logger.Logger
	guard     core.Guard
	threshold int
	tenant    string
}

// Option configures a Service.
type Option func(*Service)

// WithTenant tags emitted events with a tenant handle.
func WithTenant(handle string) Option {
	return func(s *Service) { s.tenant = handle }
}

// WithCounterSink forwards count deltas to a parent factory.
func WithCounterSink(sink CounterSink) Option {
	return func(s *Service) { s.sink = sink }
}

// New creates the compliance service. Checks pass at score >= threshold.
func New(store storage.ComplianceStore, acl *accessctrl.Service, products ProductReader, threshold int, eventLog events.Logger, log *logger.Logger, opts ...Option) (*Service, error) {
	if acl == nil {
		return nil, core.RequiredError("access control")
	}
	if threshold < 0 || threshold > 100 {
		return nil, core.NewValidationError("threshold", "must be within 0..100")
	}
	if log == nil {
		log = logger.NewDefault(serviceName)
	}
	s := &Service{
		store:     store,
		acl:       acl,
		products:  products,
		events:    events.OrNoOp(eventLog),
		logger:    log,
		threshold: threshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) reject(err error) error {
	metrics.OperationRejected(serviceName, core.Kind(err))
	return err
}

func (s *Service) emit(eventType events.Type, actor string, pairs ...string) {
	ev := events.New(eventType, actor, pairs...)
	ev.Tenant = s.tenant
	s.events.Emit(ev)
}

// RuleInput carries caller-supplied rule fields. RequiredEvidence lists the
// evidence keys the scoring function measures completeness against.
type RuleInput struct {
	Code             string
	Title            string
	ApplicableType   string
	Description      string
	Standard         string
	Weight           int
	RequiredEvidence []string
}

func validateRule(in RuleInput) error {
	if in.Code == "" {
		return core.RequiredError("code")
	}
	if in.Title == "" {
		return core.RequiredError("title")
	}
	if in.Weight < minWeight || in.Weight > maxWeight {
		return core.NewValidationError("weight",
			fmt.Sprintf("must be within %d..%d", minWeight, maxWeight))
	}
	return nil
}

// AddRule registers a compliance rule. Caller must hold admin.
func (s *Service) AddRule(ctx context.Context, caller string, in RuleInput) (compliancedomain.Rule, error) {
	if err := s.guard.Enter(); err != nil {
		return compliancedomain.Rule{}, err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return compliancedomain.Rule{}, s.reject(err)
	}
	if err := s.acl.RequireRole(ctx, access.RoleAdmin, caller); err != nil {
		return compliancedomain.Rule{}, s.reject(err)
	}
	if err := validateRule(in); err != nil {
		return compliancedomain.Rule{}, s.reject(err)
	}

	created, err := s.store.CreateRule(ctx, compliancedomain.Rule{
		Code:             in.Code,
		Title:            in.Title,
		ApplicableType:   in.ApplicableType,
		Description:      in.Description,
		Standard:         in.Standard,
		Weight:           in.Weight,
		RequiredEvidence: in.RequiredEvidence,
	})
	if err != nil {
		return compliancedomain.Rule{}, s.reject(err)
	}

	if s.sink != nil {
		if err := s.sink.UpdateRuleCount(ctx, 1); err != nil {
			s.logger.WithError(err).Warn("report rule count")
		}
	}
	s.emit(events.ComplianceRuleAdded, caller, "rule_id", fmt.Sprint(created.ID), "code", created.Code)
	return created, nil
}

// ReplaceRule swaps the rule under code for a fresh definition. Allowed only
// before the old rule has recorded any check. Caller must hold admin.
func (s *Service) ReplaceRule(ctx context.Context, caller, code string, in RuleInput) (compliancedomain.Rule, error) {
	if err := s.guard.Enter(); err != nil {
		return compliancedomain.Rule{}, err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return compliancedomain.Rule{}, s.reject(err)
	}
	if err := s.acl.RequireRole(ctx, access.RoleAdmin, caller); err != nil {
		return compliancedomain.Rule{}, s.reject(err)
	}
	in.Code = code
	if err := validateRule(in); err != nil {
		return compliancedomain.Rule{}, s.reject(err)
	}

	replaced, err := s.store.ReplaceRule(ctx, code, compliancedomain.Rule{
		Title:            in.Title,
		ApplicableType:   in.ApplicableType,
		Description:      in.Description,
		Standard:         in.Standard,
		Weight:           in.Weight,
		RequiredEvidence: in.RequiredEvidence,
	})
	if err != nil {
		return compliancedomain.Rule{}, s.reject(err)
	}

	s.emit(events.ComplianceRuleReplaced, caller, "rule_id", fmt.Sprint(replaced.ID), "code", code)
	return replaced, nil
}

// CheckInput carries caller-supplied check fields. The score is computed
// from the evidence, never supplied.
type CheckInput struct {
	ProductID   uint64
	RuleCode    string
	Evidence    map[string]string
	EvidenceRef string
}

// RunCheck scores the evidence against the rule and records the evaluation.
// Caller must hold the processor role; the check passes at score >= threshold.
func (s *Service) RunCheck(ctx context.Context, caller string, in CheckInput) (compliancedomain.Check, error) {
	if err := s.guard.Enter(); err != nil {
		return compliancedomain.Check{}, err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return compliancedomain.Check{}, s.reject(err)
	}
	if err := s.acl.RequireRole(ctx, access.RoleProcessor, caller); err != nil {
		return compliancedomain.Check{}, s.reject(err)
	}
	rule, err := s.store.GetRuleByCode(ctx, in.RuleCode)
	if err != nil {
		return compliancedomain.Check{}, s.reject(err)
	}
	if s.products != nil {
		p, err := s.products.GetProduct(ctx, in.ProductID)
		if err != nil {
			return compliancedomain.Check{}, s.reject(err)
		}
		if rule.ApplicableType != "" && rule.ApplicableType != p.Type {
			return compliancedomain.Check{}, s.reject(core.NewValidationError("rule",
				fmt.Sprintf("rule %s applies to %q products only", rule.Code, rule.ApplicableType)))
		}
	}

	score := compliancedomain.ScoreEvidence(rule.RequiredEvidence, in.Evidence, rule.Weight)
	passed := score >= s.threshold
	created, err := s.store.CreateCheck(ctx, compliancedomain.Check{
		ProductID:   in.ProductID,
		RuleID:      rule.ID,
		Score:       score,
		Passed:      passed,
		Evidence:    in.Evidence,
		EvidenceRef: in.EvidenceRef,
	})
	if err != nil {
		return compliancedomain.Check{}, s.reject(err)
	}

	if s.sink != nil {
		if err := s.sink.UpdateCheckCount(ctx, 1); err != nil {
			s.logger.WithError(err).Warn("report check count")
		}
	}
	metrics.ComplianceChecked(passed)
	s.emit(events.ComplianceChecked, caller,
		"product_id", fmt.Sprint(in.ProductID),
		"rule", rule.Code,
		"score", fmt.Sprint(score),
		"passed", fmt.Sprint(passed))
	return created, nil
}

// Rule returns the rule currently registered under code.
func (s *Service) Rule(ctx context.Context, code string) (compliancedomain.Rule, error) {
	return s.store.GetRuleByCode(ctx, code)
}

// Rules lists every registered rule.
func (s *Service) Rules(ctx context.Context) ([]compliancedomain.Rule, error) {
	return s.store.ListRules(ctx)
}

// Checks lists a product's recorded checks.
func (s *Service) Checks(ctx context.Context, productID uint64) ([]compliancedomain.Check, error) {
	return s.store.ListChecks(ctx, productID)
}

// Stats returns the aggregate counters.
func (s *Service) Stats(ctx context.Context) (compliancedomain.Stats, error) {
	return s.store.Stats(ctx)
}
