// Package factory deploys isolated component instances for organizations:
// each deploy allocates a fresh storage namespace, binds a service of the
// requested kind to it, and records the instance in the parent ledger.
// Compliance instances report rule and check counts back through callbacks
// so factory-level stats read O(1).
package factory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/TraceChain-Network/ledger_layer/internal/app/core"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/access"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/tenant"
	"github.com/TraceChain-Network/ledger_layer/internal/app/events"
	"github.com/TraceChain-Network/ledger_layer/internal/app/metrics"
	"github.com/TraceChain-Network/ledger_layer/internal/app/services/accessctrl"
	"github.com/TraceChain-Network/ledger_layer/internal/app/services/certificates"
	"github.com/TraceChain-Network/ledger_layer/internal/app/services/compliance"
	"github.com/TraceChain-Network/ledger_layer/internal/app/services/registry"
	"github.com/TraceChain-Network/ledger_layer/internal/app/storage"
	"github.com/TraceChain-Network/ledger_layer/internal/app/storage/memory"
	"github.com/TraceChain-Network/ledger_layer/pkg/logger"
)

const serviceName = "factory"

// Store is the parent-ledger persistence surface the factory needs.
type Store interface {
	storage.TenantStore
	storage.SettlementStore
}

// Config carries the deployment parameters.
type Config struct {
	DeployFee           decimal.Decimal
	TreasuryAccount     string
	ComplianceThreshold int
}

// Deployment bundles an instance record with its live service. Exactly one
// of the service fields is set, matching the instance kind.
type Deployment struct {
	Instance     tenant.Instance
	Registry     *registry.Service
	Certificates *certificates.Service
	Compliance   *compliance.Service
}

// Service is the multi-tenant factory component.
type Service struct {
	store  Store
	acl    *accessctrl.Service
	events events.Logger
	logger *logger.Logger
	guard  core.Guard
	cfg    Config

	mu          sync.RWMutex
	deployments map[string]*Deployment
}

// New creates the factory service.
func New(store Store, acl *accessctrl.Service, cfg Config, eventLog events.Logger, log *logger.Logger) (*Service, error) {
	if acl == nil {
		return nil, core.RequiredError("access control")
	}
	if cfg.DeployFee.IsNegative() {
		return nil, core.NewValidationError("deploy fee", "must not be negative")
	}
	if cfg.TreasuryAccount == "" {
		return nil, core.RequiredError("treasury account")
	}
	if log == nil {
		log = logger.NewDefault(serviceName)
	}
	return &Service{
		store:       store,
		acl:         acl,
		events:      events.OrNoOp(eventLog),
		logger:      log,
		cfg:         cfg,
		deployments: make(map[string]*Deployment),
	}, nil
}

func (s *Service) reject(err error) error {
	metrics.OperationRejected(serviceName, core.Kind(err))
	return err
}

// Deploy allocates a fresh namespace and binds a service of kind to it.
// The caller pays the deployment fee from its settlement balance; an
// overpayment never leaves the caller.
func (s *Service) Deploy(ctx context.Context, caller string, kind tenant.Kind, key string, metadata map[string]string, payment decimal.Decimal) (*Deployment, error) {
	if err := s.guard.Enter(); err != nil {
		return nil, err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return nil, s.reject(err)
	}
	if caller == "" {
		return nil, s.reject(core.RequiredError("caller"))
	}
	if !kind.Valid() {
		return nil, s.reject(core.NewValidationError("kind", fmt.Sprintf("unknown instance kind %q", kind)))
	}
	if key == "" {
		return nil, s.reject(core.RequiredError("key"))
	}
	if payment.LessThan(s.cfg.DeployFee) {
		return nil, s.reject(core.NewFundsError(caller,
			fmt.Sprintf("payment %s is below the deployment fee %s", payment, s.cfg.DeployFee)))
	}
	if _, err := s.store.GetInstanceByKey(ctx, kind, key); err == nil {
		return nil, s.reject(core.NewConflictError("tenant", key,
			fmt.Sprintf("active %s instance already deployed for key", kind)))
	} else if !core.IsNotFound(err) {
		return nil, s.reject(err)
	}
	balance, err := s.store.SettlementBalance(ctx, caller)
	if err != nil {
		return nil, s.reject(err)
	}
	if balance.LessThan(s.cfg.DeployFee) {
		return nil, s.reject(core.NewFundsError(caller,
			fmt.Sprintf("settlement balance %s is below the fee %s", balance, s.cfg.DeployFee)))
	}

	// Only the fee moves; the overpayment never leaves the caller.
	if s.cfg.DeployFee.IsPositive() {
		if err := s.store.SettlementTransfer(ctx, caller, s.cfg.TreasuryAccount, s.cfg.DeployFee); err != nil {
			return nil, s.reject(err)
		}
	}

	handle := uuid.NewString()
	inst, err := s.store.CreateInstance(ctx, tenant.Instance{
		Handle:   handle,
		Kind:     kind,
		Org:      caller,
		Key:      key,
		Metadata: metadata,
	})
	if err != nil {
		return nil, s.reject(err)
	}

	dep, err := s.bind(inst)
	if err != nil {
		return nil, s.reject(err)
	}

	s.mu.Lock()
	s.deployments[handle] = dep
	s.mu.Unlock()

	metrics.InstanceDeployed(string(kind))
	s.events.Emit(events.New(events.InstanceDeployed, caller,
		"handle", handle, "kind", string(kind), "key", key,
		"fee", s.cfg.DeployFee.String(), "refund", payment.Sub(s.cfg.DeployFee).String()))
	s.logger.WithField("handle", handle).WithField("kind", kind).Info("instance deployed")
	return dep, nil
}

// bind builds the live service for an instance over a fresh namespace.
func (s *Service) bind(inst tenant.Instance) (*Deployment, error) {
	namespace := memory.New()
	dep := &Deployment{Instance: inst}

	var err error
	switch inst.Kind {
	case tenant.KindRegistry:
		dep.Registry, err = registry.New(namespace, s.acl, s.events, s.logger,
			registry.WithTenant(inst.Handle))
	case tenant.KindCertificates:
		dep.Certificates, err = certificates.New(namespace, s.acl, nil, s.events, s.logger,
			certificates.WithTenant(inst.Handle))
	case tenant.KindCompliance:
		dep.Compliance, err = compliance.New(namespace, s.acl, nil, s.cfg.ComplianceThreshold,
			s.events, s.logger,
			compliance.WithTenant(inst.Handle),
			compliance.WithCounterSink(&counterSink{factory: s, handle: inst.Handle}))
	default:
		err = core.NewValidationError("kind", fmt.Sprintf("unknown instance kind %q", inst.Kind))
	}
	if err != nil {
		return nil, err
	}
	return dep, nil
}

// counterSink forwards per-instance rule and check deltas into the parent
// instance record.
type counterSink struct {
	factory *Service
	handle  string
}

func (c *counterSink) UpdateRuleCount(ctx context.Context, delta int64) error {
	return c.factory.applyCounts(ctx, c.handle, delta, 0)
}

func (c *counterSink) UpdateCheckCount(ctx context.Context, delta int64) error {
	return c.factory.applyCounts(ctx, c.handle, 0, delta)
}

func (s *Service) applyCounts(ctx context.Context, handle string, rules, checks int64) error {
	inst, err := s.store.GetInstance(ctx, handle)
	if err != nil {
		return err
	}
	inst.RuleCount += rules
	inst.CheckCount += checks
	updated, err := s.store.UpdateInstance(ctx, inst)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if dep, ok := s.deployments[handle]; ok {
		dep.Instance = updated
	}
	s.mu.Unlock()
	return nil
}

// Deactivate retires an instance and frees its key. Deploying org or admin.
func (s *Service) Deactivate(ctx context.Context, caller, handle string) error {
	return s.setActive(ctx, caller, handle, false)
}

// Reactivate restores a retired instance; fails if another active instance
// took the key meanwhile.
func (s *Service) Reactivate(ctx context.Context, caller, handle string) error {
	return s.setActive(ctx, caller, handle, true)
}

func (s *Service) setActive(ctx context.Context, caller, handle string, active bool) error {
	if err := s.guard.Enter(); err != nil {
		return err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return s.reject(err)
	}
	inst, err := s.store.GetInstance(ctx, handle)
	if err != nil {
		return s.reject(err)
	}
	if caller != inst.Org {
		if err := s.acl.RequireRole(ctx, access.RoleAdmin, caller); err != nil {
			return s.reject(err)
		}
	}
	if inst.Active == active {
		reason := "already active"
		if !active {
			reason = "already deactivated"
		}
		return s.reject(core.NewConflictError("tenant instance", handle, reason))
	}

	inst.Active = active
	updated, err := s.store.UpdateInstance(ctx, inst)
	if err != nil {
		return s.reject(err)
	}

	s.mu.Lock()
	if dep, ok := s.deployments[handle]; ok {
		dep.Instance = updated
	}
	s.mu.Unlock()

	eventType := events.InstanceDeactivated
	if active {
		eventType = events.InstanceReactivated
	}
	s.events.Emit(events.New(eventType, caller, "handle", handle))
	return nil
}

// Deployment returns the live deployment for handle.
func (s *Service) Deployment(handle string) (*Deployment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dep, ok := s.deployments[handle]
	return dep, ok
}

// Instance returns the persisted instance record.
func (s *Service) Instance(ctx context.Context, handle string) (tenant.Instance, error) {
	return s.store.GetInstance(ctx, handle)
}

// Instances lists instance records, optionally filtered by kind.
func (s *Service) Instances(ctx context.Context, kind tenant.Kind) ([]tenant.Instance, error) {
	return s.store.ListInstances(ctx, kind)
}

// Stats returns the factory-level aggregates.
func (s *Service) Stats(ctx context.Context) (tenant.Stats, error) {
	return s.store.TenantStats(ctx)
}
