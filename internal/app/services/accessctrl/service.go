// Package accessctrl implements role-based access control and the global
// pause switch. Other services consult it before mutating state.
package accessctrl

import (
	"context"
	"fmt"
	"time"

	"github.com/TraceChain-Network/ledger_layer/internal/app/core"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/access"
	"github.com/TraceChain-Network/ledger_layer/internal/app/events"
	"github.com/TraceChain-Network/ledger_layer/internal/app/metrics"
	"github.com/TraceChain-Network/ledger_layer/internal/app/storage"
	"github.com/TraceChain-Network/ledger_layer/pkg/logger"
)

const serviceName = "access"

var knownRoles = map[string]bool{
	access.RoleAdmin:       true,
	access.RoleDistributor: true,
	access.RoleProcessor:   true,
	access.RoleArbiter:     true,
	access.RoleMinter:      true,
}

// Service is the access control component. The deploying owner receives the
// admin role at construction and cannot lose it.
type Service struct {
	store  storage.AccessStore
	events events.Logger
	logger *logger.Logger
	guard  core.Guard
	owner  string
}

// New creates the access control service and grants the owner the admin role.
func New(store storage.AccessStore, owner string, eventLog events.Logger, log *logger.Logger) (*Service, error) {
	if owner == "" {
		return nil, core.RequiredError("owner")
	}
	if log == nil {
		log = logger.NewDefault(serviceName)
	}

	s := &Service{
		store:  store,
		events: events.OrNoOp(eventLog),
		logger: log,
		owner:  owner,
	}

	err := store.GrantRole(context.Background(), access.Grant{
		Role:      access.RoleAdmin,
		Account:   owner,
		GrantedBy: owner,
		GrantedAt: time.Now().UTC(),
	})
	if err != nil && !core.IsConflict(err) {
		return nil, fmt.Errorf("bootstrap owner admin: %w", err)
	}
	return s, nil
}

// Owner returns the deploying owner account.
func (s *Service) Owner() string { return s.owner }

func (s *Service) reject(err error) error {
	metrics.OperationRejected(serviceName, core.Kind(err))
	return err
}

// GrantRole assigns role to account. Caller must hold admin.
func (s *Service) GrantRole(ctx context.Context, caller, role, account string) error {
	if err := s.guard.Enter(); err != nil {
		return err
	}
	defer s.guard.Exit()

	if !knownRoles[role] {
		return s.reject(core.NewValidationError("role", fmt.Sprintf("unknown role %q", role)))
	}
	if account == "" {
		return s.reject(core.RequiredError("account"))
	}
	if err := s.RequireRole(ctx, access.RoleAdmin, caller); err != nil {
		return s.reject(err)
	}

	grant := access.Grant{
		Role:      role,
		Account:   account,
		GrantedBy: caller,
		GrantedAt: time.Now().UTC(),
	}
	if err := s.store.GrantRole(ctx, grant); err != nil {
		return s.reject(err)
	}

	s.events.Emit(events.New(events.RoleGranted, caller, "role", role, "account", account))
	s.logger.WithField("role", role).WithField("account", account).Info("role granted")
	return nil
}

// RevokeRole removes role from account. Caller must hold admin. The owner's
// admin grant is permanent.
func (s *Service) RevokeRole(ctx context.Context, caller, role, account string) error {
	if err := s.guard.Enter(); err != nil {
		return err
	}
	defer s.guard.Exit()

	if err := s.RequireRole(ctx, access.RoleAdmin, caller); err != nil {
		return s.reject(err)
	}
	if role == access.RoleAdmin && account == s.owner {
		return s.reject(core.NewConflictError("role", role, "owner admin grant cannot be revoked"))
	}

	if err := s.store.RevokeRole(ctx, role, account); err != nil {
		return s.reject(err)
	}

	s.events.Emit(events.New(events.RoleRevoked, caller, "role", role, "account", account))
	s.logger.WithField("role", role).WithField("account", account).Info("role revoked")
	return nil
}

// HasRole reports whether account holds role.
func (s *Service) HasRole(ctx context.Context, role, account string) (bool, error) {
	return s.store.HasRole(ctx, role, account)
}

// ListGrants returns every grant held by account.
func (s *Service) ListGrants(ctx context.Context, account string) ([]access.Grant, error) {
	return s.store.ListGrants(ctx, account)
}

// Pause halts all state-changing operations outside this service.
// Caller must hold admin.
func (s *Service) Pause(ctx context.Context, caller string) error {
	if err := s.guard.Enter(); err != nil {
		return err
	}
	defer s.guard.Exit()

	if err := s.RequireRole(ctx, access.RoleAdmin, caller); err != nil {
		return s.reject(err)
	}
	paused, err := s.store.Paused(ctx)
	if err != nil {
		return s.reject(err)
	}
	if paused {
		return s.reject(core.NewConflictError("system", "pause", "already paused"))
	}

	if err := s.store.SetPaused(ctx, true); err != nil {
		return s.reject(err)
	}
	s.events.Emit(events.New(events.Paused, caller))
	s.logger.Warn("system paused")
	return nil
}

// Unpause resumes state-changing operations. Caller must hold admin.
func (s *Service) Unpause(ctx context.Context, caller string) error {
	if err := s.guard.Enter(); err != nil {
		return err
	}
	defer s.guard.Exit()

	if err := s.RequireRole(ctx, access.RoleAdmin, caller); err != nil {
		return s.reject(err)
	}
	paused, err := s.store.Paused(ctx)
	if err != nil {
		return s.reject(err)
	}
	if !paused {
		return s.reject(core.NewConflictError("system", "pause", "not paused"))
	}

	if err := s.store.SetPaused(ctx, false); err != nil {
		return s.reject(err)
	}
	s.events.Emit(events.New(events.Unpaused, caller))
	s.logger.Info("system unpaused")
	return nil
}

// RequireActive fails with ErrPaused while the system is paused.
func (s *Service) RequireActive(ctx context.Context) error {
	paused, err := s.store.Paused(ctx)
	if err != nil {
		return err
	}
	if paused {
		return core.ErrPaused
	}
	return nil
}

// RequireRole fails with an authorization error unless account holds role.
func (s *Service) RequireRole(ctx context.Context, role, account string) error {
	if account == "" {
		return core.RequiredError("caller")
	}
	ok, err := s.store.HasRole(ctx, role, account)
	if err != nil {
		return err
	}
	if !ok {
		return &core.AccessDeniedError{
			Resource: "role",
			ID:       role,
			Caller:   account,
			Reason:   "role not granted",
		}
	}
	return nil
}

// RequireAnyRole succeeds when account holds at least one of roles.
func (s *Service) RequireAnyRole(ctx context.Context, account string, roles ...string) error {
	for _, role := range roles {
		ok, err := s.store.HasRole(ctx, role, account)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return &core.AccessDeniedError{
		Resource: "role",
		ID:       fmt.Sprint(roles),
		Caller:   account,
		Reason:   "none of the required roles granted",
	}
}
