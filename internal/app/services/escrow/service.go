// Package escrow implements milestone-based payment escrow over the
// settlement-asset ledger. Funds move payer -> per-escrow vault at creation
// and vault -> payee/treasury/payer on release, resolution, or cancellation,
// so every path conserves the funded amount exactly.
package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/TraceChain-Network/ledger_layer/internal/app/core"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/access"
	escrowdomain "github.com/TraceChain-Network/ledger_layer/internal/app/domain/escrow"
	"github.com/TraceChain-Network/ledger_layer/internal/app/events"
	"github.com/TraceChain-Network/ledger_layer/internal/app/metrics"
	"github.com/TraceChain-Network/ledger_layer/internal/app/services/accessctrl"
	"github.com/TraceChain-Network/ledger_layer/internal/app/storage"
	"github.com/TraceChain-Network/ledger_layer/pkg/logger"
)

const serviceName = "escrow"

var bpsDenominator = decimal.NewFromInt(10000)

// Store is the persistence surface this service needs: escrow records plus
// the settlement-asset ledger the funds move on.
type Store interface {
	storage.EscrowStore
	storage.SettlementStore
}

// Config carries the escrow fee parameters.
type Config struct {
	FeeBps          int64
	TreasuryAccount string
}

// Service is the payment escrow component.
type Service struct {
	store  Store
	acl    *accessctrl.Service
	events events.Logger
	logger *logger.Logger
	guard  core.Guard
	cfg    Config
}

// New creates the escrow service.
func New(store Store, acl *accessctrl.Service, cfg Config, eventLog events.Logger, log *logger.Logger) (*Service, error) {
	if acl == nil {
		return nil, core.RequiredError("access control")
	}
	if cfg.FeeBps < 0 || cfg.FeeBps >= 10000 {
		return nil, core.NewValidationError("fee bps", "must be within 0..9999")
	}
	if cfg.TreasuryAccount == "" {
		return nil, core.RequiredError("treasury account")
	}
	if log == nil {
		log = logger.NewDefault(serviceName)
	}
	return &Service{
		store:  store,
		acl:    acl,
		events: events.OrNoOp(eventLog),
		logger: log,
		cfg:    cfg,
	}, nil
}

func (s *Service) reject(err error) error {
	metrics.OperationRejected(serviceName, core.Kind(err))
	return err
}

func vaultAccount(id string) string { return "escrow:" + id }

// Create funds a new escrow from the payer's settlement balance. The escrow
// amount is the sum of its milestones.
func (s *Service) Create(ctx context.Context, payer, payee string, milestones []escrowdomain.MilestoneInput) (escrowdomain.Escrow, error) {
	if err := s.guard.Enter(); err != nil {
		return escrowdomain.Escrow{}, err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return escrowdomain.Escrow{}, s.reject(err)
	}
	if payer == "" || payee == "" {
		return escrowdomain.Escrow{}, s.reject(core.RequiredError("party"))
	}
	if payer == payee {
		return escrowdomain.Escrow{}, s.reject(core.NewValidationError("payee", "payer and payee must differ"))
	}
	if len(milestones) == 0 {
		return escrowdomain.Escrow{}, s.reject(core.RequiredError("milestones"))
	}

	total := decimal.Zero
	built := make([]escrowdomain.Milestone, 0, len(milestones))
	for i, m := range milestones {
		if !m.Amount.IsPositive() {
			return escrowdomain.Escrow{}, s.reject(core.NewValidationError(
				fmt.Sprintf("milestone %d", i), "amount must be positive"))
		}
		total = total.Add(m.Amount)
		built = append(built, escrowdomain.Milestone{Description: m.Description, Amount: m.Amount})
	}

	balance, err := s.store.SettlementBalance(ctx, payer)
	if err != nil {
		return escrowdomain.Escrow{}, s.reject(err)
	}
	if balance.LessThan(total) {
		return escrowdomain.Escrow{}, s.reject(core.NewFundsError(payer,
			fmt.Sprintf("settlement balance %s is below %s", balance, total)))
	}

	id := uuid.NewString()
	if err := s.store.SettlementTransfer(ctx, payer, vaultAccount(id), total); err != nil {
		return escrowdomain.Escrow{}, s.reject(err)
	}

	created, err := s.store.CreateEscrow(ctx, escrowdomain.Escrow{
		ID:            id,
		Payer:         payer,
		Payee:         payee,
		Amount:        total,
		FeeBps:        s.cfg.FeeBps,
		Milestones:    built,
		State:         escrowdomain.StateOpen,
		ReleasedTotal: decimal.Zero,
		FeeTotal:      decimal.Zero,
		RefundTotal:   decimal.Zero,
	})
	if err != nil {
		return escrowdomain.Escrow{}, s.reject(err)
	}

	s.events.Emit(events.New(events.EscrowCreated, payer,
		"escrow_id", id, "payee", payee, "amount", total.String()))
	s.logger.WithField("escrow_id", id).WithField("amount", total.String()).Info("escrow created")
	return created, nil
}

// ReleaseMilestone pays one milestone to the payee, minus the protocol fee.
// Payer or an authorized arbiter.
func (s *Service) ReleaseMilestone(ctx context.Context, caller, id string, index int) (escrowdomain.Escrow, error) {
	if err := s.guard.Enter(); err != nil {
		return escrowdomain.Escrow{}, err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return escrowdomain.Escrow{}, s.reject(err)
	}
	e, err := s.store.GetEscrow(ctx, id)
	if err != nil {
		return escrowdomain.Escrow{}, s.reject(err)
	}
	if caller != e.Payer {
		if err := s.acl.RequireAnyRole(ctx, caller, access.RoleArbiter); err != nil {
			return escrowdomain.Escrow{}, s.reject(err)
		}
	}
	if e.State != escrowdomain.StateOpen && e.State != escrowdomain.StatePartiallyReleased {
		return escrowdomain.Escrow{}, s.reject(core.NewConflictError("escrow", id,
			fmt.Sprintf("no releases in state %s", e.State)))
	}
	if index < 0 || index >= len(e.Milestones) {
		return escrowdomain.Escrow{}, s.reject(core.NewNotFoundError("milestone", fmt.Sprintf("%s/%d", id, index)))
	}
	if e.Milestones[index].Released {
		return escrowdomain.Escrow{}, s.reject(core.NewConflictError("milestone",
			fmt.Sprintf("%s/%d", id, index), "already released"))
	}

	amount := e.Milestones[index].Amount
	fee := amount.Mul(decimal.NewFromInt(e.FeeBps)).Div(bpsDenominator).Truncate(8)
	net := amount.Sub(fee)

	if err := s.store.SettlementTransfer(ctx, vaultAccount(id), e.Payee, net); err != nil {
		return escrowdomain.Escrow{}, s.reject(err)
	}
	if fee.IsPositive() {
		if err := s.store.SettlementTransfer(ctx, vaultAccount(id), s.cfg.TreasuryAccount, fee); err != nil {
			return escrowdomain.Escrow{}, s.reject(err)
		}
	}

	e.Milestones[index].Released = true
	e.Milestones[index].ReleasedAt = time.Now().UTC()
	e.ReleasedTotal = e.ReleasedTotal.Add(net)
	e.FeeTotal = e.FeeTotal.Add(fee)

	allReleased := true
	for _, m := range e.Milestones {
		if !m.Released {
			allReleased = false
			break
		}
	}
	if allReleased {
		e.State = escrowdomain.StateResolved
	} else {
		e.State = escrowdomain.StatePartiallyReleased
	}

	updated, err := s.store.UpdateEscrow(ctx, e)
	if err != nil {
		return escrowdomain.Escrow{}, s.reject(err)
	}

	metrics.EscrowReleased()
	s.events.Emit(events.New(events.EscrowReleased, caller,
		"escrow_id", id, "milestone", fmt.Sprint(index),
		"net", net.String(), "fee", fee.String()))
	return updated, nil
}

// Dispute freezes an escrow. Either party may raise it.
func (s *Service) Dispute(ctx context.Context, caller, id string) error {
	if err := s.guard.Enter(); err != nil {
		return err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return s.reject(err)
	}
	e, err := s.store.GetEscrow(ctx, id)
	if err != nil {
		return s.reject(err)
	}
	if caller != e.Payer && caller != e.Payee {
		return s.reject(core.NewAccessDeniedError("escrow", id, caller))
	}
	if e.State != escrowdomain.StateOpen && e.State != escrowdomain.StatePartiallyReleased {
		return s.reject(core.NewConflictError("escrow", id,
			fmt.Sprintf("cannot dispute in state %s", e.State)))
	}

	e.State = escrowdomain.StateDisputed
	if _, err := s.store.UpdateEscrow(ctx, e); err != nil {
		return s.reject(err)
	}
	s.events.Emit(events.New(events.EscrowDisputed, caller, "escrow_id", id))
	return nil
}

// Resolve settles a disputed escrow: payeeBps of the remaining funds go to
// the payee (minus fee), the rest refunds the payer. Arbiter only.
func (s *Service) Resolve(ctx context.Context, caller, id string, payeeBps int64) (escrowdomain.Escrow, error) {
	if err := s.guard.Enter(); err != nil {
		return escrowdomain.Escrow{}, err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return escrowdomain.Escrow{}, s.reject(err)
	}
	if err := s.acl.RequireRole(ctx, access.RoleArbiter, caller); err != nil {
		return escrowdomain.Escrow{}, s.reject(err)
	}
	if payeeBps < 0 || payeeBps > 10000 {
		return escrowdomain.Escrow{}, s.reject(core.NewValidationError("payee bps", "must be within 0..10000"))
	}
	e, err := s.store.GetEscrow(ctx, id)
	if err != nil {
		return escrowdomain.Escrow{}, s.reject(err)
	}
	if e.State != escrowdomain.StateDisputed {
		return escrowdomain.Escrow{}, s.reject(core.NewConflictError("escrow", id, "escrow is not disputed"))
	}

	remaining := e.Amount.Sub(e.ReleasedTotal).Sub(e.FeeTotal).Sub(e.RefundTotal)
	payeeGross := remaining.Mul(decimal.NewFromInt(payeeBps)).Div(bpsDenominator).Truncate(8)
	fee := payeeGross.Mul(decimal.NewFromInt(e.FeeBps)).Div(bpsDenominator).Truncate(8)
	net := payeeGross.Sub(fee)
	refund := remaining.Sub(payeeGross)

	if net.IsPositive() {
		if err := s.store.SettlementTransfer(ctx, vaultAccount(id), e.Payee, net); err != nil {
			return escrowdomain.Escrow{}, s.reject(err)
		}
	}
	if fee.IsPositive() {
		if err := s.store.SettlementTransfer(ctx, vaultAccount(id), s.cfg.TreasuryAccount, fee); err != nil {
			return escrowdomain.Escrow{}, s.reject(err)
		}
	}
	if refund.IsPositive() {
		if err := s.store.SettlementTransfer(ctx, vaultAccount(id), e.Payer, refund); err != nil {
			return escrowdomain.Escrow{}, s.reject(err)
		}
	}

	e.ReleasedTotal = e.ReleasedTotal.Add(net)
	e.FeeTotal = e.FeeTotal.Add(fee)
	e.RefundTotal = e.RefundTotal.Add(refund)
	e.State = escrowdomain.StateResolved

	updated, err := s.store.UpdateEscrow(ctx, e)
	if err != nil {
		return escrowdomain.Escrow{}, s.reject(err)
	}
	s.events.Emit(events.New(events.EscrowResolved, caller,
		"escrow_id", id, "net", net.String(), "fee", fee.String(), "refund", refund.String()))
	return updated, nil
}

// Cancel refunds an untouched escrow in full, with no fee. Payer only, open
// state only.
func (s *Service) Cancel(ctx context.Context, caller, id string) error {
	if err := s.guard.Enter(); err != nil {
		return err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return s.reject(err)
	}
	e, err := s.store.GetEscrow(ctx, id)
	if err != nil {
		return s.reject(err)
	}
	if caller != e.Payer {
		return s.reject(core.NewAccessDeniedError("escrow", id, caller))
	}
	if e.State != escrowdomain.StateOpen {
		return s.reject(core.NewConflictError("escrow", id,
			fmt.Sprintf("cannot cancel in state %s", e.State)))
	}

	if err := s.store.SettlementTransfer(ctx, vaultAccount(id), e.Payer, e.Amount); err != nil {
		return s.reject(err)
	}
	e.RefundTotal = e.Amount
	e.State = escrowdomain.StateCancelled
	if _, err := s.store.UpdateEscrow(ctx, e); err != nil {
		return s.reject(err)
	}
	s.events.Emit(events.New(events.EscrowCancelled, caller, "escrow_id", id))
	return nil
}

// Escrow returns one escrow by id.
func (s *Service) Escrow(ctx context.Context, id string) (escrowdomain.Escrow, error) {
	return s.store.GetEscrow(ctx, id)
}

// ByParty lists escrows where account is payer or payee.
func (s *Service) ByParty(ctx context.Context, account string) ([]escrowdomain.Escrow, error) {
	return s.store.ListEscrowsByParty(ctx, account)
}
