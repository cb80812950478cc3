// Package rewards implements action-based reward accrual with anti-gaming
// limits, batch processing, and claims paid out through the token ledger.
package rewards

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/TraceChain-Network/ledger_layer/internal/app/core"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/access"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/reward"
	"github.com/TraceChain-Network/ledger_layer/internal/app/events"
	"github.com/TraceChain-Network/ledger_layer/internal/app/metrics"
	"github.com/TraceChain-Network/ledger_layer/internal/app/services/accessctrl"
	"github.com/TraceChain-Network/ledger_layer/internal/app/storage"
	"github.com/TraceChain-Network/ledger_layer/pkg/logger"
)

const serviceName = "rewards"

// maxMultiplierBps caps the metadata multiplier at 5x.
const maxMultiplierBps = 50000

var bpsDenominator = decimal.NewFromInt(10000)

// TokenDistributor pays claimed rewards from the ecosystem pool.
// The token service satisfies this interface.
type TokenDistributor interface {
	Distribute(ctx context.Context, caller, account string, amount decimal.Decimal) error
}

// PriceSource supplies the already-resolved reference price used to scale
// accrual amounts on emitted events. Reads must not block; the price is
// informational and never changes the accrued amount.
type PriceSource interface {
	Price(ctx context.Context) (decimal.Decimal, error)
}

// StaticPrice is a PriceSource pinned to one value.
type StaticPrice struct {
	Value decimal.Decimal
}

func (p StaticPrice) Price(context.Context) (decimal.Decimal, error) {
	return p.Value, nil
}

// Config carries the anti-gaming limits.
type Config struct {
	MinInterval     time.Duration
	MaxDailyActions int
	MaxDaily        decimal.Decimal
	BatchSize       int

	// DistributorAccount is the identity this service presents to the token
	// ledger; it must hold the minter role.
	DistributorAccount string
}

// Service is the rewards distribution component.
type Service struct {
	store       storage.RewardStore
	acl         *accessctrl.Service
	distributor TokenDistributor
	prices      PriceSource
	events      events.Logger
	logger      *logger.Logger
	guard       core.Guard
	cfg         Config

	now func() time.Time
}

// New creates the rewards service. A nil price source omits the price fields
// from accrual events.
func New(store storage.RewardStore, acl *accessctrl.Service, distributor TokenDistributor, prices PriceSource, cfg Config, eventLog events.Logger, log *logger.Logger) (*Service, error) {
	if acl == nil {
		return nil, core.RequiredError("access control")
	}
	if distributor == nil {
		return nil, core.RequiredError("token distributor")
	}
	if cfg.BatchSize <= 0 {
		return nil, core.NewValidationError("batch size", "must be positive")
	}
	if log == nil {
		log = logger.NewDefault(serviceName)
	}
	return &Service{
		store:       store,
		acl:         acl,
		distributor: distributor,
		prices:      prices,
		events:      events.OrNoOp(eventLog),
		logger:      log,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Service) reject(err error) error {
	metrics.OperationRejected(serviceName, core.Kind(err))
	return err
}

// SetRate configures the base reward for an action category and activates it.
// Caller must hold admin.
func (s *Service) SetRate(ctx context.Context, caller, action string, base decimal.Decimal) error {
	if err := s.guard.Enter(); err != nil {
		return err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return s.reject(err)
	}
	if err := s.acl.RequireRole(ctx, access.RoleAdmin, caller); err != nil {
		return s.reject(err)
	}
	if action == "" {
		return s.reject(core.RequiredError("action"))
	}
	if base.IsNegative() {
		return s.reject(core.NewValidationError("base", "must not be negative"))
	}

	if err := s.store.PutRate(ctx, reward.Rate{Action: action, Base: base, Active: true}); err != nil {
		return s.reject(err)
	}
	s.events.Emit(events.New(events.RewardRateSet, caller, "action", action, "base", base.String()))
	return nil
}

// ToggleCategory switches an action category on or off. Caller must hold admin.
func (s *Service) ToggleCategory(ctx context.Context, caller, action string, active bool) error {
	if err := s.guard.Enter(); err != nil {
		return err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return s.reject(err)
	}
	if err := s.acl.RequireRole(ctx, access.RoleAdmin, caller); err != nil {
		return s.reject(err)
	}
	rate, ok, err := s.store.GetRate(ctx, action)
	if err != nil {
		return s.reject(err)
	}
	if !ok {
		return s.reject(core.NewNotFoundError("reward rate", action))
	}

	rate.Active = active
	if err := s.store.PutRate(ctx, rate); err != nil {
		return s.reject(err)
	}
	s.events.Emit(events.New(events.CategoryToggled, caller,
		"action", action, "active", fmt.Sprint(active)))
	return nil
}

// Rates returns all configured categories.
func (s *Service) Rates(ctx context.Context) ([]reward.Rate, error) {
	return s.store.ListRates(ctx)
}

// AccrualOf returns user's running reward state.
func (s *Service) AccrualOf(ctx context.Context, user string) (reward.Accrual, bool, error) {
	return s.store.GetAccrual(ctx, user)
}

// RecordAction accrues a reward for one user action. Caller must hold the
// distributor role. A rejected call leaves the accrual untouched.
func (s *Service) RecordAction(ctx context.Context, caller, user, action string, meta reward.ActionMetadata) (decimal.Decimal, error) {
	if err := s.guard.Enter(); err != nil {
		return decimal.Zero, err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return decimal.Zero, s.reject(err)
	}
	if err := s.acl.RequireRole(ctx, access.RoleDistributor, caller); err != nil {
		return decimal.Zero, s.reject(err)
	}
	return s.recordOne(ctx, caller, user, action, meta)
}

// recordOne validates, computes, and commits a single accrual. Shared by
// RecordAction and ProcessBatch; authorization happens in the callers.
func (s *Service) recordOne(ctx context.Context, caller, user, action string, meta reward.ActionMetadata) (decimal.Decimal, error) {
	if user == "" {
		return decimal.Zero, s.reject(core.RequiredError("user"))
	}
	meta = meta.Normalized()
	if meta.Version > reward.MetadataVersion {
		return decimal.Zero, s.reject(core.NewValidationError("metadata",
			fmt.Sprintf("unsupported payload version %d", meta.Version)))
	}
	if meta.MultiplierBps < 0 || meta.MultiplierBps > maxMultiplierBps {
		return decimal.Zero, s.reject(core.NewValidationError("metadata",
			fmt.Sprintf("multiplier %d bps out of range", meta.MultiplierBps)))
	}
	if meta.Bonus.IsNegative() {
		return decimal.Zero, s.reject(core.NewValidationError("metadata", "bonus must not be negative"))
	}
	rate, ok, err := s.store.GetRate(ctx, action)
	if err != nil {
		return decimal.Zero, s.reject(err)
	}
	if !ok {
		return decimal.Zero, s.reject(core.NewNotFoundError("reward rate", action))
	}
	if !rate.Active {
		return decimal.Zero, s.reject(core.NewConflictError("reward rate", action, "category is disabled"))
	}

	now := s.now()
	accrual, _, err := s.store.GetAccrual(ctx, user)
	if err != nil {
		return decimal.Zero, s.reject(err)
	}
	accrual.User = user

	// Lazy daily window reset.
	if accrual.DayStart.IsZero() || now.Sub(accrual.DayStart) >= 24*time.Hour {
		accrual.DayStart = now
		accrual.DailyActions = 0
		accrual.DailyAccrued = decimal.Zero
	}

	if !accrual.LastActionAt.IsZero() && now.Sub(accrual.LastActionAt) < s.cfg.MinInterval {
		return decimal.Zero, s.reject(core.NewLimitError("min interval",
			fmt.Sprintf("last action %s ago", now.Sub(accrual.LastActionAt))))
	}
	if accrual.DailyActions >= s.cfg.MaxDailyActions {
		return decimal.Zero, s.reject(core.NewLimitError("daily actions",
			fmt.Sprintf("%d actions already recorded today", accrual.DailyActions)))
	}

	amount := rate.Base.
		Mul(decimal.NewFromInt(meta.MultiplierBps)).
		Div(bpsDenominator).
		Add(meta.Bonus).
		Truncate(8)

	// Accruing exactly up to the cap is allowed; crossing it is not.
	if accrual.DailyAccrued.Add(amount).GreaterThan(s.cfg.MaxDaily) {
		return decimal.Zero, s.reject(core.NewLimitError("daily rewards",
			fmt.Sprintf("accruing %s would exceed the daily cap %s", amount, s.cfg.MaxDaily)))
	}

	accrual.Balance = accrual.Balance.Add(amount)
	if accrual.Categories == nil {
		accrual.Categories = make(map[string]decimal.Decimal)
	}
	accrual.Categories[action] = accrual.Categories[action].Add(amount)
	accrual.LastActionAt = now
	accrual.DailyActions++
	accrual.DailyAccrued = accrual.DailyAccrued.Add(amount)

	if err := s.store.PutAccrual(ctx, accrual); err != nil {
		return decimal.Zero, s.reject(err)
	}

	metrics.RewardAccrued()
	pairs := []string{"user", user, "action", action, "amount", amount.String(), "reference", meta.Reference}
	if s.prices != nil {
		// Synchronous, already-resolved read; the value only annotates the event.
		if price, err := s.prices.Price(ctx); err != nil {
			s.logger.WithError(err).Warn("read reference price")
		} else {
			pairs = append(pairs,
				"price", price.String(),
				"reference_value", amount.Mul(price).Truncate(8).String())
		}
	}
	s.events.Emit(events.New(events.RewardAccrued, caller, pairs...))
	return amount, nil
}

// FlagSuspicious resets a user's daily counters after review. Caller must
// hold the processor role; accrued and claimed balances stay untouched.
func (s *Service) FlagSuspicious(ctx context.Context, caller, user, reason string) error {
	if err := s.guard.Enter(); err != nil {
		return err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return s.reject(err)
	}
	if err := s.acl.RequireRole(ctx, access.RoleProcessor, caller); err != nil {
		return s.reject(err)
	}
	if user == "" {
		return s.reject(core.RequiredError("user"))
	}
	if reason == "" {
		return s.reject(core.RequiredError("reason"))
	}
	accrual, ok, err := s.store.GetAccrual(ctx, user)
	if err != nil {
		return s.reject(err)
	}
	if !ok {
		return s.reject(core.NewNotFoundError("reward accrual", user))
	}

	accrual.DayStart = time.Time{}
	accrual.DailyActions = 0
	accrual.DailyAccrued = decimal.Zero
	if err := s.store.PutAccrual(ctx, accrual); err != nil {
		return s.reject(err)
	}

	s.events.Emit(events.New(events.SuspiciousFlagged, caller, "user", user, "reason", reason))
	s.logger.WithField("user", user).WithField("reason", reason).Info("suspicious activity flagged")
	return nil
}

// ProcessBatch records up to BatchSize actions. Invalid entries are skipped
// with a reason; they never abort the batch.
func (s *Service) ProcessBatch(ctx context.Context, caller string, entries []reward.BatchEntry) ([]reward.BatchResult, error) {
	if err := s.guard.Enter(); err != nil {
		return nil, err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return nil, s.reject(err)
	}
	if err := s.acl.RequireRole(ctx, access.RoleDistributor, caller); err != nil {
		return nil, s.reject(err)
	}
	if len(entries) == 0 {
		return nil, s.reject(core.RequiredError("entries"))
	}
	if len(entries) > s.cfg.BatchSize {
		return nil, s.reject(core.NewLimitError("batch size",
			fmt.Sprintf("%d entries exceed the maximum %d", len(entries), s.cfg.BatchSize)))
	}

	results := make([]reward.BatchResult, 0, len(entries))
	for _, entry := range entries {
		amount, err := s.recordOne(ctx, caller, entry.User, entry.Action, entry.Metadata)
		result := reward.BatchResult{User: entry.User, Action: entry.Action, Amount: amount}
		if err != nil {
			result.Skipped = true
			result.Reason = err.Error()
			s.logger.WithField("user", entry.User).WithField("action", entry.Action).
				WithError(err).Debug("batch entry skipped")
		}
		results = append(results, result)
	}
	return results, nil
}

// Claim converts user's full accrued balance into distributed tokens.
func (s *Service) Claim(ctx context.Context, user string) (decimal.Decimal, error) {
	if err := s.guard.Enter(); err != nil {
		return decimal.Zero, err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return decimal.Zero, s.reject(err)
	}
	accrual, ok, err := s.store.GetAccrual(ctx, user)
	if err != nil {
		return decimal.Zero, s.reject(err)
	}
	if !ok || !accrual.Balance.IsPositive() {
		return decimal.Zero, s.reject(core.NewFundsError(user, "no rewards accrued"))
	}

	claimed := accrual.Balance
	original := accrual

	accrual.Balance = decimal.Zero
	accrual.Categories = nil
	accrual.LastClaimAt = s.now()
	if err := s.store.PutAccrual(ctx, accrual); err != nil {
		return decimal.Zero, s.reject(err)
	}

	if err := s.distributor.Distribute(ctx, s.cfg.DistributorAccount, user, claimed); err != nil {
		// Restore the accrual so a failed payout never burns rewards.
		if putErr := s.store.PutAccrual(ctx, original); putErr != nil {
			s.logger.WithError(putErr).Error("restore accrual after failed payout")
		}
		return decimal.Zero, s.reject(err)
	}

	s.events.Emit(events.New(events.RewardClaimed, user, "amount", claimed.String()))
	return claimed, nil
}
