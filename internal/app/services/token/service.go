// Package token implements the incentive token ledger: genesis pools,
// transfers, staking, and linear vesting. Token amounts are exact decimals;
// fractional results truncate to 8 places so no operation can create value.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/TraceChain-Network/ledger_layer/internal/app/core"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/access"
	tokendomain "github.com/TraceChain-Network/ledger_layer/internal/app/domain/token"
	"github.com/TraceChain-Network/ledger_layer/internal/app/events"
	"github.com/TraceChain-Network/ledger_layer/internal/app/metrics"
	"github.com/TraceChain-Network/ledger_layer/internal/app/services/accessctrl"
	"github.com/TraceChain-Network/ledger_layer/internal/app/storage"
	"github.com/TraceChain-Network/ledger_layer/pkg/logger"
)

const serviceName = "token"

var (
	bpsDenominator = decimal.NewFromInt(10000)
	yearSeconds    = decimal.NewFromInt(365 * 24 * 3600)
)

// Config carries the token parameters fixed at genesis.
type Config struct {
	TotalSupply   decimal.Decimal
	EcosystemBps  int64
	TeamBps       int64
	TreasuryBps   int64
	StakingAPYBps int64
	MinStake      decimal.Decimal
}

// Service is the incentive token component.
type Service struct {
	store  storage.TokenStore
	acl    *accessctrl.Service
	events events.Logger
	logger *logger.Logger
	guard  core.Guard
	cfg    Config

	now func() time.Time
}

// New creates the token service and records the genesis allocation. Calling
// New over an already-initialized store leaves the existing supply untouched.
func New(store storage.TokenStore, acl *accessctrl.Service, cfg Config, eventLog events.Logger, log *logger.Logger) (*Service, error) {
	if acl == nil {
		return nil, core.RequiredError("access control")
	}
	if cfg.TotalSupply.IsNegative() || cfg.TotalSupply.IsZero() {
		return nil, core.NewValidationError("total supply", "must be positive")
	}
	if cfg.EcosystemBps+cfg.TeamBps+cfg.TreasuryBps != 10000 {
		return nil, core.NewValidationError("pool split", "must sum to 10000 bps")
	}
	if log == nil {
		log = logger.NewDefault(serviceName)
	}

	s := &Service{
		store:  store,
		acl:    acl,
		events: events.OrNoOp(eventLog),
		logger: log,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}

	ecosystem := bpsShare(cfg.TotalSupply, cfg.EcosystemBps)
	team := bpsShare(cfg.TotalSupply, cfg.TeamBps)
	supply := tokendomain.Supply{
		Total:     cfg.TotalSupply,
		Ecosystem: ecosystem,
		Team:      team,
		// Treasury absorbs truncation dust so the pools sum to Total.
		Treasury: cfg.TotalSupply.Sub(ecosystem).Sub(team),
	}
	if err := store.InitSupply(context.Background(), supply); err != nil && !core.IsConflict(err) {
		return nil, fmt.Errorf("init supply: %w", err)
	}
	return s, nil
}

func bpsShare(amount decimal.Decimal, bps int64) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(bps)).Div(bpsDenominator).Truncate(8)
}

func (s *Service) reject(err error) error {
	metrics.OperationRejected(serviceName, core.Kind(err))
	return err
}

func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return core.NewValidationError("amount", "must be positive")
	}
	return nil
}

// Supply returns the genesis allocation.
func (s *Service) Supply(ctx context.Context) (tokendomain.Supply, error) {
	return s.store.Supply(ctx)
}

// Balance returns account's spendable balance.
func (s *Service) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	return s.store.Balance(ctx, account)
}

// PoolBalance returns the remaining balance of a genesis pool.
func (s *Service) PoolBalance(ctx context.Context, pool string) (decimal.Decimal, error) {
	return s.store.PoolBalance(ctx, pool)
}

// Distribute moves amount from the ecosystem pool to account. Caller must
// hold the minter role. This is the only mint-like operation; total supply
// never changes.
func (s *Service) Distribute(ctx context.Context, caller, account string, amount decimal.Decimal) error {
	if err := s.guard.Enter(); err != nil {
		return err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return s.reject(err)
	}
	if err := s.acl.RequireRole(ctx, access.RoleMinter, caller); err != nil {
		return s.reject(err)
	}
	if err := validAmount(amount); err != nil {
		return s.reject(err)
	}
	if account == "" {
		return s.reject(core.RequiredError("account"))
	}
	pool, err := s.store.PoolBalance(ctx, tokendomain.PoolEcosystem)
	if err != nil {
		return s.reject(err)
	}
	if pool.LessThan(amount) {
		return s.reject(core.NewFundsError(tokendomain.PoolEcosystem, "ecosystem pool exhausted"))
	}

	if err := s.store.DebitPool(ctx, tokendomain.PoolEcosystem, amount); err != nil {
		return s.reject(err)
	}
	if err := s.store.Credit(ctx, account, amount); err != nil {
		return s.reject(err)
	}

	s.events.Emit(events.New(events.RewardDistributed, caller,
		"account", account, "amount", amount.String()))
	return nil
}

// Transfer moves amount from one account to another.
func (s *Service) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	if err := s.guard.Enter(); err != nil {
		return err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return s.reject(err)
	}
	if err := validAmount(amount); err != nil {
		return s.reject(err)
	}
	if from == "" || to == "" {
		return s.reject(core.RequiredError("account"))
	}
	if from == to {
		return s.reject(core.NewValidationError("to", "self transfer"))
	}
	balance, err := s.store.Balance(ctx, from)
	if err != nil {
		return s.reject(err)
	}
	if balance.LessThan(amount) {
		return s.reject(core.NewFundsError(from, fmt.Sprintf("balance %s is below %s", balance, amount)))
	}

	if err := s.store.Debit(ctx, from, amount); err != nil {
		return s.reject(err)
	}
	if err := s.store.Credit(ctx, to, amount); err != nil {
		return s.reject(err)
	}

	s.events.Emit(events.New(events.TokenTransferred, from,
		"to", to, "amount", amount.String()))
	return nil
}

// Stake locks amount from account's balance. Adding to an existing position
// resets the yield anchor; pending yield must be claimed first or forfeited.
func (s *Service) Stake(ctx context.Context, account string, amount decimal.Decimal) error {
	if err := s.guard.Enter(); err != nil {
		return err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return s.reject(err)
	}
	if err := validAmount(amount); err != nil {
		return s.reject(err)
	}
	if amount.LessThan(s.cfg.MinStake) {
		return s.reject(core.NewLimitError("min stake",
			fmt.Sprintf("amount %s is below minimum %s", amount, s.cfg.MinStake)))
	}
	balance, err := s.store.Balance(ctx, account)
	if err != nil {
		return s.reject(err)
	}
	if balance.LessThan(amount) {
		return s.reject(core.NewFundsError(account, fmt.Sprintf("balance %s is below %s", balance, amount)))
	}
	pos, _, err := s.store.GetStake(ctx, account)
	if err != nil {
		return s.reject(err)
	}

	if err := s.store.Debit(ctx, account, amount); err != nil {
		return s.reject(err)
	}
	pos.Account = account
	pos.Amount = pos.Amount.Add(amount)
	pos.StakedAt = s.now()
	if err := s.store.SetStake(ctx, pos); err != nil {
		return s.reject(err)
	}

	s.events.Emit(events.New(events.TokenStaked, account,
		"amount", amount.String(), "total", pos.Amount.String()))
	return nil
}

// Unstake releases amount back to account's balance.
func (s *Service) Unstake(ctx context.Context, account string, amount decimal.Decimal) error {
	if err := s.guard.Enter(); err != nil {
		return err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return s.reject(err)
	}
	if err := validAmount(amount); err != nil {
		return s.reject(err)
	}
	pos, ok, err := s.store.GetStake(ctx, account)
	if err != nil {
		return s.reject(err)
	}
	if !ok {
		return s.reject(core.NewNotFoundError("stake position", account))
	}
	if pos.Amount.LessThan(amount) {
		return s.reject(core.NewFundsError(account,
			fmt.Sprintf("staked %s is below %s", pos.Amount, amount)))
	}

	remaining := pos.Amount.Sub(amount)
	if remaining.IsZero() {
		if err := s.store.DeleteStake(ctx, account); err != nil {
			return s.reject(err)
		}
	} else {
		pos.Amount = remaining
		pos.StakedAt = s.now()
		if err := s.store.SetStake(ctx, pos); err != nil {
			return s.reject(err)
		}
	}
	if err := s.store.Credit(ctx, account, amount); err != nil {
		return s.reject(err)
	}

	s.events.Emit(events.New(events.TokenUnstaked, account,
		"amount", amount.String(), "remaining", remaining.String()))
	return nil
}

// StakeOf returns account's staking position.
func (s *Service) StakeOf(ctx context.Context, account string) (tokendomain.StakePosition, bool, error) {
	return s.store.GetStake(ctx, account)
}

// TotalStaked returns the sum of all staked balances.
func (s *Service) TotalStaked(ctx context.Context) (decimal.Decimal, error) {
	return s.store.TotalStaked(ctx)
}

// PendingYield returns the staking yield accrued since the position's anchor.
func (s *Service) PendingYield(ctx context.Context, account string) (decimal.Decimal, error) {
	pos, ok, err := s.store.GetStake(ctx, account)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, nil
	}
	return s.yieldSince(pos), nil
}

func (s *Service) yieldSince(pos tokendomain.StakePosition) decimal.Decimal {
	elapsed := s.now().Sub(pos.StakedAt)
	if elapsed <= 0 {
		return decimal.Zero
	}
	return pos.Amount.
		Mul(decimal.NewFromInt(s.cfg.StakingAPYBps)).
		Div(bpsDenominator).
		Mul(decimal.NewFromInt(int64(elapsed.Seconds()))).
		Div(yearSeconds).
		Truncate(8)
}

// ClaimStakingRewards pays accrued yield from the ecosystem pool and resets
// the yield anchor.
func (s *Service) ClaimStakingRewards(ctx context.Context, account string) (decimal.Decimal, error) {
	if err := s.guard.Enter(); err != nil {
		return decimal.Zero, err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return decimal.Zero, s.reject(err)
	}
	pos, ok, err := s.store.GetStake(ctx, account)
	if err != nil {
		return decimal.Zero, s.reject(err)
	}
	if !ok {
		return decimal.Zero, s.reject(core.NewNotFoundError("stake position", account))
	}
	yield := s.yieldSince(pos)
	if !yield.IsPositive() {
		return decimal.Zero, s.reject(core.NewValidationError("yield", "nothing accrued"))
	}
	pool, err := s.store.PoolBalance(ctx, tokendomain.PoolEcosystem)
	if err != nil {
		return decimal.Zero, s.reject(err)
	}
	if pool.LessThan(yield) {
		return decimal.Zero, s.reject(core.NewFundsError(tokendomain.PoolEcosystem, "ecosystem pool exhausted"))
	}

	if err := s.store.DebitPool(ctx, tokendomain.PoolEcosystem, yield); err != nil {
		return decimal.Zero, s.reject(err)
	}
	if err := s.store.Credit(ctx, account, yield); err != nil {
		return decimal.Zero, s.reject(err)
	}
	pos.StakedAt = s.now()
	if err := s.store.SetStake(ctx, pos); err != nil {
		return decimal.Zero, s.reject(err)
	}

	s.events.Emit(events.New(events.StakingRewardsClaimed, account, "amount", yield.String()))
	return yield, nil
}

// CreateVesting locks total from the team pool into a linear schedule.
// Caller must hold admin.
func (s *Service) CreateVesting(ctx context.Context, caller, beneficiary string, total decimal.Decimal, start time.Time, duration time.Duration, revocable bool) (tokendomain.VestingSchedule, error) {
	if err := s.guard.Enter(); err != nil {
		return tokendomain.VestingSchedule{}, err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return tokendomain.VestingSchedule{}, s.reject(err)
	}
	if err := s.acl.RequireRole(ctx, access.RoleAdmin, caller); err != nil {
		return tokendomain.VestingSchedule{}, s.reject(err)
	}
	if beneficiary == "" {
		return tokendomain.VestingSchedule{}, s.reject(core.RequiredError("beneficiary"))
	}
	if err := validAmount(total); err != nil {
		return tokendomain.VestingSchedule{}, s.reject(err)
	}
	if duration <= 0 {
		return tokendomain.VestingSchedule{}, s.reject(core.NewValidationError("duration", "must be positive"))
	}
	pool, err := s.store.PoolBalance(ctx, tokendomain.PoolTeam)
	if err != nil {
		return tokendomain.VestingSchedule{}, s.reject(err)
	}
	if pool.LessThan(total) {
		return tokendomain.VestingSchedule{}, s.reject(core.NewFundsError(tokendomain.PoolTeam, "team pool exhausted"))
	}

	if err := s.store.DebitPool(ctx, tokendomain.PoolTeam, total); err != nil {
		return tokendomain.VestingSchedule{}, s.reject(err)
	}
	schedule := tokendomain.VestingSchedule{
		ID:          uuid.NewString(),
		Beneficiary: beneficiary,
		Total:       total,
		Released:    decimal.Zero,
		Start:       start,
		Duration:    duration,
		Revocable:   revocable,
	}
	schedule, err = s.store.CreateVesting(ctx, schedule)
	if err != nil {
		return tokendomain.VestingSchedule{}, s.reject(err)
	}

	s.events.Emit(events.New(events.VestingCreated, caller,
		"id", schedule.ID, "beneficiary", beneficiary, "total", total.String()))
	s.logger.WithField("beneficiary", beneficiary).WithField("total", total.String()).Info("vesting created")
	return schedule, nil
}

// ReleaseVesting pays out everything vested but not yet released.
func (s *Service) ReleaseVesting(ctx context.Context, id string) (decimal.Decimal, error) {
	if err := s.guard.Enter(); err != nil {
		return decimal.Zero, err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return decimal.Zero, s.reject(err)
	}
	schedule, err := s.store.GetVesting(ctx, id)
	if err != nil {
		return decimal.Zero, s.reject(err)
	}
	if schedule.Revoked {
		return decimal.Zero, s.reject(core.NewConflictError("vesting", id, "schedule revoked"))
	}
	releasable := schedule.VestedAt(s.now()).Sub(schedule.Released)
	if !releasable.IsPositive() {
		return decimal.Zero, s.reject(core.NewValidationError("vesting", "nothing vested yet"))
	}

	schedule.Released = schedule.Released.Add(releasable)
	if _, err := s.store.UpdateVesting(ctx, schedule); err != nil {
		return decimal.Zero, s.reject(err)
	}
	if err := s.store.Credit(ctx, schedule.Beneficiary, releasable); err != nil {
		return decimal.Zero, s.reject(err)
	}

	s.events.Emit(events.New(events.VestingReleased, schedule.Beneficiary,
		"id", id, "amount", releasable.String()))
	return releasable, nil
}

// RevokeVesting stops a revocable schedule: the vested-but-unreleased part
// goes to the beneficiary, the unvested remainder returns to the treasury
// pool. Caller must hold admin.
func (s *Service) RevokeVesting(ctx context.Context, caller, id string) error {
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
	schedule, err := s.store.GetVesting(ctx, id)
	if err != nil {
		return s.reject(err)
	}
	if !schedule.Revocable {
		return s.reject(core.NewConflictError("vesting", id, "schedule is not revocable"))
	}
	if schedule.Revoked {
		return s.reject(core.NewConflictError("vesting", id, "schedule already revoked"))
	}

	vested := schedule.VestedAt(s.now())
	owed := vested.Sub(schedule.Released)
	returned := schedule.Total.Sub(vested)

	schedule.Revoked = true
	schedule.Released = vested
	if _, err := s.store.UpdateVesting(ctx, schedule); err != nil {
		return s.reject(err)
	}
	if owed.IsPositive() {
		if err := s.store.Credit(ctx, schedule.Beneficiary, owed); err != nil {
			return s.reject(err)
		}
	}
	if returned.IsPositive() {
		if err := s.store.CreditPool(ctx, tokendomain.PoolTreasury, returned); err != nil {
			return s.reject(err)
		}
	}

	s.events.Emit(events.New(events.VestingRevoked, caller,
		"id", id, "paid", owed.String(), "returned", returned.String()))
	return nil
}

// VestingOf returns schedules held by beneficiary.
func (s *Service) VestingOf(ctx context.Context, beneficiary string) ([]tokendomain.VestingSchedule, error) {
	return s.store.ListVesting(ctx, beneficiary)
}
