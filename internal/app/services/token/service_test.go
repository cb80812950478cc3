package token

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/TraceChain-Network/ledger_layer/internal/app/core"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/access"
	tokendomain "github.com/TraceChain-Network/ledger_layer/internal/app/domain/token"
	"github.com/TraceChain-Network/ledger_layer/internal/app/events"
	"github.com/TraceChain-Network/ledger_layer/internal/app/services/accessctrl"
	"github.com/TraceChain-Network/ledger_layer/internal/app/storage/memory"
)

func testConfig() Config {
	return Config{
		TotalSupply:   decimal.NewFromInt(1_000_000),
		EcosystemBps:  6000,
		TeamBps:       2000,
		TreasuryBps:   2000,
		StakingAPYBps: 500,
		MinStake:      decimal.NewFromInt(100),
	}
}

func newService(t *testing.T) (*Service, *memory.Store, *accessctrl.Service) {
	t.Helper()
	store := memory.New()
	acl, err := accessctrl.New(store, "owner", events.NewRing(100), nil)
	if err != nil {
		t.Fatalf("access control: %v", err)
	}
	svc, err := New(store, acl, testConfig(), events.NewRing(100), nil)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	return svc, store, acl
}

func TestGenesisSplit(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	supply, err := svc.Supply(ctx)
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if !supply.Ecosystem.Add(supply.Team).Add(supply.Treasury).Equal(supply.Total) {
		t.Fatalf("pools must sum to total: %+v", supply)
	}
	if !supply.Ecosystem.Equal(decimal.NewFromInt(600_000)) {
		t.Fatalf("ecosystem pool = %s", supply.Ecosystem)
	}
}

func TestDistributeRequiresMinter(t *testing.T) {
	svc, _, acl := newService(t)
	ctx := context.Background()
	amount := decimal.NewFromInt(500)

	if err := svc.Distribute(ctx, "owner", "alice", amount); !core.IsForbidden(err) {
		t.Fatalf("expected forbidden without minter, got %v", err)
	}

	if err := acl.GrantRole(ctx, "owner", access.RoleMinter, "owner"); err != nil {
		t.Fatalf("grant minter: %v", err)
	}
	if err := svc.Distribute(ctx, "owner", "alice", amount); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	balance, _ := svc.Balance(ctx, "alice")
	if !balance.Equal(amount) {
		t.Fatalf("alice balance = %s, want %s", balance, amount)
	}
	pool, _ := svc.PoolBalance(ctx, tokendomain.PoolEcosystem)
	if !pool.Equal(decimal.NewFromInt(599_500)) {
		t.Fatalf("ecosystem pool = %s", pool)
	}
}

func TestTransferValidation(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	if err := store.Credit(ctx, "alice", decimal.NewFromInt(50)); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	if err := svc.Transfer(ctx, "alice", "alice", decimal.NewFromInt(10)); !core.IsValidationError(err) {
		t.Fatalf("self transfer must be rejected, got %v", err)
	}
	if err := svc.Transfer(ctx, "alice", "bob", decimal.NewFromInt(-5)); !core.IsValidationError(err) {
		t.Fatalf("negative amount must be rejected, got %v", err)
	}
	if err := svc.Transfer(ctx, "alice", "bob", decimal.NewFromInt(51)); !core.IsInsufficientFunds(err) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	// Failed transfers leave balances untouched.
	balance, _ := svc.Balance(ctx, "alice")
	if !balance.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("alice balance changed on rejection: %s", balance)
	}

	if err := svc.Transfer(ctx, "alice", "bob", decimal.NewFromInt(20)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	alice, _ := svc.Balance(ctx, "alice")
	bob, _ := svc.Balance(ctx, "bob")
	if !alice.Add(bob).Equal(decimal.NewFromInt(50)) {
		t.Fatalf("transfer must conserve: alice=%s bob=%s", alice, bob)
	}
}

func TestStakeMinimumAndYield(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	if err := store.Credit(ctx, "alice", decimal.NewFromInt(1000)); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	if err := svc.Stake(ctx, "alice", decimal.NewFromInt(99)); !core.IsLimitExceeded(err) {
		t.Fatalf("below-minimum stake must be rejected, got %v", err)
	}
	if err := svc.Stake(ctx, "alice", decimal.NewFromInt(1000)); err != nil {
		t.Fatalf("stake: %v", err)
	}

	balance, _ := svc.Balance(ctx, "alice")
	if !balance.IsZero() {
		t.Fatalf("staked funds must leave the balance, got %s", balance)
	}

	// A year at 5% APY on 1000 yields 50.
	base := time.Now().UTC()
	svc.now = func() time.Time { return base.Add(365 * 24 * time.Hour) }
	pending, err := svc.PendingYield(ctx, "alice")
	if err != nil {
		t.Fatalf("pending yield: %v", err)
	}
	pos, _, _ := store.GetStake(ctx, "alice")
	expect := decimal.NewFromInt(1000).
		Mul(decimal.NewFromInt(500)).Div(decimal.NewFromInt(10000)).
		Mul(decimal.NewFromInt(int64(svc.now().Sub(pos.StakedAt).Seconds()))).
		Div(decimal.NewFromInt(365 * 24 * 3600)).Truncate(8)
	if !pending.Equal(expect) {
		t.Fatalf("pending = %s, want %s", pending, expect)
	}

	paid, err := svc.ClaimStakingRewards(ctx, "alice")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !paid.Equal(expect) {
		t.Fatalf("paid = %s, want %s", paid, expect)
	}
	balance, _ = svc.Balance(ctx, "alice")
	if !balance.Equal(expect) {
		t.Fatalf("balance after claim = %s", balance)
	}
}

func TestUnstakePartial(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	if err := store.Credit(ctx, "alice", decimal.NewFromInt(500)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := svc.Stake(ctx, "alice", decimal.NewFromInt(500)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if err := svc.Unstake(ctx, "alice", decimal.NewFromInt(600)); !core.IsInsufficientFunds(err) {
		t.Fatalf("overdraw unstake must fail, got %v", err)
	}
	if err := svc.Unstake(ctx, "alice", decimal.NewFromInt(200)); err != nil {
		t.Fatalf("unstake: %v", err)
	}

	pos, ok, _ := svc.StakeOf(ctx, "alice")
	if !ok || !pos.Amount.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("remaining stake = %+v", pos)
	}
	if err := svc.Unstake(ctx, "alice", decimal.NewFromInt(300)); err != nil {
		t.Fatalf("final unstake: %v", err)
	}
	if _, ok, _ := svc.StakeOf(ctx, "alice"); ok {
		t.Fatal("empty position must be removed")
	}
	balance, _ := svc.Balance(ctx, "alice")
	if !balance.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("balance after full unstake = %s", balance)
	}
}

func TestVestingLifecycle(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	start := time.Now().UTC()
	schedule, err := svc.CreateVesting(ctx, "owner", "bob", decimal.NewFromInt(1000), start, 100*time.Hour, true)
	if err != nil {
		t.Fatalf("create vesting: %v", err)
	}
	team, _ := svc.PoolBalance(ctx, tokendomain.PoolTeam)
	if !team.Equal(decimal.NewFromInt(199_000)) {
		t.Fatalf("team pool after lock = %s", team)
	}

	// Half the duration elapses.
	svc.now = func() time.Time { return start.Add(50 * time.Hour) }
	released, err := svc.ReleaseVesting(ctx, schedule.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if !released.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("released = %s, want 500", released)
	}
	balance, _ := svc.Balance(ctx, "bob")
	if !balance.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("bob balance = %s", balance)
	}

	// Revoke at 60%: bob gets the vested delta, treasury gets the rest.
	svc.now = func() time.Time { return start.Add(60 * time.Hour) }
	treasuryBefore, _ := svc.PoolBalance(ctx, tokendomain.PoolTreasury)
	if err := svc.RevokeVesting(ctx, "owner", schedule.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	balance, _ = svc.Balance(ctx, "bob")
	if !balance.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("bob balance after revoke = %s", balance)
	}
	treasury, _ := svc.PoolBalance(ctx, tokendomain.PoolTreasury)
	if !treasury.Sub(treasuryBefore).Equal(decimal.NewFromInt(400)) {
		t.Fatalf("treasury delta = %s, want 400", treasury.Sub(treasuryBefore))
	}

	if _, err := svc.ReleaseVesting(ctx, schedule.ID); !core.IsConflict(err) {
		t.Fatalf("release after revoke must conflict, got %v", err)
	}
}

func TestPauseBlocksTokenOps(t *testing.T) {
	svc, store, acl := newService(t)
	ctx := context.Background()

	if err := store.Credit(ctx, "alice", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := acl.Pause(ctx, "owner"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := svc.Transfer(ctx, "alice", "bob", decimal.NewFromInt(10)); !core.IsPaused(err) {
		t.Fatalf("expected paused, got %v", err)
	}
}
