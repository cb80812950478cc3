package token

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pool names for the genesis supply split.
const (
	PoolEcosystem = "ecosystem"
	PoolTeam      = "team"
	PoolTreasury  = "treasury"
)

// Supply describes the fixed genesis allocation.
type Supply struct {
	Total     decimal.Decimal
	Ecosystem decimal.Decimal
	Team      decimal.Decimal
	Treasury  decimal.Decimal
}

// StakePosition is an account's staked balance with its accrual anchor.
type StakePosition struct {
	Account  string
	Amount   decimal.Decimal
	StakedAt time.Time
}

// VestingSchedule releases a locked allocation linearly over Duration.
type VestingSchedule struct {
	ID          string
	Beneficiary string
	Total       decimal.Decimal
	Released    decimal.Decimal
	Start       time.Time
	Duration    time.Duration
	Revocable   bool
	Revoked     bool
	CreatedAt   time.Time
}

// VestedAt returns the releasable-so-far amount at time now (before
// subtracting what was already released).
func (v VestingSchedule) VestedAt(now time.Time) decimal.Decimal {
	if v.Revoked || !now.After(v.Start) {
		return decimal.Zero
	}
	elapsed := now.Sub(v.Start)
	if elapsed >= v.Duration {
		return v.Total
	}
	return v.Total.
		Mul(decimal.NewFromInt(int64(elapsed))).
		Div(decimal.NewFromInt(int64(v.Duration))).
		Truncate(8)
}
