package escrow

import (
	"time"

	"github.com/shopspring/decimal"
)

// State is the escrow lifecycle state. Resolved and Cancelled are terminal.
type State string

const (
	StateOpen              State = "open"
	StatePartiallyReleased State = "partially_released"
	StateDisputed          State = "disputed"
	StateResolved          State = "resolved"
	StateCancelled         State = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateCancelled
}

// Milestone is an individually releasable portion of a funded escrow.
type Milestone struct {
	Description string
	Amount      decimal.Decimal
	Released    bool
	ReleasedAt  time.Time
}

// Escrow holds funds between payer and payee until milestones release them.
// The conservation invariant: ReleasedTotal + FeeTotal + RefundTotal equals
// Amount at terminal state and never exceeds it before.
type Escrow struct {
	ID            string
	Payer         string
	Payee         string
	Amount        decimal.Decimal
	FeeBps        int64
	Milestones    []Milestone
	State         State
	ReleasedTotal decimal.Decimal
	FeeTotal      decimal.Decimal
	RefundTotal   decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MilestoneInput carries caller-supplied milestone fields.
type MilestoneInput struct {
	Description string
	Amount      decimal.Decimal
}
