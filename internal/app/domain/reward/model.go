package reward

import (
	"time"

	"github.com/shopspring/decimal"
)

// Accrual is a user's running reward state. Daily counters reset lazily on
// the first action past a 24h boundary.
type Accrual struct {
	User         string
	Balance      decimal.Decimal
	Categories   map[string]decimal.Decimal
	LastActionAt time.Time
	LastClaimAt  time.Time
	DayStart     time.Time
	DailyActions int
	DailyAccrued decimal.Decimal
}

// Rate configures one reward category.
type Rate struct {
	Action string
	Base   decimal.Decimal
	Active bool
}

// MetadataVersion is the current ActionMetadata payload version.
const MetadataVersion = 1

// ActionMetadata is the typed, versioned action payload. Zero values take the
// defaults: 100% multiplier, no bonus.
type ActionMetadata struct {
	Version       int
	MultiplierBps int64
	Bonus         decimal.Decimal
	Reference     string
}

// Normalized returns the metadata with defaults applied.
func (m ActionMetadata) Normalized() ActionMetadata {
	if m.Version == 0 {
		m.Version = MetadataVersion
	}
	if m.MultiplierBps == 0 {
		m.MultiplierBps = 10000
	}
	return m
}

// BatchEntry is one action in a batch processing call.
type BatchEntry struct {
	User     string
	Action   string
	Metadata ActionMetadata
}

// BatchResult reports the outcome for one batch entry. Invalid entries are
// skipped, not aborted.
type BatchResult struct {
	User    string
	Action  string
	Amount  decimal.Decimal
	Skipped bool
	Reason  string
}
