// Package events provides the structured ledger event log. Every successful
// mutation emits exactly one event; rejected calls emit nothing. The event
// stream is the sole contract with the external indexer and API layer.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type classifies a ledger event.
type Type string

const (
	// Access control
	RoleGranted Type = "access.role_granted"
	RoleRevoked Type = "access.role_revoked"
	Paused      Type = "access.paused"
	Unpaused    Type = "access.unpaused"

	// Product registry
	ProductRegistered  Type = "registry.product_registered"
	ProductUpdated     Type = "registry.product_updated"
	ProductDeactivated Type = "registry.product_deactivated"
	ProductReactivated Type = "registry.product_reactivated"
	CheckpointAdded    Type = "registry.checkpoint_added"
	CheckpointUpdated  Type = "registry.checkpoint_updated"
	StakeholderAdded   Type = "registry.stakeholder_added"
	StakeholderRemoved Type = "registry.stakeholder_removed"

	// Certificates
	CertificateMinted      Type = "certificates.minted"
	CertificateInvalidated Type = "certificates.invalidated"
	CertificateTransferred Type = "certificates.transferred"

	// Compliance
	ComplianceRuleAdded    Type = "compliance.rule_added"
	ComplianceRuleReplaced Type = "compliance.rule_replaced"
	ComplianceChecked      Type = "compliance.checked"

	// Escrow
	EscrowCreated   Type = "escrow.created"
	EscrowReleased  Type = "escrow.milestone_released"
	EscrowDisputed  Type = "escrow.disputed"
	EscrowResolved  Type = "escrow.resolved"
	EscrowCancelled Type = "escrow.cancelled"

	// Rewards
	RewardAccrued     Type = "rewards.accrued"
	RewardClaimed     Type = "rewards.claimed"
	SuspiciousFlagged Type = "rewards.suspicious_flagged"
	RewardRateSet     Type = "rewards.rate_set"
	CategoryToggled   Type = "rewards.category_toggled"

	// Incentive token
	RewardDistributed     Type = "token.reward_distributed"
	TokenTransferred      Type = "token.transferred"
	TokenStaked           Type = "token.staked"
	TokenUnstaked         Type = "token.unstaked"
	StakingRewardsClaimed Type = "token.staking_rewards_claimed"
	VestingCreated        Type = "token.vesting_created"
	VestingReleased       Type = "token.vesting_released"
	VestingRevoked        Type = "token.vesting_revoked"

	// Factories
	InstanceDeployed    Type = "factory.instance_deployed"
	InstanceDeactivated Type = "factory.instance_deactivated"
	InstanceReactivated Type = "factory.instance_reactivated"
)

// Event is one committed ledger occurrence.
type Event struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Actor     string            `json:"actor,omitempty"`
	Tenant    string            `json:"tenant,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Handler processes events as they are emitted.
type Handler func(Event)

// Filter decides whether a handler sees an event.
type Filter func(Event) bool

// Logger is the emission interface services hold.
type Logger interface {
	// Emit records a committed event.
	Emit(event Event)

	// Subscribe registers a handler for all events and returns an
	// unsubscribe function.
	Subscribe(handler Handler) func()

	// SubscribeFiltered registers a handler with a filter.
	SubscribeFiltered(filter Filter, handler Handler) func()

	// Recent returns the most recent n events, newest first.
	Recent(n int) []Event

	// RecentByType returns recent events of one type.
	RecentByType(eventType Type, n int) []Event
}

// New builds an event with the given type, actor, and field pairs.
// Pairs are consumed as key, value, key, value.
func New(eventType Type, actor string, pairs ...string) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Actor:     actor,
	}
	if len(pairs) > 0 {
		ev.Fields = make(map[string]string, len(pairs)/2)
		for i := 0; i+1 < len(pairs); i += 2 {
			ev.Fields[pairs[i]] = pairs[i+1]
		}
	}
	return ev
}

// Ring is a thread-safe circular event buffer implementing Logger.
type Ring struct {
	mu       sync.RWMutex
	events   []Event
	size     int
	head     int
	count    int
	handlers []handlerEntry
	nextID   int64
}

type handlerEntry struct {
	id      int64
	filter  Filter
	handler Handler
}

// NewRing creates an event ring buffer holding up to size events.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = 1000
	}
	return &Ring{
		events: make([]Event, size),
		size:   size,
	}
}

// Emit adds an event to the buffer and notifies subscribers.
func (r *Ring) Emit(event Event) {
	r.mu.Lock()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	r.events[r.head] = event
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}

	handlers := make([]handlerEntry, len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.Unlock()

	// Notify handlers outside the lock
	for _, h := range handlers {
		if h.filter == nil || h.filter(event) {
			h.handler(event)
		}
	}
}

// Subscribe registers a handler for all events.
func (r *Ring) Subscribe(handler Handler) func() {
	return r.SubscribeFiltered(nil, handler)
}

// SubscribeFiltered registers a handler with a filter.
func (r *Ring) SubscribeFiltered(filter Filter, handler Handler) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.handlers = append(r.handlers, handlerEntry{id: id, filter: filter, handler: handler})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, h := range r.handlers {
			if h.id == id {
				r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
				return
			}
		}
	}
}

// Recent returns the most recent n events in reverse chronological order.
func (r *Ring) Recent(n int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || r.count == 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}

	result := make([]Event, n)
	for i := 0; i < n; i++ {
		idx := (r.head - 1 - i + r.size) % r.size
		result[i] = r.events[idx]
	}
	return result
}

// RecentByType returns recent events of a specific type.
func (r *Ring) RecentByType(eventType Type, n int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || r.count == 0 {
		return nil
	}

	var result []Event
	for i := 0; i < r.count && len(result) < n; i++ {
		idx := (r.head - 1 - i + r.size) % r.size
		if r.events[idx].Type == eventType {
			result = append(result, r.events[idx])
		}
	}
	return result
}

// Count returns the number of buffered events.
func (r *Ring) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// NoOp is an event logger that discards everything.
type NoOp struct{}

func (NoOp) Emit(Event)                          {}
func (NoOp) Subscribe(Handler) func()            { return func() {} }
func (NoOp) SubscribeFiltered(Filter, Handler) func() { return func() {} }
func (NoOp) Recent(int) []Event                  { return nil }
func (NoOp) RecentByType(Type, int) []Event      { return nil }

// OrNoOp returns log, or a NoOp logger when log is nil.
func OrNoOp(log Logger) Logger {
	if log == nil {
		return NoOp{}
	}
	return log
}
