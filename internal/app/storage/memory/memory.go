// Package memory provides the serialized in-memory persistence layer
// implementing the storage interfaces. A single lock serializes every
// state-changing call, which is the execution environment the ledger
// services assume: each store call commits atomically, in a total order.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/TraceChain-Network/ledger_layer/internal/app/core"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/access"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/certificate"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/compliance"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/escrow"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/product"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/reward"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/tenant"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/token"
)

// Store is a thread-safe in-memory implementation of every storage interface.
// Factories allocate one Store per tenant namespace.
type Store struct {
	mu sync.RWMutex

	// access
	grants map[string]map[string]access.Grant // role -> account -> grant
	paused bool

	// products
	nextProductID uint64
	products      map[uint64]product.Product
	batchIdx      map[string]uint64
	checkpoints   map[uint64][]product.Checkpoint

	// certificates
	nextCertID uint64
	certs      map[uint64]certificate.Certificate
	codeIdx    map[string]uint64
	productIdx map[uint64][]uint64

	// compliance
	nextRuleID  uint64
	nextCheckID uint64
	rules       map[uint64]compliance.Rule
	ruleCodeIdx map[string]uint64
	checks      map[uint64][]compliance.Check // productID -> checks
	checkCount  int64
	passedCount int64
	scoreSum    int64

	// escrow
	escrows map[string]escrow.Escrow

	// rewards
	accruals map[string]reward.Accrual
	rates    map[string]reward.Rate

	// token ledger
	supply      token.Supply
	supplySet   bool
	balances    map[string]decimal.Decimal
	pools       map[string]decimal.Decimal
	stakes      map[string]token.StakePosition
	totalStaked decimal.Decimal
	vesting     map[string]token.VestingSchedule

	// settlement asset ledger
	settlement map[string]decimal.Decimal

	// tenants
	instances  map[string]tenant.Instance
	tenantKeys map[string]string // kind/key -> handle, active instances only
	aggRules   int64
	aggChecks  int64
}

// New creates an empty store namespace.
func New() *Store {
	return &Store{
		grants:        make(map[string]map[string]access.Grant),
		nextProductID: 1,
		products:      make(map[uint64]product.Product),
		batchIdx:      make(map[string]uint64),
		checkpoints:   make(map[uint64][]product.Checkpoint),
		nextCertID:    1,
		certs:         make(map[uint64]certificate.Certificate),
		codeIdx:       make(map[string]uint64),
		productIdx:    make(map[uint64][]uint64),
		nextRuleID:    1,
		nextCheckID:   1,
		rules:         make(map[uint64]compliance.Rule),
		ruleCodeIdx:   make(map[string]uint64),
		checks:        make(map[uint64][]compliance.Check),
		escrows:       make(map[string]escrow.Escrow),
		accruals:      make(map[string]reward.Accrual),
		rates:         make(map[string]reward.Rate),
		balances:      make(map[string]decimal.Decimal),
		pools:         make(map[string]decimal.Decimal),
		stakes:        make(map[string]token.StakePosition),
		vesting:       make(map[string]token.VestingSchedule),
		settlement:    make(map[string]decimal.Decimal),
		instances:     make(map[string]tenant.Instance),
		tenantKeys:    make(map[string]string),
	}
}

// AccessStore ------------------------------------------------------------------

func (s *Store) GrantRole(_ context.Context, grant access.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, ok := s.grants[grant.Role]
	if !ok {
		accounts = make(map[string]access.Grant)
		s.grants[grant.Role] = accounts
	}
	if _, exists := accounts[grant.Account]; exists {
		return core.NewConflictError("role", grant.Role, fmt.Sprintf("already granted to %s", grant.Account))
	}
	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = time.Now().UTC()
	}
	accounts[grant.Account] = grant
	return nil
}

func (s *Store) RevokeRole(_ context.Context, role, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, ok := s.grants[role]
	if !ok {
		return core.NewNotFoundError("role grant", role+"/"+account)
	}
	if _, exists := accounts[account]; !exists {
		return core.NewNotFoundError("role grant", role+"/"+account)
	}
	delete(accounts, account)
	return nil
}

func (s *Store) HasRole(_ context.Context, role, account string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts, ok := s.grants[role]
	if !ok {
		return false, nil
	}
	_, exists := accounts[account]
	return exists, nil
}

func (s *Store) ListGrants(_ context.Context, account string) ([]access.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []access.Grant
	for _, accounts := range s.grants {
		if g, ok := accounts[account]; ok {
			result = append(result, g)
		}
	}
	return result, nil
}

func (s *Store) SetPaused(_ context.Context, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
	return nil
}

func (s *Store) Paused(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused, nil
}

// ProductStore -----------------------------------------------------------------

func (s *Store) CreateProduct(_ context.Context, p product.Product) (product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createProductLocked(p)
}

func (s *Store) createProductLocked(p product.Product) (product.Product, error) {
	if _, exists := s.batchIdx[p.BatchNumber]; exists {
		return product.Product{}, core.NewConflictError("product", p.BatchNumber, "batch number already registered")
	}

	p.ID = s.nextProductID
	s.nextProductID++

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p = cloneProduct(p)

	s.products[p.ID] = p
	s.batchIdx[p.BatchNumber] = p.ID
	return cloneProduct(p), nil
}

func (s *Store) CreateProductBatch(_ context.Context, ps []product.Product) ([]product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before any write: any invalid entry aborts.
	seen := make(map[string]struct{}, len(ps))
	for _, p := range ps {
		if _, exists := s.batchIdx[p.BatchNumber]; exists {
			return nil, core.NewConflictError("product", p.BatchNumber, "batch number already registered")
		}
		if _, dup := seen[p.BatchNumber]; dup {
			return nil, core.NewConflictError("product", p.BatchNumber, "duplicate batch number within batch")
		}
		seen[p.BatchNumber] = struct{}{}
	}

	result := make([]product.Product, 0, len(ps))
	for _, p := range ps {
		created, err := s.createProductLocked(p)
		if err != nil {
			return nil, err
		}
		result = append(result, created)
	}
	return result, nil
}

func (s *Store) UpdateProduct(_ context.Context, p product.Product) (product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.products[p.ID]
	if !ok {
		return product.Product{}, core.NewNotFoundError("product", fmt.Sprint(p.ID))
	}

	// Batch number and manufacturer are immutable.
	p.BatchNumber = original.BatchNumber
	p.Manufacturer = original.Manufacturer
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	p = cloneProduct(p)

	s.products[p.ID] = p
	return cloneProduct(p), nil
}

func (s *Store) GetProduct(_ context.Context, id uint64) (product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return product.Product{}, core.NewNotFoundError("product", fmt.Sprint(id))
	}
	return cloneProduct(p), nil
}

func (s *Store) GetProductByBatch(_ context.Context, batchNumber string) (product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.batchIdx[batchNumber]
	if !ok {
		return product.Product{}, core.NewNotFoundError("product", batchNumber)
	}
	return cloneProduct(s.products[id]), nil
}

func (s *Store) ListProducts(_ context.Context) ([]product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]product.Product, 0, len(s.products))
	for _, p := range s.products {
		result = append(result, cloneProduct(p))
	}
	return result, nil
}

func (s *Store) AppendCheckpoint(_ context.Context, cp product.Checkpoint) (product.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendCheckpointLocked(cp)
}

func (s *Store) appendCheckpointLocked(cp product.Checkpoint) (product.Checkpoint, error) {
	if _, ok := s.products[cp.ProductID]; !ok {
		return product.Checkpoint{}, core.NewNotFoundError("product", fmt.Sprint(cp.ProductID))
	}

	trail := s.checkpoints[cp.ProductID]
	cp.Seq = len(trail)
	cp.RecordedAt = time.Now().UTC()
	cp = cloneCheckpoint(cp)

	s.checkpoints[cp.ProductID] = append(trail, cp)
	return cloneCheckpoint(cp), nil
}

func (s *Store) AppendCheckpointBatch(_ context.Context, cps []product.Checkpoint) ([]product.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cp := range cps {
		if _, ok := s.products[cp.ProductID]; !ok {
			return nil, core.NewNotFoundError("product", fmt.Sprint(cp.ProductID))
		}
	}

	result := make([]product.Checkpoint, 0, len(cps))
	for _, cp := range cps {
		appended, err := s.appendCheckpointLocked(cp)
		if err != nil {
			return nil, err
		}
		result = append(result, appended)
	}
	return result, nil
}

func (s *Store) UpdateCheckpoint(_ context.Context, cp product.Checkpoint) (product.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trail, ok := s.checkpoints[cp.ProductID]
	if !ok || cp.Seq < 0 || cp.Seq >= len(trail) {
		return product.Checkpoint{}, core.NewNotFoundError("checkpoint", fmt.Sprintf("%d/%d", cp.ProductID, cp.Seq))
	}

	original := trail[cp.Seq]
	cp.Actor = original.Actor
	cp.RecordedAt = original.RecordedAt
	cp.AmendedAt = time.Now().UTC()
	cp = cloneCheckpoint(cp)

	trail[cp.Seq] = cp
	return cloneCheckpoint(cp), nil
}

func (s *Store) ListCheckpoints(_ context.Context, productID uint64) ([]product.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.products[productID]; !ok {
		return nil, core.NewNotFoundError("product", fmt.Sprint(productID))
	}

	trail := s.checkpoints[productID]
	result := make([]product.Checkpoint, 0, len(trail))
	for _, cp := range trail {
		result = append(result, cloneCheckpoint(cp))
	}
	return result, nil
}

// CertificateStore -------------------------------------------------------------

func (s *Store) CreateCertificate(_ context.Context, c certificate.Certificate) (certificate.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.codeIdx[c.VerificationCode]; exists {
		return certificate.Certificate{}, core.NewConflictError("certificate", c.VerificationCode, "verification code already used")
	}
	for _, id := range s.productIdx[c.ProductID] {
		existing := s.certs[id]
		if existing.Type == c.Type && existing.Valid {
			return certificate.Certificate{}, core.NewConflictError(
				"certificate", fmt.Sprint(c.ProductID),
				fmt.Sprintf("product already holds a valid %s certificate", c.Type))
		}
	}

	c.ID = s.nextCertID
	s.nextCertID++
	c.IssuedAt = time.Now().UTC()
	c = cloneCertificate(c)

	s.certs[c.ID] = c
	s.codeIdx[c.VerificationCode] = c.ID
	s.productIdx[c.ProductID] = append(s.productIdx[c.ProductID], c.ID)
	return cloneCertificate(c), nil
}

func (s *Store) UpdateCertificate(_ context.Context, c certificate.Certificate) (certificate.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.certs[c.ID]
	if !ok {
		return certificate.Certificate{}, core.NewNotFoundError("certificate", fmt.Sprint(c.ID))
	}

	// Identity fields are immutable.
	c.ProductID = original.ProductID
	c.Type = original.Type
	c.VerificationCode = original.VerificationCode
	c.IssuedAt = original.IssuedAt
	c = cloneCertificate(c)

	s.certs[c.ID] = c
	return cloneCertificate(c), nil
}

func (s *Store) GetCertificate(_ context.Context, id uint64) (certificate.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.certs[id]
	if !ok {
		return certificate.Certificate{}, core.NewNotFoundError("certificate", fmt.Sprint(id))
	}
	return cloneCertificate(c), nil
}

func (s *Store) GetCertificateByCode(_ context.Context, code string) (certificate.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.codeIdx[code]
	if !ok {
		return certificate.Certificate{}, core.NewNotFoundError("certificate", code)
	}
	return cloneCertificate(s.certs[id]), nil
}

func (s *Store) ListCertificatesByProduct(_ context.Context, productID uint64) ([]certificate.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.productIdx[productID]
	result := make([]certificate.Certificate, 0, len(ids))
	for _, id := range ids {
		result = append(result, cloneCertificate(s.certs[id]))
	}
	return result, nil
}

// ComplianceStore --------------------------------------------------------------

func (s *Store) CreateRule(_ context.Context, r compliance.Rule) (compliance.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ruleCodeIdx[r.Code]; exists {
		return compliance.Rule{}, core.NewConflictError("rule", r.Code, "rule code already registered")
	}

	r.ID = s.nextRuleID
	s.nextRuleID++
	r.CheckCount = 0
	r.CreatedAt = time.Now().UTC()
	r = cloneRule(r)

	s.rules[r.ID] = r
	s.ruleCodeIdx[r.Code] = r.ID
	return cloneRule(r), nil
}

func (s *Store) ReplaceRule(_ context.Context, code string, r compliance.Rule) (compliance.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldID, ok := s.ruleCodeIdx[code]
	if !ok {
		return compliance.Rule{}, core.NewNotFoundError("rule", code)
	}
	if s.rules[oldID].CheckCount > 0 {
		return compliance.Rule{}, core.NewConflictError("rule", code, "rule already evaluated; register a new code")
	}

	r.ID = s.nextRuleID
	s.nextRuleID++
	r.Code = code
	r.CheckCount = 0
	r.CreatedAt = time.Now().UTC()
	r = cloneRule(r)

	delete(s.rules, oldID)
	s.rules[r.ID] = r
	s.ruleCodeIdx[code] = r.ID
	return cloneRule(r), nil
}

func (s *Store) GetRule(_ context.Context, id uint64) (compliance.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return compliance.Rule{}, core.NewNotFoundError("rule", fmt.Sprint(id))
	}
	return cloneRule(r), nil
}

func (s *Store) GetRuleByCode(_ context.Context, code string) (compliance.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.ruleCodeIdx[code]
	if !ok {
		return compliance.Rule{}, core.NewNotFoundError("rule", code)
	}
	return cloneRule(s.rules[id]), nil
}

func (s *Store) ListRules(_ context.Context) ([]compliance.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]compliance.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		result = append(result, cloneRule(r))
	}
	return result, nil
}

func (s *Store) CreateCheck(_ context.Context, c compliance.Check) (compliance.Check, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[c.RuleID]
	if !ok {
		return compliance.Check{}, core.NewNotFoundError("rule", fmt.Sprint(c.RuleID))
	}

	c.ID = s.nextCheckID
	s.nextCheckID++
	c.CheckedAt = time.Now().UTC()
	c = cloneCheck(c)

	s.checks[c.ProductID] = append(s.checks[c.ProductID], c)

	rule.CheckCount++
	s.rules[c.RuleID] = rule

	s.checkCount++
	s.scoreSum += int64(c.Score)
	if c.Passed {
		s.passedCount++
	}
	return cloneCheck(c), nil
}

func (s *Store) ListChecks(_ context.Context, productID uint64) ([]compliance.Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.checks[productID]
	result := make([]compliance.Check, 0, len(list))
	for _, c := range list {
		result = append(result, cloneCheck(c))
	}
	return result, nil
}

func (s *Store) Stats(_ context.Context) (compliance.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := compliance.Stats{
		Rules:       int64(len(s.ruleCodeIdx)),
		Checks:      s.checkCount,
		Passed:      s.passedCount,
		Failed:      s.checkCount - s.passedCount,
		GeneratedAt: time.Now().UTC(),
	}
	if s.checkCount > 0 {
		stats.AvgScore = int(s.scoreSum / s.checkCount)
	}
	return stats, nil
}

// EscrowStore ------------------------------------------------------------------

func (s *Store) CreateEscrow(_ context.Context, e escrow.Escrow) (escrow.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.escrows[e.ID]; exists {
		return escrow.Escrow{}, core.NewConflictError("escrow", e.ID, "escrow already exists")
	}

	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	e = cloneEscrow(e)

	s.escrows[e.ID] = e
	return cloneEscrow(e), nil
}

func (s *Store) UpdateEscrow(_ context.Context, e escrow.Escrow) (escrow.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.escrows[e.ID]
	if !ok {
		return escrow.Escrow{}, core.NewNotFoundError("escrow", e.ID)
	}

	e.Payer = original.Payer
	e.Payee = original.Payee
	e.Amount = original.Amount
	e.CreatedAt = original.CreatedAt
	e.UpdatedAt = time.Now().UTC()
	e = cloneEscrow(e)

	s.escrows[e.ID] = e
	return cloneEscrow(e), nil
}

func (s *Store) GetEscrow(_ context.Context, id string) (escrow.Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.escrows[id]
	if !ok {
		return escrow.Escrow{}, core.NewNotFoundError("escrow", id)
	}
	return cloneEscrow(e), nil
}

func (s *Store) ListEscrowsByParty(_ context.Context, account string) ([]escrow.Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []escrow.Escrow
	for _, e := range s.escrows {
		if e.Payer == account || e.Payee == account {
			result = append(result, cloneEscrow(e))
		}
	}
	return result, nil
}

// RewardStore ------------------------------------------------------------------

func (s *Store) GetAccrual(_ context.Context, user string) (reward.Accrual, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accruals[user]
	if !ok {
		return reward.Accrual{}, false, nil
	}
	return cloneAccrual(a), true, nil
}

func (s *Store) PutAccrual(_ context.Context, a reward.Accrual) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accruals[a.User] = cloneAccrual(a)
	return nil
}

func (s *Store) GetRate(_ context.Context, action string) (reward.Rate, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rates[action]
	return r, ok, nil
}

func (s *Store) PutRate(_ context.Context, r reward.Rate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rates[r.Action] = r
	return nil
}

func (s *Store) ListRates(_ context.Context) ([]reward.Rate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]reward.Rate, 0, len(s.rates))
	for _, r := range s.rates {
		result = append(result, r)
	}
	return result, nil
}

// TokenStore -------------------------------------------------------------------

func (s *Store) InitSupply(_ context.Context, supply token.Supply) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.supplySet {
		return core.NewConflictError("supply", "genesis", "supply already initialized")
	}
	s.supply = supply
	s.supplySet = true
	s.pools[token.PoolEcosystem] = supply.Ecosystem
	s.pools[token.PoolTeam] = supply.Team
	s.pools[token.PoolTreasury] = supply.Treasury
	return nil
}

func (s *Store) Supply(_ context.Context) (token.Supply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.supplySet {
		return token.Supply{}, core.NewNotFoundError("supply", "genesis")
	}
	return s.supply, nil
}

func (s *Store) Balance(_ context.Context, account string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[account], nil
}

func (s *Store) Credit(_ context.Context, account string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances[account] = s.balances[account].Add(amount)
	return nil
}

func (s *Store) Debit(_ context.Context, account string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := s.balances[account]
	if balance.LessThan(amount) {
		return core.NewFundsError(account, fmt.Sprintf("balance %s is below %s", balance, amount))
	}
	s.balances[account] = balance.Sub(amount)
	return nil
}

func (s *Store) PoolBalance(_ context.Context, pool string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pools[pool], nil
}

func (s *Store) CreditPool(_ context.Context, pool string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pools[pool] = s.pools[pool].Add(amount)
	return nil
}

func (s *Store) DebitPool(_ context.Context, pool string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := s.pools[pool]
	if balance.LessThan(amount) {
		return core.NewFundsError(pool, fmt.Sprintf("pool %s is below %s", balance, amount))
	}
	s.pools[pool] = balance.Sub(amount)
	return nil
}

func (s *Store) GetStake(_ context.Context, account string) (token.StakePosition, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.stakes[account]
	return pos, ok, nil
}

func (s *Store) SetStake(_ context.Context, pos token.StakePosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.stakes[pos.Account]; ok {
		s.totalStaked = s.totalStaked.Sub(old.Amount)
	}
	s.stakes[pos.Account] = pos
	s.totalStaked = s.totalStaked.Add(pos.Amount)
	return nil
}

func (s *Store) DeleteStake(_ context.Context, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.stakes[account]; ok {
		s.totalStaked = s.totalStaked.Sub(old.Amount)
		delete(s.stakes, account)
	}
	return nil
}

func (s *Store) TotalStaked(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalStaked, nil
}

func (s *Store) CreateVesting(_ context.Context, v token.VestingSchedule) (token.VestingSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vesting[v.ID]; exists {
		return token.VestingSchedule{}, core.NewConflictError("vesting", v.ID, "schedule already exists")
	}
	v.CreatedAt = time.Now().UTC()
	s.vesting[v.ID] = v
	return v, nil
}

func (s *Store) GetVesting(_ context.Context, id string) (token.VestingSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vesting[id]
	if !ok {
		return token.VestingSchedule{}, core.NewNotFoundError("vesting", id)
	}
	return v, nil
}

func (s *Store) UpdateVesting(_ context.Context, v token.VestingSchedule) (token.VestingSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.vesting[v.ID]
	if !ok {
		return token.VestingSchedule{}, core.NewNotFoundError("vesting", v.ID)
	}
	v.Beneficiary = original.Beneficiary
	v.Total = original.Total
	v.Start = original.Start
	v.Duration = original.Duration
	v.CreatedAt = original.CreatedAt

	s.vesting[v.ID] = v
	return v, nil
}

func (s *Store) ListVesting(_ context.Context, beneficiary string) ([]token.VestingSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []token.VestingSchedule
	for _, v := range s.vesting {
		if v.Beneficiary == beneficiary {
			result = append(result, v)
		}
	}
	return result, nil
}

// SettlementStore --------------------------------------------------------------

func (s *Store) SettlementBalance(_ context.Context, account string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settlement[account], nil
}

func (s *Store) SettlementCredit(_ context.Context, account string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settlement[account] = s.settlement[account].Add(amount)
	return nil
}

func (s *Store) SettlementDebit(_ context.Context, account string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settlementDebitLocked(account, amount)
}

func (s *Store) settlementDebitLocked(account string, amount decimal.Decimal) error {
	balance := s.settlement[account]
	if balance.LessThan(amount) {
		return core.NewFundsError(account, fmt.Sprintf("settlement balance %s is below %s", balance, amount))
	}
	s.settlement[account] = balance.Sub(amount)
	return nil
}

func (s *Store) SettlementTransfer(_ context.Context, from, to string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.settlementDebitLocked(from, amount); err != nil {
		return err
	}
	s.settlement[to] = s.settlement[to].Add(amount)
	return nil
}

// TenantStore ------------------------------------------------------------------

func tenantKey(kind tenant.Kind, key string) string {
	return string(kind) + "/" + key
}

func (s *Store) CreateInstance(_ context.Context, inst tenant.Instance) (tenant.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := tenantKey(inst.Kind, inst.Key)
	if _, exists := s.tenantKeys[k]; exists {
		return tenant.Instance{}, core.NewConflictError("tenant", inst.Key, fmt.Sprintf("active %s instance already deployed for key", inst.Kind))
	}

	now := time.Now().UTC()
	inst.Active = true
	inst.CreatedAt = now
	inst.UpdatedAt = now
	inst = cloneInstance(inst)

	s.instances[inst.Handle] = inst
	s.tenantKeys[k] = inst.Handle
	s.aggRules += inst.RuleCount
	s.aggChecks += inst.CheckCount
	return cloneInstance(inst), nil
}

func (s *Store) UpdateInstance(_ context.Context, inst tenant.Instance) (tenant.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.instances[inst.Handle]
	if !ok {
		return tenant.Instance{}, core.NewNotFoundError("tenant instance", inst.Handle)
	}

	inst.Kind = original.Kind
	inst.Org = original.Org
	inst.Key = original.Key
	inst.CreatedAt = original.CreatedAt
	inst.UpdatedAt = time.Now().UTC()
	inst = cloneInstance(inst)

	k := tenantKey(inst.Kind, inst.Key)
	if original.Active && !inst.Active {
		delete(s.tenantKeys, k)
	}
	if !original.Active && inst.Active {
		if holder, exists := s.tenantKeys[k]; exists && holder != inst.Handle {
			return tenant.Instance{}, core.NewConflictError("tenant", inst.Key, "another active instance holds this key")
		}
		s.tenantKeys[k] = inst.Handle
	}

	s.aggRules += inst.RuleCount - original.RuleCount
	s.aggChecks += inst.CheckCount - original.CheckCount

	s.instances[inst.Handle] = inst
	return cloneInstance(inst), nil
}

func (s *Store) GetInstance(_ context.Context, handle string) (tenant.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[handle]
	if !ok {
		return tenant.Instance{}, core.NewNotFoundError("tenant instance", handle)
	}
	return cloneInstance(inst), nil
}

func (s *Store) GetInstanceByKey(_ context.Context, kind tenant.Kind, key string) (tenant.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handle, ok := s.tenantKeys[tenantKey(kind, key)]
	if !ok {
		return tenant.Instance{}, core.NewNotFoundError("tenant instance", key)
	}
	return cloneInstance(s.instances[handle]), nil
}

func (s *Store) ListInstances(_ context.Context, kind tenant.Kind) ([]tenant.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []tenant.Instance
	for _, inst := range s.instances {
		if kind == "" || inst.Kind == kind {
			result = append(result, cloneInstance(inst))
		}
	}
	return result, nil
}

func (s *Store) TenantStats(_ context.Context) (tenant.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := tenant.Stats{
		Instances:   int64(len(s.instances)),
		Active:      int64(len(s.tenantKeys)),
		Rules:       s.aggRules,
		Checks:      s.aggChecks,
		GeneratedAt: time.Now().UTC(),
	}
	return stats, nil
}

// Clone helpers ----------------------------------------------------------------

func copyStrings(src []string) []string {
	if src == nil {
		return nil
	}
	return append([]string(nil), src...)
}

func copyMap(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneProduct(p product.Product) product.Product {
	p.RawMaterials = copyStrings(p.RawMaterials)
	p.Stakeholders = copyStrings(p.Stakeholders)
	return p
}

func cloneCheckpoint(cp product.Checkpoint) product.Checkpoint {
	cp.Environment = copyMap(cp.Environment)
	return cp
}

func cloneCertificate(c certificate.Certificate) certificate.Certificate {
	c.Standards = copyStrings(c.Standards)
	return c
}

func cloneRule(r compliance.Rule) compliance.Rule {
	r.RequiredEvidence = copyStrings(r.RequiredEvidence)
	return r
}

func cloneCheck(c compliance.Check) compliance.Check {
	c.Evidence = copyMap(c.Evidence)
	return c
}

func cloneEscrow(e escrow.Escrow) escrow.Escrow {
	e.Milestones = append([]escrow.Milestone(nil), e.Milestones...)
	return e
}

func cloneAccrual(a reward.Accrual) reward.Accrual {
	if a.Categories != nil {
		categories := make(map[string]decimal.Decimal, len(a.Categories))
		for k, v := range a.Categories {
			categories[k] = v
		}
		a.Categories = categories
	}
	return a
}

func cloneInstance(inst tenant.Instance) tenant.Instance {
	inst.Metadata = copyMap(inst.Metadata)
	return inst
}
