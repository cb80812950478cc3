// Package storage defines the persistence interfaces the ledger services
// mutate state through. Every record is owned by exactly one component and
// mutated only via that component's store interface; implementations must
// apply each call atomically.
package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/access"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/certificate"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/compliance"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/escrow"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/product"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/reward"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/tenant"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/token"
)

// AccessStore persists role grants and the global pause flag.
type AccessStore interface {
	GrantRole(ctx context.Context, grant access.Grant) error
	RevokeRole(ctx context.Context, role, account string) error
	HasRole(ctx context.Context, role, account string) (bool, error)
	ListGrants(ctx context.Context, account string) ([]access.Grant, error)

	SetPaused(ctx context.Context, paused bool) error
	Paused(ctx context.Context) (bool, error)
}

// ProductStore persists products and their checkpoint trails.
type ProductStore interface {
	// CreateProduct assigns the next product id and enforces batch-number
	// uniqueness.
	CreateProduct(ctx context.Context, p product.Product) (product.Product, error)
	// CreateProductBatch creates all products or none.
	CreateProductBatch(ctx context.Context, ps []product.Product) ([]product.Product, error)
	UpdateProduct(ctx context.Context, p product.Product) (product.Product, error)
	GetProduct(ctx context.Context, id uint64) (product.Product, error)
	GetProductByBatch(ctx context.Context, batchNumber string) (product.Product, error)
	ListProducts(ctx context.Context) ([]product.Product, error)

	// AppendCheckpoint assigns the next sequence number on the product's trail.
	AppendCheckpoint(ctx context.Context, cp product.Checkpoint) (product.Checkpoint, error)
	// AppendCheckpointBatch appends all checkpoints or none.
	AppendCheckpointBatch(ctx context.Context, cps []product.Checkpoint) ([]product.Checkpoint, error)
	UpdateCheckpoint(ctx context.Context, cp product.Checkpoint) (product.Checkpoint, error)
	ListCheckpoints(ctx context.Context, productID uint64) ([]product.Checkpoint, error)
}

// CertificateStore persists certificates with a direct verification-code index.
type CertificateStore interface {
	// CreateCertificate assigns the next certificate id, enforces code
	// uniqueness and the one-live-certificate-per-product-per-type slot.
	CreateCertificate(ctx context.Context, c certificate.Certificate) (certificate.Certificate, error)
	UpdateCertificate(ctx context.Context, c certificate.Certificate) (certificate.Certificate, error)
	GetCertificate(ctx context.Context, id uint64) (certificate.Certificate, error)
	// GetCertificateByCode resolves a verification code via the code index,
	// never by scan.
	GetCertificateByCode(ctx context.Context, code string) (certificate.Certificate, error)
	ListCertificatesByProduct(ctx context.Context, productID uint64) ([]certificate.Certificate, error)
}

// ComplianceStore persists rules, checks, and O(1) aggregate counters.
type ComplianceStore interface {
	CreateRule(ctx context.Context, r compliance.Rule) (compliance.Rule, error)
	// ReplaceRule swaps the rule registered under code; implementations must
	// reject replacement once the old rule has recorded checks.
	ReplaceRule(ctx context.Context, code string, r compliance.Rule) (compliance.Rule, error)
	GetRule(ctx context.Context, id uint64) (compliance.Rule, error)
	GetRuleByCode(ctx context.Context, code string) (compliance.Rule, error)
	ListRules(ctx context.Context) ([]compliance.Rule, error)

	// CreateCheck appends a check and maintains rule and aggregate counters.
	CreateCheck(ctx context.Context, c compliance.Check) (compliance.Check, error)
	ListChecks(ctx context.Context, productID uint64) ([]compliance.Check, error)
	Stats(ctx context.Context) (compliance.Stats, error)
}

// EscrowStore persists escrow records.
type EscrowStore interface {
	CreateEscrow(ctx context.Context, e escrow.Escrow) (escrow.Escrow, error)
	UpdateEscrow(ctx context.Context, e escrow.Escrow) (escrow.Escrow, error)
	GetEscrow(ctx context.Context, id string) (escrow.Escrow, error)
	ListEscrowsByParty(ctx context.Context, account string) ([]escrow.Escrow, error)
}

// RewardStore persists reward accruals and category rates.
type RewardStore interface {
	GetAccrual(ctx context.Context, user string) (reward.Accrual, bool, error)
	PutAccrual(ctx context.Context, a reward.Accrual) error

	GetRate(ctx context.Context, action string) (reward.Rate, bool, error)
	PutRate(ctx context.Context, r reward.Rate) error
	ListRates(ctx context.Context) ([]reward.Rate, error)
}

// TokenStore persists the incentive token ledger: balances, genesis pools,
// staking positions, and vesting schedules.
type TokenStore interface {
	// InitSupply records the genesis allocation exactly once.
	InitSupply(ctx context.Context, s token.Supply) error
	Supply(ctx context.Context) (token.Supply, error)

	Balance(ctx context.Context, account string) (decimal.Decimal, error)
	Credit(ctx context.Context, account string, amount decimal.Decimal) error
	Debit(ctx context.Context, account string, amount decimal.Decimal) error

	PoolBalance(ctx context.Context, pool string) (decimal.Decimal, error)
	CreditPool(ctx context.Context, pool string, amount decimal.Decimal) error
	DebitPool(ctx context.Context, pool string, amount decimal.Decimal) error

	GetStake(ctx context.Context, account string) (token.StakePosition, bool, error)
	SetStake(ctx context.Context, pos token.StakePosition) error
	DeleteStake(ctx context.Context, account string) error
	TotalStaked(ctx context.Context) (decimal.Decimal, error)

	CreateVesting(ctx context.Context, v token.VestingSchedule) (token.VestingSchedule, error)
	GetVesting(ctx context.Context, id string) (token.VestingSchedule, error)
	UpdateVesting(ctx context.Context, v token.VestingSchedule) (token.VestingSchedule, error)
	ListVesting(ctx context.Context, beneficiary string) ([]token.VestingSchedule, error)
}

// SettlementStore persists stable settlement-asset balances used by escrow
// funding and factory deployment fees.
type SettlementStore interface {
	SettlementBalance(ctx context.Context, account string) (decimal.Decimal, error)
	SettlementCredit(ctx context.Context, account string, amount decimal.Decimal) error
	SettlementDebit(ctx context.Context, account string, amount decimal.Decimal) error
	SettlementTransfer(ctx context.Context, from, to string, amount decimal.Decimal) error
}

// TenantStore persists factory tenant instances.
type TenantStore interface {
	// CreateInstance enforces one active instance per (kind, key).
	CreateInstance(ctx context.Context, inst tenant.Instance) (tenant.Instance, error)
	UpdateInstance(ctx context.Context, inst tenant.Instance) (tenant.Instance, error)
	GetInstance(ctx context.Context, handle string) (tenant.Instance, error)
	GetInstanceByKey(ctx context.Context, kind tenant.Kind, key string) (tenant.Instance, error)
	ListInstances(ctx context.Context, kind tenant.Kind) ([]tenant.Instance, error)
	TenantStats(ctx context.Context) (tenant.Stats, error)
}
