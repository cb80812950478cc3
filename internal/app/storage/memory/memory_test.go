package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/TraceChain-Network/ledger_layer/internal/app/core"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/certificate"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/compliance"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/product"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/tenant"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/token"
)

func TestCreateProductBatchUniqueness(t *testing.T) {
	store := New()
	ctx := context.Background()

	first, err := store.CreateProduct(ctx, product.Product{Name: "Coffee", BatchNumber: "LOT-001"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if first.ID != 1 {
		t.Fatalf("expected id 1, got %d", first.ID)
	}

	_, err = store.CreateProduct(ctx, product.Product{Name: "Coffee", BatchNumber: "LOT-001"})
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict for duplicate batch, got %v", err)
	}

	byBatch, err := store.GetProductByBatch(ctx, "LOT-001")
	if err != nil {
		t.Fatalf("get by batch: %v", err)
	}
	if byBatch.ID != first.ID {
		t.Fatalf("batch index resolved to %d, want %d", byBatch.ID, first.ID)
	}
}

func TestCreateProductBatchAllOrNone(t *testing.T) {
	store := New()
	ctx := context.Background()

	batch := []product.Product{
		{Name: "A", BatchNumber: "LOT-A"},
		{Name: "B", BatchNumber: "LOT-A"},
	}
	if _, err := store.CreateProductBatch(ctx, batch); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict for duplicate within batch, got %v", err)
	}

	products, err := store.ListProducts(ctx)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(products) != 0 {
		t.Fatalf("failed batch must not create products, got %d", len(products))
	}
}

func TestCheckpointSequencing(t *testing.T) {
	store := New()
	ctx := context.Background()

	p, err := store.CreateProduct(ctx, product.Product{Name: "Coffee", BatchNumber: "LOT-001"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	for i := 0; i < 3; i++ {
		cp, err := store.AppendCheckpoint(ctx, product.Checkpoint{ProductID: p.ID, Location: "dock"})
		if err != nil {
			t.Fatalf("append checkpoint %d: %v", i, err)
		}
		if cp.Seq != i {
			t.Fatalf("checkpoint %d got seq %d", i, cp.Seq)
		}
	}

	if _, err := store.AppendCheckpoint(ctx, product.Checkpoint{ProductID: 999}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found for unknown product, got %v", err)
	}
}

func TestCertificateCodeAndSlot(t *testing.T) {
	store := New()
	ctx := context.Background()

	first, err := store.CreateCertificate(ctx, certificate.Certificate{
		ProductID:        1,
		Type:             certificate.TypeAuthenticity,
		VerificationCode: "VC-1",
		Valid:            true,
	})
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	_, err = store.CreateCertificate(ctx, certificate.Certificate{
		ProductID:        2,
		Type:             certificate.TypeAuthenticity,
		VerificationCode: "VC-1",
		Valid:            true,
	})
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict for reused code, got %v", err)
	}

	_, err = store.CreateCertificate(ctx, certificate.Certificate{
		ProductID:        1,
		Type:             certificate.TypeAuthenticity,
		VerificationCode: "VC-2",
		Valid:            true,
	})
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict for occupied slot, got %v", err)
	}

	// Invalidate, then the slot frees up.
	first.Valid = false
	if _, err := store.UpdateCertificate(ctx, first); err != nil {
		t.Fatalf("update certificate: %v", err)
	}
	if _, err := store.CreateCertificate(ctx, certificate.Certificate{
		ProductID:        1,
		Type:             certificate.TypeAuthenticity,
		VerificationCode: "VC-3",
		Valid:            true,
	}); err != nil {
		t.Fatalf("reissue after invalidation: %v", err)
	}
}

func TestReplaceRuleRejectedAfterChecks(t *testing.T) {
	store := New()
	ctx := context.Background()

	rule, err := store.CreateRule(ctx, compliance.Rule{Code: "ORG-1", Title: "Organic sourcing", Weight: 5})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	if _, err := store.CreateCheck(ctx, compliance.Check{ProductID: 1, RuleID: rule.ID, Score: 80, Passed: true}); err != nil {
		t.Fatalf("create check: %v", err)
	}

	if _, err := store.ReplaceRule(ctx, "ORG-1", compliance.Rule{Title: "Organic sourcing v2", Weight: 7}); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict replacing evaluated rule, got %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Rules != 1 || stats.Checks != 1 || stats.Passed != 1 || stats.AvgScore != 80 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSupplyInitOnce(t *testing.T) {
	store := New()
	ctx := context.Background()

	supply := token.Supply{
		Total:     decimal.NewFromInt(1000),
		Ecosystem: decimal.NewFromInt(600),
		Team:      decimal.NewFromInt(200),
		Treasury:  decimal.NewFromInt(200),
	}
	if err := store.InitSupply(ctx, supply); err != nil {
		t.Fatalf("init supply: %v", err)
	}
	if err := store.InitSupply(ctx, supply); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict on second init, got %v", err)
	}

	pool, err := store.PoolBalance(ctx, token.PoolEcosystem)
	if err != nil {
		t.Fatalf("pool balance: %v", err)
	}
	if !pool.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("ecosystem pool = %s, want 600", pool)
	}
}

func TestDebitInsufficient(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.Credit(ctx, "alice", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := store.Debit(ctx, "alice", decimal.NewFromInt(11)); !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	balance, _ := store.Balance(ctx, "alice")
	if !balance.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("failed debit must not change balance, got %s", balance)
	}
}

func TestSettlementTransferConservation(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.SettlementCredit(ctx, "payer", decimal.NewFromInt(300)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := store.SettlementTransfer(ctx, "payer", "payee", decimal.NewFromInt(120)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	payer, _ := store.SettlementBalance(ctx, "payer")
	payee, _ := store.SettlementBalance(ctx, "payee")
	if !payer.Add(payee).Equal(decimal.NewFromInt(300)) {
		t.Fatalf("transfer must conserve funds: payer=%s payee=%s", payer, payee)
	}

	if err := store.SettlementTransfer(ctx, "payer", "payee", decimal.NewFromInt(1000)); !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestTenantKeyExclusivity(t *testing.T) {
	store := New()
	ctx := context.Background()

	inst, err := store.CreateInstance(ctx, tenant.Instance{
		Handle: "h1",
		Kind:   tenant.KindRegistry,
		Org:    "acme",
		Key:    "acme-main",
	})
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}
	if !inst.Active {
		t.Fatal("new instance must be active")
	}

	_, err = store.CreateInstance(ctx, tenant.Instance{
		Handle: "h2",
		Kind:   tenant.KindRegistry,
		Org:    "acme",
		Key:    "acme-main",
	})
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict for occupied key, got %v", err)
	}

	// Same key under a different kind is allowed.
	if _, err := store.CreateInstance(ctx, tenant.Instance{
		Handle: "h3",
		Kind:   tenant.KindCompliance,
		Org:    "acme",
		Key:    "acme-main",
	}); err != nil {
		t.Fatalf("create compliance instance: %v", err)
	}

	// Deactivate frees the key for a fresh deploy.
	inst.Active = false
	if _, err := store.UpdateInstance(ctx, inst); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := store.CreateInstance(ctx, tenant.Instance{
		Handle: "h4",
		Kind:   tenant.KindRegistry,
		Org:    "acme",
		Key:    "acme-main",
	}); err != nil {
		t.Fatalf("redeploy after deactivation: %v", err)
	}

	stats, err := store.TenantStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Instances != 3 || stats.Active != 2 {
		t.Fatalf("unexpected tenant stats: %+v", stats)
	}
}

func TestVestingLinear(t *testing.T) {
	start := time.Now().UTC().Add(-time.Hour)
	v := token.VestingSchedule{
		Total:    decimal.NewFromInt(100),
		Start:    start,
		Duration: 2 * time.Hour,
	}

	halfway := v.VestedAt(start.Add(time.Hour))
	if !halfway.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("halfway vested = %s, want 50", halfway)
	}
	if got := v.VestedAt(start.Add(3 * time.Hour)); !got.Equal(v.Total) {
		t.Fatalf("fully vested = %s, want %s", got, v.Total)
	}
	if got := v.VestedAt(start); !got.IsZero() {
		t.Fatalf("nothing vests at start, got %s", got)
	}
}
