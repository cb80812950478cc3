// Command ledgerd runs the traceability ledger engine: it wires the shared
// ledger state, the component services, and the event log, then serves the
// Prometheus metrics endpoint until interrupted.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/access"
	"github.com/TraceChain-Network/ledger_layer/internal/app/events"
	"github.com/TraceChain-Network/ledger_layer/internal/app/metrics"
	"github.com/TraceChain-Network/ledger_layer/internal/app/services/accessctrl"
	"github.com/TraceChain-Network/ledger_layer/internal/app/services/certificates"
	"github.com/TraceChain-Network/ledger_layer/internal/app/services/compliance"
	"github.com/TraceChain-Network/ledger_layer/internal/app/services/escrow"
	"github.com/TraceChain-Network/ledger_layer/internal/app/services/factory"
	"github.com/TraceChain-Network/ledger_layer/internal/app/services/registry"
	"github.com/TraceChain-Network/ledger_layer/internal/app/services/rewards"
	tokensvc "github.com/TraceChain-Network/ledger_layer/internal/app/services/token"
	"github.com/TraceChain-Network/ledger_layer/internal/app/storage/memory"
	"github.com/TraceChain-Network/ledger_layer/internal/config"
	"github.com/TraceChain-Network/ledger_layer/pkg/logger"
)

const rewardsDistributorAccount = "rewards-distributor"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("ledgerd").WithError(err).Error("load configuration")
		os.Exit(1)
	}

	log := logger.New("ledgerd", cfg.LogLevel)
	store := memory.New()
	ring := events.NewRing(10000)

	// Mirror every committed event into the log.
	ring.Subscribe(func(ev events.Event) {
		entry := log.WithField("event", string(ev.Type)).WithField("actor", ev.Actor)
		if ev.Tenant != "" {
			entry = entry.WithField("tenant", ev.Tenant)
		}
		for k, v := range ev.Fields {
			entry = entry.WithField(k, v)
		}
		entry.Debug("event committed")
	})

	acl, err := accessctrl.New(store, cfg.Owner, ring, logger.New("access", cfg.LogLevel))
	if err != nil {
		log.WithError(err).Error("init access control")
		os.Exit(1)
	}

	token, err := tokensvc.New(store, acl, tokensvc.Config{
		TotalSupply:   cfg.TotalSupplyAmount(),
		EcosystemBps:  cfg.EcosystemBps,
		TeamBps:       cfg.TeamBps,
		TreasuryBps:   cfg.TreasuryBps,
		StakingAPYBps: cfg.StakingAPYBps,
		MinStake:      cfg.MinStakeAmount(),
	}, ring, logger.New("token", cfg.LogLevel))
	if err != nil {
		log.WithError(err).Error("init token ledger")
		os.Exit(1)
	}

	// The rewards service pays claims through its own minter identity.
	ctx := context.Background()
	if err := acl.GrantRole(ctx, cfg.Owner, access.RoleMinter, rewardsDistributorAccount); err != nil {
		log.WithError(err).Error("grant rewards minter")
		os.Exit(1)
	}

	rewardsSvc, err := rewards.New(store, acl, token, rewards.StaticPrice{Value: cfg.ReferencePriceAmount()}, rewards.Config{
		MinInterval:        cfg.RewardMinInterval,
		MaxDailyActions:    cfg.MaxDailyActions,
		MaxDaily:           cfg.MaxDailyRewardAmount(),
		BatchSize:          cfg.RewardBatchSize,
		DistributorAccount: rewardsDistributorAccount,
	}, ring, logger.New("rewards", cfg.LogLevel))
	if err != nil {
		log.WithError(err).Error("init rewards")
		os.Exit(1)
	}

	registrySvc, err := registry.New(store, acl, ring, logger.New("registry", cfg.LogLevel))
	if err != nil {
		log.WithError(err).Error("init registry")
		os.Exit(1)
	}

	certSvc, err := certificates.New(store, acl, store, ring, logger.New("certificates", cfg.LogLevel))
	if err != nil {
		log.WithError(err).Error("init certificates")
		os.Exit(1)
	}

	complianceSvc, err := compliance.New(store, acl, store, cfg.ComplianceThreshold, ring, logger.New("compliance", cfg.LogLevel))
	if err != nil {
		log.WithError(err).Error("init compliance")
		os.Exit(1)
	}

	escrowSvc, err := escrow.New(store, acl, escrow.Config{
		FeeBps:          cfg.EscrowFeeBps,
		TreasuryAccount: cfg.TreasuryAccount,
	}, ring, logger.New("escrow", cfg.LogLevel))
	if err != nil {
		log.WithError(err).Error("init escrow")
		os.Exit(1)
	}

	factorySvc, err := factory.New(store, acl, factory.Config{
		DeployFee:           cfg.DeployFeeAmount(),
		TreasuryAccount:     cfg.TreasuryAccount,
		ComplianceThreshold: cfg.ComplianceThreshold,
	}, ring, logger.New("factory", cfg.LogLevel))
	if err != nil {
		log.WithError(err).Error("init factory")
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		// Touch each component's read path; any failure means the engine
		// state is unusable.
		checks := []func() error{
			func() error { _, err := token.Supply(r.Context()); return err },
			func() error { _, err := registrySvc.Products(r.Context()); return err },
			func() error { _, err := rewardsSvc.Rates(r.Context()); return err },
			func() error { _, err := complianceSvc.Stats(r.Context()); return err },
			func() error { _, err := certSvc.Verify(r.Context(), "healthz"); return err },
			func() error { _, err := escrowSvc.ByParty(r.Context(), cfg.Owner); return err },
			func() error { _, err := factorySvc.Stats(r.Context()); return err },
		}
		for _, check := range checks {
			if err := check(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	server := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.MetricsAddr).Info("metrics endpoint listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server")
		}
	}()

	log.WithField("owner", cfg.Owner).Info("ledger engine started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("metrics server shutdown")
	}
	log.Info("ledger engine stopped")
}
