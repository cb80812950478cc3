// Package config loads engine configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Engine is the full engine configuration. Monetary values arrive as decimal
// strings and are parsed once at load time.
type Engine struct {
	LogLevel    string `env:"LEDGER_LOG_LEVEL,default=info"`
	MetricsAddr string `env:"LEDGER_METRICS_ADDR,default=:9190"`

	Owner           string `env:"LEDGER_OWNER,default=owner"`
	TreasuryAccount string `env:"LEDGER_TREASURY_ACCOUNT,default=treasury"`

	TotalSupply     string `env:"LEDGER_TOKEN_TOTAL_SUPPLY,default=1000000000"`
	EcosystemBps    int64  `env:"LEDGER_TOKEN_ECOSYSTEM_BPS,default=6000"`
	TeamBps         int64  `env:"LEDGER_TOKEN_TEAM_BPS,default=2000"`
	TreasuryBps     int64  `env:"LEDGER_TOKEN_TREASURY_BPS,default=2000"`
	StakingAPYBps   int64  `env:"LEDGER_STAKING_APY_BPS,default=500"`
	MinStake        string `env:"LEDGER_MIN_STAKE,default=100"`

	RewardMinInterval time.Duration `env:"LEDGER_REWARD_MIN_INTERVAL,default=1m"`
	MaxDailyActions   int           `env:"LEDGER_REWARD_MAX_DAILY_ACTIONS,default=100"`
	MaxDailyRewards   string        `env:"LEDGER_REWARD_MAX_DAILY,default=1000"`
	RewardBatchSize   int           `env:"LEDGER_REWARD_BATCH_SIZE,default=50"`
	ReferencePrice    string        `env:"LEDGER_REFERENCE_PRICE,default=1"`

	EscrowFeeBps int64  `env:"LEDGER_ESCROW_FEE_BPS,default=100"`
	DeployFee    string `env:"LEDGER_DEPLOY_FEE,default=50"`

	ComplianceThreshold int `env:"LEDGER_COMPLIANCE_THRESHOLD,default=70"`

	totalSupply     decimal.Decimal
	minStake        decimal.Decimal
	maxDailyRewards decimal.Decimal
	referencePrice  decimal.Decimal
	deployFee       decimal.Decimal
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Engine, error) {
	_ = godotenv.Load()

	var cfg Engine
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.parse(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Engine) parse() error {
	var err error
	if c.totalSupply, err = parseAmount("LEDGER_TOKEN_TOTAL_SUPPLY", c.TotalSupply); err != nil {
		return err
	}
	if c.minStake, err = parseAmount("LEDGER_MIN_STAKE", c.MinStake); err != nil {
		return err
	}
	if c.maxDailyRewards, err = parseAmount("LEDGER_REWARD_MAX_DAILY", c.MaxDailyRewards); err != nil {
		return err
	}
	if c.referencePrice, err = parseAmount("LEDGER_REFERENCE_PRICE", c.ReferencePrice); err != nil {
		return err
	}
	if c.deployFee, err = parseAmount("LEDGER_DEPLOY_FEE", c.DeployFee); err != nil {
		return err
	}
	if c.EcosystemBps+c.TeamBps+c.TreasuryBps != 10000 {
		return fmt.Errorf("pool split must sum to 10000 bps, got %d", c.EcosystemBps+c.TeamBps+c.TreasuryBps)
	}
	if c.ComplianceThreshold < 0 || c.ComplianceThreshold > 100 {
		return fmt.Errorf("compliance threshold must be within 0..100, got %d", c.ComplianceThreshold)
	}
	if c.RewardBatchSize <= 0 {
		return fmt.Errorf("reward batch size must be positive, got %d", c.RewardBatchSize)
	}
	return nil
}

func parseAmount(name, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", name, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%s must not be negative", name)
	}
	return d, nil
}

// TotalSupplyAmount returns the parsed genesis supply.
func (c *Engine) TotalSupplyAmount() decimal.Decimal { return c.totalSupply }

// MinStakeAmount returns the parsed minimum stake.
func (c *Engine) MinStakeAmount() decimal.Decimal { return c.minStake }

// MaxDailyRewardAmount returns the parsed per-user daily reward cap.
func (c *Engine) MaxDailyRewardAmount() decimal.Decimal { return c.maxDailyRewards }

// ReferencePriceAmount returns the parsed reference price pinned for the
// static price source.
func (c *Engine) ReferencePriceAmount() decimal.Decimal { return c.referencePrice }

// DeployFeeAmount returns the parsed factory deployment fee.
func (c *Engine) DeployFeeAmount() decimal.Decimal { return c.deployFee }
