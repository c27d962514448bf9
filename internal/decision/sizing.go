package decision

import (
	"github.com/shopspring/decimal"

	"whale-allocator/internal/domain"
)

// SizingPolicy maps an active whale's trade to a copy size in USD. A zero
// size means the trade is not worth following.
type SizingPolicy func(whale *domain.WhaleRecord, ev *domain.TradeEvent) decimal.Decimal

// CapitalConfig holds the capital parameters for the default sizing policy.
type CapitalConfig struct {
	// CapitalUSD is the total capital available for copy trades.
	CapitalUSD decimal.Decimal `yaml:"capital_usd"`

	// BaseRisk scales every allocation (fraction of the mirrored size).
	BaseRisk decimal.Decimal `yaml:"base_risk"`

	// MaxAllocationUSD caps any single intent.
	MaxAllocationUSD decimal.Decimal `yaml:"max_allocation_usd"`

	// MinTradeValueUSD filters out dust trades on the whale side.
	MinTradeValueUSD decimal.Decimal `yaml:"min_trade_value_usd"`
}

// DefaultCapitalConfig returns conservative defaults.
func DefaultCapitalConfig() CapitalConfig {
	return CapitalConfig{
		CapitalUSD:       decimal.NewFromInt(10_000),
		BaseRisk:         decimal.NewFromFloat(0.5),
		MaxAllocationUSD: decimal.NewFromInt(1_000),
		MinTradeValueUSD: decimal.NewFromInt(100),
	}
}

// mirrorFraction is the share of the whale's trade value used as the sizing
// base before risk and bias scaling.
var mirrorFraction = decimal.NewFromFloat(0.1)

// DefaultSizing follows a tenth of the whale's trade value, scaled by base
// risk and a score-derived bias, capped by the per-trade and total capital
// limits.
func DefaultSizing(cfg CapitalConfig) SizingPolicy {
	return func(whale *domain.WhaleRecord, ev *domain.TradeEvent) decimal.Decimal {
		value := decimal.NewFromFloat(ev.Trade.ValueUSD)
		if value.LessThan(cfg.MinTradeValueUSD) {
			return decimal.Zero
		}

		size := value.Mul(mirrorFraction).
			Mul(cfg.BaseRisk).
			Mul(scoreBias(whale.Score.Value))

		if size.GreaterThan(cfg.MaxAllocationUSD) {
			size = cfg.MaxAllocationUSD
		}
		if size.GreaterThan(cfg.CapitalUSD) {
			size = cfg.CapitalUSD
		}
		if size.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero
		}
		return size
	}
}

// scoreBias converts a whale score into an allocation multiplier.
func scoreBias(score float64) decimal.Decimal {
	switch {
	case score > 100:
		return decimal.NewFromFloat(1.5)
	case score > 50:
		return decimal.NewFromFloat(1.2)
	case score > 0:
		return decimal.NewFromInt(1)
	case score > -50:
		return decimal.NewFromFloat(0.8)
	default:
		return decimal.NewFromFloat(0.5)
	}
}
