// Package scoring computes whale scores from trade histories. Scoring is a
// pure function of the trade set: deterministic, independent of trade order,
// and monotone non-decreasing in realized ROI.
package scoring

import (
	"math"

	"whale-allocator/internal/domain"
)

// Version tags every computed score. A cached score whose version differs
// from this is stale and must be recomputed, never reused.
const Version = "2.0"

// Weights holds the tunable parameters of the scoring formula.
type Weights struct {
	// ROI scales the realized-ROI-percent term.
	ROI float64 `yaml:"roi"`

	// WinRate scales the win-rate term (win rate is in [0, 1]).
	WinRate float64 `yaml:"win_rate"`

	// ConfidencePivot is the trade count at which the confidence factor
	// tradeCount/(tradeCount+pivot) reaches 0.5.
	ConfidencePivot float64 `yaml:"confidence_pivot"`

	// MaxRiskMultiplier caps the risk penalty divisor.
	MaxRiskMultiplier float64 `yaml:"max_risk_multiplier"`
}

// DefaultWeights returns the standard scoring weights.
func DefaultWeights() Weights {
	return Weights{
		ROI:               1.0,
		WinRate:           25.0,
		ConfidencePivot:   30.0,
		MaxRiskMultiplier: 3.0,
	}
}

// Stats are the aggregates derived from a trade history alongside the score.
// Win rate and realized pnl are computed over closed trades only; a trade
// with no pnl has simply not resolved yet.
type Stats struct {
	TradeCount     int     `json:"trade_count"`
	TokenCount     int     `json:"token_count"`
	ClosedCount    int     `json:"closed_count"`
	RealizedPnlUSD float64 `json:"realized_pnl_usd"`
	ROIPercent     float64 `json:"roi_percent"`
	WinRate        float64 `json:"win_rate"`
	RiskMultiplier float64 `json:"risk_multiplier"`
	LowConfidence  bool    `json:"low_confidence"`
}

// Engine computes scores with a fixed set of weights.
type Engine struct {
	weights Weights
}

// NewEngine creates a scoring engine. Zero-valued weights fall back to defaults.
func NewEngine(w Weights) *Engine {
	def := DefaultWeights()
	if w.ROI == 0 {
		w.ROI = def.ROI
	}
	if w.WinRate == 0 {
		w.WinRate = def.WinRate
	}
	if w.ConfidencePivot == 0 {
		w.ConfidencePivot = def.ConfidencePivot
	}
	if w.MaxRiskMultiplier == 0 {
		w.MaxRiskMultiplier = def.MaxRiskMultiplier
	}
	return &Engine{weights: w}
}

// Compute derives the score and stats for a trade history. The returned
// score carries Version; ComputedAt is stamped by the caller at write time.
func (e *Engine) Compute(trades []*domain.Trade) (domain.Score, Stats) {
	stats := computeStats(trades, e.weights.MaxRiskMultiplier)

	confidence := 0.0
	if stats.TradeCount > 0 {
		confidence = float64(stats.TradeCount) / (float64(stats.TradeCount) + e.weights.ConfidencePivot)
	}

	value := confidence * (e.weights.ROI*stats.ROIPercent + e.weights.WinRate*stats.WinRate) / stats.RiskMultiplier

	return domain.Score{Value: value, Version: Version}, stats
}

// computeStats aggregates a trade set. Every quantity is defined over the
// set, not the sequence, so reordering the input cannot change the result.
func computeStats(trades []*domain.Trade, maxRisk float64) Stats {
	stats := Stats{RiskMultiplier: 1.0}
	stats.TradeCount = len(trades)

	tokens := make(map[string]struct{})
	var (
		wins        int
		closedValue float64
		sumValue    float64
		sumValueSq  float64
	)

	for _, t := range trades {
		tokens[t.Token] = struct{}{}
		sumValue += t.ValueUSD
		sumValueSq += t.ValueUSD * t.ValueUSD

		if t.PnlUSD == nil {
			continue
		}
		stats.ClosedCount++
		stats.RealizedPnlUSD += *t.PnlUSD
		closedValue += t.ValueUSD
		if *t.PnlUSD > 0 {
			wins++
		}
	}
	stats.TokenCount = len(tokens)

	if stats.ClosedCount > 0 {
		stats.WinRate = float64(wins) / float64(stats.ClosedCount)
	} else {
		stats.LowConfidence = true
	}

	if closedValue > 0 {
		stats.ROIPercent = stats.RealizedPnlUSD / closedValue * 100
	}

	// Trade-size dispersion as a risk proxy: coefficient of variation over
	// all trade values, shifted so a uniform sizer scores 1.0.
	if stats.TradeCount > 1 && sumValue > 0 {
		mean := sumValue / float64(stats.TradeCount)
		variance := sumValueSq/float64(stats.TradeCount) - mean*mean
		if variance < 0 {
			variance = 0
		}
		stats.RiskMultiplier = 1 + math.Sqrt(variance)/mean
	}
	if stats.RiskMultiplier > maxRisk {
		stats.RiskMultiplier = maxRisk
	}

	return stats
}
