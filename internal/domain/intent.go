package domain

import "github.com/shopspring/decimal"

// Mode selects how a copy-trade intent is handled downstream.
type Mode string

const (
	// ModeSimulated logs the intent without touching the executor.
	ModeSimulated Mode = "SIMULATED"

	// ModeReal hands the intent to the executor exactly once.
	ModeReal Mode = "REAL"
)

// Intent is a copy-trade order derived from an active whale's trade.
type Intent struct {
	FollowAddress string          `json:"follow_address"`
	Token         string          `json:"token"`
	Side          Side            `json:"side"`
	SizeUSD       decimal.Decimal `json:"size_usd"`
	Mode          Mode            `json:"mode"`
	SourceTxHash  string          `json:"source_tx_hash"`
	CreatedAt     int64           `json:"created_at"` // Unix milliseconds
}
