// Package domain defines the core data types shared across the application.
package domain

// Status represents the lifecycle state of a tracked whale.
type Status string

const (
	// StatusActive marks a whale whose trades are mirrored by the decision engine.
	StatusActive Status = "ACTIVE"

	// StatusDiscarded marks a whale that failed the minimum-requirement gate.
	// Discarded whales keep accumulating trades but never produce intents.
	StatusDiscarded Status = "DISCARDED"

	// StatusAdaptiveCandidate marks a whale under observation. Candidates are
	// watched until they mature, then evaluated against the gate.
	StatusAdaptiveCandidate Status = "ADAPTIVE_CANDIDATE"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusDiscarded, StatusAdaptiveCandidate:
		return true
	}
	return false
}

// Score is a versioned cache of a whale's computed score. Value is always
// derivable purely from the whale's trade history; a Version mismatch with
// the current scoring algorithm forces a recompute, never a reuse.
type Score struct {
	Value      float64 `json:"value"`
	Version    string  `json:"version"`
	ComputedAt int64   `json:"computed_at"` // Unix milliseconds
}

// WhaleRecord is the persistent state of a tracked address. Trades are held
// separately in the store, append-only per address. ScoreSeq is a write
// sequence used for compare-and-set score updates.
type WhaleRecord struct {
	Address         string `json:"address"`
	Status          Status `json:"status"`
	Score           Score  `json:"score"`
	ScoreSeq        int64  `json:"score_seq"`
	DiscardedReason string `json:"discarded_reason,omitempty"`
	LastScannedAt   int64  `json:"last_scanned_at"` // Unix milliseconds
	CreatedAt       int64  `json:"created_at"`      // Unix milliseconds
}

// ScoreSnapshot is an audit-trail row written on every score recomputation.
type ScoreSnapshot struct {
	Address        string  `json:"address"`
	Value          float64 `json:"value"`
	Version        string  `json:"version"`
	Seq            int64   `json:"seq"`
	TradeCount     int     `json:"trade_count"`
	TokenCount     int     `json:"token_count"`
	ClosedCount    int     `json:"closed_count"`
	WinRate        float64 `json:"win_rate"`
	RiskMultiplier float64 `json:"risk_multiplier"`
	RealizedPnlUSD float64 `json:"realized_pnl_usd"`
	ROIPercent     float64 `json:"roi_percent"`
	Status         Status  `json:"status"`
	ComputedAt     int64   `json:"computed_at"` // Unix milliseconds
}
