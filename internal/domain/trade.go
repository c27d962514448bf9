package domain

// Side is the direction of a trade from the whale's point of view.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is a single observed trade by a whale. PnlUSD is nil until the
// position closes; a trade with nil PnlUSD never counts toward win rate.
type Trade struct {
	Token       string   `json:"token"`
	Side        Side     `json:"side"`
	Amount      float64  `json:"amount"`
	ValueUSD    float64  `json:"value_usd"`
	PnlUSD      *float64 `json:"pnl_usd,omitempty"`
	Timestamp   int64    `json:"timestamp"` // Unix milliseconds
	TxHash      string   `json:"tx_hash"`
	BlockNumber int64    `json:"block_number"` // 0 while pending
	TxIndex     int      `json:"tx_index"`
}

// DedupKey returns the idempotency key for the trade: the transaction hash.
// A mempool delivery and its later block confirmation carry the same hash
// but different block refs, so keying on the hash alone makes re-ingesting
// either form a no-op.
func (t *Trade) DedupKey() string {
	return t.TxHash
}

// TradeEvent is a normalized trade observed by a watcher, attributed to the
// address that made it. Provisional events come from the mempool and have
// not been included in a block yet.
type TradeEvent struct {
	Address     string `json:"address"`
	Trade       Trade  `json:"trade"`
	Provisional bool   `json:"provisional"`
	Source      string `json:"source"` // "block" or "mempool"
}
