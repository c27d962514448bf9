// Package monitoring watches the chain for whale trades and drives ingestion.
package monitoring

import (
	"errors"
	"fmt"
	"strings"

	"whale-allocator/internal/domain"
	"whale-allocator/internal/ethrpc"
)

// ErrNotTrade marks transactions that are not router swaps. They are skipped
// silently, unlike malformed swaps.
var ErrNotTrade = errors.New("not a trade")

// ErrInvalidTradeData marks router transactions whose calldata cannot be
// decoded into a trade. They are logged and skipped; the watcher keeps going.
var ErrInvalidTradeData = errors.New("invalid trade data")

// Default DEX router addresses (Uniswap V2 and V3).
var DefaultRouters = []string{
	"0x7a250d5630b4cf539739df2c5dacb4c659f2488d", // Uniswap V2 Router02
	"0xe592427a0aece92de3edee1f18e0157c05861564", // Uniswap V3 SwapRouter
}

// swapSelectors maps the 4-byte function selector of known router swap
// methods to the trade side from the caller's point of view.
var swapSelectors = map[string]domain.Side{
	"0x7ff36ab5": domain.SideBuy,  // swapExactETHForTokens
	"0xb6f9de95": domain.SideBuy,  // swapExactETHForTokensSupportingFeeOnTransferTokens
	"0xfb3bdb41": domain.SideBuy,  // swapETHForExactTokens
	"0x38ed1739": domain.SideBuy,  // swapExactTokensForTokens
	"0x18cbafe5": domain.SideSell, // swapExactTokensForETH
	"0x791ac947": domain.SideSell, // swapExactTokensForETHSupportingFeeOnTransferTokens
	"0x4a25d94a": domain.SideSell, // swapTokensForExactETH
	"0x414bf389": domain.SideBuy,  // exactInputSingle (V3)
	"0xc04b8d59": domain.SideBuy,  // exactInput (V3)
}

// TradeParser turns raw router transactions into trade events.
type TradeParser struct {
	routers  map[string]struct{}
	ethPrice float64 // USD reference price for value estimation
}

// NewTradeParser creates a parser for the given router allow-list. An empty
// list falls back to DefaultRouters.
func NewTradeParser(routers []string, ethPriceUSD float64) *TradeParser {
	if len(routers) == 0 {
		routers = DefaultRouters
	}
	set := make(map[string]struct{}, len(routers))
	for _, r := range routers {
		set[strings.ToLower(r)] = struct{}{}
	}
	if ethPriceUSD <= 0 {
		ethPriceUSD = 2500
	}
	return &TradeParser{routers: set, ethPrice: ethPriceUSD}
}

// Parse converts a transaction into a trade event. Returns ErrNotTrade for
// transactions outside the router set and ErrInvalidTradeData for router
// calls that cannot be decoded.
func (p *TradeParser) Parse(tx *ethrpc.Transaction, timestamp int64, provisional bool) (*domain.TradeEvent, error) {
	if tx == nil || tx.To == "" {
		return nil, ErrNotTrade
	}
	if _, ok := p.routers[strings.ToLower(tx.To)]; !ok {
		return nil, ErrNotTrade
	}

	if len(tx.Input) < 10 {
		return nil, fmt.Errorf("%w: calldata too short (%d bytes)", ErrInvalidTradeData, len(tx.Input)/2)
	}
	selector := strings.ToLower(tx.Input[:10])
	side, ok := swapSelectors[selector]
	if !ok {
		return nil, ErrNotTrade
	}

	if tx.From == "" || tx.Hash == "" {
		return nil, fmt.Errorf("%w: missing sender or hash", ErrInvalidTradeData)
	}

	token, err := tokenFromCalldata(tx.Input)
	if err != nil {
		return nil, err
	}

	amount := tx.EtherValue()
	source := "block"
	blockNumber := tx.BlockNumber
	txIndex := tx.TxIndex
	if provisional {
		// A pending tx has no confirmed position yet; whatever block
		// fields the provider reported are stale guesses.
		source = "mempool"
		blockNumber = 0
		txIndex = 0
	}

	return &domain.TradeEvent{
		Address: strings.ToLower(tx.From),
		Trade: domain.Trade{
			Token:       token,
			Side:        side,
			Amount:      amount,
			ValueUSD:    amount * p.ethPrice,
			Timestamp:   timestamp,
			TxHash:      strings.ToLower(tx.Hash),
			BlockNumber: blockNumber,
			TxIndex:     txIndex,
		},
		Provisional: provisional,
		Source:      source,
	}, nil
}

// tokenFromCalldata extracts the output token of the swap path: the last
// 32-byte word of the calldata holds the final path element.
func tokenFromCalldata(input string) (string, error) {
	data := strings.TrimPrefix(strings.ToLower(input), "0x")
	if len(data) < 8+64 {
		return "", fmt.Errorf("%w: calldata has no path", ErrInvalidTradeData)
	}
	args := data[8:]
	if len(args)%64 != 0 {
		return "", fmt.Errorf("%w: calldata not word-aligned", ErrInvalidTradeData)
	}
	lastWord := args[len(args)-64:]
	// An address word is zero-padded to 12 bytes.
	if lastWord[:24] != strings.Repeat("0", 24) {
		return "", fmt.Errorf("%w: path tail is not an address", ErrInvalidTradeData)
	}
	token := "0x" + lastWord[24:]
	if token == "0x0000000000000000000000000000000000000000" {
		return "", fmt.Errorf("%w: zero token address", ErrInvalidTradeData)
	}
	return token, nil
}
