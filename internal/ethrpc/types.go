// Package ethrpc provides Ethereum JSON-RPC HTTP and WebSocket clients.
package ethrpc

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Transaction is an Ethereum transaction in the fields the watchers need.
type Transaction struct {
	Hash        string
	From        string
	To          string // empty for contract creation
	ValueWei    *big.Int
	Input       string // 0x-prefixed calldata
	BlockNumber int64  // 0 while pending
	TxIndex     int
}

// Block is an Ethereum block with full transactions.
type Block struct {
	Number       int64
	Timestamp    int64 // Unix seconds
	Transactions []Transaction
}

// weiPerEther is 10^18 as a float for value conversion.
var weiPerEther = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// EtherValue converts the transaction value from wei to ether.
func (t *Transaction) EtherValue() float64 {
	if t.ValueWei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(t.ValueWei), weiPerEther).Float64()
	return f
}

// parseHexInt64 parses a 0x-prefixed quantity.
func parseHexInt64(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hex quantity %q: %w", s, err)
	}
	return v, nil
}

// parseHexBig parses a 0x-prefixed quantity of arbitrary size.
func parseHexBig(s string) (*big.Int, error) {
	if s == "" || s == "0x" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("parse hex quantity %q", s)
	}
	return v, nil
}

// rawTransaction is the wire form of a transaction.
type rawTransaction struct {
	Hash             string `json:"hash"`
	From             string `json:"from"`
	To               string `json:"to"`
	Value            string `json:"value"`
	Input            string `json:"input"`
	BlockNumber      string `json:"blockNumber"`
	TransactionIndex string `json:"transactionIndex"`
}

func (r *rawTransaction) decode() (*Transaction, error) {
	value, err := parseHexBig(r.Value)
	if err != nil {
		return nil, err
	}
	blockNumber, err := parseHexInt64(r.BlockNumber)
	if err != nil {
		return nil, err
	}
	txIndex, err := parseHexInt64(r.TransactionIndex)
	if err != nil {
		return nil, err
	}

	return &Transaction{
		Hash:        r.Hash,
		From:        strings.ToLower(r.From),
		To:          strings.ToLower(r.To),
		ValueWei:    value,
		Input:       r.Input,
		BlockNumber: blockNumber,
		TxIndex:     int(txIndex),
	}, nil
}

// rawBlock is the wire form of a block with full transactions.
type rawBlock struct {
	Number       string           `json:"number"`
	Timestamp    string           `json:"timestamp"`
	Transactions []rawTransaction `json:"transactions"`
}

func (r *rawBlock) decode() (*Block, error) {
	number, err := parseHexInt64(r.Number)
	if err != nil {
		return nil, err
	}
	timestamp, err := parseHexInt64(r.Timestamp)
	if err != nil {
		return nil, err
	}

	block := &Block{Number: number, Timestamp: timestamp}
	for i := range r.Transactions {
		tx, err := r.Transactions[i].decode()
		if err != nil {
			return nil, fmt.Errorf("decode transaction %d: %w", i, err)
		}
		block.Transactions = append(block.Transactions, *tx)
	}
	return block, nil
}
