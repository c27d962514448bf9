package monitoring

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"whale-allocator/internal/domain"
	"whale-allocator/internal/ethrpc"
	"whale-allocator/internal/observability"
)

// EventSource produces normalized trade events. The returned channel is
// closed when the context is cancelled; implementations own their
// connections and must not leak them.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan *domain.TradeEvent, error)
}

// BlockSource polls for new blocks over JSON-RPC and emits trades in
// deterministic (block number, tx index) order. After a provider error it
// resumes from the last fully processed block, so no block is skipped.
type BlockSource struct {
	rpc          *ethrpc.Client
	parser       *TradeParser
	pollInterval time.Duration
	startBlock   int64 // 0 means start at current head
	log          zerolog.Logger
}

// NewBlockSource creates a block-polling event source. startBlock 0 starts
// at the head at subscribe time.
func NewBlockSource(rpc *ethrpc.Client, parser *TradeParser, pollInterval time.Duration, startBlock int64, logger zerolog.Logger) *BlockSource {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	return &BlockSource{
		rpc:          rpc,
		parser:       parser,
		pollInterval: pollInterval,
		startBlock:   startBlock,
		log:          logger.With().Str("component", "block_source").Logger(),
	}
}

var _ EventSource = (*BlockSource)(nil)

// Subscribe starts the polling loop.
func (s *BlockSource) Subscribe(ctx context.Context) (<-chan *domain.TradeEvent, error) {
	last := s.startBlock - 1
	if s.startBlock <= 0 {
		head, err := s.rpc.BlockNumber(ctx)
		if err != nil {
			return nil, err
		}
		last = head
	}

	out := make(chan *domain.TradeEvent, 1024)
	go func() {
		defer close(out)

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			head, err := s.rpc.BlockNumber(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Warn().Err(err).Msg("head poll failed")
				continue
			}

			for n := last + 1; n <= head; n++ {
				if !s.emitBlock(ctx, n, out) {
					// Provider error: stop here, resume from n next tick.
					break
				}
				last = n
				observability.UpdateLastBlock(n)
			}
		}
	}()

	return out, nil
}

// emitBlock fetches one block and emits its trades. Returns false on a
// provider error so the caller retries the same block.
func (s *BlockSource) emitBlock(ctx context.Context, number int64, out chan<- *domain.TradeEvent) bool {
	block, err := s.rpc.BlockByNumber(ctx, number)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn().Err(err).Int64("block", number).Msg("block fetch failed")
		}
		return false
	}
	if block == nil {
		// Not produced yet, retry next tick.
		return false
	}

	for i := range block.Transactions {
		ev, err := s.parser.Parse(&block.Transactions[i], block.Timestamp*1000, false)
		if err != nil {
			if errors.Is(err, ErrInvalidTradeData) {
				observability.RecordEventSkipped("invalid_trade_data")
				s.log.Debug().Err(err).Str("tx", block.Transactions[i].Hash).Msg("skipping malformed trade")
			}
			continue
		}
		select {
		case out <- ev:
			observability.RecordEventProcessed(ev.Source)
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// MempoolSource subscribes to pending transaction hashes over WebSocket and
// resolves each to a full transaction. Events are provisional: they may
// never be included in a block.
type MempoolSource struct {
	rpc    *ethrpc.Client
	ws     *ethrpc.WSClient
	parser *TradeParser
	log    zerolog.Logger
	now    func() time.Time
}

// NewMempoolSource creates a mempool event source.
func NewMempoolSource(rpc *ethrpc.Client, ws *ethrpc.WSClient, parser *TradeParser, logger zerolog.Logger) *MempoolSource {
	return &MempoolSource{
		rpc:    rpc,
		ws:     ws,
		parser: parser,
		log:    logger.With().Str("component", "mempool_source").Logger(),
		now:    time.Now,
	}
}

var _ EventSource = (*MempoolSource)(nil)

// Subscribe starts the mempool stream.
func (s *MempoolSource) Subscribe(ctx context.Context) (<-chan *domain.TradeEvent, error) {
	hashes, err := s.ws.SubscribePendingTransactions(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan *domain.TradeEvent, 1024)
	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case hash, ok := <-hashes:
				if !ok {
					return
				}

				tx, err := s.rpc.TransactionByHash(ctx, hash)
				if err != nil {
					// Dropped from the pool between notification and fetch.
					if !errors.Is(err, ethrpc.ErrTxNotFound) && ctx.Err() == nil {
						s.log.Debug().Err(err).Str("tx", hash).Msg("pending tx fetch failed")
					}
					continue
				}

				ev, err := s.parser.Parse(tx, s.now().UnixMilli(), true)
				if err != nil {
					if errors.Is(err, ErrInvalidTradeData) {
						observability.RecordEventSkipped("invalid_trade_data")
						s.log.Debug().Err(err).Str("tx", hash).Msg("skipping malformed trade")
					}
					continue
				}

				select {
				case out <- ev:
					observability.RecordEventProcessed(ev.Source)
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// StubSource replays a fixed set of events, for tests and TEST mode.
type StubSource struct {
	Events []*domain.TradeEvent
}

var _ EventSource = (*StubSource)(nil)

// Subscribe emits the configured events and closes the channel.
func (s *StubSource) Subscribe(ctx context.Context) (<-chan *domain.TradeEvent, error) {
	out := make(chan *domain.TradeEvent, len(s.Events))
	go func() {
		defer close(out)
		for _, ev := range s.Events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
