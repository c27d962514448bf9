package monitoring

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"whale-allocator/internal/decision"
	"whale-allocator/internal/discovery"
	"whale-allocator/internal/domain"
	"whale-allocator/internal/lifecycle"
	"whale-allocator/internal/observability"
	"whale-allocator/internal/storage"
)

const (
	defaultShards     = 8
	appendAttempts    = 5
	appendRetryDelay  = 500 * time.Millisecond
	appendRetryMax    = 5 * time.Second
	shardChannelDepth = 256
)

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Store       storage.WhaleStore
	Coordinator *discovery.Coordinator
	Lifecycle   *lifecycle.Manager
	Decision    *decision.Engine
	Sources     []EventSource

	// Shards is the number of ingestion workers. Events are routed by
	// address hash, so one address's recomputation never blocks others
	// while per-address arrival order is preserved.
	Shards int

	// IngestProvisional admits mempool events into trade histories. Kept
	// off in live mode, where provisional trades would pollute scoring.
	IngestProvisional bool

	Logger zerolog.Logger
}

// Runner wires event sources to ingestion, lifecycle and decision.
type Runner struct {
	store             storage.WhaleStore
	coordinator       *discovery.Coordinator
	lifecycle         *lifecycle.Manager
	decision          *decision.Engine
	sources           []EventSource
	shards            int
	ingestProvisional bool
	log               zerolog.Logger
}

// NewRunner creates a watcher runner.
func NewRunner(opts RunnerOptions) *Runner {
	if opts.Shards <= 0 {
		opts.Shards = defaultShards
	}
	return &Runner{
		store:             opts.Store,
		coordinator:       opts.Coordinator,
		lifecycle:         opts.Lifecycle,
		decision:          opts.Decision,
		sources:           opts.Sources,
		shards:            opts.Shards,
		ingestProvisional: opts.IngestProvisional,
		log:               opts.Logger.With().Str("component", "runner").Logger(),
	}
}

// Run subscribes to all sources and processes events until the context is
// cancelled, then drains in-flight events before returning.
func (r *Runner) Run(ctx context.Context) error {
	// Subscribe everything up front so a failing source cannot leave
	// forwarders of earlier sources blocked on a channel nobody reads.
	channels := make([]<-chan *domain.TradeEvent, 0, len(r.sources))
	for _, src := range r.sources {
		ch, err := src.Subscribe(ctx)
		if err != nil {
			return fmt.Errorf("subscribe source: %w", err)
		}
		channels = append(channels, ch)
	}

	merged := make(chan *domain.TradeEvent, 1024)

	var sourceWg sync.WaitGroup
	for _, ch := range channels {
		sourceWg.Add(1)
		go func(ch <-chan *domain.TradeEvent) {
			defer sourceWg.Done()
			for ev := range ch {
				merged <- ev
			}
		}(ch)
	}
	go func() {
		sourceWg.Wait()
		close(merged)
	}()

	shards := make([]chan *domain.TradeEvent, r.shards)
	for i := range shards {
		shards[i] = make(chan *domain.TradeEvent, shardChannelDepth)
	}

	// In-flight events finish their store writes even during shutdown;
	// sources stop on ctx, workers drain what was already delivered.
	workCtx := context.WithoutCancel(ctx)

	var workerWg sync.WaitGroup
	for i, shard := range shards {
		workerWg.Add(1)
		go func(id int, shard <-chan *domain.TradeEvent) {
			defer workerWg.Done()
			for ev := range shard {
				r.processEvent(workCtx, ev)
			}
		}(i, shard)
	}

	for ev := range merged {
		// Normalize before routing: checksummed and lowercase forms of
		// one address must land on the same shard and store key.
		ev.Address = strings.ToLower(ev.Address)
		shards[shardFor(ev.Address, r.shards)] <- ev
	}
	for _, shard := range shards {
		close(shard)
	}
	workerWg.Wait()

	r.log.Info().Msg("runner drained and stopped")
	return ctx.Err()
}

// shardFor routes an address to a worker.
func shardFor(address string, shards int) int {
	h := fnv.New32a()
	h.Write([]byte(address))
	return int(h.Sum32() % uint32(shards))
}

// processEvent runs the full pipeline for one event. Failures are logged
// and counted; an event for one address never aborts processing for others.
func (r *Runner) processEvent(ctx context.Context, ev *domain.TradeEvent) {
	if ev.Address == "" || ev.Trade.TxHash == "" {
		observability.RecordEventSkipped("invalid_trade_data")
		return
	}

	if ev.Provisional && !r.ingestProvisional {
		observability.RecordEventSkipped("provisional")
		return
	}

	admitted, err := r.coordinator.Admit(ctx, ev)
	if err != nil {
		r.log.Error().Err(err).Str("address", ev.Address).Msg("admission failed")
		return
	}
	if !admitted {
		observability.RecordEventSkipped("not_tracked")
		return
	}

	trade := ev.Trade
	if trade.Side == domain.SideSell && trade.PnlUSD == nil {
		r.resolvePnl(ctx, ev.Address, &trade)
	}

	if err := r.appendWithRetry(ctx, ev.Address, &trade); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Already ingested: nothing downstream may run twice.
			observability.RecordDuplicateTrade()
			return
		}
		r.log.Error().Err(err).Str("address", ev.Address).Str("tx", trade.TxHash).Msg("trade append failed")
		return
	}
	observability.RecordTradeIngested(float64(time.Now().Unix()))

	if err := r.lifecycle.OnTradeIngested(ctx, ev.Address); err != nil {
		r.log.Warn().Err(err).Str("address", ev.Address).Msg("lifecycle trigger failed")
	}

	rec, err := r.store.Get(ctx, ev.Address)
	if err != nil {
		r.log.Warn().Err(err).Str("address", ev.Address).Msg("post-ingest lookup failed")
		return
	}
	if rec.Status != domain.StatusActive {
		return
	}

	if _, err := r.decision.HandleEvent(ctx, rec, ev); err != nil {
		r.log.Error().Err(err).Str("address", ev.Address).Msg("intent execution failed")
	}
}

// appendWithRetry retries transient store failures with the same dedup key.
func (r *Runner) appendWithRetry(ctx context.Context, address string, t *domain.Trade) error {
	delay := appendRetryDelay
	var lastErr error

	for attempt := 0; attempt < appendAttempts; attempt++ {
		if attempt > 0 {
			observability.RecordStoreRetry()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > appendRetryMax {
				delay = appendRetryMax
			}
		}

		err := r.store.AppendTrade(ctx, address, t)
		if err == nil || !errors.Is(err, storage.ErrUnavailable) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("append retries exhausted: %w", lastErr)
}

// resolvePnl fills in realized pnl for a sell by matching it against the
// open position built from earlier buys of the same token. With no open
// buys the pnl stays unresolved.
func (r *Runner) resolvePnl(ctx context.Context, address string, sell *domain.Trade) {
	history, err := r.store.Trades(ctx, address)
	if err != nil {
		return
	}

	var boughtAmount, boughtValue, soldAmount float64
	for _, t := range history {
		if t.Token != sell.Token {
			continue
		}
		switch t.Side {
		case domain.SideBuy:
			boughtAmount += t.Amount
			boughtValue += t.ValueUSD
		case domain.SideSell:
			soldAmount += t.Amount
		}
	}

	openAmount := boughtAmount - soldAmount
	if openAmount <= 0 || boughtAmount <= 0 || sell.Amount <= 0 {
		return
	}

	avgCost := boughtValue / boughtAmount
	sellPrice := sell.ValueUSD / sell.Amount
	matched := sell.Amount
	if matched > openAmount {
		matched = openAmount
	}

	pnl := (sellPrice - avgCost) * matched
	sell.PnlUSD = &pnl
}
