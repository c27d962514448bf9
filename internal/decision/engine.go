// Package decision turns trades of active whales into copy-trade intents.
package decision

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"whale-allocator/internal/domain"
	"whale-allocator/internal/executor"
	"whale-allocator/internal/observability"
)

// Options configures an Engine.
type Options struct {
	Mode     domain.Mode
	Executor executor.Executor // required in real mode
	Sizing   SizingPolicy
	Logger   zerolog.Logger
	Now      func() time.Time // defaults to time.Now
}

// Engine produces copy-trade intents. In simulated mode intents are logged
// and the executor is never touched; in real mode the executor is called
// exactly once per intent and a failure is surfaced, not retried.
type Engine struct {
	mode   domain.Mode
	exec   executor.Executor
	sizing SizingPolicy
	log    zerolog.Logger
	now    func() time.Time
}

// NewEngine creates a decision engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Mode != domain.ModeSimulated && opts.Mode != domain.ModeReal {
		return nil, fmt.Errorf("unknown decision mode %q", opts.Mode)
	}
	if opts.Mode == domain.ModeReal && opts.Executor == nil {
		return nil, fmt.Errorf("real mode requires an executor")
	}
	if opts.Sizing == nil {
		opts.Sizing = DefaultSizing(DefaultCapitalConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		mode:   opts.Mode,
		exec:   opts.Executor,
		sizing: opts.Sizing,
		log:    opts.Logger.With().Str("component", "decision").Logger(),
		now:    opts.Now,
	}, nil
}

// HandleEvent sizes and emits an intent for an active whale's trade. A nil
// intent with nil error means the sizing policy declined the trade. The
// caller guarantees the whale is active.
func (e *Engine) HandleEvent(ctx context.Context, whale *domain.WhaleRecord, ev *domain.TradeEvent) (*domain.Intent, error) {
	size := e.sizing(whale, ev)
	if size.IsZero() {
		return nil, nil
	}

	intent := &domain.Intent{
		FollowAddress: whale.Address,
		Token:         ev.Trade.Token,
		Side:          ev.Trade.Side,
		SizeUSD:       size,
		Mode:          e.mode,
		SourceTxHash:  ev.Trade.TxHash,
		CreatedAt:     e.now().UnixMilli(),
	}
	observability.RecordIntent(string(e.mode))

	if e.mode == domain.ModeSimulated {
		e.log.Info().
			Str("follow", intent.FollowAddress).
			Str("token", intent.Token).
			Str("side", string(intent.Side)).
			Str("size_usd", intent.SizeUSD.String()).
			Str("source_tx", intent.SourceTxHash).
			Msg("simulated intent")
		return intent, nil
	}

	if err := e.exec.Execute(ctx, intent); err != nil {
		observability.RecordExecutionFailure()
		return intent, fmt.Errorf("execute intent for %s: %w", whale.Address, err)
	}
	return intent, nil
}
