// Package executor defines the boundary to the order execution system.
package executor

import (
	"context"

	"github.com/rs/zerolog"

	"whale-allocator/internal/domain"
)

// Executor submits a copy-trade intent for execution. Implementations live
// outside this repo; the decision engine calls Execute at most once per
// intent and never retries a failure.
type Executor interface {
	Execute(ctx context.Context, intent *domain.Intent) error
}

// Logging is an executor that only logs the intent. It stands in for a real
// broker connection in dry runs.
type Logging struct {
	log zerolog.Logger
}

// NewLogging creates a logging executor.
func NewLogging(logger zerolog.Logger) *Logging {
	return &Logging{log: logger.With().Str("component", "executor").Logger()}
}

var _ Executor = (*Logging)(nil)

// Execute logs the intent and reports success.
func (e *Logging) Execute(_ context.Context, intent *domain.Intent) error {
	e.log.Info().
		Str("follow", intent.FollowAddress).
		Str("token", intent.Token).
		Str("side", string(intent.Side)).
		Str("size_usd", intent.SizeUSD.String()).
		Str("source_tx", intent.SourceTxHash).
		Msg("intent executed (logging only)")
	return nil
}
