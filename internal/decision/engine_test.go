package decision

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"whale-allocator/internal/domain"
)

type countingExecutor struct {
	calls int
	err   error
}

func (e *countingExecutor) Execute(_ context.Context, _ *domain.Intent) error {
	e.calls++
	return e.err
}

func activeWhale(score float64) *domain.WhaleRecord {
	return &domain.WhaleRecord{
		Address: "0xwhale",
		Status:  domain.StatusActive,
		Score:   domain.Score{Value: score, Version: "2.0"},
	}
}

func tradeEvent(valueUSD float64) *domain.TradeEvent {
	return &domain.TradeEvent{
		Address: "0xwhale",
		Trade: domain.Trade{
			Token: "0xtok", Side: domain.SideBuy, Amount: 1, ValueUSD: valueUSD,
			Timestamp: 1000, TxHash: "0xsrc", TxIndex: 0,
		},
	}
}

func TestHandleEvent_SimulatedNeverCallsExecutor(t *testing.T) {
	exec := &countingExecutor{}
	e, err := NewEngine(Options{
		Mode:     domain.ModeSimulated,
		Executor: exec,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	intent, err := e.HandleEvent(context.Background(), activeWhale(10), tradeEvent(5000))
	require.NoError(t, err)
	require.NotNil(t, intent)
	require.Equal(t, domain.ModeSimulated, intent.Mode)
	require.Equal(t, 0, exec.calls)
}

func TestHandleEvent_RealCallsExecutorExactlyOnce(t *testing.T) {
	exec := &countingExecutor{}
	e, err := NewEngine(Options{
		Mode:     domain.ModeReal,
		Executor: exec,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	intent, err := e.HandleEvent(context.Background(), activeWhale(10), tradeEvent(5000))
	require.NoError(t, err)
	require.NotNil(t, intent)
	require.Equal(t, domain.ModeReal, intent.Mode)
	require.Equal(t, 1, exec.calls)
}

func TestHandleEvent_ExecutionFailureSurfacedNotRetried(t *testing.T) {
	execErr := errors.New("broker rejected order")
	exec := &countingExecutor{err: execErr}
	e, err := NewEngine(Options{
		Mode:     domain.ModeReal,
		Executor: exec,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	intent, err := e.HandleEvent(context.Background(), activeWhale(10), tradeEvent(5000))
	require.ErrorIs(t, err, execErr)
	require.NotNil(t, intent)
	require.Equal(t, 1, exec.calls)
}

func TestHandleEvent_SizingDeclines(t *testing.T) {
	exec := &countingExecutor{}
	e, err := NewEngine(Options{
		Mode:     domain.ModeReal,
		Executor: exec,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	// Below the dust threshold of the default policy.
	intent, err := e.HandleEvent(context.Background(), activeWhale(10), tradeEvent(50))
	require.NoError(t, err)
	require.Nil(t, intent)
	require.Equal(t, 0, exec.calls)
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := NewEngine(Options{Mode: "BOGUS", Logger: zerolog.Nop()})
	require.Error(t, err)

	_, err = NewEngine(Options{Mode: domain.ModeReal, Logger: zerolog.Nop()})
	require.Error(t, err)

	_, err = NewEngine(Options{Mode: domain.ModeSimulated, Logger: zerolog.Nop()})
	require.NoError(t, err)
}

func TestDefaultSizing(t *testing.T) {
	cfg := CapitalConfig{
		CapitalUSD:       decimal.NewFromInt(10_000),
		BaseRisk:         decimal.NewFromFloat(0.5),
		MaxAllocationUSD: decimal.NewFromInt(1_000),
		MinTradeValueUSD: decimal.NewFromInt(100),
	}
	sizing := DefaultSizing(cfg)

	// 5000 * 0.1 * 0.5 * 1.0 = 250.
	size := sizing(activeWhale(10), tradeEvent(5000))
	require.True(t, size.Equal(decimal.NewFromInt(250)), "got %s", size)

	// High score bias 1.5: 5000 * 0.1 * 0.5 * 1.5 = 375.
	size = sizing(activeWhale(150), tradeEvent(5000))
	require.True(t, size.Equal(decimal.NewFromInt(375)), "got %s", size)

	// Deeply negative score halves the base allocation.
	size = sizing(activeWhale(-80), tradeEvent(5000))
	require.True(t, size.Equal(decimal.NewFromFloat(125)), "got %s", size)

	// Cap applies: 100000 * 0.1 * 0.5 = 5000 -> capped at 1000.
	size = sizing(activeWhale(10), tradeEvent(100_000))
	require.True(t, size.Equal(decimal.NewFromInt(1_000)), "got %s", size)

	// Dust is declined.
	size = sizing(activeWhale(10), tradeEvent(99))
	require.True(t, size.IsZero())
}
