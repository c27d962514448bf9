// Package lifecycle owns the whale state machine. No other component writes
// whale status or scores.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"whale-allocator/internal/domain"
	"whale-allocator/internal/observability"
	"whale-allocator/internal/scoring"
	"whale-allocator/internal/storage"
)

// casAttempts bounds the compare-and-set retry loop. Scoring is
// deterministic, so a lost race just re-reads and recomputes.
const casAttempts = 5

// Config holds the lifecycle gate and sweep parameters. The minimum
// requirements are operational tuning, not protocol constants.
type Config struct {
	// MinTrades is the minimum trade count for the gate (default 20).
	MinTrades int `yaml:"min_trades"`

	// MinTokens is the minimum distinct token count for the gate (default 5).
	MinTokens int `yaml:"min_tokens"`

	// MaturityTrades is the trade count below which an adaptive candidate is
	// watched rather than judged. Defaults to MinTrades.
	MaturityTrades int `yaml:"maturity_trades"`

	// SweepIntervalMin is the period of the background re-evaluation sweep,
	// in minutes.
	SweepIntervalMin int `yaml:"sweep_interval_min"`
}

func (c *Config) applyDefaults() {
	if c.MinTrades <= 0 {
		c.MinTrades = 20
	}
	if c.MinTokens <= 0 {
		c.MinTokens = 5
	}
	if c.MaturityTrades <= 0 {
		c.MaturityTrades = c.MinTrades
	}
	if c.SweepIntervalMin <= 0 {
		c.SweepIntervalMin = 15
	}
}

// Options configures a Manager.
type Options struct {
	Store   storage.WhaleStore
	History storage.ScoreHistoryStore // optional audit trail
	Engine  *scoring.Engine
	Config  Config
	Logger  zerolog.Logger
	Now     func() time.Time // defaults to time.Now
}

// Manager evaluates whales against the minimum-requirement gate and manages
// status transitions. Per-address serialization is provided by the store's
// score sequence, so inline triggers and sweeps can run concurrently.
type Manager struct {
	store   storage.WhaleStore
	history storage.ScoreHistoryStore
	engine  *scoring.Engine
	cfg     Config
	log     zerolog.Logger
	now     func() time.Time
}

// NewManager creates a lifecycle manager.
func NewManager(opts Options) *Manager {
	opts.Config.applyDefaults()
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:   opts.Store,
		history: opts.History,
		engine:  opts.Engine,
		cfg:     opts.Config,
		log:     opts.Logger.With().Str("component", "lifecycle").Logger(),
		now:     opts.Now,
	}
}

// Config returns the effective configuration after defaults.
func (m *Manager) Config() Config {
	return m.cfg
}

// OnTradeIngested is the inline trigger run after every ingested trade.
// Adaptive candidates below maturity keep accumulating without judgment;
// everyone else is re-evaluated.
func (m *Manager) OnTradeIngested(ctx context.Context, address string) error {
	rec, err := m.store.Get(ctx, address)
	if err != nil {
		return fmt.Errorf("get whale %s: %w", address, err)
	}

	if rec.Status == domain.StatusAdaptiveCandidate {
		count, err := m.store.TradeCount(ctx, address)
		if err != nil {
			return fmt.Errorf("count trades for %s: %w", address, err)
		}
		if count < m.cfg.MaturityTrades {
			return nil
		}
	}

	_, err = m.Evaluate(ctx, address)
	return err
}

// Evaluate recomputes the whale's score and applies the minimum-requirement
// gate. Idempotent: unchanged trades yield the same status and score value.
func (m *Manager) Evaluate(ctx context.Context, address string) (*domain.WhaleRecord, error) {
	trades, err := m.store.Trades(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("load trades for %s: %w", address, err)
	}

	score, stats := m.engine.Compute(trades)
	score.ComputedAt = m.now().UnixMilli()

	status := domain.StatusActive
	reason := ""
	if !m.meetsMinimum(stats) {
		status = domain.StatusDiscarded
		reason = fmt.Sprintf("minimum requirements not met: %d trades (need %d), %d tokens (need %d)",
			stats.TradeCount, m.cfg.MinTrades, stats.TokenCount, m.cfg.MinTokens)
	}

	rec, err := m.store.Get(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("get whale %s: %w", address, err)
	}

	if rec.Status != status {
		if err := m.store.SetStatus(ctx, address, status, reason); err != nil {
			return nil, fmt.Errorf("set status for %s: %w", address, err)
		}
		observability.RecordStatusTransition(string(rec.Status), string(status))
		m.log.Info().
			Str("address", address).
			Str("from", string(rec.Status)).
			Str("to", string(status)).
			Str("reason", reason).
			Msg("whale status changed")
	}

	seq, err := m.writeScore(ctx, address, rec.ScoreSeq, score)
	if err != nil {
		return nil, err
	}
	observability.RecordScoreRecompute(string(status))

	m.recordSnapshot(ctx, address, score, stats, status, seq)

	rec.Status = status
	rec.DiscardedReason = reason
	rec.Score = score
	rec.ScoreSeq = seq
	rec.LastScannedAt = score.ComputedAt
	return rec, nil
}

// writeScore performs the compare-and-set with a bounded retry on conflicts.
// Returns the sequence the score was written at.
func (m *Manager) writeScore(ctx context.Context, address string, seq int64, score domain.Score) (int64, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		err := m.store.CompareAndSetScore(ctx, address, seq, score)
		if err == nil {
			return seq + 1, nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return 0, fmt.Errorf("write score for %s: %w", address, err)
		}

		rec, getErr := m.store.Get(ctx, address)
		if getErr != nil {
			return 0, fmt.Errorf("reload whale %s after conflict: %w", address, getErr)
		}
		seq = rec.ScoreSeq
	}
	return 0, fmt.Errorf("write score for %s: %w", address, storage.ErrVersionConflict)
}

func (m *Manager) recordSnapshot(ctx context.Context, address string, score domain.Score, stats scoring.Stats, status domain.Status, seq int64) {
	if m.history == nil {
		return
	}
	snap := &domain.ScoreSnapshot{
		Address:        address,
		Value:          score.Value,
		Version:        score.Version,
		Seq:            seq,
		TradeCount:     stats.TradeCount,
		TokenCount:     stats.TokenCount,
		ClosedCount:    stats.ClosedCount,
		WinRate:        stats.WinRate,
		RiskMultiplier: stats.RiskMultiplier,
		RealizedPnlUSD: stats.RealizedPnlUSD,
		ROIPercent:     stats.ROIPercent,
		Status:         status,
		ComputedAt:     score.ComputedAt,
	}
	// Best-effort: the audit trail never fails a recompute.
	if err := m.history.Insert(ctx, snap); err != nil {
		m.log.Warn().Err(err).Str("address", address).Msg("score snapshot write failed")
	}
}

// meetsMinimum applies the gate: enough trades AND enough distinct tokens.
func (m *Manager) meetsMinimum(stats scoring.Stats) bool {
	return stats.TradeCount >= m.cfg.MinTrades && stats.TokenCount >= m.cfg.MinTokens
}

// Rescan moves a discarded whale back under observation. A rescan never
// activates directly: the whale must re-qualify through evaluation.
func (m *Manager) Rescan(ctx context.Context, address string) error {
	rec, err := m.store.Get(ctx, address)
	if err != nil {
		return fmt.Errorf("get whale %s: %w", address, err)
	}
	if rec.Status != domain.StatusDiscarded {
		return fmt.Errorf("rescan %s: status is %s, only discarded whales can be rescanned: %w",
			address, rec.Status, storage.ErrInvalidInput)
	}

	if err := m.store.SetStatus(ctx, address, domain.StatusAdaptiveCandidate, ""); err != nil {
		return fmt.Errorf("set status for %s: %w", address, err)
	}
	observability.RecordStatusTransition(string(domain.StatusDiscarded), string(domain.StatusAdaptiveCandidate))
	m.log.Info().Str("address", address).Msg("discarded whale rescanned as adaptive candidate")
	return nil
}

// SweepResult summarizes a RecalculateAll run.
type SweepResult struct {
	Evaluated int `json:"evaluated"`
	Active    int `json:"active"`
	Discarded int `json:"discarded"`
	Failed    int `json:"failed"`
}

// RecalculateAll re-evaluates every tracked address. Per-address failures
// are logged and counted, never abort the sweep.
func (m *Manager) RecalculateAll(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	addrs, err := m.store.Addresses(ctx)
	if err != nil {
		return result, fmt.Errorf("list addresses: %w", err)
	}

	for _, addr := range addrs {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		rec, err := m.Evaluate(ctx, addr)
		if err != nil {
			result.Failed++
			m.log.Warn().Err(err).Str("address", addr).Msg("sweep evaluation failed")
			continue
		}
		result.Evaluated++
		switch rec.Status {
		case domain.StatusActive:
			result.Active++
		case domain.StatusDiscarded:
			result.Discarded++
		}
	}

	m.log.Info().
		Int("evaluated", result.Evaluated).
		Int("active", result.Active).
		Int("discarded", result.Discarded).
		Int("failed", result.Failed).
		Msg("recalculation sweep complete")
	return result, nil
}

// RunSweeper runs RecalculateAll on the configured interval until the
// context is cancelled.
func (m *Manager) RunSweeper(ctx context.Context) {
	interval := time.Duration(m.cfg.SweepIntervalMin) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Info().Dur("interval", interval).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			if _, err := m.RecalculateAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.log.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}
