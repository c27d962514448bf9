// Package discovery decides which event addresses become tracked whales.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"whale-allocator/internal/domain"
	"whale-allocator/internal/observability"
	"whale-allocator/internal/storage"
)

// Config holds the discovery parameters.
type Config struct {
	// Enabled turns automatic discovery of unknown addresses on. Known
	// addresses are always admitted regardless.
	Enabled bool `yaml:"enabled"`

	// AllowList, when non-empty, switches to specific-whales-only mode:
	// events from any other address are dropped without creating a record.
	AllowList []string `yaml:"allow_list"`
}

// Validator is an optional external profitability check consulted before a
// new record is created. A validator error fails open: observing an address
// is cheap, missing a profitable one is not.
type Validator interface {
	Validate(ctx context.Context, address string) (bool, error)
}

// Coordinator admits trade events and creates whale records for newly seen
// addresses in adaptive-candidate status.
type Coordinator struct {
	store     storage.WhaleStore
	validator Validator
	enabled   bool
	allow     map[string]struct{}
	log       zerolog.Logger

	// seen caches addresses known to have a record, saving a store
	// round-trip on the hot path.
	mu   sync.RWMutex
	seen map[string]struct{}

	now func() time.Time
}

// Options configures a Coordinator.
type Options struct {
	Store     storage.WhaleStore
	Validator Validator // optional
	Config    Config
	Logger    zerolog.Logger
	Now       func() time.Time // defaults to time.Now
}

// NewCoordinator creates a discovery coordinator.
func NewCoordinator(opts Options) *Coordinator {
	allow := make(map[string]struct{}, len(opts.Config.AllowList))
	for _, addr := range opts.Config.AllowList {
		allow[strings.ToLower(addr)] = struct{}{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		store:     opts.Store,
		validator: opts.Validator,
		enabled:   opts.Config.Enabled,
		allow:     allow,
		log:       opts.Logger.With().Str("component", "discovery").Logger(),
		seen:      make(map[string]struct{}),
		now:       opts.Now,
	}
}

// Admit reports whether the event's address should be ingested, creating a
// whale record for it when discovery applies. The address is lowercased to
// normalize checksummed forms.
func (c *Coordinator) Admit(ctx context.Context, ev *domain.TradeEvent) (bool, error) {
	if ev == nil || ev.Address == "" {
		return false, storage.ErrInvalidInput
	}
	address := strings.ToLower(ev.Address)

	// Specific-whales-only mode: nothing off the list is ever tracked.
	if len(c.allow) > 0 {
		if _, ok := c.allow[address]; !ok {
			return false, nil
		}
		return true, c.ensureRecord(ctx, address)
	}

	if c.isSeen(address) {
		return true, nil
	}

	_, err := c.store.Get(ctx, address)
	switch {
	case err == nil:
		c.markSeen(address)
		return true, nil
	case !errors.Is(err, storage.ErrNotFound):
		return false, fmt.Errorf("look up whale %s: %w", address, err)
	}

	if !c.enabled {
		return false, nil
	}

	if c.validator != nil {
		ok, err := c.validator.Validate(ctx, address)
		if err != nil {
			c.log.Warn().Err(err).Str("address", address).Msg("profitability check failed, admitting anyway")
		} else if !ok {
			observability.RecordEventSkipped("unprofitable")
			return false, nil
		}
	}

	if err := c.ensureRecord(ctx, address); err != nil {
		return false, err
	}
	return true, nil
}

// ensureRecord creates the adaptive-candidate record if it does not exist.
// A duplicate-key error means another worker won the race.
func (c *Coordinator) ensureRecord(ctx context.Context, address string) error {
	if c.isSeen(address) {
		return nil
	}

	rec := &domain.WhaleRecord{
		Address:   address,
		Status:    domain.StatusAdaptiveCandidate,
		CreatedAt: c.now().UnixMilli(),
	}
	err := c.store.Create(ctx, rec)
	switch {
	case err == nil:
		observability.RecordWhaleDiscovered()
		c.log.Info().Str("address", address).Msg("new whale discovered")
	case errors.Is(err, storage.ErrDuplicateKey):
		// Lost the race, record exists.
	default:
		return fmt.Errorf("create whale %s: %w", address, err)
	}

	c.markSeen(address)
	return nil
}

func (c *Coordinator) isSeen(address string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.seen[address]
	return ok
}

func (c *Coordinator) markSeen(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[address] = struct{}{}
}
