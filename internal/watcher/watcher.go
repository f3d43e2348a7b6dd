// Package watcher follows the registry contracts of every configured
// network and publishes new activity to the live feed.
//
// Each network keeps a cursor at the last block published. A poll reads
// logs of all three registries in (cursor, head] and advances the cursor
// only after the whole range was read, so no block range is published
// twice.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/orca-network/explorer/internal/chain"
	"github.com/orca-network/explorer/internal/metrics"
	"github.com/orca-network/explorer/internal/network"
	"github.com/orca-network/explorer/internal/realtime"
	"github.com/orca-network/explorer/internal/registry"
)

// Broadcaster receives feed events
type Broadcaster interface {
	Broadcast(event *realtime.Event)
}

// Config for the registry watcher
type Config struct {
	PollInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		PollInterval: 15 * time.Second,
	}
}

// Watcher polls registry logs and broadcasts them
type Watcher struct {
	provider *chain.Provider
	hub      Broadcaster
	config   Config
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	cursors map[int64]uint64 // last published block per chain id

	// Shutdown
	cancel context.CancelFunc
	stop   chan struct{}
	done   chan struct{}
}

// New creates a new registry watcher
func New(provider *chain.Provider, hub Broadcaster, cfg Config, logger *slog.Logger) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Watcher{
		provider: provider,
		hub:      hub,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
		cursors:  make(map[int64]uint64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins polling in the background and returns immediately. The
// loop first positions every network at its current head; networks whose
// head cannot be read are positioned on a later poll.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.logger.Info("registry watcher started",
		"networks", len(w.provider.Networks()),
		"interval", w.config.PollInterval,
	)

	go w.pollLoop(ctx)
}

// Stop stops the watcher, aborting any RPC in flight
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	close(w.stop)
	w.cancel()
	<-w.done
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer close(w.done)

	for _, cfg := range w.provider.Networks() {
		if ctx.Err() != nil {
			return
		}
		if err := w.prime(ctx, cfg); err != nil {
			w.logger.Warn("registry watcher could not read head", "network", cfg.Name, "error", err)
		}
	}

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.pollAll(ctx)
		}
	}
}

func (w *Watcher) pollAll(ctx context.Context) {
	for _, cfg := range w.provider.Networks() {
		if err := w.poll(ctx, cfg); err != nil {
			w.logger.Warn("registry poll failed", "network", cfg.Name, "error", err)
		}
	}
}

// Cursor returns the last published block for chainID.
func (w *Watcher) Cursor(chainID int64) (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.cursors[chainID]
	return b, ok
}

func (w *Watcher) prime(ctx context.Context, cfg network.Config) error {
	client, err := w.provider.Client(ctx, cfg.ChainID)
	if err != nil {
		return err
	}
	head, err := client.BlockNumber(ctx)
	if err != nil {
		return err
	}
	w.setCursor(cfg, head)
	return nil
}

func (w *Watcher) setCursor(cfg network.Config, block uint64) {
	w.mu.Lock()
	w.cursors[cfg.ChainID] = block
	w.mu.Unlock()
	metrics.FeedLastBlock.WithLabelValues(cfg.Name).Set(float64(block))
}

// poll publishes the logs between the cursor and the head of one network.
func (w *Watcher) poll(ctx context.Context, cfg network.Config) error {
	last, ok := w.Cursor(cfg.ChainID)
	if !ok {
		return w.prime(ctx, cfg)
	}

	client, err := w.provider.Client(ctx, cfg.ChainID)
	if err != nil {
		return err
	}
	head, err := client.BlockNumber(ctx)
	if err != nil {
		return err
	}
	// Nothing new
	if head <= last {
		return nil
	}

	logs, err := client.Logs(ctx, chain.LogQuery{
		Addresses: cfg.Registries(),
		From:      last + 1,
		To:        &head,
		ChunkSize: cfg.LogChunkSize,
	})
	if err != nil {
		return fmt.Errorf("read logs (%d, %d]: %w", last, head, err)
	}

	names := registryNames(cfg)
	now := w.now()
	for _, l := range logs {
		w.publish(cfg, names[l.Address], l, now)
	}

	w.setCursor(cfg, head)
	w.logger.Debug("registry logs published", "network", cfg.Name, "from", last+1, "to", head, "logs", len(logs))
	return nil
}

func (w *Watcher) publish(cfg network.Config, registryName string, l types.Log, now time.Time) {
	w.hub.Broadcast(&realtime.Event{
		Type:      realtime.EventTransaction,
		Network:   cfg.Name,
		Registry:  registryName,
		Timestamp: now,
		Data:      realtime.Transaction{TxHash: l.TxHash.Hex(), Block: l.BlockNumber},
	})
	metrics.FeedEventsTotal.WithLabelValues(cfg.Name, string(realtime.EventTransaction)).Inc()

	if registryName != registry.RegistryIdentity || !chain.IsRegistered(l) {
		return
	}
	reg, err := chain.DecodeRegistered(l)
	if err != nil {
		w.logger.Warn("undecodable registration", "network", cfg.Name, "tx", l.TxHash.Hex(), "error", err)
		return
	}
	id := reg.AgentID.String()
	w.hub.Broadcast(&realtime.Event{
		Type:      realtime.EventRegistration,
		Network:   cfg.Name,
		Registry:  registryName,
		AgentID:   id,
		Timestamp: now,
		Data: realtime.Registration{
			AgentID:  id,
			Owner:    "0x" + common.Bytes2Hex(reg.Owner.Bytes()),
			TokenURI: reg.TokenURI,
			Block:    l.BlockNumber,
			TxHash:   l.TxHash.Hex(),
		},
	})
	metrics.FeedEventsTotal.WithLabelValues(cfg.Name, string(realtime.EventRegistration)).Inc()
}

func registryNames(cfg network.Config) map[common.Address]string {
	return map[common.Address]string{
		cfg.IdentityRegistry:   registry.RegistryIdentity,
		cfg.ReputationRegistry: registry.RegistryReputation,
		cfg.ValidationRegistry: registry.RegistryValidation,
	}
}
