package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dailyledger/internal/log"
)

// RefresherConfig holds configuration for the snapshot refresher
type RefresherConfig struct {
	// Interval is how often the snapshot is checked (default: 1m)
	Interval time.Duration
}

// DefaultRefresherConfig returns sensible defaults
func DefaultRefresherConfig() RefresherConfig {
	return RefresherConfig{Interval: time.Minute}
}

// Refresher reloads an expired snapshot in the background so report
// requests rarely wait on the store.
type Refresher struct {
	service *LedgerService
	config  RefresherConfig
	logger  *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewRefresher(service *LedgerService, config RefresherConfig, logger *log.Logger) *Refresher {
	if config.Interval <= 0 {
		config.Interval = DefaultRefresherConfig().Interval
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Refresher{
		service: service,
		config:  config,
		logger:  logger.WithComponent(log.ComponentCache),
	}
}

// Start begins the refresh loop. Returns an error if already running.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("refresher is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	go r.runLoop(ctx, stopCh, doneCh)

	r.logger.InfoContext(ctx, "Snapshot refresher started", "interval", r.config.Interval)
	return nil
}

// Stop signals the loop and waits for it to finish or ctx to expire.
func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.running = false
	r.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		r.logger.InfoContext(ctx, "Snapshot refresher stopped")
		return nil
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "Snapshot refresher stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the refresher is currently running
func (r *Refresher) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Refresher) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	// Warm immediately on startup
	r.refresh(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

// refresh is a no-op while the cached snapshot is fresh.
func (r *Refresher) refresh(ctx context.Context) {
	if _, err := r.service.Snapshot(ctx); err != nil {
		r.logger.WarnContext(ctx, "Background snapshot refresh failed", log.FieldError, err)
	}
}
