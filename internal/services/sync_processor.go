package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"harvester/internal/log"
)

// Syncer pushes the whole ledger to an outbound mirror.
type Syncer interface {
	SyncNow(ctx context.Context) error
}

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often the mirror is rewritten (default: 5m)
	PollInterval time.Duration

	// MaxRetries is the number of attempts per cycle (default: 3)
	MaxRetries int

	// RetryDelay is the pause between attempts of one cycle (default: 2s)
	RetryDelay time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval: 5 * time.Minute,
		MaxRetries:   3,
		RetryDelay:   2 * time.Second,
	}
}

// SyncProcessor periodically catches the mirror up with the cache, covering
// change messages that were lost while the worker or broker was down.
type SyncProcessor struct {
	syncer Syncer
	config SyncProcessorConfig
	logger *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	failures int
}

func NewSyncProcessor(syncer Syncer, config SyncProcessorConfig) *SyncProcessor {
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	return &SyncProcessor{
		syncer: syncer,
		config: config,
		logger: log.WithComponent(log.ComponentWorker),
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	if p.config.PollInterval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", p.config.PollInterval)
	}
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"max_retries", p.config.MaxRetries)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Failures counts cycles that exhausted their retries.
func (p *SyncProcessor) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

// runCycle tries one sync, retrying up to MaxRetries times.
func (p *SyncProcessor) runCycle(ctx context.Context) {
	var err error
	for attempt := 1; attempt <= p.config.MaxRetries; attempt++ {
		if err = p.syncer.SyncNow(ctx); err == nil {
			return
		}
		p.logger.WarnContext(ctx, "Catch-up sync failed",
			"attempt", attempt,
			log.FieldError, err)

		if attempt == p.config.MaxRetries {
			break
		}
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(p.config.RetryDelay):
		}
	}

	p.mu.Lock()
	p.failures++
	p.mu.Unlock()
	p.logger.ErrorContext(ctx, "Catch-up sync gave up",
		"attempts", p.config.MaxRetries,
		log.FieldError, err)
}
