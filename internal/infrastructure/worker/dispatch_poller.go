package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/facturia/invoice-pipeline/internal/application/service"
	"go.uber.org/zap"
)

// Dispatcher runs one dispatch invocation
type Dispatcher interface {
	DispatchOnce(ctx context.Context) (*service.DispatchOutcome, error)
}

// PollerStats is a snapshot of the poller's counters
type PollerStats struct {
	Ticks     int
	Completed int
	Failed    int
	LastError string
	LastTick  time.Time
}

// DispatchPoller calls DispatchOnce on a fixed interval, one job per tick
type DispatchPoller struct {
	dispatcher  Dispatcher
	interval    time.Duration
	tickTimeout time.Duration
	logger      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	stats  PollerStats
}

// NewDispatchPoller creates a poller. tickTimeout bounds a single dispatch; 0 means no bound.
func NewDispatchPoller(dispatcher Dispatcher, interval, tickTimeout time.Duration, logger *zap.Logger) *DispatchPoller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &DispatchPoller{
		dispatcher:  dispatcher,
		interval:    interval,
		tickTimeout: tickTimeout,
		logger:      logger,
	}
}

// Name returns the worker name for identification
func (p *DispatchPoller) Name() string {
	return "DispatchPoller"
}

// Start begins the polling loop in the background
func (p *DispatchPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return fmt.Errorf("dispatch poller already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	p.logger.Info("DispatchPoller started", zap.Duration("poll_interval", p.interval))

	go p.loop(loopCtx, p.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight dispatch to return
func (p *DispatchPoller) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	stats := p.Stats()
	p.logger.Info("DispatchPoller stopped",
		zap.Int("completed", stats.Completed),
		zap.Int("failed", stats.Failed))
	return nil
}

// Stats returns a copy of the counters
func (p *DispatchPoller) Stats() PollerStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *DispatchPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("Poll loop context cancelled")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *DispatchPoller) tick(ctx context.Context) {
	tickCtx := ctx
	if p.tickTimeout > 0 {
		var cancel context.CancelFunc
		tickCtx, cancel = context.WithTimeout(ctx, p.tickTimeout)
		defer cancel()
	}

	outcome, err := p.dispatcher.DispatchOnce(tickCtx)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Ticks++
	p.stats.LastTick = time.Now()

	switch {
	case errors.Is(err, service.ErrJobFailed):
		p.stats.Failed++
		p.stats.LastError = err.Error()
	case err != nil:
		p.stats.LastError = err.Error()
		p.logger.Error("Dispatch failed", zap.Error(err))
	case outcome != nil && outcome.JobID != "":
		p.stats.Completed++
		p.logger.Debug("Dispatched job",
			zap.String("job_id", outcome.JobID),
			zap.Int64("invoice_id", outcome.InvoiceID))
	}
}
