package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/facturia/invoice-pipeline/internal/domain/event"
	"go.uber.org/zap"
)

// ErrClosed is returned by Publish after Close
var ErrClosed = errors.New("event bus is closed")

// Handler processes one job event
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a registered handler
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}

// Bus routes job events to the handlers subscribed to their type
type Bus struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	logger   *zap.Logger

	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates an event bus
func New(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[event.Type][]HandlerInfo),
		logger:   logger,
	}
}

// Subscribe registers a handler under a generated name
func (b *Bus) Subscribe(eventType event.Type, handler Handler) {
	b.mu.RLock()
	name := fmt.Sprintf("handler-%d", len(b.handlers[eventType]))
	b.mu.RUnlock()
	b.SubscribeNamed(eventType, name, handler)
}

// SubscribeNamed registers a handler under name
func (b *Bus) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], HandlerInfo{
		Name:      name,
		EventType: eventType,
		Handler:   handler,
	})

	b.logger.Debug("Handler registered",
		zap.String("event_type", eventType.String()),
		zap.String("handler_name", name))
}

// Publish runs the handlers for evt in registration order and returns the
// first error. Later handlers do not run after a failure.
func (b *Bus) Publish(ctx context.Context, evt *event.Event) error {
	if b.closed.Load() {
		return ErrClosed
	}

	for _, info := range b.snapshot(evt.Type) {
		if err := b.safeExecute(ctx, evt, info); err != nil {
			b.logger.Warn("Event handler failed",
				zap.String("event_type", evt.Type.String()),
				zap.String("event_id", evt.ID),
				zap.String("job_id", evt.JobID()),
				zap.String("handler_name", info.Name),
				zap.Error(err))
			return fmt.Errorf("handler %s failed: %w", info.Name, err)
		}
	}
	return nil
}

// PublishAsync runs every handler for evt on its own goroutine. Close waits for them.
func (b *Bus) PublishAsync(ctx context.Context, evt *event.Event) {
	if b.closed.Load() {
		b.logger.Warn("Event dropped, bus is closed",
			zap.String("event_type", evt.Type.String()),
			zap.String("event_id", evt.ID))
		return
	}

	for _, info := range b.snapshot(evt.Type) {
		b.wg.Add(1)
		go func(h HandlerInfo) {
			defer b.wg.Done()
			if err := b.safeExecute(ctx, evt, h); err != nil {
				b.logger.Warn("Async event handler failed",
					zap.String("event_type", evt.Type.String()),
					zap.String("event_id", evt.ID),
					zap.String("handler_name", h.Name),
					zap.Error(err))
			}
		}(info)
	}
}

// ListHandlers returns the handlers for an event type without their functions
func (b *Bus) ListHandlers(eventType event.Type) []HandlerInfo {
	handlers := b.snapshot(eventType)
	for i := range handlers {
		handlers[i].Handler = nil
	}
	return handlers
}

// Close stops accepting events and waits for async handlers
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("event bus already closed")
	}
	b.wg.Wait()
	b.logger.Debug("Event bus closed")
	return nil
}

func (b *Bus) snapshot(eventType event.Type) []HandlerInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]HandlerInfo(nil), b.handlers[eventType]...)
}

// safeExecute turns a handler panic into an error
func (b *Bus) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			b.logger.Error("Event handler panicked",
				zap.String("event_type", evt.Type.String()),
				zap.String("handler_name", info.Name),
				zap.Any("panic", r))
		}
	}()
	return info.Handler(ctx, evt)
}
