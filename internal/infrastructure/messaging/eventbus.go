// Package messaging carries domain events from the matching run to the
// mail handlers. InMemoryEventBus serves one process; RedisEventBus relays
// events between the API and the worker over Pub/Sub.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

var (
	ErrEventBusClosed = errors.New("event bus is closed")
	ErrHandlerPanic   = errors.New("handler panicked")

	errNilHandler = errors.New("handler cannot be nil")
	errNilEvent   = errors.New("event cannot be nil")
)

type InMemoryEventBusConfig struct {
	// AsyncMode hands each delivery to a goroutine; at most WorkerPoolSize
	// handlers run at once. Otherwise Publish runs handlers inline.
	AsyncMode      bool
	WorkerPoolSize int
	Logger         *slog.Logger
}

func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 4}
}

// InMemoryEventBus implements shared.EventBus. Handler errors and panics are
// logged and counted; the publisher never sees them.
type InMemoryEventBus struct {
	async   bool
	slots   *semaphore.Weighted
	log     *slog.Logger
	metrics *EventBusMetrics

	mu       sync.RWMutex
	byType   map[shared.EventType][]shared.EventHandler
	catchAll []shared.EventHandler
	closed   bool
	inflight sync.WaitGroup
}

func NewInMemoryEventBus(cfg InMemoryEventBusConfig) *InMemoryEventBus {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = DefaultInMemoryEventBusConfig().WorkerPoolSize
	}
	return &InMemoryEventBus{
		async:   cfg.AsyncMode,
		slots:   semaphore.NewWeighted(int64(cfg.WorkerPoolSize)),
		log:     cfg.Logger.With("component", "event_bus"),
		metrics: NewEventBusMetrics(),
		byType:  make(map[shared.EventType][]shared.EventHandler),
	}
}

func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.register(handler, func() { b.byType[eventType] = append(b.byType[eventType], handler) })
}

func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.register(handler, func() { b.catchAll = append(b.catchAll, handler) })
}

func (b *InMemoryEventBus) register(handler shared.EventHandler, add func()) error {
	if handler == nil {
		return errNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	add()
	return nil
}

func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	targets := append(append([]shared.EventHandler(nil), b.byType[event.EventType()]...), b.catchAll...)
	if b.async {
		// counted before unlocking so a concurrent Close waits for them
		b.inflight.Add(len(targets))
	}
	b.mu.RUnlock()

	b.metrics.RecordPublish(event.EventType())
	for _, h := range targets {
		if !b.async {
			b.deliver(event, h)
			continue
		}
		h := h
		go func() {
			defer b.inflight.Done()
			_ = b.slots.Acquire(context.Background(), 1)
			defer b.slots.Release(1)
			b.deliver(event, h)
		}()
	}
	return nil
}

func (b *InMemoryEventBus) deliver(event shared.Event, h shared.EventHandler) {
	start := time.Now()
	err := invoke(event, h)
	b.metrics.RecordHandlerExecution(event.EventType(), time.Since(start), err == nil)
	if err != nil {
		b.log.Error("event handler failed", "event_type", event.EventType(), "aggregate_id", event.AggregateID(), "error", err)
	}
}

func invoke(event shared.Event, h shared.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(event)
}

// Close rejects further publishes and waits for queued deliveries.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	already := b.closed
	b.closed = true
	b.mu.Unlock()
	if already {
		return nil
	}
	b.inflight.Wait()
	b.log.Info("event bus closed")
	return nil
}

func (b *InMemoryEventBus) Metrics() *EventBusMetrics { return b.metrics }

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

type EventBusMetrics struct {
	mu         sync.Mutex
	published  map[shared.EventType]int64
	executions int64
	failures   int64
	elapsed    time.Duration
}

func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{published: make(map[shared.EventType]int64)}
}

func (m *EventBusMetrics) RecordPublish(t shared.EventType) {
	m.mu.Lock()
	m.published[t]++
	m.mu.Unlock()
}

func (m *EventBusMetrics) RecordHandlerExecution(_ shared.EventType, d time.Duration, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions++
	m.elapsed += d
	if !ok {
		m.failures++
	}
}

type EventBusMetricsSnapshot struct {
	Published              map[shared.EventType]int64 `json:"published"`
	HandlerExecutions      int64                      `json:"handler_executions"`
	HandlerFailures        int64                      `json:"handler_failures"`
	AverageHandlerDuration time.Duration              `json:"average_handler_duration"`
}

func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := EventBusMetricsSnapshot{
		Published:         make(map[shared.EventType]int64, len(m.published)),
		HandlerExecutions: m.executions,
		HandlerFailures:   m.failures,
	}
	for t, n := range m.published {
		snap.Published[t] = n
	}
	if m.executions > 0 {
		snap.AverageHandlerDuration = m.elapsed / time.Duration(m.executions)
	}
	return snap
}
