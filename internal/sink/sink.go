// Package sink forwards session events to optional persistence sinks without
// letting them slow down or fail a deployment.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/waabox/pakdeck/internal/domain"
)

// Sink ingests session events. Implementations are called from a single goroutine.
type Sink interface {
	Name() string
	Emit(ctx context.Context, e domain.Event) error
}

// DefaultBuffer is the number of events a Dispatcher queues before dropping.
const DefaultBuffer = 1024

// Dispatcher delivers events to every sink in publish order on a background
// worker. Publish never blocks: when the queue is full the event is dropped
// and logged.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
	queue  chan domain.Event
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts a dispatcher for sinks.
func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	d := &Dispatcher{
		sinks:  sinks,
		logger: logger,
		queue:  make(chan domain.Event, DefaultBuffer),
		done:   make(chan struct{}),
	}
	go d.loop()
	return d
}

// Publish queues e for delivery. It implements session.Observer.
func (d *Dispatcher) Publish(e domain.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- e:
	default:
		d.logger.Warn("sink queue full, event dropped", "type", string(e.Type), "session_id", e.SessionID)
	}
}

// Close stops accepting events and waits until the queued ones are delivered
// or ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flushing sinks: %w", ctx.Err())
	}
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for e := range d.queue {
		for _, s := range d.sinks {
			d.deliver(s, e)
		}
	}
}

// deliver calls one sink, recovering from panics so one sink cannot stop the others.
func (d *Dispatcher) deliver(s Sink, e domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("sink panicked", "sink", s.Name(), "type", string(e.Type), "panic", r, "stack", string(debug.Stack()))
		}
	}()
	if err := s.Emit(context.Background(), e); err != nil {
		d.logger.Warn("sink emit failed", "sink", s.Name(), "type", string(e.Type), "session_id", e.SessionID, "error", err)
	}
}

// Filter wraps a sink so it only receives the listed event types.
// An empty list passes everything.
func Filter(s Sink, types ...domain.EventType) Sink {
	if len(types) == 0 {
		return s
	}
	allowed := make(map[domain.EventType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	return &filtered{Sink: s, allowed: allowed}
}

type filtered struct {
	Sink
	allowed map[domain.EventType]bool
}

func (f *filtered) Emit(ctx context.Context, e domain.Event) error {
	if !f.allowed[e.Type] {
		return nil
	}
	return f.Sink.Emit(ctx, e)
}
