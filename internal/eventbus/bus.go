// Package eventbus provides an in-process pub/sub bus for domain events.
// Writers publish after commit; subscribers react outside the writer's
// transaction.
package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/emiliopalmerini/salespulse/internal/event"
)

// Handler processes a domain event.
type Handler interface {
	HandleEvent(ctx context.Context, evt event.DomainEvent) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt event.DomainEvent) error

func (f HandlerFunc) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	return f(ctx, evt)
}

// Bus dispatches events to all subscribers in subscription order.
//
// A bus created with New queues events on a buffered channel drained by a
// single consumer goroutine. Events published by a handler are dispatched
// inline on the consumer, ahead of the rest of the queue. When the buffer is
// full, or the bus is stopped, Publish dispatches on the caller's goroutine,
// so an event is never lost. A bus created with NewSync always dispatches
// inline from Publish; the CLI uses it so a command returns only after its
// side effects are applied.
type Bus struct {
	mu          sync.RWMutex
	subscribers []namedHandler

	state   sync.RWMutex
	started bool
	closed  bool

	events chan event.DomainEvent
	done   chan struct{}
	inline bool
	logger *slog.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

type dispatchingKey struct{}

// New creates an asynchronous bus with the given channel buffer size.
func New(bufSize int, logger *slog.Logger) *Bus {
	if bufSize < 1 {
		bufSize = 256
	}
	return &Bus{
		events: make(chan event.DomainEvent, bufSize),
		done:   make(chan struct{}),
		logger: orDefault(logger),
	}
}

// NewSync creates a bus that dispatches on the publishing goroutine.
func NewSync(logger *slog.Logger) *Bus {
	return &Bus{inline: true, logger: orDefault(logger)}
}

func orDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// Subscribe registers a named handler. Must be called before Start.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, namedHandler{name: name, handler: h})
}

// Publish sends an event to the bus. It is safe to call before Start, after
// Stop and from inside a handler.
func (b *Bus) Publish(ctx context.Context, evt event.DomainEvent) {
	if b.inline || ctx.Value(dispatchingKey{}) != nil {
		b.dispatch(ctx, evt)
		return
	}
	if !b.enqueue(evt) {
		b.dispatch(ctx, evt)
	}
}

// enqueue reports whether evt was queued for the consumer.
func (b *Bus) enqueue(evt event.DomainEvent) bool {
	b.state.RLock()
	defer b.state.RUnlock()
	if b.closed {
		return false
	}
	select {
	case b.events <- evt:
		return true
	default:
		b.logger.Warn("eventbus buffer full, dispatching on publisher",
			slog.String("event_type", evt.EventType),
			slog.String("event_id", evt.ID),
		)
		return false
	}
}

// Start begins the consumer goroutine. It consumes until Stop, also after
// ctx is cancelled; ctx only supplies values to handlers. It is a no-op on
// a sync bus or a bus that is already started or stopped.
func (b *Bus) Start(ctx context.Context) {
	if b.inline {
		return
	}
	b.state.Lock()
	defer b.state.Unlock()
	if b.started || b.closed {
		return
	}
	b.started = true

	hctx := context.WithoutCancel(ctx)
	go func() {
		defer close(b.done)
		for evt := range b.events {
			b.dispatch(hctx, evt)
		}
	}()
}

// Stop closes the queue and returns once every queued event has been
// dispatched. Later Publish calls dispatch inline. Stop is idempotent.
func (b *Bus) Stop() {
	if b.inline {
		return
	}
	b.state.Lock()
	if b.closed {
		started := b.started
		b.state.Unlock()
		if started {
			<-b.done
		}
		return
	}
	b.closed = true
	close(b.events)
	started := b.started
	b.state.Unlock()

	if started {
		<-b.done
		return
	}
	for evt := range b.events {
		b.dispatch(context.Background(), evt)
	}
}

func (b *Bus) dispatch(ctx context.Context, evt event.DomainEvent) {
	b.mu.RLock()
	subs := b.subscribers
	b.mu.RUnlock()

	ctx = context.WithValue(ctx, dispatchingKey{}, true)
	for _, s := range subs {
		if err := s.handler.HandleEvent(ctx, evt); err != nil {
			b.logger.Error("eventbus handler failed",
				slog.String("handler", s.name),
				slog.String("event_type", evt.EventType),
				slog.String("event_id", evt.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
