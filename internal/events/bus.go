package events

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewBus),
)

// Handler observes a published event. Handlers run synchronously on the
// publisher's goroutine and must not block on slow I/O.
type Handler func(ctx context.Context, evt Event)

// Bus fans typed events out to registered observers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		handlers: map[string][]Handler{},
		log:      log.Named("events"),
	}
}

// Subscribe registers h for the event names given; no names means every event.
func (b *Bus) Subscribe(h Handler, names ...string) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(names) == 0 {
		names = []string{"*"}
	}
	for _, name := range names {
		b.handlers[name] = append(b.handlers[name], h)
	}
}

// Publish delivers evt to every matching handler. A panicking handler is
// logged and does not affect the others or the publisher.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[evt.Name()])+len(b.handlers["*"]))
	handlers = append(handlers, b.handlers[evt.Name()]...)
	handlers = append(handlers, b.handlers["*"]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(ctx, h, evt)
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				zap.String("event", evt.Name()),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	h(ctx, evt)
}
