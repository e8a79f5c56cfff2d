package event

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type Handler func(ctx context.Context, e Event) error

type subscriber struct {
	name    string
	handler Handler
}

// Bus delivers events synchronously, in subscription order. A failing
// subscriber is logged and skipped; it never affects the publisher or the
// remaining subscribers.
type Bus struct {
	logger *zap.Logger

	mu     sync.RWMutex
	byKind map[Kind][]subscriber
	all    []subscriber
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logger,
		byKind: make(map[Kind][]subscriber),
	}
}

func (b *Bus) Subscribe(kind Kind, name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byKind[kind] = append(b.byKind[kind], subscriber{name: name, handler: h})
}

// SubscribeAll registers h for every kind. It runs after the kind-specific
// subscribers.
func (b *Bus) SubscribeAll(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, subscriber{name: name, handler: h})
}

func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	subs := make([]subscriber, 0, len(b.byKind[e.Kind()])+len(b.all))
	subs = append(subs, b.byKind[e.Kind()]...)
	subs = append(subs, b.all...)
	b.mu.RUnlock()

	for _, s := range subs {
		if err := b.dispatch(ctx, s, e); err != nil {
			b.logger.Error("event subscriber failed",
				zap.String("subscriber", s.name),
				zap.String("kind", string(e.Kind())),
				zap.String("order_id", e.OrderID()),
				zap.Error(err),
			)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, s subscriber, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.handler(ctx, e)
}
