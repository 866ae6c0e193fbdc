package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/telekom/smtp-notifier/pkg/notification"
)

// Handler processes one event. It runs on the publisher's goroutine.
type Handler func(ctx context.Context, ev notification.Event)

// Source is where subscribers register for an event kind.
type Source interface {
	Subscribe(kind notification.Kind, h Handler)
}

// Bus is a synchronous in-process Source.
type Bus struct {
	mu       sync.RWMutex
	handlers map[notification.Kind][]Handler
	log      *zap.SugaredLogger
}

var _ Source = (*Bus)(nil)

func NewBus(log *zap.SugaredLogger) *Bus {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Bus{
		handlers: map[notification.Kind][]Handler{},
		log:      log.Named("bus"),
	}
}

func (b *Bus) Subscribe(kind notification.Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Publish hands ev to every handler of kind in subscription order and
// returns how many handlers ran. A panicking handler is logged and does not
// stop the others.
func (b *Bus) Publish(ctx context.Context, kind notification.Kind, ev notification.Event) int {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[kind]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.log.Debugw("No subscriber for event", "kind", kind)
		return 0
	}
	for _, h := range handlers {
		b.invoke(ctx, kind, h, ev)
	}
	return len(handlers)
}

func (b *Bus) invoke(ctx context.Context, kind notification.Kind, h Handler, ev notification.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorw("Event handler panicked", "kind", kind, "panic", r)
		}
	}()
	h(ctx, ev)
}
