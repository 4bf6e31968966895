package notify

import (
	"context"
	"sync"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/ports"
	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
	"github.com/jacksonlee411/lease-signflow/pkg/logger"
)

// Subscriber reacts to committed workflow events.
type Subscriber interface {
	Handle(ctx context.Context, event types.Event) error
}

type SubscriberFunc func(ctx context.Context, event types.Event) error

func (f SubscriberFunc) Handle(ctx context.Context, event types.Event) error { return f(ctx, event) }

// Bus fans events out to subscribers in registration order. A failing
// subscriber is logged and does not stop the others.
type Bus struct {
	mu   sync.RWMutex
	subs []Subscriber
}

var _ ports.EventPublisher = (*Bus)(nil)

func NewBus(subs ...Subscriber) *Bus {
	return &Bus{subs: subs}
}

func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, s)
}

func (b *Bus) Publish(ctx context.Context, events ...types.Event) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs...)
	b.mu.RUnlock()

	for _, ev := range events {
		for _, s := range subs {
			if err := s.Handle(ctx, ev); err != nil {
				logger.Warn(ctx, "event subscriber failed",
					"event_id", ev.ID,
					"event_type", string(ev.Type),
					"contract_id", ev.ContractID,
					"error", err,
				)
			}
		}
	}
}

// Deliver is Publish for a single event that reports the first subscriber
// error. The outbox relay uses it to decide whether to retry.
func (b *Bus) Deliver(ctx context.Context, event types.Event) error {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs...)
	b.mu.RUnlock()

	var first error
	for _, s := range subs {
		if err := s.Handle(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
