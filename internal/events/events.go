package events

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChallengeCompleted is published exactly once per completion transition.
// Subscribers (points, achievements, notifications) react independently; the
// progress write that triggered the event is already durable by the time
// they run.
type ChallengeCompleted struct {
	UserID      uuid.UUID
	ChallengeID uuid.UUID
	Title       string
	Points      int
	CompletedAt time.Time
}

type Handler func(ctx context.Context, ev ChallengeCompleted) error

// Bus is a minimal in-process publisher. Delivery is synchronous but each
// handler is isolated: an error or panic in one subscriber is logged and
// never reaches the publisher or the other subscribers.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *Bus) Publish(ctx context.Context, ev ChallengeCompleted) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(ctx, h, ev)
	}
}

func (b *Bus) deliver(ctx context.Context, h Handler, ev ChallengeCompleted) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Challenge-completed subscriber panicked for user %s: %v", ev.UserID, r)
		}
	}()

	if err := h(ctx, ev); err != nil {
		log.Printf("Challenge-completed subscriber failed for user %s challenge %s: %v", ev.UserID, ev.ChallengeID, err)
	}
}
