package bus

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus with the same per-topic ordering semantics
// as the Redis implementation. Used by tests and by embedded setups that
// run a whole chain inside one process.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]*memorySubscription
}

func NewMemory() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memorySubscription)}
}

func (b *MemoryBus) Publish(ctx context.Context, topic, payload string) error {
	b.mu.RLock()
	targets := make([]*memorySubscription, len(b.subs[topic]))
	copy(targets, b.subs[topic])
	b.mu.RUnlock()

	for _, sub := range targets {
		sub.deliver(ctx, Message{Topic: topic, Payload: payload})
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	sub := &memorySubscription{
		bus:    b,
		topics: topics,
		// Buffered so a publisher never blocks on a subscriber that has not
		// reached its receive yet; mirrors the broker-side buffering of the
		// Redis bus.
		ch:   make(chan Message, 256),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	for _, t := range topics {
		b.subs[t] = append(b.subs[t], sub)
	}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

type memorySubscription struct {
	bus    *MemoryBus
	topics []string

	// ch is never closed; receivers must also select on their own context.
	ch chan Message

	closeOnce sync.Once
	done      chan struct{}
}

func (s *memorySubscription) deliver(ctx context.Context, msg Message) {
	select {
	case <-s.done:
	case s.ch <- msg:
	case <-ctx.Done():
	}
}

func (s *memorySubscription) Messages() <-chan Message {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.closeOnce.Do(func() {
		s.bus.mu.Lock()
		for _, t := range s.topics {
			subs := s.bus.subs[t]
			for i, cand := range subs {
				if cand == s {
					s.bus.subs[t] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
		}
		s.bus.mu.Unlock()
		close(s.done)
	})
	return nil
}
