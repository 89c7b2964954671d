package broker

import (
	"context"
	"sync"
)

// LocalBroker delivers events inside a single process. It is used when Redis is not
// configured. Slow subscribers miss events rather than block publishers.
type LocalBroker struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subscribers: make(map[chan Event]struct{})}
}

func (b *LocalBroker) Publish(_ context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, 100)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subscribers, ch)
		b.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

func (b *LocalBroker) Close() error {
	return nil
}
