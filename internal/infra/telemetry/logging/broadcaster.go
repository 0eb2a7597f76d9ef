package logging

import (
	"context"
	"sync"

	"obskit/internal/domain"
)

const subscriberBufferSize = 256

// broadcaster fans log entries out to live subscribers. Slow subscribers miss
// entries rather than blocking the caller.
type broadcaster struct {
	mu   sync.RWMutex
	subs map[chan domain.LogEntry]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan domain.LogEntry]struct{})}
}

func (b *broadcaster) subscribe(ctx context.Context) <-chan domain.LogEntry {
	ch := make(chan domain.LogEntry, subscriberBufferSize)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

func (b *broadcaster) publish(entry domain.LogEntry) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- entry:
		default:
		}
	}
}
