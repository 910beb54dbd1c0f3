package feed

import (
	"context"
	"sync"
)

// Memory is an in-process feed used when no redis instance is
// configured, and by tests. Delivery order matches publish order per
// subscriber.
type Memory struct {
	mu   sync.Mutex
	subs map[chan Change]struct{}
}

// NewMemory creates an empty in-process feed.
func NewMemory() *Memory {
	return &Memory{subs: make(map[chan Change]struct{})}
}

// Publish fans the change out to all current subscribers. The lock is
// held across the sends so a concurrent unsubscribe cannot close a
// channel mid-send; subscriber buffers keep this from blocking in
// practice.
func (m *Memory) Publish(ctx context.Context, change Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ch := range m.subs {
		select {
		case ch <- change:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers a new subscriber that lives until ctx is cancelled.
func (m *Memory) Subscribe(ctx context.Context) (<-chan Change, error) {
	ch := make(chan Change, 64)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, ch)
		m.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
