package report

import (
	"sync"
	"sync/atomic"

	"github.com/MeKo-Tech/tslatency/internal/latency"
)

// Broadcaster fans measurements out to live subscribers. A slow subscriber
// loses events instead of stalling the measuring pipeline.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[int]chan latency.Event
	next    int
	dropped atomic.Uint64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan latency.Event)}
}

// Subscribe returns a channel receiving events and a function that closes it.
func (b *Broadcaster) Subscribe(buffer int) (<-chan latency.Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan latency.Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) Report(m latency.Measurement) {
	e := m.Event()
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many events were not delivered to full subscribers.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}
