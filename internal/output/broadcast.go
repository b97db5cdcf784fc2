package output

import (
	"sync"

	"github.com/rbright/canto/internal/event"
)

const subscriberBuffer = 64

// Broadcaster fans events out to live subscribers. A subscriber that falls
// behind loses events rather than stalling the session.
type Broadcaster struct {
	drops DropCounter

	mu     sync.Mutex
	nextID int
	subs   map[int]chan event.Event
}

func NewBroadcaster(drops DropCounter) *Broadcaster {
	return &Broadcaster{drops: dropsOrNoop(drops), subs: make(map[int]chan event.Event)}
}

// Subscribe registers a subscriber. The returned func unregisters it and
// closes the channel.
func (b *Broadcaster) Subscribe() (<-chan event.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan event.Event, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *Broadcaster) Emit(ev event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.drops.Dropped("broadcast")
		}
	}
}

// Subscribers reports the number of live subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
