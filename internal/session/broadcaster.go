package session

import (
	"sync"

	"claimguard/internal/session/models"
)

// Broadcaster fans session snapshots out to subscribers. A subscriber that
// falls behind misses intermediate snapshots; the latest one always follows.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan models.DemonstrationSession
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan models.DemonstrationSession)}
}

// Subscribe returns a channel of snapshots and a func that ends the
// subscription. The channel is closed by cancel or by Close.
func (b *Broadcaster) Subscribe(buffer int) (<-chan models.DemonstrationSession, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.DemonstrationSession, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish never blocks. When a subscriber's buffer is full the oldest
// queued snapshot is dropped to make room.
func (b *Broadcaster) Publish(s models.DemonstrationSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		for {
			select {
			case ch <- s.Clone():
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Close ends every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
