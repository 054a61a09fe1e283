package worker

import (
	"sync"

	"github.com/google/uuid"
)

// Clients fans worker->page messages out to every connected page.
type Clients struct {
	mu   sync.RWMutex
	subs map[string]chan Message
}

func NewClients() *Clients { return &Clients{subs: map[string]chan Message{}} }

// Subscribe registers a page. The returned cancel func must be called when
// the page goes away.
func (c *Clients) Subscribe(buffer int) (string, <-chan Message, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	id := uuid.NewString()
	ch := make(chan Message, buffer)

	c.mu.Lock()
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
	return id, ch, cancel
}

// Broadcast sends msg to every page without blocking and returns how many
// pages received it. A page whose buffer is full misses the message.
func (c *Clients) Broadcast(msg Message) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, ch := range c.subs {
		select {
		case ch <- msg:
			n++
		default:
		}
	}
	return n
}

func (c *Clients) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}
