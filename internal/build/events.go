package build

import "sync"

type EventType string

const (
	EventStatus   EventType = "status"
	EventLog      EventType = "log"
	EventProgress EventType = "progress"
)

// Event is published for every observable state change. Snapshot reflects the
// state right after the change.
type Event struct {
	Type     EventType `json:"type"`
	Entry    *LogEntry `json:"entry,omitempty"`
	Snapshot Snapshot  `json:"snapshot"`
}

// Subscribe registers a listener. Events are dropped for subscribers whose
// buffer is full. The returned function unsubscribes and closes the channel.
func (c *Controller) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subscribers[id]; ok {
				delete(c.subscribers, id)
				close(ch)
			}
		})
	}
}

func (c *Controller) publishLocked(eventType EventType, entry *LogEntry) {
	if len(c.subscribers) == 0 {
		return
	}

	event := Event{
		Type:     eventType,
		Entry:    entry,
		Snapshot: c.snapshotLocked(),
	}
	for _, ch := range c.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
