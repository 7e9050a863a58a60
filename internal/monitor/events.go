package monitor

import (
	"fmt"
	"sync"
	"time"
)

// Event is one timestamped line in the activity log.
type Event struct {
	Time    time.Time
	Message string
}

// EventBuffer keeps the most recent events, dropping the oldest once the
// capacity is reached. Safe for concurrent use.
type EventBuffer struct {
	mu      sync.Mutex
	events  []Event
	max     int
	nowFunc func() time.Time
}

// NewEventBuffer creates a buffer holding at most max events.
func NewEventBuffer(max int) *EventBuffer {
	if max <= 0 {
		max = 1000
	}
	return &EventBuffer{
		max:     max,
		nowFunc: time.Now,
	}
}

// Addf formats and appends an event, evicting the oldest if full.
func (b *EventBuffer) Addf(format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, Event{
		Time:    b.nowFunc(),
		Message: fmt.Sprintf(format, args...),
	})
	if len(b.events) > b.max {
		b.events = b.events[len(b.events)-b.max:]
	}
}

// Snapshot returns a copy of the buffered events, oldest first.
func (b *EventBuffer) Snapshot() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Len returns the current number of buffered events.
func (b *EventBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
