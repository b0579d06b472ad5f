package capture

import (
	"sync"

	"github.com/ekaya-inc/bugsneak/pkg/models"
)

// DefaultEarlyBufferSize is how many events are held before a store is attached.
const DefaultEarlyBufferSize = 50

// EarlyBuffer holds events captured before storage is ready. It is drained once;
// later pushes are ignored.
type EarlyBuffer struct {
	mu      sync.Mutex
	size    int
	events  []*models.ErrorEvent
	drained bool
	dropped int
}

// NewEarlyBuffer creates a buffer holding at most size events.
func NewEarlyBuffer(size int) *EarlyBuffer {
	if size <= 0 {
		size = DefaultEarlyBufferSize
	}
	return &EarlyBuffer{size: size}
}

// Push stores ev. It returns false when the buffer is full or already drained.
func (b *EarlyBuffer) Push(ev *models.ErrorEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.drained {
		return false
	}
	if len(b.events) >= b.size {
		b.dropped++
		return false
	}
	b.events = append(b.events, ev)
	return true
}

// Drain hands every buffered event to fn in capture order and closes the buffer.
// Only the first call sees events.
func (b *EarlyBuffer) Drain(fn func(ev *models.ErrorEvent)) int {
	b.mu.Lock()
	if b.drained {
		b.mu.Unlock()
		return 0
	}
	events := b.events
	b.events = nil
	b.drained = true
	b.mu.Unlock()

	for _, ev := range events {
		fn(ev)
	}
	return len(events)
}

// Len returns the number of events waiting.
func (b *EarlyBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Dropped returns how many pushes were refused because the buffer was full.
func (b *EarlyBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
