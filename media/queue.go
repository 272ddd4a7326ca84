// Package media holds captured screenshots until a provider turn consumes
// them, and normalizes raw captures into provider-ready JPEG payloads.
package media

import (
	"sync"
	"time"
)

// QueuedImage is a captured screenshot awaiting attachment to a turn.
type QueuedImage struct {
	MIMEType   string
	Base64Data string
	InsertedAt time.Time
}

// ImageQueue keeps the most recent images up to a fixed cap. Pushing past
// the cap evicts the oldest entry.
type ImageQueue struct {
	mu      sync.Mutex
	items   []QueuedImage
	maxSize int
	evicted int
	now     func() time.Time
}

// NewImageQueue creates a queue holding at most maxSize images. A
// non-positive maxSize is treated as 1.
func NewImageQueue(maxSize int) *ImageQueue {
	if maxSize < 1 {
		maxSize = 1
	}
	return &ImageQueue{maxSize: maxSize, now: time.Now}
}

// Push appends an image and returns the queue length afterwards.
func (q *ImageQueue) Push(img QueuedImage) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if img.InsertedAt.IsZero() {
		img.InsertedAt = q.now()
	}
	q.items = append(q.items, img)
	if over := len(q.items) - q.maxSize; over > 0 {
		q.items = append(q.items[:0:0], q.items[over:]...)
		q.evicted += over
	}
	return len(q.items)
}

// TakeAll returns every queued image in insertion order and empties the
// queue.
func (q *ImageQueue) TakeAll() []QueuedImage {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = nil
	return out
}

// Size returns the current queue length.
func (q *ImageQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// MaxSize returns the queue cap.
func (q *ImageQueue) MaxSize() int { return q.maxSize }

// Evicted returns how many images were dropped because the queue was full.
func (q *ImageQueue) Evicted() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evicted
}

// Clear drops every queued image.
func (q *ImageQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}
