// Package queue provides the FIFO song queue.
package queue

import (
	"slices"

	"github.com/osa030/queueplayer/internal/domain/track"
)

// Queue is a first-in-first-out container of pending tracks.
// It is not safe for concurrent use; the owning session serializes access.
type Queue struct {
	items []track.Track
}

// New creates a queue holding the given tracks in order.
func New(tracks ...track.Track) *Queue {
	q := &Queue{items: make([]track.Track, 0, len(tracks))}
	q.items = append(q.items, tracks...)
	return q
}

// Enqueue appends a track to the tail.
func (q *Queue) Enqueue(t track.Track) {
	q.items = append(q.items, t)
}

// Dequeue removes and returns the head track.
// The second return value is false when the queue is empty.
func (q *Queue) Dequeue() (track.Track, bool) {
	if len(q.items) == 0 {
		return track.Track{}, false
	}
	head := q.items[0]
	q.items[0] = track.Track{}
	q.items = q.items[1:]
	return head, true
}

// PeekAll returns a copy of the queued tracks in order.
func (q *Queue) PeekAll() []track.Track {
	return slices.Clone(q.items)
}

// IsEmpty reports whether the queue holds no tracks.
func (q *Queue) IsEmpty() bool {
	return len(q.items) == 0
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int {
	return len(q.items)
}
