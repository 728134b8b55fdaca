// Package playback plays received audio chunks through the system
// speaker, strictly one after another.
//
// Chunks arrive faster or slower than realtime depending on the
// network, so they are queued: each chunk begins exactly where the
// previous one ended, never overlapping and never cut short. While the
// queue is empty the speaker plays silence and stays warm, so playback
// resumes seamlessly when the next chunk lands.
package playback

import (
	"sync"

	"github.com/gopxl/beep"
)

var _ beep.Streamer = (*Queue)(nil)

// Queue plays streamers sequentially. It implements [beep.Streamer] and
// is meant to be handed to the speaker exactly once; pushed streamers
// are then drained in arrival order.
//
// Safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	current beep.Streamer
	pending []beep.Streamer
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends s to the tail of the queue.
func (q *Queue) Push(s beep.Streamer) {
	q.mu.Lock()
	q.pending = append(q.pending, s)
	q.mu.Unlock()
}

// Len reports how many streamers are queued, including the one
// currently playing.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	if q.current != nil {
		n++
	}
	return n
}

// Clear drops the playing streamer and everything queued behind it.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current = nil
	q.pending = nil
}

// Stream implements [beep.Streamer]. It fills samples from the head
// streamer and crosses into the next one in the same call when the head
// drains, so consecutive chunks are seamless. Whatever stays unfilled
// becomes silence, and the call claims the whole slice: to the speaker
// the queue is an endless stream that plays silence through gaps, never
// a drained one.
func (q *Queue) Stream(samples [][2]float64) (n int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	filled := 0
	for filled < len(samples) {
		if q.current == nil {
			if len(q.pending) == 0 {
				break
			}
			q.current = q.pending[0]
			q.pending = q.pending[1:]
		}
		cn, cok := q.current.Stream(samples[filled:])
		if !cok {
			q.current = nil
			continue
		}
		filled += cn
	}
	for i := range samples[filled:] {
		samples[filled+i] = [2]float64{}
	}
	return len(samples), true
}

// Err implements [beep.Streamer].
func (q *Queue) Err() error { return nil }
