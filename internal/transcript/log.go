// Package transcript keeps the rolling message log for a joined room.
//
// Entries arrive from two sources: the history snapshot served right
// after joining and live new_text broadcasts. The log is append only.
// The server emits a line only once recognition finalized it, so an
// existing entry never changes; a correction would arrive as a new
// entry. The log retains the most recent entries up to a fixed cap,
// mirroring the server's own per-room bound.
//
// All methods are safe for concurrent use.
package transcript

import (
	"sync"

	"github.com/MrWong99/voxwire/internal/protocol"
)

// DefaultMaxEntries matches the server-side history bound per room.
const DefaultMaxEntries = 100

// Log is the in-memory transcript of one room.
type Log struct {
	maxEntries int

	mu      sync.Mutex
	entries []protocol.Entry
	loaded  bool
}

// Option is a functional option for [NewLog].
type Option func(*Log)

// WithMaxEntries caps how many entries the log retains. When an append
// exceeds the cap the oldest entries are dropped. Defaults to
// [DefaultMaxEntries].
func WithMaxEntries(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.maxEntries = n
		}
	}
}

// NewLog creates an empty [Log].
func NewLog(opts ...Option) *Log {
	l := &Log{
		maxEntries: DefaultMaxEntries,
		entries:    make([]protocol.Entry, 0),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Append adds one live entry at the newest position.
func (l *Log) Append(e protocol.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	l.trim()
}

// Replace swaps the whole log for the server's history snapshot and
// marks the log loaded. An empty snapshot still counts as loaded; a
// fresh room simply has nothing to say yet.
func (l *Log) Replace(entries []protocol.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries[:0], entries...)
	l.trim()
	l.loaded = true
}

// Entries returns a copy of the log, oldest first.
func (l *Log) Entries() []protocol.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]protocol.Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Recent returns a copy of the most recent limit entries, oldest first.
// A limit of zero or less returns the whole log.
func (l *Log) Recent(limit int) []protocol.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]protocol.Entry, len(entries))
	copy(out, entries)
	return out
}

// UserEntries returns a copy of the most recent limit entries authored
// by userID, oldest first. A limit of zero or less returns all of them.
func (l *Log) UserEntries(userID string, limit int) []protocol.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []protocol.Entry{}
	for _, e := range l.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Len reports how many entries the log holds.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Loaded reports whether a history snapshot has arrived since the last
// reset.
func (l *Log) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Reset empties the log and clears the loaded flag, ready for a rejoin.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
	l.loaded = false
}

// trim drops the oldest entries beyond the cap. Must be called with
// l.mu held.
func (l *Log) trim() {
	if len(l.entries) > l.maxEntries {
		l.entries = append(l.entries[:0], l.entries[len(l.entries)-l.maxEntries:]...)
	}
}
