// Package mock provides an in-memory mock implementation of the
// [capture.Source] interface for use in unit tests.
//
// The mock is safe for concurrent use. It records every method call so
// that tests can assert on call counts, and it exposes exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	src := mock.NewSource()
//	defer src.Stop()
//	src.EmitSamples([]float32{0.25, -0.5})
//	frame := <-src.Frames()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxwire/pkg/audio"
	"github.com/MrWong99/voxwire/pkg/audio/capture"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [capture.Source].
// Set the exported fields before use; inspect the CallCount* fields after.
type Source struct {
	mu sync.Mutex

	// NameResult is returned by [Source.Name]. Defaults to "mock".
	NameResult string

	// StartError is returned by [Source.Start].
	StartError error

	// StopError is returned by the first [Source.Stop] call.
	StopError error

	// StatsResult is returned by [Source.Stats].
	StatsResult capture.Stats

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	frames  chan audio.Frame
	stopped bool
}

// NewSource creates a mock source with a buffered frame channel.
func NewSource() *Source {
	return &Source{
		NameResult: "mock",
		frames:     make(chan audio.Frame, 64),
	}
}

// Start implements [capture.Source]. Records the call and returns StartError.
func (s *Source) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	return s.StartError
}

// Stop implements [capture.Source]. The first call closes the frame
// channel and returns StopError; later calls are no-ops returning nil.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.frames)
	return s.StopError
}

// Frames implements [capture.Source].
func (s *Source) Frames() <-chan audio.Frame { return s.frames }

// Stats implements [capture.Source]. Returns StatsResult.
func (s *Source) Stats() capture.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StatsResult
}

// Name implements [capture.Source]. Returns NameResult.
func (s *Source) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.NameResult
}

// Emit delivers one frame to the consumer. Use this in tests to
// simulate captured audio. Emit after Stop panics.
func (s *Source) Emit(f audio.Frame) {
	s.frames <- f
}

// EmitSamples wraps samples in a frame and delivers it.
func (s *Source) EmitSamples(samples []float32) {
	s.Emit(audio.Frame{Samples: samples})
}
