// Package capture defines the microphone source abstraction for voxwire.
//
// A [Source] produces fixed-size audio frames on a channel, ready for
// encoding and transmission. Implementations wrap a platform audio
// backend (e.g., capture/miniaudio, capture/portaudio) and share the
// framing and accounting machinery provided by [Pump].
//
// This package lives under pkg/ because external code (alternative
// audio backends) is expected to implement [Source].
package capture

import (
	"context"

	"github.com/MrWong99/voxwire/pkg/audio"
)

// Stats is a point-in-time snapshot of a source's frame accounting.
type Stats struct {
	// FramesEmitted counts frames successfully handed to the consumer
	// channel since the source was created.
	FramesEmitted uint64

	// Overruns counts frames dropped because the consumer channel was
	// full. A non-zero value means the reader fell behind the device.
	Overruns uint64
}

// Source captures microphone audio and emits it as fixed-size frames.
//
// A Source is single-use: once stopped it cannot be started again.
// Frame delivery is lossy under backpressure; dropped frames are
// counted, never blocked on, so the device callback stays realtime
// safe.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Start opens the device and begins emitting frames on Frames.
	// The supplied ctx governs the startup attempt only; once started,
	// the source runs until Stop is called.
	Start(ctx context.Context) error

	// Stop halts capture, flushes any buffered partial frame as a final
	// short frame, and closes the Frames channel. It is safe to call
	// Stop more than once; subsequent calls are no-ops and return nil.
	Stop() error

	// Frames returns the channel on which captured frames arrive. The
	// channel is closed after Stop has flushed the final frame.
	Frames() <-chan audio.Frame

	// Stats returns a snapshot of the source's frame accounting.
	Stats() Stats

	// Name identifies the backend, e.g. "miniaudio".
	Name() string
}
