// Package audio provides the sample types and conversions shared by the
// voxwire capture, transport, and playback stages: normalized mono frames,
// the PCM16 wire codec, the base64 payload codec, and the frame accumulator
// that sits on the capture callback.
package audio

import "time"

const (
	// SampleRate is the fixed rate of every stream in the pipeline, in Hz.
	// The room server mixes and transcribes at this rate; there is no
	// client-side resampling.
	SampleRate = 16000

	// Channels is the fixed channel count. All pipeline audio is mono.
	Channels = 1

	// DefaultFrameSize is the number of samples per emitted frame when no
	// explicit size is configured.
	DefaultFrameSize = 4096
)

// Format describes the sample rate and channel count of an audio stream.
// Capture backends request it from the device layer; playback hands it to
// the speaker.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat returns the pipeline's fixed wire format: 16 kHz mono.
func DefaultFormat() Format {
	return Format{SampleRate: SampleRate, Channels: Channels}
}

// Frame is an ordered block of normalized samples in [-1, 1], mono at
// [SampleRate]. Full frames produced by the [Accumulator] have the
// configured frame size; the final flushed frame may be shorter but is
// never empty. A frame owns its Samples slice and is consumed exactly once
// by the encode stage.
type Frame struct {
	Samples []float32
}

// Duration returns the playing time of the frame at the pipeline rate.
func (f Frame) Duration() time.Duration {
	return time.Duration(len(f.Samples)) * time.Second / SampleRate
}
