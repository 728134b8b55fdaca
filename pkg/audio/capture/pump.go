package capture

import (
	"sync"
	"sync/atomic"

	"github.com/MrWong99/voxwire/pkg/audio"
)

// DefaultFrameBuffer is the default depth of a [Pump]'s frame channel.
// At the default frame size that is roughly eight seconds of audio.
const DefaultFrameBuffer = 32

// Pump turns raw sample blocks into fixed-size frames on a buffered
// channel. Backends push blocks from their device callbacks; the pump
// owns framing, overflow accounting, and channel lifecycle, so every
// backend behaves identically under backpressure.
//
// Push and Finish must be called from the producer side only, and Push
// must not be called once Finish has been. Frame delivery never blocks:
// a full channel drops the frame and counts an overrun instead.
type Pump struct {
	accum  *audio.Accumulator
	frames chan audio.Frame

	emitted  atomic.Uint64
	overruns atomic.Uint64

	finishOnce sync.Once
}

// NewPump creates a pump emitting frames of frameSize samples on a
// channel of depth buffer. Non-positive arguments fall back to
// [audio.DefaultFrameSize] and [DefaultFrameBuffer].
func NewPump(frameSize, buffer int) *Pump {
	if buffer <= 0 {
		buffer = DefaultFrameBuffer
	}
	p := &Pump{
		frames: make(chan audio.Frame, buffer),
	}
	p.accum = audio.NewAccumulator(frameSize, p.emit)
	return p
}

// Push feeds one block of captured samples into the framer. Any frames
// completed by the block are delivered immediately, in order.
func (p *Pump) Push(block []float32) {
	p.accum.Push(block)
}

// Finish flushes the buffered partial frame, if any, and closes the
// frame channel. Safe to call more than once.
func (p *Pump) Finish() {
	p.finishOnce.Do(func() {
		p.accum.Flush()
		close(p.frames)
	})
}

// Frames returns the channel frames are delivered on.
func (p *Pump) Frames() <-chan audio.Frame {
	return p.frames
}

// Pending reports how many samples are buffered short of a full frame.
func (p *Pump) Pending() int {
	return p.accum.Pending()
}

// CountOverrun records a frame lost on the device side, so backend
// overflows and channel drops land in the same counter.
func (p *Pump) CountOverrun() {
	p.overruns.Add(1)
}

// Stats returns a snapshot of the pump's accounting.
func (p *Pump) Stats() Stats {
	return Stats{
		FramesEmitted: p.emitted.Load(),
		Overruns:      p.overruns.Load(),
	}
}

func (p *Pump) emit(f audio.Frame) {
	select {
	case p.frames <- f:
		p.emitted.Add(1)
	default:
		p.overruns.Add(1)
	}
}
