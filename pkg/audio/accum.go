package audio

// Accumulator collects hardware-sized capture blocks and emits fixed-size
// frames, decoupling the device's native callback block size from the
// frame size the codec and transport expect.
//
// It is not safe for concurrent use: it lives on the capture backend's
// real-time callback, and the emit callback performs the handoff to the
// rest of the pipeline (typically a buffered channel send). Per-call work
// is O(block size); the only allocation is the copy backing each emitted
// frame.
type Accumulator struct {
	frameSize int
	emit      func(Frame)
	buf       []float32
}

// NewAccumulator returns an accumulator emitting frames of frameSize
// samples through emit. A frameSize <= 0 falls back to [DefaultFrameSize].
func NewAccumulator(frameSize int, emit func(Frame)) *Accumulator {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	return &Accumulator{
		frameSize: frameSize,
		emit:      emit,
		buf:       make([]float32, 0, 2*frameSize),
	}
}

// Push appends block to the internal buffer and emits completed frames,
// draining from the front oldest first. Blocks smaller or larger than the
// frame size are both fine; the remainder stays buffered for the next
// call. No sample is ever dropped or duplicated.
func (a *Accumulator) Push(block []float32) {
	if len(block) == 0 {
		return
	}
	a.buf = append(a.buf, block...)
	for len(a.buf) >= a.frameSize {
		samples := make([]float32, a.frameSize)
		copy(samples, a.buf[:a.frameSize])
		a.buf = a.buf[a.frameSize:]
		a.emit(Frame{Samples: samples})
	}
}

// Flush emits the buffered remainder as one final short frame and clears
// the buffer. Flushing an empty buffer is a no-op; a zero-length frame is
// never emitted.
func (a *Accumulator) Flush() {
	if len(a.buf) == 0 {
		return
	}
	samples := make([]float32, len(a.buf))
	copy(samples, a.buf)
	a.buf = a.buf[:0]
	a.emit(Frame{Samples: samples})
}

// Pending returns the number of buffered samples awaiting a full frame
// or a flush.
func (a *Accumulator) Pending() int {
	return len(a.buf)
}

// FrameSize returns the configured full-frame length in samples.
func (a *Accumulator) FrameSize() int {
	return a.frameSize
}
