package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"

	"github.com/MrWong99/voxwire/pkg/audio"
)

// DefaultBufferDuration is the speaker buffer length. 100 ms is small
// enough for conversational latency and large enough to ride out
// scheduler hiccups.
const DefaultBufferDuration = 100 * time.Millisecond

// Player queues decoded chunks for seamless playback. The speaker is a
// process-wide singleton, so create at most one Player per process.
//
// Initialization is lazy: the audio device is only opened when the
// first chunk arrives, and a failed initialization sticks, failing all
// later plays with the same error.
type Player struct {
	format    audio.Format
	bufferDur time.Duration
	queue     *Queue

	initOnce sync.Once
	initErr  error

	initSpeaker func(sr beep.SampleRate, bufSize int) error
	play        func(s ...beep.Streamer)
}

// Option is a functional option for [NewPlayer].
type Option func(*Player)

// WithBufferDuration overrides the speaker buffer length. Defaults to
// [DefaultBufferDuration].
func WithBufferDuration(d time.Duration) Option {
	return func(p *Player) {
		if d > 0 {
			p.bufferDur = d
		}
	}
}

// NewPlayer creates a Player for mono audio in the given format.
func NewPlayer(format audio.Format, opts ...Option) *Player {
	p := &Player{
		format:      format,
		bufferDur:   DefaultBufferDuration,
		queue:       NewQueue(),
		initSpeaker: speaker.Init,
		play:        speaker.Play,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Play queues one chunk of mono samples. The chunk is copied, so the
// caller may reuse the slice. An empty chunk is a no-op and does not
// touch the audio device.
func (p *Player) Play(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}
	if err := p.ensureSpeaker(); err != nil {
		return err
	}
	owned := make([]float32, len(samples))
	copy(owned, samples)
	p.queue.Push(&monoStreamer{samples: owned})
	return nil
}

// QueueLen reports how many chunks are waiting, including the one
// playing.
func (p *Player) QueueLen() int {
	return p.queue.Len()
}

// Clear drops all queued audio, including the chunk being played.
func (p *Player) Clear() {
	p.queue.Clear()
}

func (p *Player) ensureSpeaker() error {
	p.initOnce.Do(func() {
		sr := beep.SampleRate(p.format.SampleRate)
		if err := p.initSpeaker(sr, sr.N(p.bufferDur)); err != nil {
			p.initErr = fmt.Errorf("playback: init speaker: %w", err)
			return
		}
		p.play(p.queue)
		slog.Info("playback: speaker initialized", "sample_rate", p.format.SampleRate, "buffer", p.bufferDur)
	})
	return p.initErr
}

var _ beep.Streamer = (*monoStreamer)(nil)

// monoStreamer plays one decoded chunk, duplicating the mono signal to
// both output channels.
type monoStreamer struct {
	samples []float32
	pos     int
}

func (m *monoStreamer) Stream(samples [][2]float64) (int, bool) {
	if m.pos >= len(m.samples) {
		return 0, false
	}
	n := 0
	for i := range samples {
		if m.pos >= len(m.samples) {
			break
		}
		v := float64(m.samples[m.pos])
		samples[i] = [2]float64{v, v}
		m.pos++
		n++
	}
	return n, n > 0
}

func (m *monoStreamer) Err() error { return nil }
