// Package portaudio captures microphone audio through PortAudio. It is
// the fallback backend for systems where miniaudio cannot open a device
// but a PortAudio installation exists.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/voxwire/pkg/audio"
	"github.com/MrWong99/voxwire/pkg/audio/capture"
)

var _ capture.Source = (*Source)(nil)

// readFrames is how many samples each blocking device read returns.
// 1024 samples is 64 ms at 16 kHz, keeping capture latency well under
// one frame.
const readFrames = 1024

// Source is a [capture.Source] backed by a blocking PortAudio stream.
type Source struct {
	format audio.Format
	pump   *capture.Pump

	mu      sync.Mutex
	stream  *pa.Stream
	buf     []int16
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// New creates an unstarted Source emitting frames of frameSize samples.
func New(format audio.Format, frameSize int) *Source {
	return &Source{
		format: format,
		pump:   capture.NewPump(frameSize, capture.DefaultFrameBuffer),
		done:   make(chan struct{}),
	}
}

// Name implements [capture.Source].
func (s *Source) Name() string { return "portaudio" }

// Start initializes PortAudio, opens the default input stream, and
// begins the blocking read loop on a background goroutine.
func (s *Source) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("portaudio: source already stopped")
	}
	if s.started {
		return errors.New("portaudio: source already started")
	}

	if err := pa.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}

	s.buf = make([]int16, readFrames)
	stream, err := pa.OpenDefaultStream(s.format.Channels, 0, float64(s.format.SampleRate), len(s.buf), s.buf)
	if err != nil {
		_ = pa.Terminate()
		return fmt.Errorf("portaudio: open default stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return fmt.Errorf("portaudio: start stream: %w", err)
	}

	s.stream = stream
	s.started = true
	s.wg.Add(1)
	go s.readLoop()

	slog.Info("portaudio: capture started", "sample_rate", s.format.SampleRate, "channels", s.format.Channels)
	return nil
}

// readLoop pulls blocks from the device until Stop. An overflow still
// carries valid samples, so the block is kept and the loss counted; any
// other device error ends the loop.
func (s *Source) readLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		default:
		}

		err := s.stream.Read()
		if err != nil {
			if !errors.Is(err, pa.InputOverflowed) {
				slog.Warn("portaudio: read failed, capture loop ending", "error", err)
				return
			}
			s.pump.CountOverrun()
		}

		block := make([]float32, len(s.buf))
		for i, v := range s.buf {
			block[i] = float32(v) / 32768
		}
		s.pump.Push(block)
	}
}

// Stop ends the read loop, releases the device, flushes the partial
// frame, and closes Frames.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true

	close(s.done)
	if s.started {
		s.wg.Wait()
		if err := s.stream.Stop(); err != nil {
			slog.Warn("portaudio: stopping stream", "error", err)
		}
		if err := s.stream.Close(); err != nil {
			slog.Warn("portaudio: closing stream", "error", err)
		}
		if err := pa.Terminate(); err != nil {
			slog.Warn("portaudio: terminate", "error", err)
		}
	}

	s.pump.Finish()
	return nil
}

// Frames implements [capture.Source].
func (s *Source) Frames() <-chan audio.Frame { return s.pump.Frames() }

// Stats implements [capture.Source].
func (s *Source) Stats() capture.Stats { return s.pump.Stats() }
