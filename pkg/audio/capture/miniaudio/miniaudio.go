// Package miniaudio captures microphone audio through the miniaudio
// library via malgo. It is the preferred backend: miniaudio bundles its
// own platform glue, so no system audio SDK needs to be installed.
package miniaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/voxwire/pkg/audio"
	"github.com/MrWong99/voxwire/pkg/audio/capture"
)

var _ capture.Source = (*Source)(nil)

// Source is a [capture.Source] backed by a miniaudio capture device.
type Source struct {
	format audio.Format
	pump   *capture.Pump

	mu      sync.Mutex
	mctx    *malgo.AllocatedContext
	device  *malgo.Device
	stopped bool
}

// New creates an unstarted Source emitting frames of frameSize samples.
func New(format audio.Format, frameSize int) *Source {
	return &Source{
		format: format,
		pump:   capture.NewPump(frameSize, capture.DefaultFrameBuffer),
	}
}

// Name implements [capture.Source].
func (s *Source) Name() string { return "miniaudio" }

// Start opens the default capture device in 16-bit mono at the source's
// sample rate. Device samples are decoded to float32 and framed by the
// shared pump.
func (s *Source) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("miniaudio: source already stopped")
	}
	if s.device != nil {
		return errors.New("miniaudio: source already started")
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio: " + strings.TrimSpace(message))
	})
	if err != nil {
		return fmt.Errorf("miniaudio: init context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(s.format.Channels)
	cfg.SampleRate = uint32(s.format.SampleRate)
	cfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			s.pump.Push(audio.DecodePCM16(input))
		},
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("miniaudio: init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("miniaudio: start capture device: %w", err)
	}

	s.mctx = mctx
	s.device = device
	slog.Info("miniaudio: capture started", "sample_rate", s.format.SampleRate, "channels", s.format.Channels)
	return nil
}

// Stop halts the device, flushes the partial frame, and closes Frames.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true

	if s.device != nil {
		// Stop returns once the data callback is quiescent, so the pump
		// can be finished without racing a late Push.
		if err := s.device.Stop(); err != nil {
			slog.Warn("miniaudio: stopping capture device", "error", err)
		}
		s.device.Uninit()
		s.device = nil
	}
	if s.mctx != nil {
		if err := s.mctx.Uninit(); err != nil {
			slog.Warn("miniaudio: releasing context", "error", err)
		}
		s.mctx.Free()
		s.mctx = nil
	}

	s.pump.Finish()
	return nil
}

// Frames implements [capture.Source].
func (s *Source) Frames() <-chan audio.Frame { return s.pump.Frames() }

// Stats implements [capture.Source].
func (s *Source) Stats() capture.Stats { return s.pump.Stats() }
