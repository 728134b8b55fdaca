package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/voxwire/pkg/audio"
	"github.com/MrWong99/voxwire/pkg/audio/capture"
	"github.com/MrWong99/voxwire/pkg/audio/capture/miniaudio"
	"github.com/MrWong99/voxwire/pkg/audio/capture/portaudio"
)

// Capture backend names accepted by [Config.Backend].
const (
	// BackendAuto tries the low-latency miniaudio backend first and falls
	// back to PortAudio when it cannot open a device.
	BackendAuto = "auto"

	// BackendMiniaudio forces the miniaudio callback backend.
	BackendMiniaudio = "miniaudio"

	// BackendPortAudio forces the PortAudio blocking-read backend.
	BackendPortAudio = "portaudio"
)

// ErrNoCaptureBackend is returned when no capture backend could open a
// device.
var ErrNoCaptureBackend = errors.New("client: no capture backend could be opened")

// openCapture creates and starts the capture source for the configured
// backend. The choice is made once per recording; there is no mid-stream
// switching.
func openCapture(ctx context.Context, backend string, format audio.Format, frameSize int) (capture.Source, error) {
	switch backend {
	case BackendMiniaudio:
		return startSource(ctx, miniaudio.New(format, frameSize))
	case BackendPortAudio:
		return startSource(ctx, portaudio.New(format, frameSize))
	case BackendAuto:
		src, err := startSource(ctx, miniaudio.New(format, frameSize))
		if err == nil {
			return src, nil
		}
		slog.Warn("client: miniaudio capture unavailable, falling back to portaudio", "error", err)
		fb, fbErr := startSource(ctx, portaudio.New(format, frameSize))
		if fbErr != nil {
			return nil, fmt.Errorf("%w (miniaudio: %v; portaudio: %v)", ErrNoCaptureBackend, err, fbErr)
		}
		return fb, nil
	default:
		return nil, fmt.Errorf("client: unknown capture backend %q", backend)
	}
}

func startSource(ctx context.Context, src capture.Source) (capture.Source, error) {
	if err := src.Start(ctx); err != nil {
		return nil, fmt.Errorf("start %s capture: %w", src.Name(), err)
	}
	return src, nil
}
