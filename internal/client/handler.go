package client

import (
	"context"
	"log/slog"

	"github.com/MrWong99/voxwire/internal/protocol"
	"github.com/MrWong99/voxwire/internal/transport"
	"github.com/MrWong99/voxwire/pkg/audio"
)

// channelHandler adapts one dialed channel to the session. The captured
// generation lets the session ignore notifications from a connection it
// has already replaced.
type channelHandler struct {
	s   *Session
	gen uint64
}

var _ transport.Handler = (*channelHandler)(nil)

func (h *channelHandler) HandleEnvelope(env protocol.Envelope) {
	h.s.dispatch(env)
}

func (h *channelHandler) HandleClosed(err error) {
	h.s.transportClosed(h.gen, err)
}

// dispatch routes one incoming envelope by its type tag. It runs on the
// channel's read goroutine, one envelope at a time, so transcript order
// is arrival order. Unknown tags are ignored.
func (s *Session) dispatch(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeAudioStream:
		s.playStream(env)
	case protocol.TypeNewText:
		entry := env.Entry()
		s.log.Append(entry)
		if cb := s.callbacks.OnText; cb != nil {
			cb(entry)
		}
	case protocol.TypeTextHistory:
		s.log.Replace(env.History)
		if cb := s.callbacks.OnHistory; cb != nil {
			cb(env.History)
		}
	default:
		slog.Debug("client: ignoring envelope", "type", env.Type)
	}
}

// playStream decodes an audio_stream payload and queues it for playback.
// A bad payload drops that one chunk; later chunks are unaffected.
func (s *Session) playStream(env protocol.Envelope) {
	ctx := context.Background()
	s.metrics.ChunksReceived.Add(ctx, 1)

	data, err := audio.DecodePayload(env.Data)
	if err != nil {
		s.metrics.RecordDecodeDrop(ctx, "audio_payload")
		slog.Warn("client: dropping undecodable audio payload", "error", err)
		return
	}

	if err := s.player.Play(audio.DecodePCM16(data)); err != nil {
		slog.Warn("client: playback error", "error", err)
		return
	}
	s.metrics.PlaybackQueueDepth.Record(ctx, float64(s.player.QueueLen()))
}
