// Package client implements the voice session: the state machine that
// gates user actions (connect, disconnect, start/stop recording) and the
// wiring between the capture source, the transport channel, the playback
// engine, and the transcript log.
//
// A [Session] is an explicitly owned value. Nothing in this package is
// process-global, so multiple sessions can coexist in one process.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/voxwire/internal/observe"
	"github.com/MrWong99/voxwire/internal/protocol"
	"github.com/MrWong99/voxwire/internal/transcript"
	"github.com/MrWong99/voxwire/internal/transport"
	"github.com/MrWong99/voxwire/pkg/audio"
	"github.com/MrWong99/voxwire/pkg/audio/capture"
	"github.com/MrWong99/voxwire/pkg/audio/playback"
)

var (
	// ErrMissingRoomID is returned by [Session.Connect] when the room id is empty.
	ErrMissingRoomID = errors.New("client: room id must not be empty")

	// ErrMissingUserID is returned by [Session.Connect] when the user id is empty.
	ErrMissingUserID = errors.New("client: user id must not be empty")

	// ErrAlreadyConnected is returned by [Session.Connect] while a connection exists.
	ErrAlreadyConnected = errors.New("client: already connected")

	// ErrNotConnected is returned by actions that require an open connection.
	ErrNotConnected = errors.New("client: not connected")

	// ErrAlreadyRecording is returned by [Session.StartRecording] while recording.
	ErrAlreadyRecording = errors.New("client: already recording")

	// ErrNotRecording is returned by [Session.StopRecording] while not recording.
	ErrNotRecording = errors.New("client: not recording")
)

// State represents the connection state of a [Session].
type State int

const (
	// StateDisconnected is the initial state. No channel, no recording.
	StateDisconnected State = iota

	// StateConnecting is the transient state while the channel dials. It
	// converges to StateConnected or reverts to StateDisconnected.
	StateConnecting

	// StateConnected means the channel is open. Recording is tracked as a
	// separate flag and is only ever true in this state.
	StateConnected
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Player renders decoded audio chunks. *playback.Player implements it;
// tests substitute a recording stub.
type Player interface {
	// Play queues one chunk for gap-free sequential playback.
	Play(samples []float32) error

	// QueueLen reports how many queued chunks have not finished playing.
	QueueLen() int

	// Clear drops all queued audio.
	Clear()
}

var _ Player = (*playback.Player)(nil)

// Callbacks are the view-layer hooks a [Session] invokes. All fields are
// optional. OnText and OnHistory run on the channel's read goroutine, in
// arrival order; OnDisconnected runs on an internal goroutine after an
// unsolicited connection loss. Callbacks must not block.
type Callbacks struct {
	// OnText receives each live transcript line after it was appended to
	// the log.
	OnText func(e protocol.Entry)

	// OnHistory receives the server's transcript snapshot after it
	// replaced the log. The slice may be empty.
	OnHistory func(entries []protocol.Entry)

	// OnDisconnected fires when the connection closes without a local
	// Disconnect, after the session has torn down to StateDisconnected.
	OnDisconnected func(err error)
}

// Config holds the dependencies and knobs for a [Session].
type Config struct {
	// ServerURL is the base URL of the room server, e.g.
	// "http://localhost:8000". http and https map to ws and wss on dial.
	ServerURL string

	// Backend selects the capture backend: BackendMiniaudio,
	// BackendPortAudio, or BackendAuto. Default: BackendAuto.
	Backend string

	// FrameSize is the number of samples per outgoing frame.
	// Default: audio.DefaultFrameSize.
	FrameSize int

	// Player overrides the playback engine. Default: a speaker-backed
	// [playback.Player] at the pipeline format.
	Player Player

	// Metrics overrides the metric instruments.
	// Default: [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// NewSource overrides how a capture source is opened, returning a
	// started source. Default: the backend chain selected by Backend.
	NewSource func(ctx context.Context) (capture.Source, error)
}

// Info is a snapshot of a session's externally visible state.
type Info struct {
	// State is the connection state.
	State State

	// Recording reports whether the microphone is live.
	Recording bool

	// RoomID and UserID identify the current connection. Empty while
	// disconnected.
	RoomID string
	UserID string

	// Backend names the active capture backend. Empty unless recording.
	Backend string

	// Capture is the active source's frame accounting. Zero unless
	// recording.
	Capture capture.Stats
}

// Session drives one user's presence in one room at a time. It owns the
// transport channel exclusively; no other component opens or closes it.
// All exported methods are safe for concurrent use.
type Session struct {
	cfg       Config
	callbacks Callbacks
	log       *transcript.Log
	player    Player
	metrics   *observe.Metrics
	newSource func(ctx context.Context) (capture.Source, error)

	mu        sync.Mutex
	state     State
	recording bool
	roomID    string
	userID    string
	channel   *transport.Channel
	source    capture.Source
	pumpDone  chan struct{}

	// gen counts connections, so a close notification from a previous
	// channel cannot tear down a newer one.
	gen uint64
}

// New creates a disconnected [Session]. Zero-value config fields are
// replaced with their defaults.
func New(cfg Config, cb Callbacks) *Session {
	if cfg.Backend == "" {
		cfg.Backend = BackendAuto
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = audio.DefaultFrameSize
	}
	if cfg.Player == nil {
		cfg.Player = playback.NewPlayer(audio.DefaultFormat())
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	s := &Session{
		cfg:       cfg,
		callbacks: cb,
		log:       transcript.NewLog(),
		player:    cfg.Player,
		metrics:   cfg.Metrics,
		newSource: cfg.NewSource,
	}
	if s.newSource == nil {
		s.newSource = func(ctx context.Context) (capture.Source, error) {
			return openCapture(ctx, cfg.Backend, audio.DefaultFormat(), cfg.FrameSize)
		}
	}
	return s
}

// Connect joins the room: it validates the ids, dials the channel (which
// puts user_joined and get_history on the wire, in that order), resets
// the transcript for the new room, and drops any playback still queued
// from a previous one.
//
// Returns ErrMissingRoomID or ErrMissingUserID before any network
// action, ErrAlreadyConnected while a connection exists. A dial failure
// reverts the session to StateDisconnected.
func (s *Session) Connect(ctx context.Context, roomID, userID string) error {
	ctx, span := observe.StartSpan(ctx, "session.connect")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateDisconnected {
		return ErrAlreadyConnected
	}
	if roomID == "" {
		return ErrMissingRoomID
	}
	if userID == "" {
		return ErrMissingUserID
	}

	s.state = StateConnecting
	s.gen++

	// Reset before dialing: the channel dispatches as soon as it is up,
	// and a reset afterwards would wipe envelopes the new room already
	// delivered.
	s.log.Reset()
	s.player.Clear()

	ch, err := transport.Dial(ctx, transport.Config{
		ServerURL: s.cfg.ServerURL,
		RoomID:    roomID,
		UserID:    userID,
	}, &channelHandler{s: s, gen: s.gen})
	if err != nil {
		s.state = StateDisconnected
		return fmt.Errorf("client: connect: %w", err)
	}

	s.state = StateConnected
	s.channel = ch
	s.roomID = roomID
	s.userID = userID
	s.metrics.ActiveSessions.Add(ctx, 1)

	slog.Info("client: joined room", "room", roomID, "user", userID)
	return nil
}

// StartRecording opens the capture source and starts the send pump that
// turns frames into audio_chunk envelopes. Audio sends are best-effort:
// a chunk that races the channel closing is dropped, never an error.
//
// Returns ErrNotConnected unless connected, ErrAlreadyRecording while
// recording. If the source cannot be opened the state is unchanged and
// the cause is returned.
func (s *Session) StartRecording(ctx context.Context) error {
	ctx, span := observe.StartSpan(ctx, "session.start_recording")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return ErrNotConnected
	}
	if s.recording {
		return ErrAlreadyRecording
	}

	src, err := s.newSource(ctx)
	if err != nil {
		return fmt.Errorf("client: start recording: %w", err)
	}

	s.recording = true
	s.source = src
	s.pumpDone = make(chan struct{})
	go s.pump(src, s.channel, s.userID, s.pumpDone)

	slog.Info("client: recording started", "room", s.roomID, "backend", src.Name())
	return nil
}

// StopRecording stops the capture source, which flushes the trailing
// partial frame as a final short chunk, waits for the send pump to
// drain, and releases the microphone.
//
// Returns ErrNotRecording unless recording.
func (s *Session) StopRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopRecordingLocked()
}

func (s *Session) stopRecordingLocked() error {
	if !s.recording {
		return ErrNotRecording
	}

	backend := s.source.Name()
	if err := s.source.Stop(); err != nil {
		slog.Warn("client: capture stop error", "backend", backend, "error", err)
	}
	// The source has closed its frame channel; the pump drains the flush.
	<-s.pumpDone

	stats := s.source.Stats()
	s.metrics.RecordCaptureOverruns(context.Background(), backend, int64(stats.Overruns))

	s.recording = false
	s.source = nil
	s.pumpDone = nil

	slog.Info("client: recording stopped",
		"room", s.roomID,
		"frames", stats.FramesEmitted,
		"overruns", stats.Overruns,
	)
	return nil
}

// Disconnect leaves the room: recording stops first when active, then
// the channel is closed, sending user_left on the way out. From
// StateDisconnected it is a no-op.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return nil
	}

	if s.recording {
		_ = s.stopRecordingLocked()
	}

	roomID := s.roomID
	if err := s.channel.Close(); err != nil {
		slog.Warn("client: channel close error", "room", roomID, "error", err)
	}
	s.clearConnectionLocked()

	slog.Info("client: left room", "room", roomID)
	return nil
}

// clearConnectionLocked resets the connection fields after the channel
// is down. Callers must hold mu and have stopped recording already.
func (s *Session) clearConnectionLocked() {
	s.state = StateDisconnected
	s.channel = nil
	s.roomID = ""
	s.userID = ""
	s.metrics.ActiveSessions.Add(context.Background(), -1)
}

// transportClosed handles an unsolicited channel close. A local
// Disconnect never lands here; the transport suppresses its own close.
func (s *Session) transportClosed(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen || s.state != StateConnected {
		s.mu.Unlock()
		return
	}

	if s.recording {
		_ = s.stopRecordingLocked()
	}

	roomID := s.roomID
	_ = s.channel.Close()
	s.clearConnectionLocked()
	s.mu.Unlock()

	slog.Warn("client: connection lost", "room", roomID, "error", err)
	if cb := s.callbacks.OnDisconnected; cb != nil {
		cb(err)
	}
}

// pump forwards captured frames to the channel as audio_chunk envelopes
// until the source's frame channel closes. It takes its collaborators as
// arguments instead of reading session fields, so it never contends with
// the state machine's mutex.
func (s *Session) pump(src capture.Source, ch *transport.Channel, userID string, done chan struct{}) {
	defer close(done)

	ctx := context.Background()
	backend := src.Name()
	for frame := range src.Frames() {
		s.metrics.RecordFrameCaptured(ctx, backend)

		data := audio.EncodePCM16(frame.Samples)
		s.metrics.ChunkBytes.Record(ctx, float64(len(data)))

		if !ch.IsOpen() {
			continue
		}
		env := protocol.NewAudioChunk(audio.EncodePayload(data), userID, protocol.Now())
		if err := ch.Send(env); err != nil {
			continue
		}
		s.metrics.ChunksSent.Add(ctx, 1)
	}
}

// State returns the connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Recording reports whether the microphone is live.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Info returns a snapshot of the session's externally visible state.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		State:     s.state,
		Recording: s.recording,
		RoomID:    s.roomID,
		UserID:    s.userID,
	}
	if s.recording {
		info.Backend = s.source.Name()
		info.Capture = s.source.Stats()
	}
	return info
}

// Transcript returns the session's transcript log. The log is safe for
// concurrent use and stays valid across reconnects.
func (s *Session) Transcript() *transcript.Log {
	return s.log
}
