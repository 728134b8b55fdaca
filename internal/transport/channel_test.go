package transport_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxwire/internal/protocol"
	"github.com/MrWong99/voxwire/internal/transport"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// startRoomServer launches a test WebSocket server. The handler receives the
// accepted conn. The server is automatically closed when the test finishes.
func startRoomServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// drainServer accepts a connection and reads frames until the peer goes away.
func drainServer(t *testing.T) *httptest.Server {
	t.Helper()
	return startRoomServer(t, func(conn *websocket.Conn, _ *http.Request) {
		for {
			if _, _, err := conn.Read(context.Background()); err != nil {
				return
			}
		}
	})
}

// readEnvelope reads one WebSocket text frame and decodes it.
func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readEnvelope: %v", err)
	}
	env, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("readEnvelope decode: %v", err)
	}
	return env
}

// writeRaw sends data as a text frame without any encoding.
func writeRaw(t *testing.T, conn *websocket.Conn, data string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(data)); err != nil {
		t.Logf("writeRaw: %v (may be expected on close)", err)
	}
}

// dialRoom connects to srv as user-1 in room tavern and registers a Close
// cleanup. Close is idempotent, so tests may also close explicitly.
func dialRoom(t *testing.T, srv *httptest.Server, h transport.Handler) *transport.Channel {
	t.Helper()
	ch, err := transport.Dial(context.Background(), transport.Config{
		ServerURL: srv.URL,
		RoomID:    "tavern",
		UserID:    "user-1",
	}, h)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

// recordingHandler captures dispatched envelopes and close notifications.
type recordingHandler struct {
	envelopes chan protocol.Envelope
	closed    chan error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		envelopes: make(chan protocol.Envelope, 16),
		closed:    make(chan error, 4),
	}
}

func (h *recordingHandler) HandleEnvelope(env protocol.Envelope) { h.envelopes <- env }

func (h *recordingHandler) HandleClosed(err error) { h.closed <- err }

func (h *recordingHandler) nextEnvelope(t *testing.T) protocol.Envelope {
	t.Helper()
	select {
	case env := <-h.envelopes:
		return env
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for envelope")
		return protocol.Envelope{}
	}
}

// ── TestDial ──────────────────────────────────────────────────────────────────

func TestDial_JoinsRoomBeforeAnythingElse(t *testing.T) {
	t.Parallel()

	paths := make(chan string, 1)
	msgs := make(chan protocol.Envelope, 4)

	srv := startRoomServer(t, func(conn *websocket.Conn, r *http.Request) {
		paths <- r.URL.Path
		for range 3 {
			msgs <- readEnvelope(t, conn)
		}
		<-conn.CloseRead(context.Background()).Done()
	})

	ch := dialRoom(t, srv, newRecordingHandler())

	// Queue a data envelope immediately; it must still arrive third.
	if err := ch.Send(protocol.NewAudioChunk("UXVpY2s=", "user-1", protocol.Now())); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case p := <-paths:
		if p != "/api/ws/tavern" {
			t.Errorf("request path = %q; want /api/ws/tavern", p)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for connection")
	}

	wantTypes := []string{protocol.TypeUserJoined, protocol.TypeGetHistory, protocol.TypeAudioChunk}
	for i, want := range wantTypes {
		select {
		case env := <-msgs:
			if env.Type != want {
				t.Errorf("message %d type = %q; want %q", i, env.Type, want)
			}
			if env.Type == protocol.TypeUserJoined {
				if env.UserID != "user-1" {
					t.Errorf("user_joined user_id = %q; want user-1", env.UserID)
				}
				if env.RoomID != "tavern" {
					t.Errorf("user_joined room_id = %q; want tavern", env.RoomID)
				}
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timeout waiting for message %d", i)
		}
	}
}

func TestDial_NilHandler_ReturnsError(t *testing.T) {
	t.Parallel()

	_, err := transport.Dial(context.Background(), transport.Config{
		ServerURL: "http://localhost:0",
		RoomID:    "tavern",
		UserID:    "user-1",
	}, nil)
	if err == nil {
		t.Fatal("Dial with nil handler should return an error")
	}
}

func TestDial_BadScheme_ReturnsError(t *testing.T) {
	t.Parallel()

	_, err := transport.Dial(context.Background(), transport.Config{
		ServerURL: "ftp://example.com",
		RoomID:    "tavern",
		UserID:    "user-1",
	}, newRecordingHandler())
	if err == nil {
		t.Fatal("Dial with ftp scheme should return an error")
	}
}

// ── TestDispatch ──────────────────────────────────────────────────────────────

func TestChannel_DispatchesEnvelopesInOrder(t *testing.T) {
	t.Parallel()

	h := newRecordingHandler()

	srv := startRoomServer(t, func(conn *websocket.Conn, _ *http.Request) {
		readEnvelope(t, conn) // user_joined
		readEnvelope(t, conn) // get_history

		writeRaw(t, conn, `{"type":"new_text","text":"first","emote":["wave"],"user_id":"bob","timestamp":1700000000000}`)
		writeRaw(t, conn, `{"type":"audio_stream","data":"AAD/fw==","timestamp":1700000000.5}`)
		writeRaw(t, conn, `{"type":"new_text","text":"second","user_id":"bob","timestamp":1700000000250}`)

		<-conn.CloseRead(context.Background()).Done()
	})

	dialRoom(t, srv, h)

	first := h.nextEnvelope(t)
	if first.Type != protocol.TypeNewText || first.Text != "first" {
		t.Errorf("first envelope = %q %q; want new_text first", first.Type, first.Text)
	}
	if len(first.Emote) != 1 || first.Emote[0] != "wave" {
		t.Errorf("first envelope emote = %v; want [wave]", first.Emote)
	}

	second := h.nextEnvelope(t)
	if second.Type != protocol.TypeAudioStream || second.Data != "AAD/fw==" {
		t.Errorf("second envelope = %q %q; want audio_stream AAD/fw==", second.Type, second.Data)
	}

	third := h.nextEnvelope(t)
	if third.Type != protocol.TypeNewText || third.Text != "second" {
		t.Errorf("third envelope = %q %q; want new_text second", third.Type, third.Text)
	}
}

func TestChannel_DropsMalformedAndContinues(t *testing.T) {
	t.Parallel()

	h := newRecordingHandler()

	srv := startRoomServer(t, func(conn *websocket.Conn, _ *http.Request) {
		readEnvelope(t, conn)
		readEnvelope(t, conn)

		writeRaw(t, conn, `{"type": "new_text", "text": `)
		writeRaw(t, conn, `{"missing":"type"}`)
		writeRaw(t, conn, `{"type":"new_text","text":"still here","user_id":"bob"}`)

		<-conn.CloseRead(context.Background()).Done()
	})

	dialRoom(t, srv, h)

	env := h.nextEnvelope(t)
	if env.Type != protocol.TypeNewText || env.Text != "still here" {
		t.Errorf("envelope after malformed frames = %q %q; want new_text still here", env.Type, env.Text)
	}
}

// ── TestClose ─────────────────────────────────────────────────────────────────

func TestClose_SendsUserLeftLast(t *testing.T) {
	t.Parallel()

	msgs := make(chan protocol.Envelope, 8)

	srv := startRoomServer(t, func(conn *websocket.Conn, _ *http.Request) {
		for {
			_, data, err := conn.Read(context.Background())
			if err != nil {
				return
			}
			env, err := protocol.Decode(data)
			if err != nil {
				continue
			}
			msgs <- env
		}
	})

	ch := dialRoom(t, srv, newRecordingHandler())
	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	wantTypes := []string{protocol.TypeUserJoined, protocol.TypeGetHistory, protocol.TypeUserLeft}
	for i, want := range wantTypes {
		select {
		case env := <-msgs:
			if env.Type != want {
				t.Errorf("message %d type = %q; want %q", i, env.Type, want)
			}
			if env.Type == protocol.TypeUserLeft && env.UserID != "user-1" {
				t.Errorf("user_left user_id = %q; want user-1", env.UserID)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timeout waiting for message %d", i)
		}
	}
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	userLeftCount := make(chan struct{}, 8)

	srv := startRoomServer(t, func(conn *websocket.Conn, _ *http.Request) {
		for {
			_, data, err := conn.Read(context.Background())
			if err != nil {
				return
			}
			if env, err := protocol.Decode(data); err == nil && env.Type == protocol.TypeUserLeft {
				userLeftCount <- struct{}{}
			}
		}
	})

	ch := dialRoom(t, srv, newRecordingHandler())

	if err := ch.Close(); err != nil {
		t.Fatalf("first Close() returned error: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second Close() returned error: %v", err)
	}

	select {
	case <-userLeftCount:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for user_left")
	}
	time.Sleep(100 * time.Millisecond)
	select {
	case <-userLeftCount:
		t.Error("user_left announced more than once")
	default:
	}
}

func TestClose_Concurrent(t *testing.T) {
	t.Parallel()

	ch := dialRoom(t, drainServer(t), newRecordingHandler())

	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			if err := ch.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		})
	}
	wg.Wait()

	if ch.IsOpen() {
		t.Error("IsOpen() = true after Close")
	}
}

func TestClose_DoesNotNotifyHandler(t *testing.T) {
	t.Parallel()

	h := newRecordingHandler()
	ch := dialRoom(t, drainServer(t), h)

	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	select {
	case err := <-h.closed:
		t.Errorf("HandleClosed(%v) called on local Close", err)
	default:
	}
}

// ── TestSend ──────────────────────────────────────────────────────────────────

func TestSend_AfterClose_ReturnsErrClosed(t *testing.T) {
	t.Parallel()

	ch := dialRoom(t, drainServer(t), newRecordingHandler())

	if !ch.IsOpen() {
		t.Fatal("IsOpen() = false right after Dial")
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if ch.IsOpen() {
		t.Error("IsOpen() = true after Close")
	}

	err := ch.Send(protocol.NewAudioChunk("AAAA", "user-1", protocol.Now()))
	if !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Send after Close = %v; want ErrClosed", err)
	}
}

func TestSend_Concurrent_DoesNotRace(t *testing.T) {
	t.Parallel()

	ch := dialRoom(t, drainServer(t), newRecordingHandler())

	const goroutines = 8
	const chunksPerGoroutine = 16

	var wg sync.WaitGroup
	for range goroutines {
		wg.Go(func() {
			for range chunksPerGoroutine {
				_ = ch.Send(protocol.NewAudioChunk("3q2+7w==", "user-1", protocol.Now()))
			}
		})
	}
	wg.Wait()
}

// ── TestRemoteClose ───────────────────────────────────────────────────────────

func TestRemoteClose_NotifiesHandlerOnce(t *testing.T) {
	t.Parallel()

	h := newRecordingHandler()

	srv := startRoomServer(t, func(conn *websocket.Conn, _ *http.Request) {
		readEnvelope(t, conn)
		readEnvelope(t, conn)
		conn.Close(websocket.StatusNormalClosure, "room closed")
	})

	ch := dialRoom(t, srv, h)

	select {
	case err := <-h.closed:
		if err == nil {
			t.Error("HandleClosed called with nil error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for HandleClosed")
	}

	if ch.IsOpen() {
		t.Error("IsOpen() = true after remote close")
	}

	// Close after a remote disconnect stays quiet and succeeds.
	if err := ch.Close(); err != nil {
		t.Errorf("Close after remote close: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	select {
	case <-h.closed:
		t.Error("HandleClosed called more than once")
	default:
	}
}

// ── TestRoomURL ───────────────────────────────────────────────────────────────

func TestRoomURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		server  string
		room    string
		want    string
		wantErr bool
	}{
		{"http to ws", "http://localhost:8000", "general", "ws://localhost:8000/api/ws/general", false},
		{"https to wss", "https://voice.example.com", "general", "wss://voice.example.com/api/ws/general", false},
		{"ws passthrough", "ws://localhost:8000", "general", "ws://localhost:8000/api/ws/general", false},
		{"wss passthrough", "wss://voice.example.com:8443", "ops", "wss://voice.example.com:8443/api/ws/ops", false},
		{"base path preserved", "https://example.com/voice/", "general", "wss://example.com/voice/api/ws/general", false},
		{"room id escaped", "http://localhost:8000", "room 7", "ws://localhost:8000/api/ws/room%207", false},
		{"unsupported scheme", "ftp://example.com", "general", "", true},
		{"unparseable url", "http://exa mple.com", "general", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := transport.RoomURL(tc.server, tc.room)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("RoomURL(%q, %q) = %q; want error", tc.server, tc.room, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("RoomURL(%q, %q): %v", tc.server, tc.room, err)
			}
			if got != tc.want {
				t.Errorf("RoomURL(%q, %q) = %q; want %q", tc.server, tc.room, got, tc.want)
			}
		})
	}
}
