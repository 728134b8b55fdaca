// Package transport maintains the duplex WebSocket connection to a room
// server. One Channel exists per joined room: it serializes outgoing
// envelopes through a write goroutine, decodes incoming messages on a read
// goroutine, and reports an unsolicited close exactly once. A Channel
// never reconnects; rejoining a room means dialing a fresh one.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxwire/internal/protocol"
)

// ErrClosed is returned by Send when the channel is no longer open.
// Sending on a closed channel is a logged no-op, never a panic.
var ErrClosed = errors.New("transport: channel is closed")

const (
	// outgoingBuffer bounds the send queue. At the default frame size one
	// entry is 256 ms of audio, so the queue holds roughly a minute.
	outgoingBuffer = 256

	// writeTimeout bounds a single WebSocket write so a stalled peer
	// cannot pin the write goroutine forever.
	writeTimeout = 10 * time.Second

	// drainTimeout bounds the final best-effort flush during teardown.
	drainTimeout = 2 * time.Second
)

// Handler receives the channel's inbound events. HandleEnvelope is called
// once per decoded envelope, in arrival order, from the read goroutine.
// HandleClosed is called at most once, on its own goroutine, and only when
// the connection ends without a local Close (remote close, network
// failure).
type Handler interface {
	HandleEnvelope(env protocol.Envelope)
	HandleClosed(err error)
}

// Config identifies the room endpoint and the local user.
type Config struct {
	// ServerURL is the server base URL. http/https schemes map to ws/wss.
	ServerURL string

	// RoomID selects the room; it becomes part of the endpoint path.
	RoomID string

	// UserID identifies this client in lifecycle envelopes.
	UserID string
}

// Channel is a live duplex connection to one room. Safe for concurrent use.
type Channel struct {
	conn    *websocket.Conn
	cfg     Config
	handler Handler

	// outgoing carries pre-encoded envelopes to the write goroutine. A
	// single FIFO queue keeps lifecycle ordering: user_joined and
	// get_history enter before Dial returns, user_left enters last.
	outgoing chan []byte

	done       chan struct{}
	doneOnce   sync.Once
	localClose atomic.Bool
	wgRead     sync.WaitGroup
	wgWrite    sync.WaitGroup
}

// Dial connects to the room endpoint derived from cfg and starts the read
// and write goroutines. The user_joined and get_history envelopes are
// queued before anything else can enter the pipe, so they are always the
// first two messages on the wire, in that order.
func Dial(ctx context.Context, cfg Config, handler Handler) (*Channel, error) {
	if handler == nil {
		return nil, errors.New("transport: handler must not be nil")
	}

	endpoint, err := RoomURL(cfg.ServerURL, cfg.RoomID)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", endpoint, err)
	}

	c := &Channel{
		conn:     conn,
		cfg:      cfg,
		handler:  handler,
		outgoing: make(chan []byte, outgoingBuffer),
		done:     make(chan struct{}),
	}

	for _, env := range []protocol.Envelope{
		protocol.NewUserJoined(cfg.UserID, cfg.RoomID),
		protocol.NewGetHistory(),
	} {
		data, err := env.Encode()
		if err != nil {
			conn.Close(websocket.StatusInternalError, "encode failure")
			return nil, err
		}
		c.outgoing <- data
	}

	c.wgRead.Add(1)
	c.wgWrite.Add(1)
	go c.readLoop()
	go c.writeLoop()

	slog.Info("transport: connected", "room", cfg.RoomID, "user", cfg.UserID, "endpoint", endpoint)
	return c, nil
}

// IsOpen reports whether the channel still accepts sends. Callers with
// correctness-critical sends check this themselves; a false result from a
// later Send is still handled gracefully.
func (c *Channel) IsOpen() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Send serializes env and queues it for transmission. On a closed channel
// it logs and returns [ErrClosed] without touching the connection; it
// never panics. Audio chunks are best-effort. Lifecycle envelopes only
// enter the queue while the channel is established or from Close itself,
// so the FIFO flush means they are never silently lost.
func (c *Channel) Send(env protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		slog.Warn("transport: dropping send on closed channel", "type", env.Type, "room", c.cfg.RoomID)
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- data:
		return nil
	case <-c.done:
		slog.Warn("transport: dropping send on closed channel", "type", env.Type, "room", c.cfg.RoomID)
		return ErrClosed
	}
}

// Close announces user_left while the connection is still up, lets the
// write goroutine flush the queue, then closes the connection. Idempotent:
// repeated or concurrent calls wait for the same teardown and return nil.
// Close after a remote disconnect is a no-op.
func (c *Channel) Close() error {
	if c.localClose.CompareAndSwap(false, true) && c.IsOpen() {
		// Through the queue, not a direct write: a Close right after Dial
		// must not let user_left overtake user_joined.
		_ = c.Send(protocol.NewUserLeft(c.cfg.UserID, c.cfg.RoomID))
	}
	c.markDone()
	c.wgWrite.Wait()
	c.conn.Close(websocket.StatusNormalClosure, "left room")
	c.wgRead.Wait()
	return nil
}

// markDone closes the done gate exactly once, stopping new sends.
func (c *Channel) markDone() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

// writeLoop owns all regular writes. A write error means the connection
// is dead, so the loop tears it down; the read loop then unblocks and
// reports the unsolicited close. Once done closes, the remaining queue
// gets a final best-effort flush so queued sends complete or fail on
// their own terms.
func (c *Channel) writeLoop() {
	defer c.wgWrite.Done()
	for {
		select {
		case data := <-c.outgoing:
			if err := c.write(data, writeTimeout); err != nil {
				slog.Warn("transport: write failed", "room", c.cfg.RoomID, "error", err)
				c.markDone()
				c.conn.Close(websocket.StatusInternalError, "write failure")
				return
			}
		case <-c.done:
			for {
				select {
				case data := <-c.outgoing:
					if err := c.write(data, drainTimeout); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *Channel) write(data []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// readLoop decodes and dispatches incoming envelopes until the connection
// ends. A malformed envelope is dropped and logged; the stream continues.
func (c *Channel) readLoop() {
	defer c.wgRead.Done()
	for {
		_, msg, err := c.conn.Read(context.Background())
		if err != nil {
			c.markDone()
			c.conn.Close(websocket.StatusNormalClosure, "")
			if !c.localClose.Load() {
				slog.Info("transport: connection closed by peer", "room", c.cfg.RoomID, "error", err)
				// Own goroutine so a handler that takes locks or calls
				// back into Close cannot stall the teardown.
				go c.handler.HandleClosed(err)
			}
			return
		}

		env, err := protocol.Decode(msg)
		if err != nil {
			slog.Warn("transport: dropping malformed envelope", "room", c.cfg.RoomID, "error", err)
			continue
		}
		c.handler.HandleEnvelope(env)
	}
}

// RoomURL resolves the WebSocket endpoint for a room from a server base
// URL. http and https map to ws and wss; ws and wss pass through. The
// room path is appended to any base path, so proxied deployments work.
func RoomURL(serverURL, roomID string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("transport: parse server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("transport: unsupported scheme %q in server URL %q", u.Scheme, serverURL)
	}
	// Path holds the decoded form; String escapes the room ID on output.
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/ws/" + roomID
	return u.String(), nil
}
