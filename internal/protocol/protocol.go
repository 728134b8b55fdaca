// Package protocol defines the JSON envelopes exchanged with the room
// server over the WebSocket, the envelope type tags, and the timestamp
// format bridging live and stored messages.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Envelope type tags. Client to server: user_joined, user_left,
// get_history, audio_chunk. Server to client: audio_stream, new_text,
// text_history. Unknown tags are ignored by both sides.
const (
	TypeUserJoined  = "user_joined"
	TypeUserLeft    = "user_left"
	TypeGetHistory  = "get_history"
	TypeAudioChunk  = "audio_chunk"
	TypeAudioStream = "audio_stream"
	TypeNewText     = "new_text"
	TypeTextHistory = "text_history"
)

// Envelope is one wire message, discriminated by Type. Only the fields
// belonging to the variant are populated; everything else stays at its
// zero value and is omitted on encode. Envelopes are immutable once
// constructed.
type Envelope struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	RoomID    string    `json:"room_id,omitempty"`
	Data      string    `json:"data,omitempty"` // base64 PCM16LE payload
	Text      string    `json:"text,omitempty"`
	Emote     []string  `json:"emote,omitempty"`
	Timestamp Timestamp `json:"timestamp,omitempty"`
	History   []Entry   `json:"history,omitempty"`
}

// Entry is one transcript line as carried by new_text and text_history.
// History entries additionally carry the server-assigned ID, the room and
// the finalized flag; live entries carry emote tags.
type Entry struct {
	ID          string    `json:"id,omitempty"`
	UserID      string    `json:"user_id"`
	Text        string    `json:"text"`
	RoomID      string    `json:"room_id,omitempty"`
	Emote       []string  `json:"emote,omitempty"`
	Timestamp   Timestamp `json:"timestamp,omitempty"`
	IsFinalized bool      `json:"is_finalized,omitempty"`
}

// NewUserJoined builds the envelope announcing this user in a room.
func NewUserJoined(userID, roomID string) Envelope {
	return Envelope{Type: TypeUserJoined, UserID: userID, RoomID: roomID}
}

// NewUserLeft builds the envelope announcing the user's departure.
func NewUserLeft(userID, roomID string) Envelope {
	return Envelope{Type: TypeUserLeft, UserID: userID, RoomID: roomID}
}

// NewGetHistory builds the payload-free history request.
func NewGetHistory() Envelope {
	return Envelope{Type: TypeGetHistory}
}

// NewAudioChunk builds an outgoing audio envelope from an already
// base64-encoded PCM payload.
func NewAudioChunk(payload, userID string, ts Timestamp) Envelope {
	return Envelope{Type: TypeAudioChunk, Data: payload, UserID: userID, Timestamp: ts}
}

// Entry converts a new_text envelope into its transcript entry.
func (e Envelope) Entry() Entry {
	return Entry{
		UserID:    e.UserID,
		Text:      e.Text,
		Emote:     e.Emote,
		Timestamp: e.Timestamp,
	}
}

// Encode serializes the envelope to its wire form.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s envelope: %w", e.Type, err)
	}
	return data, nil
}

// Decode parses a single wire message. Unknown type tags decode fine and
// are the dispatcher's business; a missing tag or malformed JSON is an
// error.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	if e.Type == "" {
		return Envelope{}, errors.New("protocol: envelope has no type tag")
	}
	return e, nil
}

// Timestamp is a wire timestamp in milliseconds since the Unix epoch.
// Live envelopes carry it as a JSON number; stored history entries carry
// an ISO-8601 string instead. Both shapes decode into the same value,
// and encoding always produces the millisecond number.
type Timestamp int64

// Now returns the current wall clock as a wire timestamp.
func Now() Timestamp {
	return Timestamp(time.Now().UnixMilli())
}

// At converts a [time.Time] to a wire timestamp.
func At(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

// Time converts the timestamp back to a [time.Time] in UTC.
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(int64(t)).UTC()
}

// isoLayout matches timestamps produced without an explicit zone, as the
// server's history store formats them. Interpreted as UTC.
const isoLayout = "2006-01-02T15:04:05.999999999"

// UnmarshalJSON accepts a millisecond number (integral or fractional) or
// an ISO-8601 / RFC 3339 string.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return fmt.Errorf("protocol: timestamp: %w", err)
		}
		if str == "" {
			*t = 0
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			parsed, err = time.ParseInLocation(isoLayout, str, time.UTC)
		}
		if err != nil {
			return fmt.Errorf("protocol: timestamp %q: %w", str, err)
		}
		*t = At(parsed)
		return nil
	}
	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("protocol: timestamp: %w", err)
	}
	*t = Timestamp(int64(ms))
	return nil
}
