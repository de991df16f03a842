// Package protocol defines the client wire format: {op, t, d} frames.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Portal/internal/domain"
)

const (
	OpEvent        = 0
	OpHeartbeat    = 1
	OpIdentify     = 2
	OpHeartbeatAck = 11
)

type EventType string

const (
	Ready           EventType = "READY"
	TypingUpdate    EventType = "TYPING_UPDATE"
	UserJoin        EventType = "USER_JOIN"
	UserLeave       EventType = "USER_LEAVE"
	UserUpdate      EventType = "USER_UPDATE"
	RoomOwnerUpdate EventType = "ROOM_OWNER_UPDATE"
	PortalUpdate    EventType = "PORTAL_UPDATE"
)

var ErrMalformed = fmt.Errorf("%w: malformed frame", domain.ErrInvalid)

type Message struct {
	Op int             `json:"op"`
	T  EventType       `json:"t,omitempty"`
	D  json.RawMessage `json:"d,omitempty"`
}

// Decode parses an inbound frame. A frame without an op is malformed.
func Decode(data []byte) (*Message, error) {
	var raw struct {
		Op *int            `json:"op"`
		T  EventType       `json:"t"`
		D  json.RawMessage `json:"d"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.Op == nil {
		return nil, ErrMalformed
	}
	return &Message{Op: *raw.Op, T: raw.T, D: raw.D}, nil
}

func Encode(op int, t EventType, d any) ([]byte, error) {
	msg := Message{Op: op, T: t}
	if d != nil {
		b, err := json.Marshal(d)
		if err != nil {
			return nil, err
		}
		msg.D = b
	}
	return json.Marshal(msg)
}

func Event(t EventType, d any) ([]byte, error) {
	return Encode(OpEvent, t, d)
}

func HeartbeatAck() []byte {
	return []byte(`{"op":11}`)
}

type IdentifyPayload struct {
	Token string `json:"token" validate:"required,max=4096"`
}

func DecodeIdentify(d json.RawMessage) (*IdentifyPayload, error) {
	var p IdentifyPayload
	if err := decodeStrict(d, &p); err != nil {
		return nil, err
	}
	if err := validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	}
	return &p, nil
}

type TypingPayload struct {
	Typing bool `json:"typing"`
}

// DecodeTyping is lenient: anything but a true typing flag means stopped.
func DecodeTyping(d json.RawMessage) TypingPayload {
	var p struct {
		Typing any `json:"typing"`
	}
	if len(d) == 0 || json.Unmarshal(d, &p) != nil {
		return TypingPayload{}
	}
	return TypingPayload{Typing: truthy(p.Typing)}
}

type TypingNotice struct {
	User   domain.UserID `json:"u"`
	Typing bool          `json:"typing"`
}

type LeaveNotice struct {
	User domain.UserID `json:"u"`
}

type OwnerNotice struct {
	Room  domain.RoomID `json:"room"`
	Owner domain.UserID `json:"owner"`
}

type PortalNotice struct {
	Room   domain.RoomID       `json:"room"`
	ID     domain.PortalID     `json:"id"`
	Status domain.PortalStatus `json:"status"`
}

type ReadyPayload struct {
	User domain.PublicUser `json:"user"`
	Room *domain.Room      `json:"room,omitempty"`
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case nil:
		return false
	default:
		return true
	}
}

func decodeStrict(d json.RawMessage, v any) error {
	if len(d) == 0 {
		return ErrMalformed
	}
	dec := json.NewDecoder(bytes.NewReader(d))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if dec.More() {
		return ErrMalformed
	}
	return nil
}

var errUnknownControl = errors.New("unknown control type")
