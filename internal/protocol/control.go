package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/dkeye/Portal/internal/domain"
)

const (
	KeyDown     EventType = "KEY_DOWN"
	KeyUp       EventType = "KEY_UP"
	PasteText   EventType = "PASTE_TEXT"
	MouseMove   EventType = "MOUSE_MOVE"
	MouseScroll EventType = "MOUSE_SCROLL"
	MouseDown   EventType = "MOUSE_DOWN"
	MouseUp     EventType = "MOUSE_UP"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type KeyPayload struct {
	Key string `json:"key" validate:"required,max=32"`
}

type PastePayload struct {
	Text string `json:"text" validate:"required,max=8192"`
}

// Pointer coordinates are normalized to the portal viewport.
type PointerMovePayload struct {
	X *float64 `json:"x" validate:"required,gte=0,lte=1"`
	Y *float64 `json:"y" validate:"required,gte=0,lte=1"`
}

type PointerScrollPayload struct {
	ScrollUp *bool `json:"scrollUp" validate:"required"`
}

type PointerButtonPayload struct {
	Button string `json:"button" validate:"required,oneof=left middle right"`
}

var controlSchemas = map[EventType]func() any{
	KeyDown:     func() any { return &KeyPayload{} },
	KeyUp:       func() any { return &KeyPayload{} },
	PasteText:   func() any { return &PastePayload{} },
	MouseMove:   func() any { return &PointerMovePayload{} },
	MouseScroll: func() any { return &PointerScrollPayload{} },
	MouseDown:   func() any { return &PointerButtonPayload{} },
	MouseUp:     func() any { return &PointerButtonPayload{} },
}

func IsControl(t EventType) bool {
	_, ok := controlSchemas[t]
	return ok
}

// ValidateControl checks d against the schema for t and returns the
// normalized payload object.
func ValidateControl(t EventType, d json.RawMessage) (map[string]any, error) {
	newSchema, ok := controlSchemas[t]
	if !ok {
		return nil, fmt.Errorf("%w: %w %q", domain.ErrInvalid, errUnknownControl, t)
	}
	v := newSchema()
	if err := decodeStrict(d, v); err != nil {
		return nil, err
	}
	if err := validate.Struct(v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalid, t, err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PortalInput is published on the portal channel; D carries the portal id
// under "t" next to the control payload.
type PortalInput struct {
	Op int            `json:"op"`
	D  map[string]any `json:"d"`
	T  EventType      `json:"t"`
}

func EncodePortalInput(t EventType, portal domain.PortalID, payload map[string]any) ([]byte, error) {
	d := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		d[k] = v
	}
	d["t"] = string(portal)
	return json.Marshal(PortalInput{Op: OpEvent, D: d, T: t})
}
