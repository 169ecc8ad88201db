package model

import "encoding/json"

// InputKind distinguishes button events from thumbstick events.
type InputKind string

const (
	InputKindButton InputKind = "button"
	InputKindStick  InputKind = "stick"
)

// InputEvent is a single inbound controller input.
type InputEvent struct {
	Type    InputKind `json:"type"`
	Button  string    `json:"button,omitempty"`
	Pressed bool      `json:"pressed,omitempty"`
	X       float64   `json:"x,omitempty"`
	Y       float64   `json:"y,omitempty"`
}

// ParseInputEvent decodes an input payload. A missing type defaults to button.
func ParseInputEvent(data json.RawMessage) (InputEvent, error) {
	var ev InputEvent
	if len(data) == 0 {
		return ev, ErrUnknownInput
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, ErrUnknownInput
	}
	if ev.Type == "" {
		ev.Type = InputKindButton
	}
	switch ev.Type {
	case InputKindButton:
		if ev.Button == "" {
			return ev, ErrUnknownInput
		}
	case InputKindStick:
	default:
		return ev, ErrUnknownInput
	}
	return ev, nil
}
