package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Events
// ============================================================================
// Events are the inputs to the reducer. They come from three sources:
//   - the serial reader goroutine (lines, link status)
//   - the IPC server (simulated lines, button edits)
//   - effect observations fed back by the dispatch loop
//
// The reducer consumes them in strict arrival order; see dispatcher.go.
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// SerialLine is one newline-terminated frame received from the deck (or
// injected over IPC via simulate_line).
type SerialLine struct {
	Raw string    `json:"line"`
	At  time.Time `json:"-"`
}

func (SerialLine) eventMarker() {}

// LinkUp reports a successful serial connect.
type LinkUp struct {
	Port string `json:"port"`
}

func (LinkUp) eventMarker() {}

// LinkDown reports a lost or failed serial session.
type LinkDown struct {
	Reason string `json:"reason"`
}

func (LinkDown) eventMarker() {}

// ButtonEdit requests binding Key to Action and persisting the button map.
type ButtonEdit struct {
	Key    string
	Action Action
}

func (ButtonEdit) eventMarker() {}

// ButtonsReload requests re-reading the button map from disk.
type ButtonsReload struct{}

func (ButtonsReload) eventMarker() {}

// ActionDispatched is an observation: an action ran successfully.
type ActionDispatched struct {
	Key  string `json:"key"`
	Kind string `json:"kind"`
}

func (ActionDispatched) eventMarker() {}

// ActionFailed is an observation: an action failed. The worker keeps running;
// the failure is surfaced to UI clients instead.
type ActionFailed struct {
	Key  string `json:"key"`
	Kind string `json:"kind"`
	Err  string `json:"error"`
}

func (ActionFailed) eventMarker() {}

// ButtonsChanged is an observation: the button map was edited or reloaded.
type ButtonsChanged struct {
	Keys []string `json:"keys"`
}

func (ButtonsChanged) eventMarker() {}

// ButtonStoreFailed is an observation: a button map save/reload failed.
type ButtonStoreFailed struct {
	Op  string `json:"op"`
	Err string `json:"error"`
}

func (ButtonStoreFailed) eventMarker() {}

// ============================================================================
// IPC envelope
// ============================================================================
// External clients speak {"type": ..., "data": ...} over the unix socket.
// Only externally-originated events are part of the vocabulary; observations
// stay internal.
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling.
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type setButtonData struct {
	Key    string     `json:"key"`
	Action actionJSON `json:"action"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event.
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "simulate_line":
		var e SerialLine
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal SerialLine: %w", err)
		}
		if e.Raw == "" {
			return nil, fmt.Errorf("simulate_line requires a non-empty line")
		}
		return e, nil

	case "set_button":
		var d setButtonData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal set_button: %w", err)
		}
		if d.Key == "" {
			return nil, fmt.Errorf("set_button requires a non-empty key")
		}
		action, err := actionFromJSON(d.Action)
		if err != nil {
			return nil, fmt.Errorf("set_button %q: %w", d.Key, err)
		}
		return ButtonEdit{Key: d.Key, Action: action}, nil

	case "reload_buttons":
		return ButtonsReload{}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an externally-sendable Event into a JSON envelope.
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case SerialLine:
		env.Type = "simulate_line"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal SerialLine: %w", err)
		}
		env.Data = data

	case ButtonEdit:
		env.Type = "set_button"
		data, err := json.Marshal(setButtonData{
			Key:    e.Key,
			Action: actionToJSON(e.Action),
		})
		if err != nil {
			return nil, fmt.Errorf("marshal set_button: %w", err)
		}
		env.Data = data

	case ButtonsReload:
		env.Type = "reload_buttons"

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
