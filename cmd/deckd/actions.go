package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Button Actions
// ============================================================================
// An Action is the side effect bound to a button key. The set is closed: adding
// a new kind means extending the marker interface implementations, the persisted
// tag table below, and the executor switch. All but the tag table are
// compile-time checked; the tag table is covered by tests.
// ============================================================================

// Action is the closed union of side effects a button can trigger.
type Action interface {
	actionMarker()
}

// NoAction is an unbound button. Executing it is a no-op.
type NoAction struct{}

func (NoAction) actionMarker() {}

// OpenLink opens a URL in the OS-default browser.
type OpenLink struct {
	URL string
}

func (OpenLink) actionMarker() {}

// LaunchExecutable spawns the given path as a detached process.
// Shortcut files (.lnk) are resolved through the OS shell instead of direct exec.
type LaunchExecutable struct {
	Path string
}

func (LaunchExecutable) actionMarker() {}

// SendKeypress synthesizes a key combination, e.g. "ctrl+shift+s".
type SendKeypress struct {
	Spec string
}

func (SendKeypress) actionMarker() {}

// TypeText synthesizes a press-and-release sequence for every character of Text.
type TypeText struct {
	Text string
}

func (TypeText) actionMarker() {}

// ============================================================================
// Persisted form
// ============================================================================
// The button map file stores each action as {"type": ..., "value": ...}.
// The tag vocabulary is fixed by the firmware-side tooling: none|link|exe|keypress|text.
// ============================================================================

type actionJSON struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// MarshalAction serializes an Action into its persisted {type, value} form.
func MarshalAction(a Action) ([]byte, error) {
	var out actionJSON

	switch a := a.(type) {
	case NoAction, nil:
		out = actionJSON{Type: "none", Value: ""}
	case OpenLink:
		out = actionJSON{Type: "link", Value: a.URL}
	case LaunchExecutable:
		out = actionJSON{Type: "exe", Value: a.Path}
	case SendKeypress:
		out = actionJSON{Type: "keypress", Value: a.Spec}
	case TypeText:
		out = actionJSON{Type: "text", Value: a.Text}
	default:
		return nil, fmt.Errorf("unsupported action type: %T", a)
	}

	return json.Marshal(out)
}

// UnmarshalAction parses the persisted {type, value} form into an Action.
//
// A non-none action with an empty value is a configuration error: it would be
// unexecutable at dispatch time, so it is rejected at load/edit time instead.
func UnmarshalAction(data []byte) (Action, error) {
	var raw actionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal action: %w", err)
	}
	return actionFromJSON(raw)
}

func actionFromJSON(raw actionJSON) (Action, error) {
	if raw.Type != "none" && raw.Value == "" {
		return nil, fmt.Errorf("action type %q requires a non-empty value", raw.Type)
	}

	switch raw.Type {
	case "none", "":
		return NoAction{}, nil
	case "link":
		return OpenLink{URL: raw.Value}, nil
	case "exe":
		return LaunchExecutable{Path: raw.Value}, nil
	case "keypress":
		return SendKeypress{Spec: raw.Value}, nil
	case "text":
		return TypeText{Text: raw.Value}, nil
	default:
		return nil, fmt.Errorf("unknown action type: %q", raw.Type)
	}
}

func actionToJSON(a Action) actionJSON {
	switch a := a.(type) {
	case OpenLink:
		return actionJSON{Type: "link", Value: a.URL}
	case LaunchExecutable:
		return actionJSON{Type: "exe", Value: a.Path}
	case SendKeypress:
		return actionJSON{Type: "keypress", Value: a.Spec}
	case TypeText:
		return actionJSON{Type: "text", Value: a.Text}
	default:
		return actionJSON{Type: "none", Value: ""}
	}
}

// describeAction returns the persisted tag for logging and broadcasts.
func describeAction(a Action) string {
	return actionToJSON(a).Type
}
