package main

import "fmt"

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the dispatch
// loop. Those are OS key-event synthesis, action execution, and button map
// persistence. The reducer only requests them; effects.go runs them.
type Command interface {
	commandMarker()
	String() string
}

// CmdVolumeKeys synthesizes Count discrete volume key events in Direction
// (+1 up, -1 down), spaced by the configured inter-event delay.
type CmdVolumeKeys struct {
	Direction int
	Count     int
}

func (CmdVolumeKeys) commandMarker() {}
func (c CmdVolumeKeys) String() string {
	return fmt.Sprintf("CmdVolumeKeys(direction=%+d, count=%d)", c.Direction, c.Count)
}

// CmdMuteKey synthesizes one mute key event.
type CmdMuteKey struct{}

func (CmdMuteKey) commandMarker() {}
func (CmdMuteKey) String() string { return "CmdMuteKey()" }

// CmdMediaKey synthesizes one play/pause media key event.
type CmdMediaKey struct{}

func (CmdMediaKey) commandMarker() {}
func (CmdMediaKey) String() string { return "CmdMediaKey()" }

// CmdRunAction executes the action bound to Key.
type CmdRunAction struct {
	Key    string
	Action Action
}

func (CmdRunAction) commandMarker() {}
func (c CmdRunAction) String() string {
	return fmt.Sprintf("CmdRunAction(key=%s, kind=%s)", c.Key, describeAction(c.Action))
}

// CmdSaveButton persists a button binding (synchronous whole-map rewrite).
type CmdSaveButton struct {
	Key    string
	Action Action
}

func (CmdSaveButton) commandMarker() {}
func (c CmdSaveButton) String() string {
	return fmt.Sprintf("CmdSaveButton(key=%s, kind=%s)", c.Key, describeAction(c.Action))
}

// CmdReloadButtons re-reads the button map from disk.
type CmdReloadButtons struct{}

func (CmdReloadButtons) commandMarker() {}
func (CmdReloadButtons) String() string { return "CmdReloadButtons()" }
