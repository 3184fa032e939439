package main

import "time"

// DeckState is the dispatch-loop-owned state container.
//
// It replaces what the deck's firmware-facing logic would otherwise keep as
// process-wide globals: the last observed encoder position, the mute flag, and
// the link status. Only the dispatch goroutine writes it; everyone else sees it
// through Broadcasts.
//
// No persistence: encoder position and mute reset on every process start.
type DeckState struct {
	// LastVolume is the last successfully parsed absolute encoder position.
	LastVolume int

	// Muted tracks the synthesized mute toggles since startup. It mirrors what
	// the OS state should be, assuming the process started unmuted.
	Muted bool

	// Link status, for state snapshots and broadcasts.
	LinkConnected bool
	LinkPort      string
}

// ==============================
// Broadcasts (state fan-out)
// ==============================
// Broadcasts are reducer-emitted notifications for external observers (the
// state websocket hub and the MQTT publisher). They never feed back into the
// reducer and carry no behavior.

// Broadcast is a marker for reducer-emitted state notifications.
type Broadcast interface {
	broadcastMarker()
}

// BroadcastSerialLine reports every line received from the deck.
type BroadcastSerialLine struct {
	Raw string
	At  time.Time
}

func (BroadcastSerialLine) broadcastMarker() {}

// BroadcastVolumeChanged reports a non-zero encoder delta.
type BroadcastVolumeChanged struct {
	Volume int
	Delta  int
	At     time.Time
}

func (BroadcastVolumeChanged) broadcastMarker() {}

// BroadcastMuteChanged reports the flipped mute flag.
type BroadcastMuteChanged struct {
	Muted bool
	At    time.Time
}

func (BroadcastMuteChanged) broadcastMarker() {}

// BroadcastMediaToggled reports a play/pause key event.
type BroadcastMediaToggled struct {
	At time.Time
}

func (BroadcastMediaToggled) broadcastMarker() {}

// BroadcastActionDispatched reports a successfully executed button action.
type BroadcastActionDispatched struct {
	Key  string
	Kind string
	At   time.Time
}

func (BroadcastActionDispatched) broadcastMarker() {}

// BroadcastActionFailed reports a failed button action. Failures are surfaced,
// never fatal.
type BroadcastActionFailed struct {
	Key  string
	Kind string
	Err  string
	At   time.Time
}

func (BroadcastActionFailed) broadcastMarker() {}

// BroadcastLinkStatus reports serial connect/disconnect transitions.
type BroadcastLinkStatus struct {
	Connected bool
	Port      string
	Reason    string
}

func (BroadcastLinkStatus) broadcastMarker() {}

// BroadcastTokenDiscarded reports a line that produced no side effect:
// either a malformed volume token or an unmapped button key.
type BroadcastTokenDiscarded struct {
	Raw    string
	Reason string // "malformed_volume" or "unmapped"
	At     time.Time
}

func (BroadcastTokenDiscarded) broadcastMarker() {}

// BroadcastButtonsChanged reports that the button map was edited or reloaded.
type BroadcastButtonsChanged struct {
	Keys []string
}

func (BroadcastButtonsChanged) broadcastMarker() {}

// BroadcastStoreError reports a failed button map save/reload.
type BroadcastStoreError struct {
	Op  string
	Err string
}

func (BroadcastStoreError) broadcastMarker() {}
