package main

import (
	"strconv"
	"strings"
)

// This file implements the reducer for the serial dispatcher:
//
//   - Events: serial lines, link transitions, IPC requests, effect observations
//   - Commands: side effects requested by the reducer (key synthesis, action
//     execution, button map persistence)
//   - Reduce(): computes next state + commands + broadcasts, without I/O
//
// The reducer must be pure. All dispatcher-owned mutable state lives in
// DeckState; the dispatch loop executes Commands (effects.go) and feeds
// observations back as Events. Line classification happens here so the
// token-to-side-effect mapping is testable without a serial device.

// ReduceResult is the output of Reduce(): next state, Commands to execute, and
// Broadcasts for external observers (websocket hub, MQTT).
type ReduceResult struct {
	State      *DeckState
	Commands   []Command
	Broadcasts []Broadcast
}

// Reduce is the pure reducer.
//
// buttons is the immutable button map snapshot the dispatch loop captured for
// this event; passing it in keeps the reducer free of shared-state reads.
func Reduce(s *DeckState, e Event, buttons ButtonMap) ReduceResult {
	if s == nil {
		s = &DeckState{}
	}

	var cmds []Command
	var bcasts []Broadcast

	switch ev := e.(type) {
	case SerialLine:
		bcasts = append(bcasts, BroadcastSerialLine{Raw: ev.Raw, At: ev.At})

		switch {
		case strings.HasPrefix(ev.Raw, tokenVolumePrefix):
			value, err := strconv.Atoi(strings.TrimPrefix(ev.Raw, tokenVolumePrefix))
			if err != nil {
				// Malformed encoder report: discard, leave state untouched.
				bcasts = append(bcasts, BroadcastTokenDiscarded{
					Raw:    ev.Raw,
					Reason: "malformed_volume",
					At:     ev.At,
				})
				break
			}

			delta := value - s.LastVolume
			s.LastVolume = value
			if delta != 0 {
				direction := 1
				if delta < 0 {
					direction = -1
					delta = -delta
				}
				cmds = append(cmds, CmdVolumeKeys{Direction: direction, Count: delta})
				bcasts = append(bcasts, BroadcastVolumeChanged{
					Volume: value,
					Delta:  direction * delta,
					At:     ev.At,
				})
			}

		case ev.Raw == tokenMute:
			s.Muted = !s.Muted
			cmds = append(cmds, CmdMuteKey{})
			bcasts = append(bcasts, BroadcastMuteChanged{Muted: s.Muted, At: ev.At})

		case ev.Raw == tokenMedia:
			cmds = append(cmds, CmdMediaKey{})
			bcasts = append(bcasts, BroadcastMediaToggled{At: ev.At})

		default:
			if action, ok := buttons[ev.Raw]; ok {
				cmds = append(cmds, CmdRunAction{Key: ev.Raw, Action: action})
			} else {
				// Unrecognized token: normal, not an error.
				bcasts = append(bcasts, BroadcastTokenDiscarded{
					Raw:    ev.Raw,
					Reason: "unmapped",
					At:     ev.At,
				})
			}
		}

	case LinkUp:
		s.LinkConnected = true
		s.LinkPort = ev.Port
		bcasts = append(bcasts, BroadcastLinkStatus{Connected: true, Port: ev.Port})

	case LinkDown:
		s.LinkConnected = false
		bcasts = append(bcasts, BroadcastLinkStatus{Connected: false, Port: s.LinkPort, Reason: ev.Reason})

	case ButtonEdit:
		cmds = append(cmds, CmdSaveButton{Key: ev.Key, Action: ev.Action})

	case ButtonsReload:
		cmds = append(cmds, CmdReloadButtons{})

	case ActionDispatched:
		bcasts = append(bcasts, BroadcastActionDispatched{Key: ev.Key, Kind: ev.Kind})

	case ActionFailed:
		bcasts = append(bcasts, BroadcastActionFailed{Key: ev.Key, Kind: ev.Kind, Err: ev.Err})

	case ButtonsChanged:
		bcasts = append(bcasts, BroadcastButtonsChanged{Keys: ev.Keys})

	case ButtonStoreFailed:
		bcasts = append(bcasts, BroadcastStoreError{Op: ev.Op, Err: ev.Err})
	}

	return ReduceResult{
		State:      s,
		Commands:   cmds,
		Broadcasts: bcasts,
	}
}
