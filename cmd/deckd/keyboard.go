package main

import (
	"fmt"
	"strings"

	"github.com/go-vgo/robotgo"
)

// ============================================================================
// Keyboard synthesis
// ============================================================================
// All OS input injection goes through the Keyboard interface so the dispatcher
// and executor can be tested with a recording double.
// ============================================================================

// Media key names as understood by the injection layer.
const (
	keyVolumeUp   = "audio_vol_up"
	keyVolumeDown = "audio_vol_down"
	keyMute       = "audio_mute"
	keyPlayPause  = "audio_play"
)

// Keyboard synthesizes key events at the OS input-injection layer.
type Keyboard interface {
	// Tap performs one press-and-release of key with the given modifiers held.
	Tap(key string, mods ...string) error

	// Type synthesizes a press-and-release sequence for every character of
	// text, in order.
	Type(text string) error
}

// systemKeyboard is the production Keyboard backed by robotgo.
type systemKeyboard struct{}

// NewSystemKeyboard returns the OS-backed keyboard.
func NewSystemKeyboard() Keyboard {
	return systemKeyboard{}
}

func (systemKeyboard) Tap(key string, mods ...string) error {
	args := make([]interface{}, len(mods))
	for i, m := range mods {
		args[i] = m
	}
	return robotgo.KeyTap(key, args...)
}

func (systemKeyboard) Type(text string) error {
	robotgo.TypeStr(text)
	return nil
}

// modifierNames maps user-facing modifier tokens to injection-layer names.
var modifierNames = map[string]string{
	"ctrl":    "ctrl",
	"control": "ctrl",
	"alt":     "alt",
	"shift":   "shift",
	"cmd":     "cmd",
	"win":     "cmd",
	"super":   "cmd",
	"meta":    "cmd",
}

// parseKeySpec parses a human-readable key combination ("ctrl+shift+s") into
// the final key plus held modifiers. All tokens before the last must be
// modifiers; the last token is the key itself.
func parseKeySpec(spec string) (key string, mods []string, err error) {
	tokens := strings.Split(spec, "+")
	if len(tokens) == 0 || strings.TrimSpace(spec) == "" {
		return "", nil, fmt.Errorf("empty key spec")
	}

	for i, tok := range tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			return "", nil, fmt.Errorf("key spec %q has an empty token", spec)
		}

		if i == len(tokens)-1 {
			key = tok
			continue
		}

		mod, ok := modifierNames[tok]
		if !ok {
			return "", nil, fmt.Errorf("key spec %q: unknown modifier %q", spec, tok)
		}
		mods = append(mods, mod)
	}

	return key, mods, nil
}
