package main

import (
	"encoding/json"
	"testing"
	"time"
)

func decodeEnvelope(t *testing.T, b Broadcast) (string, map[string]any) {
	t.Helper()

	msg, ok := broadcastEnvelope(b)
	if !ok {
		t.Fatalf("%T: expected an envelope", b)
	}

	var env struct {
		Type string         `json:"type"`
		Ts   *time.Time     `json:"ts"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("%T: invalid envelope JSON: %v", b, err)
	}
	if env.Ts == nil {
		t.Errorf("%T: envelope missing timestamp", b)
	}
	return env.Type, env.Data
}

func TestBroadcastEnvelope_Types(t *testing.T) {
	now := time.Now()

	typ, data := decodeEnvelope(t, BroadcastSerialLine{Raw: "BUTTON_1", At: now})
	if typ != "serial_line" || data["line"] != "BUTTON_1" {
		t.Errorf("unexpected serial_line envelope: %s %v", typ, data)
	}

	typ, data = decodeEnvelope(t, BroadcastVolumeChanged{Volume: 7, Delta: -2, At: now})
	if typ != "volume_changed" || data["volume"] != float64(7) || data["delta"] != float64(-2) {
		t.Errorf("unexpected volume_changed envelope: %s %v", typ, data)
	}

	typ, data = decodeEnvelope(t, BroadcastMuteChanged{Muted: true, At: now})
	if typ != "mute_changed" || data["muted"] != true {
		t.Errorf("unexpected mute_changed envelope: %s %v", typ, data)
	}

	typ, _ = decodeEnvelope(t, BroadcastMediaToggled{At: now})
	if typ != "media_toggled" {
		t.Errorf("unexpected type: %s", typ)
	}

	typ, data = decodeEnvelope(t, BroadcastActionFailed{Key: "BUTTON_3", Kind: "exe", Err: "no such file", At: now})
	if typ != "action_failed" || data["key"] != "BUTTON_3" || data["error"] != "no such file" {
		t.Errorf("unexpected action_failed envelope: %s %v", typ, data)
	}

	typ, data = decodeEnvelope(t, BroadcastLinkStatus{Connected: false, Port: "COM6", Reason: "unplugged"})
	if typ != "link_status" || data["connected"] != false || data["reason"] != "unplugged" {
		t.Errorf("unexpected link_status envelope: %s %v", typ, data)
	}
}

func TestBroadcastEnvelope_InternalOnly(t *testing.T) {
	// Discards and store errors are log-only; no envelope goes out.
	if _, ok := broadcastEnvelope(BroadcastTokenDiscarded{Raw: "X", Reason: "unmapped"}); ok {
		t.Error("token discards must not be published")
	}
	if _, ok := broadcastEnvelope(BroadcastStoreError{Op: "save", Err: "disk full"}); ok {
		t.Error("store errors must not be published")
	}
}

func TestHub_StateCache(t *testing.T) {
	hub := NewHub(testLogger(), []string{"BUTTON_1", "BUTTON_2"})

	snap := hub.snapshot()
	if len(snap.ButtonKeys) != 2 {
		t.Fatalf("expected 2 initial button keys, got %d", len(snap.ButtonKeys))
	}
	if snap.Volume != 0 || snap.Muted || snap.LinkConnected {
		t.Errorf("unexpected initial snapshot: %+v", snap)
	}

	hub.OnBroadcast(BroadcastVolumeChanged{Volume: 12, Delta: 12})
	hub.OnBroadcast(BroadcastMuteChanged{Muted: true})
	hub.OnBroadcast(BroadcastLinkStatus{Connected: true, Port: "COM6"})
	hub.OnBroadcast(BroadcastButtonsChanged{Keys: []string{"BUTTON_1", "BUTTON_2", "CUSTOM"}})

	snap = hub.snapshot()
	if snap.Volume != 12 {
		t.Errorf("expected volume 12, got %d", snap.Volume)
	}
	if !snap.Muted {
		t.Error("expected muted")
	}
	if !snap.LinkConnected || snap.LinkPort != "COM6" {
		t.Errorf("unexpected link state: %+v", snap)
	}
	if len(snap.ButtonKeys) != 3 {
		t.Errorf("expected 3 button keys, got %d", len(snap.ButtonKeys))
	}
}

func TestHub_SlowBroadcastQueueDoesNotBlock(t *testing.T) {
	hub := NewHub(testLogger(), nil)

	// The hub is not running, so nothing drains the queue. OnBroadcast must
	// still return: the dispatch loop can never block on observers.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			hub.OnBroadcast(BroadcastSerialLine{Raw: "MEDIA", At: time.Now()})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnBroadcast blocked with no hub consumer")
	}
}
