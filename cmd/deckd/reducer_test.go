package main

import (
	"testing"
	"time"
)

func testButtons() ButtonMap {
	return ButtonMap{
		"BUTTON_1": OpenLink{URL: "https://www.youtube.com"},
		"BUTTON_2": LaunchExecutable{Path: "/usr/bin/gimp"},
		"BUTTON_3": SendKeypress{Spec: "ctrl+shift+m"},
		"BUTTON_4": TypeText{Text: "hello"},
		"BUTTON_5": NoAction{},
	}
}

func serialEvent(raw string) SerialLine {
	return SerialLine{Raw: raw, At: time.Now()}
}

func findVolumeCmd(cmds []Command) (CmdVolumeKeys, bool) {
	for _, c := range cmds {
		if v, ok := c.(CmdVolumeKeys); ok {
			return v, true
		}
	}
	return CmdVolumeKeys{}, false
}

func TestReducer_VolumeDelta_Up(t *testing.T) {
	state := &DeckState{LastVolume: 0}

	rr := Reduce(state, serialEvent("VOLUME_5"), testButtons())

	if rr.State.LastVolume != 5 {
		t.Errorf("expected LastVolume 5, got %d", rr.State.LastVolume)
	}

	cmd, ok := findVolumeCmd(rr.Commands)
	if !ok {
		t.Fatal("expected a CmdVolumeKeys command")
	}
	if cmd.Direction != 1 || cmd.Count != 5 {
		t.Errorf("expected direction=1 count=5, got direction=%d count=%d", cmd.Direction, cmd.Count)
	}
}

func TestReducer_VolumeDelta_Down(t *testing.T) {
	state := &DeckState{LastVolume: 5}

	rr := Reduce(state, serialEvent("VOLUME_2"), testButtons())

	if rr.State.LastVolume != 2 {
		t.Errorf("expected LastVolume 2, got %d", rr.State.LastVolume)
	}

	cmd, ok := findVolumeCmd(rr.Commands)
	if !ok {
		t.Fatal("expected a CmdVolumeKeys command")
	}
	if cmd.Direction != -1 || cmd.Count != 3 {
		t.Errorf("expected direction=-1 count=3, got direction=%d count=%d", cmd.Direction, cmd.Count)
	}
}

func TestReducer_VolumeDelta_Zero(t *testing.T) {
	state := &DeckState{LastVolume: 7}

	rr := Reduce(state, serialEvent("VOLUME_7"), testButtons())

	if rr.State.LastVolume != 7 {
		t.Errorf("expected LastVolume 7, got %d", rr.State.LastVolume)
	}
	if _, ok := findVolumeCmd(rr.Commands); ok {
		t.Error("expected no CmdVolumeKeys for a zero delta")
	}
}

func TestReducer_VolumeNegativeValue(t *testing.T) {
	// Negative encoder positions parse fine and produce a downward burst.
	state := &DeckState{LastVolume: 0}

	rr := Reduce(state, serialEvent("VOLUME_-3"), testButtons())

	if rr.State.LastVolume != -3 {
		t.Errorf("expected LastVolume -3, got %d", rr.State.LastVolume)
	}
	cmd, ok := findVolumeCmd(rr.Commands)
	if !ok {
		t.Fatal("expected a CmdVolumeKeys command")
	}
	if cmd.Direction != -1 || cmd.Count != 3 {
		t.Errorf("expected direction=-1 count=3, got direction=%d count=%d", cmd.Direction, cmd.Count)
	}
}

func TestReducer_VolumeMalformed(t *testing.T) {
	for _, raw := range []string{"VOLUME_abc", "VOLUME_", "VOLUME_1.5", "VOLUME_1x"} {
		state := &DeckState{LastVolume: 4}

		rr := Reduce(state, serialEvent(raw), testButtons())

		if rr.State.LastVolume != 4 {
			t.Errorf("%s: expected LastVolume unchanged (4), got %d", raw, rr.State.LastVolume)
		}
		if len(rr.Commands) != 0 {
			t.Errorf("%s: expected no commands, got %d", raw, len(rr.Commands))
		}

		found := false
		for _, b := range rr.Broadcasts {
			if d, ok := b.(BroadcastTokenDiscarded); ok && d.Reason == "malformed_volume" {
				found = true
			}
		}
		if !found {
			t.Errorf("%s: expected a malformed_volume discard broadcast", raw)
		}
	}
}

func TestReducer_MuteToggle(t *testing.T) {
	state := &DeckState{}

	rr := Reduce(state, serialEvent("MUTE"), testButtons())
	if !rr.State.Muted {
		t.Error("expected Muted=true after first MUTE")
	}
	if len(rr.Commands) != 1 {
		t.Fatalf("expected exactly 1 command, got %d", len(rr.Commands))
	}
	if _, ok := rr.Commands[0].(CmdMuteKey); !ok {
		t.Errorf("expected CmdMuteKey, got %T", rr.Commands[0])
	}

	// Second MUTE flips back and emits a second key command.
	rr = Reduce(rr.State, serialEvent("MUTE"), testButtons())
	if rr.State.Muted {
		t.Error("expected Muted=false after second MUTE")
	}
	if len(rr.Commands) != 1 {
		t.Fatalf("expected exactly 1 command on second MUTE, got %d", len(rr.Commands))
	}
}

func TestReducer_MediaToggle(t *testing.T) {
	state := &DeckState{}

	rr := Reduce(state, serialEvent("MEDIA"), testButtons())

	if len(rr.Commands) != 1 {
		t.Fatalf("expected exactly 1 command, got %d", len(rr.Commands))
	}
	if _, ok := rr.Commands[0].(CmdMediaKey); !ok {
		t.Errorf("expected CmdMediaKey, got %T", rr.Commands[0])
	}
	if *rr.State != (DeckState{}) {
		t.Errorf("expected state unchanged, got %+v", *rr.State)
	}
}

func TestReducer_ButtonDispatch(t *testing.T) {
	state := &DeckState{}

	rr := Reduce(state, serialEvent("BUTTON_1"), testButtons())

	if len(rr.Commands) != 1 {
		t.Fatalf("expected exactly 1 command, got %d", len(rr.Commands))
	}
	run, ok := rr.Commands[0].(CmdRunAction)
	if !ok {
		t.Fatalf("expected CmdRunAction, got %T", rr.Commands[0])
	}
	if run.Key != "BUTTON_1" {
		t.Errorf("expected key BUTTON_1, got %s", run.Key)
	}
	link, ok := run.Action.(OpenLink)
	if !ok {
		t.Fatalf("expected OpenLink, got %T", run.Action)
	}
	if link.URL != "https://www.youtube.com" {
		t.Errorf("unexpected URL: %s", link.URL)
	}
}

func TestReducer_UnmappedToken(t *testing.T) {
	state := &DeckState{LastVolume: 2, Muted: true}

	rr := Reduce(state, serialEvent("BUTTON_99"), testButtons())

	if len(rr.Commands) != 0 {
		t.Errorf("expected no commands, got %d", len(rr.Commands))
	}
	if rr.State.LastVolume != 2 || !rr.State.Muted {
		t.Errorf("expected state unchanged, got %+v", *rr.State)
	}

	found := false
	for _, b := range rr.Broadcasts {
		if d, ok := b.(BroadcastTokenDiscarded); ok && d.Reason == "unmapped" {
			found = true
		}
	}
	if !found {
		t.Error("expected an unmapped discard broadcast")
	}
}

func TestReducer_SerialLineAlwaysBroadcast(t *testing.T) {
	for _, raw := range []string{"VOLUME_3", "MUTE", "MEDIA", "BUTTON_1", "GARBAGE"} {
		rr := Reduce(&DeckState{}, serialEvent(raw), testButtons())

		if len(rr.Broadcasts) == 0 {
			t.Fatalf("%s: expected broadcasts", raw)
		}
		line, ok := rr.Broadcasts[0].(BroadcastSerialLine)
		if !ok {
			t.Fatalf("%s: expected first broadcast to be BroadcastSerialLine, got %T", raw, rr.Broadcasts[0])
		}
		if line.Raw != raw {
			t.Errorf("expected raw %q, got %q", raw, line.Raw)
		}
	}
}

func TestReducer_LinkTransitions(t *testing.T) {
	state := &DeckState{}

	rr := Reduce(state, LinkUp{Port: "/dev/ttyACM0"}, nil)
	if !rr.State.LinkConnected || rr.State.LinkPort != "/dev/ttyACM0" {
		t.Errorf("expected connected state, got %+v", *rr.State)
	}

	rr = Reduce(rr.State, LinkDown{Reason: "read error"}, nil)
	if rr.State.LinkConnected {
		t.Error("expected LinkConnected=false after LinkDown")
	}

	status, ok := rr.Broadcasts[0].(BroadcastLinkStatus)
	if !ok {
		t.Fatalf("expected BroadcastLinkStatus, got %T", rr.Broadcasts[0])
	}
	if status.Connected || status.Reason != "read error" || status.Port != "/dev/ttyACM0" {
		t.Errorf("unexpected link status broadcast: %+v", status)
	}
}

func TestReducer_ButtonEditEmitsSave(t *testing.T) {
	rr := Reduce(&DeckState{}, ButtonEdit{Key: "BUTTON_7", Action: TypeText{Text: "gg"}}, nil)

	if len(rr.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(rr.Commands))
	}
	save, ok := rr.Commands[0].(CmdSaveButton)
	if !ok {
		t.Fatalf("expected CmdSaveButton, got %T", rr.Commands[0])
	}
	if save.Key != "BUTTON_7" {
		t.Errorf("expected key BUTTON_7, got %s", save.Key)
	}
}

func TestReducer_VolumeLargeJump(t *testing.T) {
	// Fast encoder spin skips intermediate positions; the burst covers the
	// full distance.
	state := &DeckState{LastVolume: 10}

	rr := Reduce(state, serialEvent("VOLUME_50"), testButtons())

	cmd, ok := findVolumeCmd(rr.Commands)
	if !ok {
		t.Fatal("expected a CmdVolumeKeys command")
	}
	if cmd.Direction != 1 || cmd.Count != 40 {
		t.Errorf("expected direction=1 count=40, got direction=%d count=%d", cmd.Direction, cmd.Count)
	}
}

// TestReducer_Scenario drives a realistic token sequence through the reducer
// and checks the cumulative state and command stream.
func TestReducer_Scenario(t *testing.T) {
	buttons := testButtons()
	state := &DeckState{}

	steps := []struct {
		raw        string
		wantVolume int
		wantMuted  bool
	}{
		{"VOLUME_5", 5, false},
		{"VOLUME_2", 2, false},
		{"MUTE", 2, true},
		{"BUTTON_1", 2, true},
		{"VOLUME_abc", 2, true},
		{"MUTE", 2, false},
	}

	var allCommands []Command
	for _, step := range steps {
		rr := Reduce(state, serialEvent(step.raw), buttons)
		state = rr.State
		allCommands = append(allCommands, rr.Commands...)

		if state.LastVolume != step.wantVolume {
			t.Errorf("%s: expected volume %d, got %d", step.raw, step.wantVolume, state.LastVolume)
		}
		if state.Muted != step.wantMuted {
			t.Errorf("%s: expected muted %v, got %v", step.raw, step.wantMuted, state.Muted)
		}
	}

	// 5 up, 3 down, mute, button, mute. The malformed token adds nothing.
	if len(allCommands) != 5 {
		t.Fatalf("expected 5 commands total, got %d", len(allCommands))
	}

	up := allCommands[0].(CmdVolumeKeys)
	if up.Direction != 1 || up.Count != 5 {
		t.Errorf("step 1: expected 5 up, got %+v", up)
	}
	down := allCommands[1].(CmdVolumeKeys)
	if down.Direction != -1 || down.Count != 3 {
		t.Errorf("step 2: expected 3 down, got %+v", down)
	}
	if _, ok := allCommands[2].(CmdMuteKey); !ok {
		t.Errorf("step 3: expected CmdMuteKey, got %T", allCommands[2])
	}
	if _, ok := allCommands[3].(CmdRunAction); !ok {
		t.Errorf("step 4: expected CmdRunAction, got %T", allCommands[3])
	}
	if _, ok := allCommands[4].(CmdMuteKey); !ok {
		t.Errorf("step 6: expected CmdMuteKey, got %T", allCommands[4])
	}
}
