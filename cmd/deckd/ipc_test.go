package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func startTestIPCServer(t *testing.T) (string, chan Event) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "deckd.sock")
	events := make(chan Event, eventQueueSize)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = runIPCServer(ctx, socketPath, events, testLogger())
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("IPC server did not stop in time")
		}
	})

	// Wait for the socket to appear.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := SendIPCEvent(socketPath, SerialLine{Raw: "PING"}); err == nil {
			<-events // drain the probe
			return socketPath, events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("IPC server never became reachable")
	return "", nil
}

func TestIPC_SimulateLine(t *testing.T) {
	socketPath, events := startTestIPCServer(t)

	if err := SendIPCEvent(socketPath, SerialLine{Raw: "VOLUME_9"}); err != nil {
		t.Fatalf("SendIPCEvent: %v", err)
	}

	select {
	case ev := <-events:
		line, ok := ev.(SerialLine)
		if !ok {
			t.Fatalf("expected SerialLine, got %T", ev)
		}
		if line.Raw != "VOLUME_9" {
			t.Errorf("expected VOLUME_9, got %s", line.Raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never arrived")
	}
}

func TestIPC_SetButton(t *testing.T) {
	socketPath, events := startTestIPCServer(t)

	edit := ButtonEdit{Key: "BUTTON_5", Action: LaunchExecutable{Path: "/usr/bin/obs"}}
	if err := SendIPCEvent(socketPath, edit); err != nil {
		t.Fatalf("SendIPCEvent: %v", err)
	}

	select {
	case ev := <-events:
		got, ok := ev.(ButtonEdit)
		if !ok {
			t.Fatalf("expected ButtonEdit, got %T", ev)
		}
		if got.Key != edit.Key || got.Action != edit.Action {
			t.Errorf("expected %+v, got %+v", edit, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never arrived")
	}
}

func TestIPC_RejectsInvalidEvent(t *testing.T) {
	socketPath, _ := startTestIPCServer(t)

	// An empty simulated line fails envelope validation; the daemon responds
	// with an error instead of enqueueing anything.
	err := SendIPCEvent(socketPath, SerialLine{Raw: ""})
	if err == nil {
		t.Fatal("expected an error response for an empty line")
	}
}
