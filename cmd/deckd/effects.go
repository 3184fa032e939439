package main

import (
	"log/slog"
	"time"
)

// EffectRunner executes reducer-emitted Commands. It is the only place in the
// dispatcher that performs I/O (key synthesis, process spawning, button map
// persistence).
//
// Design rules:
//   - It must never call Reduce() directly; it only emits observation Events
//     via onEvent, to be reduced by the dispatch loop.
//   - Action execution is fire-and-forget: spawned processes are not waited
//     on, so dispatch never stalls longer than the OS calls themselves take.
type EffectRunner struct {
	executor *ActionExecutor
	keyboard Keyboard
	store    *ButtonStore
	keyDelay time.Duration
	logger   *slog.Logger
}

// NewEffectRunner wires the effect dependencies.
func NewEffectRunner(executor *ActionExecutor, keyboard Keyboard, store *ButtonStore, keyDelay time.Duration, logger *slog.Logger) *EffectRunner {
	return &EffectRunner{
		executor: executor,
		keyboard: keyboard,
		store:    store,
		keyDelay: keyDelay,
		logger:   logger,
	}
}

// Run executes one Command, emitting observation events via onEvent.
func (r *EffectRunner) Run(cmd Command, onEvent func(Event)) {
	if onEvent == nil {
		onEvent = func(Event) {}
	}

	switch c := cmd.(type) {
	case CmdVolumeKeys:
		key := keyVolumeUp
		if c.Direction < 0 {
			key = keyVolumeDown
		}
		for i := 0; i < c.Count; i++ {
			if err := r.keyboard.Tap(key); err != nil {
				r.logger.Error("volume key synthesis failed", "error", err, "key", key)
				return
			}
			// Spacing keeps the OS from coalescing the burst into one step.
			time.Sleep(r.keyDelay)
		}
		r.logger.Debug("volume adjusted", "direction", c.Direction, "steps", c.Count)

	case CmdMuteKey:
		if err := r.keyboard.Tap(keyMute); err != nil {
			r.logger.Error("mute key synthesis failed", "error", err)
		}

	case CmdMediaKey:
		if err := r.keyboard.Tap(keyPlayPause); err != nil {
			r.logger.Error("media key synthesis failed", "error", err)
		}

	case CmdRunAction:
		kind := describeAction(c.Action)
		if err := r.executor.Execute(c.Action); err != nil {
			r.logger.Error("action failed", "key", c.Key, "kind", kind, "error", err)
			onEvent(ActionFailed{Key: c.Key, Kind: kind, Err: err.Error()})
			return
		}
		onEvent(ActionDispatched{Key: c.Key, Kind: kind})

	case CmdSaveButton:
		if err := r.store.Set(c.Key, c.Action); err != nil {
			r.logger.Error("button save failed", "key", c.Key, "error", err)
			onEvent(ButtonStoreFailed{Op: "save", Err: err.Error()})
			return
		}
		onEvent(ButtonsChanged{Keys: r.store.Keys()})

	case CmdReloadButtons:
		if err := r.store.Reload(); err != nil {
			r.logger.Error("button reload failed", "error", err)
			onEvent(ButtonStoreFailed{Op: "reload", Err: err.Error()})
			return
		}
		onEvent(ButtonsChanged{Keys: r.store.Keys()})

	default:
		r.logger.Warn("unknown command", "command", cmd.String())
	}
}
