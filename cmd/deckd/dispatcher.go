package main

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ============================================================================
// Serial Dispatcher
// ============================================================================
// One background reader goroutine owns the serial session for its entire
// lifetime: connect, read lines, reconnect with a fixed backoff on failure,
// indefinitely, until the context is canceled. It emits Events into the
// dispatch queue.
//
// The dispatch loop consumes that queue (plus IPC-injected events) in strict
// arrival order, runs the reducer, executes the resulting commands, and fans
// broadcasts out to observers. Observation events produced by effects are
// reduced promptly via explicit queues so state stays coherent; no nested or
// re-entrant reduction happens.
// ============================================================================

// Dispatcher runs the serial read loop and the event dispatch loop.
type Dispatcher struct {
	link       SerialLink
	portName   string
	retryDelay time.Duration

	store   *ButtonStore
	effects *EffectRunner
	logger  *slog.Logger

	state  *DeckState
	events chan Event

	// broadcast receives every reducer-emitted Broadcast; wired to the
	// websocket hub and MQTT publisher. May be nil.
	broadcast func(Broadcast)
}

// NewDispatcher wires a dispatcher. broadcast may be nil.
func NewDispatcher(link SerialLink, portName string, retryDelay time.Duration, store *ButtonStore, effects *EffectRunner, broadcast func(Broadcast), logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		link:       link,
		portName:   portName,
		retryDelay: retryDelay,
		store:      store,
		effects:    effects,
		logger:     logger,
		state:      &DeckState{},
		events:     make(chan Event, eventQueueSize),
		broadcast:  broadcast,
	}
}

// Events exposes the dispatch queue for external producers (IPC server).
func (d *Dispatcher) Events() chan<- Event {
	return d.events
}

// State returns a copy of the current deck state. Safe only from the dispatch
// goroutine or before Run starts; external observers use Broadcasts instead.
func (d *Dispatcher) State() DeckState {
	return *d.state
}

// Run executes the dispatcher until ctx is canceled. It starts the serial
// reader goroutine, consumes events in arrival order, and waits for the
// reader to close the session before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		d.runReader(ctx)
	}()

	// Explicit queues: eventQueue holds events awaiting reduction, cmdQueue
	// holds commands awaiting execution.
	var eventQueue []Event
	var cmdQueue []Command

	enqueueEvent := func(ev Event) {
		eventQueue = append(eventQueue, ev)
	}

	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			rr := Reduce(d.state, ev, d.store.Snapshot())
			if rr.State != nil {
				d.state = rr.State
			}
			cmdQueue = append(cmdQueue, rr.Commands...)

			for _, b := range rr.Broadcasts {
				d.logBroadcast(b)
				if d.broadcast != nil {
					d.broadcast(b)
				}
			}
		}
	}

	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			d.effects.Run(cmd, func(obs Event) {
				enqueueEvent(obs)
			})

			// Reduce observations promptly so state stays coherent and
			// follow-up broadcasts go out in order.
			flushEvents()
		}
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping (context canceled)")
			<-readerDone
			return nil

		case ev := <-d.events:
			enqueueEvent(ev)
			flushEvents()
			flushCommands()
		}
	}
}

// runReader owns the serial session: connect with retry, read lines,
// reconnect on loss. It closes the link unconditionally before returning.
func (d *Dispatcher) runReader(ctx context.Context) {
	defer func() {
		_ = d.link.Close()
		d.logger.Info("serial reader stopped")
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		if err := d.link.Connect(); err != nil {
			d.logger.Warn("serial connect failed, retrying",
				"port", d.portName, "retry_delay", d.retryDelay, "error", err)
			if !sleepCtx(ctx, d.retryDelay) {
				return
			}
			continue
		}

		d.logger.Info("serial connected", "port", d.portName)
		d.send(ctx, LinkUp{Port: d.portName})

		if !d.readLoop(ctx) {
			return
		}

		// Lost session: wait out the backoff, then reconnect.
		if !sleepCtx(ctx, d.retryDelay) {
			return
		}
	}
}

// readLoop reads lines until the session is lost (returns true) or ctx is
// canceled (returns false). Timeouts are the normal idle condition; the
// cancellation check runs at every iteration boundary, never mid-read.
func (d *Dispatcher) readLoop(ctx context.Context) bool {
	for {
		if ctx.Err() != nil {
			return false
		}

		line, err := d.link.ReadLine()
		if errors.Is(err, ErrReadTimeout) {
			continue
		}
		if err != nil {
			d.logger.Warn("serial session lost", "port", d.portName, "error", err)
			_ = d.link.Close()
			d.send(ctx, LinkDown{Reason: err.Error()})
			return true
		}
		if line == "" {
			continue
		}

		d.send(ctx, SerialLine{Raw: line, At: time.Now()})
	}
}

// send enqueues an event, aborting if ctx is canceled while the queue is full.
func (d *Dispatcher) send(ctx context.Context, ev Event) {
	select {
	case d.events <- ev:
	case <-ctx.Done():
	}
}

// logBroadcast gives every broadcast its log line. Malformed volume tokens
// warn; unmapped tokens stay low-noise since custom firmware may emit extras.
func (d *Dispatcher) logBroadcast(b Broadcast) {
	switch b := b.(type) {
	case BroadcastSerialLine:
		d.logger.Debug("serial line", "line", b.Raw)
	case BroadcastVolumeChanged:
		d.logger.Info("volume adjusted", "delta", b.Delta, "position", b.Volume)
	case BroadcastMuteChanged:
		d.logger.Info("mute toggled", "muted", b.Muted)
	case BroadcastMediaToggled:
		d.logger.Info("media play/pause triggered")
	case BroadcastActionDispatched:
		d.logger.Info("action dispatched", "key", b.Key, "kind", b.Kind)
	case BroadcastActionFailed:
		d.logger.Warn("action failed", "key", b.Key, "kind", b.Kind, "error", b.Err)
	case BroadcastTokenDiscarded:
		if b.Reason == "malformed_volume" {
			d.logger.Warn("invalid volume value", "line", b.Raw)
		} else {
			d.logger.Debug("no action configured", "line", b.Raw)
		}
	case BroadcastLinkStatus:
		// Connect/disconnect already logged by the reader.
	case BroadcastButtonsChanged:
		d.logger.Debug("button map changed", "buttons", len(b.Keys))
	case BroadcastStoreError:
		d.logger.Warn("button store error", "op", b.Op, "error", b.Err)
	}
}

// sleepCtx sleeps for delay unless ctx is canceled first. Returns false on
// cancellation so callers can exit at the boundary instead of waiting out the
// backoff.
func sleepCtx(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
