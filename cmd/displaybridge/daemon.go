package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Central Daemon Loop - the event bridge
// ============================================================================
//
// Design rules enforced here:
//   - The reducer performs no I/O and computes: next state + commands + broadcasts.
//   - The daemon loop is the only place that executes side effects.
//   - Effect failures are turned into Events and fed back into the reducer.
//   - Exactly one goroutine owns BridgeState; sources, the idle timer and the
//     mirror only ever send Events.
//
// ============================================================================

// daemonDeps are the collaborators the daemon loop drives.
type daemonDeps struct {
	Sender DisplaySender
	Source StateRequester

	// Broadcasts, if non-nil, receives reducer broadcasts for the display mirror.
	// Sends never block; a full channel drops the broadcast.
	Broadcasts chan<- StateBroadcast
}

// runDaemon is the main daemon loop that:
//   - Receives Events from the player source and the mirror
//   - Receives IdleTimeout events from its own idle timer
//   - Reduces events into (state, commands, broadcasts)
//   - Executes commands and feeds observations back into the reducer
//
// Shutdown semantics:
//   - Exits when ctx is canceled
//   - Exits cleanly when the events channel is closed
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	deps daemonDeps,
	cfg DisplayConfig,
	state *BridgeState,
	logger *slog.Logger,
) {
	if state == nil {
		state = &BridgeState{}
	}

	// Idle deadlines arrive on their own channel so the timer never competes
	// with sources for queue space.
	idleCh := make(chan IdleTimeout, 1)
	idle := newIdleTimer(func(gen uint64) {
		select {
		case idleCh <- IdleTimeout{Gen: gen, At: time.Now()}:
		case <-ctx.Done():
		}
	})
	defer idle.Stop()

	env := effectEnv{
		sender: deps.Sender,
		source: deps.Source,
		idle:   idle,
	}

	// Explicit queues:
	// - eventQueue holds events awaiting reduction
	// - cmdQueue holds commands awaiting execution
	var eventQueue []Event
	var cmdQueue []Command

	enqueueEvent := func(ev Event) {
		eventQueue = append(eventQueue, ev)
	}

	publish := func(bcasts []StateBroadcast) {
		if deps.Broadcasts == nil {
			return
		}
		for _, b := range bcasts {
			select {
			case deps.Broadcasts <- b:
			default:
				logger.Warn("display broadcast queue full, dropping broadcast")
			}
		}
	}

	// Reduce all queued events, enqueuing any resulting commands.
	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			rr := Reduce(state, ev, cfg)
			if rr.State != nil {
				state = rr.State
			}
			cmdQueue = append(cmdQueue, rr.Commands...)
			publish(rr.Broadcasts)
		}
	}

	// Execute all queued commands, enqueuing observation events.
	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			runEffect(env, cmd, logger, enqueueEvent)
			flushEvents()
		}
	}

	process := func(ev Event) {
		enqueueEvent(ev)
		flushEvents()
		flushCommands()
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}
			logger.Debug("event", "type", eventName(ev))
			process(ev)

		case ev := <-idleCh:
			process(ev)
		}
	}
}

func eventName(ev Event) string {
	switch e := ev.(type) {
	case PlaybackEvent:
		return e.String()
	case SourceConnected:
		return "SourceConnected(" + e.Source + ")"
	case SourceDisconnected:
		return "SourceDisconnected(" + e.Source + ")"
	case RequestDisplaySnapshot:
		return "RequestDisplaySnapshot"
	default:
		return "unknown"
	}
}
