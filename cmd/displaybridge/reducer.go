package main

import "time"

// This file implements the reducer side of the bridge:
//
//   - Reduce(): computes next state + commands + broadcasts, without performing I/O
//   - statusToCode / volumeCode: display code resolution
//
// The daemon loop executes the commands (datagram sends, idle deadline,
// getState) and feeds any failures back in as events.

// DisplayConfig holds the display policy knobs used by the reducer.
type DisplayConfig struct {
	ActiveBrightness int
	DimBrightness    int
	IdleWindow       time.Duration
}

// DefaultDisplayConfig returns the fixed policy of the display hardware.
func DefaultDisplayConfig() DisplayConfig {
	return DisplayConfig{
		ActiveBrightness: defaultActiveBrightness,
		DimBrightness:    defaultDimBrightness,
		IdleWindow:       defaultIdleMS * time.Millisecond,
	}
}

// ReduceResult is the output of Reduce(): next state plus Commands to execute
// and Broadcasts for the display mirror.
type ReduceResult struct {
	State      *BridgeState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// statusToCode maps a player status onto its display icon.
func statusToCode(status string) int {
	switch status {
	case "play":
		return codePlay
	case "pause":
		return codePause
	case "stop":
		return codeStop
	default:
		return codeUnknown
	}
}

// volumeCode resolves the shared volume/mute slot. Mute wins over any volume;
// otherwise the raw volume is the code. Without a volume the status icon is used.
func volumeCode(volume Observed[int], mute Observed[bool], status Observed[string]) int {
	if m, ok := mute.Get(); ok && m {
		return codeMute
	}
	if v, ok := volume.Get(); ok {
		return v
	}
	return statusToCode(status.Value())
}

// volumeReason names which input volumeCode resolved from.
func volumeReason(volume Observed[int], mute Observed[bool]) string {
	if m, ok := mute.Get(); ok && m {
		return "mute"
	}
	if _, ok := volume.Get(); ok {
		return "volume"
	}
	return "status"
}

// Reduce is the pure reducer:
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Must not mutate anything outside the returned state
func Reduce(s *BridgeState, e Event, cfg DisplayConfig) ReduceResult {
	if s == nil {
		s = &BridgeState{}
	}

	var (
		cmds   []Command
		bcasts []StateBroadcast
	)

	send := func(code, brightness int, reason string, at time.Time) {
		msg := DisplayMessage{BmpNumber: code, Brightness: brightness}
		s.recordMessage(msg, reason, at)
		cmds = append(cmds, CmdSendDisplay{Message: msg, Reason: reason})
		bcasts = append(bcasts, BroadcastDisplayChanged{Message: msg, Reason: reason, At: at})
	}

	switch ev := e.(type) {
	case PlaybackEvent:
		statusChanged := !ev.Status.Equal(s.Status)
		volumeOrMuteChanged := !ev.Volume.Equal(s.Volume) || !ev.Mute.Equal(s.Mute)

		// Status first, then volume/mute. When both change the later code
		// wins and a single message goes out.
		code, reason := 0, ""
		if statusChanged {
			s.Status = ev.Status
			code, reason = statusToCode(ev.Status.Value()), "status"
		}
		if volumeOrMuteChanged {
			s.Volume = ev.Volume
			s.Mute = ev.Mute
			code, reason = volumeCode(s.Volume, s.Mute, s.Status), volumeReason(s.Volume, s.Mute)
		}
		if statusChanged || volumeOrMuteChanged {
			send(code, cfg.ActiveBrightness, reason, ev.At)
		}

		// Every processed event restarts the idle window, message or not.
		s.IdleGen++
		cmds = append(cmds, CmdArmIdle{Gen: s.IdleGen, After: cfg.IdleWindow})

	case IdleTimeout:
		if ev.Gen != s.IdleGen {
			// Superseded deadline that fired before it could be stopped.
			break
		}
		send(statusToCode(s.Status.Value()), cfg.DimBrightness, "idle", ev.At)

	case SourceConnected:
		s.Connected = true
		s.ConnectedAt = ev.At
		cmds = append(cmds, CmdRequestState{})

	case SourceDisconnected:
		s.Connected = false

	case DisplaySendFailed:
		s.SendFailures++

	case RequestDisplaySnapshot:
		cmds = append(cmds, CmdPublishSnapshot{Reply: ev.Reply, Snapshot: s.Snapshot()})

	default:
		// Unknown event type: no-op.
	}

	return ReduceResult{
		State:      s,
		Commands:   cmds,
		Broadcasts: bcasts,
	}
}
