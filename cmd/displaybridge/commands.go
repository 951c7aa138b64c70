package main

import (
	"fmt"
	"time"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the daemon loop:
// a datagram to the display, an idle deadline, or a request to the player.
type Command interface {
	commandMarker()
	String() string
}

// CmdSendDisplay hands one message to the datagram sender.
type CmdSendDisplay struct {
	Message DisplayMessage
	Reason  string // "status", "volume", "mute" or "idle"
}

func (CmdSendDisplay) commandMarker() {}
func (c CmdSendDisplay) String() string {
	return fmt.Sprintf("CmdSendDisplay(%s reason=%s)", c.Message, c.Reason)
}

// CmdArmIdle replaces the pending idle deadline with a new one.
type CmdArmIdle struct {
	Gen   uint64
	After time.Duration
}

func (CmdArmIdle) commandMarker() {}
func (c CmdArmIdle) String() string {
	return fmt.Sprintf("CmdArmIdle(gen=%d after=%s)", c.Gen, c.After)
}

// CmdRequestState asks the player for its current state (getState).
// The answer, if any, arrives as an ordinary PlaybackEvent.
type CmdRequestState struct{}

func (CmdRequestState) commandMarker() {}
func (CmdRequestState) String() string { return "CmdRequestState()" }

// CmdPublishSnapshot delivers a snapshot to a RequestDisplaySnapshot requester.
type CmdPublishSnapshot struct {
	Reply    chan<- DisplaySnapshot
	Snapshot DisplaySnapshot
}

func (CmdPublishSnapshot) commandMarker() {}
func (CmdPublishSnapshot) String() string { return "CmdPublishSnapshot()" }

// ==============================
// Broadcasts (state fan-out)
// ==============================

// StateBroadcast is a reducer-emitted notification for the display mirror.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastDisplayChanged mirrors a message that was handed to the sender.
type BroadcastDisplayChanged struct {
	Message DisplayMessage
	Reason  string
	At      time.Time
}

func (BroadcastDisplayChanged) broadcastMarker() {}
