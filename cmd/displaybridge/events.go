package main

import (
	"fmt"
	"time"
)

// ============================================================================
// Events - reducer inputs
// ============================================================================
// Events come from the player source (connect, pushState), the idle timer,
// the effects layer (send failures) and the display mirror (snapshot
// requests). All of them are funneled into the daemon goroutine.
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// PlaybackEvent carries one pushState payload. Fields the payload lacked
// (or that did not parse) are Absent.
type PlaybackEvent struct {
	Volume Observed[int]
	Mute   Observed[bool]
	Status Observed[string]
	At     time.Time
}

func (PlaybackEvent) eventMarker() {}

func (e PlaybackEvent) String() string {
	return fmt.Sprintf("PlaybackEvent(volume=%s mute=%s status=%s)",
		formatObserved(e.Volume), formatObserved(e.Mute), formatObserved(e.Status))
}

// IdleTimeout is delivered when the idle deadline with generation Gen elapses.
type IdleTimeout struct {
	Gen uint64
	At  time.Time
}

func (IdleTimeout) eventMarker() {}

// SourceConnected is emitted by a player source once its session is up.
type SourceConnected struct {
	Source string
	At     time.Time
}

func (SourceConnected) eventMarker() {}

// SourceDisconnected is emitted when a player source session ends.
type SourceDisconnected struct {
	Source string
	Err    error
	At     time.Time
}

func (SourceDisconnected) eventMarker() {}

// DisplaySendFailed is emitted by the effects layer when a datagram could not be handed off.
type DisplaySendFailed struct {
	Message DisplayMessage
	Err     error
	At      time.Time
}

func (DisplaySendFailed) eventMarker() {}

// RequestDisplaySnapshot asks the daemon for the last message sent.
// The reply goes through the effects layer so the reducer stays pure.
type RequestDisplaySnapshot struct {
	Reply chan<- DisplaySnapshot
}

func (RequestDisplaySnapshot) eventMarker() {}

func formatObserved[T comparable](o Observed[T]) string {
	switch o.state {
	case fieldPresent:
		return fmt.Sprint(o.value)
	case fieldAbsent:
		return "<absent>"
	default:
		return "<unseen>"
	}
}
