package main

import "time"

// fieldState distinguishes "never observed" from "observed but missing".
type fieldState uint8

const (
	fieldUnseen fieldState = iota
	fieldAbsent
	fieldPresent
)

// Observed is one cached playback field.
//
// The zero value is the unseen sentinel the bridge starts with. Incoming
// payloads only ever produce absent or present values, so the first event
// always compares unequal to the cache.
type Observed[T comparable] struct {
	state fieldState
	value T
}

// Present returns an observed field carrying v.
func Present[T comparable](v T) Observed[T] {
	return Observed[T]{state: fieldPresent, value: v}
}

// Absent returns an observed field for a payload that lacked it.
func Absent[T comparable]() Observed[T] {
	return Observed[T]{state: fieldAbsent}
}

// Get returns the value and whether one is present.
func (o Observed[T]) Get() (T, bool) {
	return o.value, o.state == fieldPresent
}

// Value returns the value, or the zero value when none is present.
func (o Observed[T]) Value() T {
	return o.value
}

// Seen reports whether the field was ever observed.
func (o Observed[T]) Seen() bool {
	return o.state != fieldUnseen
}

// Equal reports whether two observations match. Values only matter when
// both sides are present.
func (o Observed[T]) Equal(other Observed[T]) bool {
	if o.state != other.state {
		return false
	}
	return o.state != fieldPresent || o.value == other.value
}

// BridgeState is the daemon-owned state container.
//
// Only the daemon goroutine touches it, through Reduce. Volume, mute and
// status are cached independently; a status-only change never rewrites
// volume/mute and vice versa.
type BridgeState struct {
	Volume Observed[int]
	Mute   Observed[bool]
	Status Observed[string]

	// IdleGen identifies the one live idle deadline. Any IdleTimeout carrying
	// another generation was superseded and is ignored.
	IdleGen uint64

	// Source connection as last reported by the event source.
	Connected   bool
	ConnectedAt time.Time

	// Last display message handed to the sender. Kept for mirror snapshots.
	LastMessage   *DisplayMessage
	LastReason    string
	LastMessageAt time.Time

	SendFailures int
}

// DisplaySnapshot is an immutable copy of what the display was last told.
type DisplaySnapshot struct {
	Message   DisplayMessage
	Reason    string
	At        time.Time
	Known     bool
	Connected bool
}

// Snapshot copies the display-facing part of the state.
func (s *BridgeState) Snapshot() DisplaySnapshot {
	snap := DisplaySnapshot{Connected: s.Connected}
	if s.LastMessage != nil {
		snap.Message = *s.LastMessage
		snap.Reason = s.LastReason
		snap.At = s.LastMessageAt
		snap.Known = true
	}
	return snap
}

// recordMessage remembers the message about to be sent.
func (s *BridgeState) recordMessage(msg DisplayMessage, reason string, at time.Time) {
	m := msg
	s.LastMessage = &m
	s.LastReason = reason
	s.LastMessageAt = at
}
