package main

import "context"

// StateRequester is the part of a player source the effects layer uses.
type StateRequester interface {
	// RequestState asks the player to publish its current state. It must not
	// block on the reply; any answer arrives as a PlaybackEvent.
	RequestState() error
	Name() string
}

// PlayerSource produces playback events until ctx is canceled.
type PlayerSource interface {
	StateRequester
	Run(ctx context.Context, events chan<- Event) error
}

// emit queues ev unless the source is shutting down.
func emit(ctx context.Context, events chan<- Event, ev Event) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}
