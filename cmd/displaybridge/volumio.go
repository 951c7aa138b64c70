package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"
)

// Volumio realtime API event names.
const (
	volumioEventPushState = "pushState"
	volumioEventGetState  = "getState"
)

// VolumioSource turns Volumio's Socket.IO pushState events into PlaybackEvents.
type VolumioSource struct {
	client *SocketIOClient
	logger *slog.Logger
}

// NewVolumioSource prepares a source for the Volumio instance at baseURL
// (e.g. http://localhost:3000). Nothing is dialed until Run.
func NewVolumioSource(baseURL string, logger *slog.Logger) (*VolumioSource, error) {
	client, err := NewSocketIOClient(baseURL, logger)
	if err != nil {
		return nil, err
	}
	return &VolumioSource{client: client, logger: logger}, nil
}

func (s *VolumioSource) Name() string { return sourceVolumio }

// RequestState emits getState. Volumio answers with a pushState.
func (s *VolumioSource) RequestState() error {
	// Volumio ignores the argument; an empty string keeps the frame a plain two-element array.
	return s.client.Emit(volumioEventGetState, "")
}

// Run connects to Volumio and forwards events until ctx is canceled.
func (s *VolumioSource) Run(ctx context.Context, events chan<- Event) error {
	s.client.OnConnect(func() {
		emit(ctx, events, SourceConnected{Source: sourceVolumio, At: time.Now()})
	})
	s.client.OnDisconnect(func(err error) {
		emit(ctx, events, SourceDisconnected{Source: sourceVolumio, Err: err, At: time.Now()})
	})
	s.client.On(volumioEventPushState, func(payload json.RawMessage) {
		ev := decodePushState(payload)
		ev.At = time.Now()
		emit(ctx, events, ev)
	})

	s.logger.Info("connecting to volumio", "url", s.client.URL())
	return s.client.Run(ctx)
}

// decodePushState reads volume, mute and status from a pushState payload.
// Anything missing, null or of the wrong type is Absent; the rest of the
// payload is ignored.
func decodePushState(raw json.RawMessage) PlaybackEvent {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		fields = nil
	}
	return PlaybackEvent{
		Volume: decodeVolume(fields),
		Mute:   decodeField[bool](fields, "mute"),
		Status: decodeField[string](fields, "status"),
	}
}

func decodeField[T comparable](fields map[string]json.RawMessage, key string) Observed[T] {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return Absent[T]()
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return Absent[T]()
	}
	return Present(v)
}

// decodeVolume accepts any integral JSON number, so 50 and 50.0 both give 50.
// Fractional or out-of-range values are Absent.
func decodeVolume(fields map[string]json.RawMessage) Observed[int] {
	f := decodeField[float64](fields, "volume")
	v, ok := f.Get()
	if !ok || v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
		return Absent[int]()
	}
	return Present(int(v))
}
