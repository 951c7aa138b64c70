package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
)

// MPDSource reads playback state straight from MPD, for setups where the
// Volumio API is not available. MPD idle notifications for the player and
// mixer subsystems trigger a status poll; each poll becomes a PlaybackEvent.
type MPDSource struct {
	network  string
	addr     string
	password string
	logger   *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	events chan<- Event
}

// NewMPDSource prepares a source for MPD at addr ("host:port" over tcp, or a socket path over unix).
func NewMPDSource(network, addr, password string, logger *slog.Logger) *MPDSource {
	return &MPDSource{
		network:  network,
		addr:     addr,
		password: password,
		logger:   logger,
	}
}

func (s *MPDSource) Name() string { return sourceMPD }

// Run watches MPD until ctx is canceled.
func (s *MPDSource) Run(ctx context.Context, events chan<- Event) error {
	s.mu.Lock()
	s.ctx = ctx
	s.events = events
	s.mu.Unlock()

	w, err := mpd.NewWatcher(s.network, s.addr, s.password, "player", "mixer")
	if err != nil {
		return fmt.Errorf("mpd watcher %s: %w", s.addr, err)
	}
	defer w.Close()

	s.logger.Info("connected to mpd", "network", s.network, "addr", s.addr)
	emit(ctx, events, SourceConnected{Source: sourceMPD, At: time.Now()})

	for {
		select {
		case <-ctx.Done():
			return nil

		case subsystem, ok := <-w.Event:
			if !ok {
				emit(ctx, events, SourceDisconnected{Source: sourceMPD, At: time.Now()})
				return fmt.Errorf("mpd watcher closed")
			}
			s.logger.Debug("mpd idle event", "subsystem", subsystem)
			s.poll(ctx, events)

		case err, ok := <-w.Error:
			if ok {
				s.logger.Warn("mpd watcher error", "error", err)
			}
		}
	}
}

// RequestState polls MPD in the background; the result arrives as a PlaybackEvent.
func (s *MPDSource) RequestState() error {
	s.mu.Lock()
	ctx, events := s.ctx, s.events
	s.mu.Unlock()

	if events == nil {
		return fmt.Errorf("mpd source not running")
	}
	go s.poll(ctx, events)
	return nil
}

func (s *MPDSource) poll(ctx context.Context, events chan<- Event) {
	attrs, err := s.status()
	if err != nil {
		s.logger.Warn("mpd status failed", "error", err)
		return
	}
	ev := playbackFromMPDStatus(attrs)
	ev.At = time.Now()
	emit(ctx, events, ev)
}

// status runs one short-lived command connection.
func (s *MPDSource) status() (mpd.Attrs, error) {
	c, err := mpd.Dial(s.network, s.addr)
	if err != nil {
		return nil, fmt.Errorf("dial mpd: %w", err)
	}
	defer c.Close()

	if s.password != "" {
		if err := c.Command("password %s", s.password).OK(); err != nil {
			return nil, fmt.Errorf("mpd password: %w", err)
		}
	}
	attrs, err := c.Status()
	if err != nil {
		return nil, fmt.Errorf("mpd status: %w", err)
	}
	return attrs, nil
}

// playbackFromMPDStatus maps MPD's status attributes onto the bridge fields.
// MPD reports volume -1 when no mixer is available; that is Absent. MPD has
// no mute control, so mute is always false.
func playbackFromMPDStatus(attrs mpd.Attrs) PlaybackEvent {
	ev := PlaybackEvent{
		Volume: Absent[int](),
		Mute:   Present(false),
		Status: Absent[string](),
	}
	if st, ok := attrs["state"]; ok && st != "" {
		ev.Status = Present(st)
	}
	if raw, ok := attrs["volume"]; ok {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			ev.Volume = Present(v)
		}
	}
	return ev
}
