package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// Display mirror: fan-out hub + per-viewer loops + broadcaster + HTTP server
// ============================================================================
//
// A software copy of the physical display. Every message the bridge sends to
// the display driver is also sent to WebSocket viewers.
//
// Design constraints:
//   - BridgeState remains daemon-owned; the initial snapshot on connect goes
//     through the reducer as a RequestDisplaySnapshot event.
//   - Broadcasts originate from ReduceResult.Broadcasts.
//   - A viewer that falls behind is dropped.
//
// Messages are JSON text frames with an envelope: {type, ts, data}.
// ============================================================================

// wsDisplayData is the JSON `data` payload for "display" and "display_init".
type wsDisplayData struct {
	BmpNumber  int    `json:"bmp_number"`
	Brightness int    `json:"brightness"`
	Reason     string `json:"reason,omitempty"`
	Known      bool   `json:"known"`
	Connected  *bool  `json:"connected,omitempty"`
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

// ============================================================================
// Fan-out
// ============================================================================

// mirrorHub owns the set of connected viewers and copies every display frame
// to each of them. A viewer whose queue is full is dropped, never waited on.
type mirrorHub struct {
	logger *slog.Logger

	frames chan []byte
	join   chan *viewer
	leave  chan *viewer

	mu      sync.Mutex
	viewers map[*viewer]struct{}

	queueLen int
}

// MirrorBuffers sizes the mirror queues. Zero values pick the defaults.
type MirrorBuffers struct {
	PerViewer int // frames queued per viewer (default 16)
	Fanout    int // frames waiting for fan-out (default 64)
}

func newMirrorHub(logger *slog.Logger, buf MirrorBuffers) *mirrorHub {
	if buf.PerViewer <= 0 {
		buf.PerViewer = 16
	}
	if buf.Fanout <= 0 {
		buf.Fanout = 64
	}
	return &mirrorHub{
		logger:   logger,
		frames:   make(chan []byte, buf.Fanout),
		join:     make(chan *viewer, 16),
		leave:    make(chan *viewer, 16),
		viewers:  make(map[*viewer]struct{}),
		queueLen: buf.PerViewer,
	}
}

// Run fans frames out until ctx is canceled, then drops every viewer.
func (h *mirrorHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			all := make([]*viewer, 0, len(h.viewers))
			for v := range h.viewers {
				all = append(all, v)
			}
			h.mu.Unlock()
			for _, v := range all {
				h.drop(v, "shutdown")
			}
			return

		case v := <-h.join:
			h.mu.Lock()
			h.viewers[v] = struct{}{}
			h.mu.Unlock()
			h.logger.Info("mirror viewer joined", "remote_addr", v.remoteAddr)

		case v := <-h.leave:
			h.drop(v, "gone")

		case frame := <-h.frames:
			h.mu.Lock()
			var stalled []*viewer
			for v := range h.viewers {
				select {
				case v.queue <- frame:
				default:
					stalled = append(stalled, v)
				}
			}
			h.mu.Unlock()
			for _, v := range stalled {
				h.drop(v, "stalled")
			}
		}
	}
}

// drop forgets v, closes its connection and ends its writer.
func (h *mirrorHub) drop(v *viewer, why string) {
	h.mu.Lock()
	_, known := h.viewers[v]
	delete(h.viewers, v)
	h.mu.Unlock()
	if !known {
		return
	}

	if v.conn != nil {
		_ = v.conn.Close()
	}
	v.closeOnce.Do(func() { close(v.queue) })
	h.logger.Info("mirror viewer dropped", "remote_addr", v.remoteAddr, "reason", why)
}

// publish queues a frame for fan-out without blocking the caller.
func (h *mirrorHub) publish(frame []byte) {
	select {
	case h.frames <- frame:
	default:
		h.logger.Warn("mirror fan-out queue full, dropping frame", "bytes", len(frame))
	}
}

// viewer is one WebSocket client of the display mirror.
type viewer struct {
	hub        *mirrorHub
	conn       *websocket.Conn
	queue      chan []byte
	closeOnce  sync.Once
	remoteAddr string
	logger     *slog.Logger
}

func newViewer(hub *mirrorHub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *viewer {
	return &viewer{
		hub:        hub,
		conn:       conn,
		queue:      make(chan []byte, hub.queueLen),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	mirrorWriteWait  = 5 * time.Second
	mirrorPongWait   = 30 * time.Second
	mirrorPingPeriod = 20 * time.Second
)

// writeLoop sends queued frames and keepalive pings until the queue closes.
func (v *viewer) writeLoop() {
	ping := time.NewTicker(mirrorPingPeriod)
	defer ping.Stop()

	for {
		var (
			kind    int
			payload []byte
		)
		select {
		case frame, ok := <-v.queue:
			if !ok {
				_ = v.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(mirrorWriteWait))
				return
			}
			kind, payload = websocket.TextMessage, frame
		case <-ping.C:
			kind = websocket.PingMessage
		}

		_ = v.conn.SetWriteDeadline(time.Now().Add(mirrorWriteWait))
		if err := v.conn.WriteMessage(kind, payload); err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) {
				v.logger.Debug("mirror write failed", "remote_addr", v.remoteAddr, "error", err)
			}
			return
		}
	}
}

// readLoop only services pongs and notices the peer going away; viewers
// have nothing to say to the bridge.
func (v *viewer) readLoop() {
	_ = v.conn.SetReadDeadline(time.Now().Add(mirrorPongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(mirrorPongWait))
	})

	for {
		if _, _, err := v.conn.NextReader(); err != nil {
			v.logger.Debug("mirror read ended", "remote_addr", v.remoteAddr, "error", err)
			v.hub.leave <- v
			return
		}
	}
}

// ============================================================================
// HTTP handler
// ============================================================================

// MirrorServer serves the display mirror over WebSocket.
type MirrorServer struct {
	logger *slog.Logger
	hub    *mirrorHub
	events chan<- Event
}

// NewMirrorServer wires a hub to the daemon's event queue.
func NewMirrorServer(logger *slog.Logger, events chan<- Event, buf MirrorBuffers) *MirrorServer {
	return &MirrorServer{
		logger: logger,
		hub:    newMirrorHub(logger, buf),
		events: events,
	}
}

// Run drives the fan-out until ctx is canceled.
func (s *MirrorServer) Run(ctx context.Context) { s.hub.Run(ctx) }

// Register registers the WS handler on mux.
func (s *MirrorServer) Register(mux *http.ServeMux, path string) {
	mux.HandleFunc(path, s.handleDisplayWS)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleDisplayWS upgrades and registers a viewer, queueing display_init first.
//
// The snapshot is queued before the viewer joins, so display_init is always
// the first frame and the hub cannot have closed the queue yet.
func (s *MirrorServer) handleDisplayWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("mirror upgrade failed", "error", err)
		return
	}

	v := newViewer(s.hub, conn, r.RemoteAddr, s.logger)

	if msg, err := s.requestSnapshot(r.Context()); err != nil {
		s.logger.Warn("mirror snapshot request failed", "remote_addr", v.remoteAddr, "error", err)
	} else {
		v.queue <- msg
	}

	s.hub.join <- v

	// The loops outlive the request; the hub owns the connection from here on.
	go v.writeLoop()
	go v.readLoop()
}

// requestSnapshot asks the daemon for the current display and encodes it.
func (s *MirrorServer) requestSnapshot(ctx context.Context) ([]byte, error) {
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	reply := make(chan DisplaySnapshot, 1)
	select {
	case <-waitCtx.Done():
		return nil, waitCtx.Err()
	case s.events <- RequestDisplaySnapshot{Reply: reply}:
	}

	select {
	case <-waitCtx.Done():
		return nil, waitCtx.Err()
	case snap := <-reply:
		return encodeSnapshot(snap, time.Now().UTC())
	}
}

func encodeSnapshot(snap DisplaySnapshot, now time.Time) ([]byte, error) {
	connected := snap.Connected
	return json.Marshal(envelope{
		Type: "display_init",
		Ts:   &now,
		Data: wsDisplayData{
			BmpNumber:  snap.Message.BmpNumber,
			Brightness: snap.Message.Brightness,
			Reason:     snap.Reason,
			Known:      snap.Known,
			Connected:  &connected,
		},
	})
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster marshals reducer broadcasts into "display" frames for the mirror.
func (s *MirrorServer) RunBroadcaster(ctx context.Context, src <-chan StateBroadcast) {
	for {
		select {
		case <-ctx.Done():
			return

		case b, ok := <-src:
			if !ok {
				return
			}
			ev, ok := b.(BroadcastDisplayChanged)
			if !ok {
				continue
			}
			ts := ev.At
			if ts.IsZero() {
				ts = time.Now().UTC()
			}
			msg, err := json.Marshal(envelope{
				Type: "display",
				Ts:   &ts,
				Data: wsDisplayData{
					BmpNumber:  ev.Message.BmpNumber,
					Brightness: ev.Message.Brightness,
					Reason:     ev.Reason,
					Known:      true,
				},
			})
			if err != nil {
				s.logger.Warn("mirror broadcaster marshal failed", "error", err)
				continue
			}
			s.hub.publish(msg)
		}
	}
}

// ============================================================================
// HTTP server
// ============================================================================

// runMirrorServer serves handler on addr and shuts it down gracefully when ctx is canceled.
func runMirrorServer(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	logger.Info("display mirror listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
