package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	flag "github.com/spf13/pflag"
)

// ============================================================================
// display-listen - stand-in display driver and mirror watcher
// ============================================================================
// Default mode binds the display socket and prints every datagram, exactly
// what the display driver would receive:
//
//   display-listen --socket /tmp/volumio.sock
//
// With --mirror it instead follows displaybridge's WebSocket display mirror:
//
//   display-listen --mirror ws://volumio.local:8090/ws/display
// ============================================================================

// displayMessage mirrors the datagram payload (duplicated for a standalone binary).
type displayMessage struct {
	BmpNumber  *int `json:"bmp_number"`
	Brightness *int `json:"brightness"`
}

func main() {
	var (
		socketPath = flag.StringP("socket", "s", "/tmp/volumio.sock", "Datagram socket path to bind")
		mirrorURL  = flag.String("mirror", "", "Follow a display mirror WebSocket URL instead of binding the socket")
	)
	flag.Parse()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	var err error
	if *mirrorURL != "" {
		err = followMirror(*mirrorURL, sigc)
	} else {
		err = listenDatagrams(*socketPath, sigc)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}

// listenDatagrams binds path and prints datagrams until a signal arrives.
func listenDatagrams(path string, sigc <-chan os.Signal) error {
	if err := prepareSocketPath(path); err != nil {
		return err
	}

	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		return fmt.Errorf("listen on %s: %w", path, err)
	}
	defer os.Remove(path)

	// Writers run as other users on the target device.
	if err := os.Chmod(path, 0o666); err != nil {
		log.Printf("warning: failed to chmod socket: %v", err)
	}

	log.Printf("listening on %s (press Ctrl+C to exit)", path)

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					log.Printf("read error: %v", err)
				}
				return
			}
			printDatagram(buf[:n])
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		conn.Close()
		<-done
	case <-done:
		conn.Close()
	}
	return nil
}

// prepareSocketPath refuses a path a live receiver (the real display driver)
// is bound to, and removes a socket left over from a previous run.
func prepareSocketPath(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}

	conn, err := net.Dial("unixgram", path)
	if err == nil {
		conn.Close()
		return fmt.Errorf("%s is in use by another receiver", path)
	}
	if !errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("dial %s: %w", path, err)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

func printDatagram(b []byte) {
	ts := time.Now().Format("15:04:05.000")

	var m displayMessage
	if err := json.Unmarshal(b, &m); err != nil || m.BmpNumber == nil || m.Brightness == nil {
		// The driver ignores these; show them so they stand out.
		fmt.Printf("%s [INVALID] %q\n", ts, b)
		return
	}
	fmt.Printf("%s [DISPLAY] bmp=%-3d brightness=%-3d %s\n", ts, *m.BmpNumber, *m.Brightness, describeCode(*m.BmpNumber))
}

// describeCode names the icon a display code selects.
func describeCode(code int) string {
	switch {
	case code >= 0 && code <= 100:
		if code == 100 {
			return "(volume 100 / unknown)"
		}
		return fmt.Sprintf("(volume %d)", code)
	case code == 101:
		return "(play)"
	case code == 102:
		return "(pause)"
	case code == 103:
		return "(stop)"
	case code == 104:
		return "(mute)"
	default:
		return "(out of range)"
	}
}

// followMirror prints display frames from the WebSocket mirror until a signal arrives.
func followMirror(rawURL string, sigc <-chan os.Signal) error {
	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", rawURL)
	conn, _, err := d.Dial(rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			printMirrorFrame(message)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
	return nil
}

func printMirrorFrame(message []byte) {
	var env struct {
		Type string `json:"type"`
		Data struct {
			BmpNumber  int    `json:"bmp_number"`
			Brightness int    `json:"brightness"`
			Reason     string `json:"reason"`
			Known      bool   `json:"known"`
		} `json:"data"`
	}
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", message)
		return
	}
	if !env.Data.Known {
		fmt.Printf("[%s] nothing shown yet\n", env.Type)
		return
	}
	fmt.Printf("[%s] bmp=%-3d brightness=%-3d %s reason=%s\n",
		env.Type, env.Data.BmpNumber, env.Data.Brightness, describeCode(env.Data.BmpNumber), env.Data.Reason)
}
