package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"

	flag "github.com/spf13/pflag"
)

// ============================================================================
// displayctl - send one message to the display driver
// ============================================================================
// Usage:
//   displayctl 101 159          raw bmp_number and brightness
//   displayctl status pause     status icon at active brightness
//   displayctl status play --dim
//   displayctl volume 42
//   displayctl mute
//
// Options:
//   --socket PATH    display driver socket (default: /tmp/volumio.sock)
// ============================================================================

// Display codes and brightness levels (duplicated from displaybridge for a standalone binary).
const (
	codeUnknown = 100
	codePlay    = 101
	codePause   = 102
	codeStop    = 103
	codeMute    = 104

	activeBrightness = 159
	dimBrightness    = 32
)

type displayMessage struct {
	BmpNumber  int `json:"bmp_number"`
	Brightness int `json:"brightness"`
}

func main() {
	fs := flag.NewFlagSet("displayctl", flag.ExitOnError)
	socketPath := fs.StringP("socket", "s", "/tmp/volumio.sock", "Display driver datagram socket path")
	dim := fs.Bool("dim", false, "Use the dim brightness for status/volume/mute")
	fs.Usage = func() { printUsage(fs) }
	_ = fs.Parse(os.Args[1:])

	msg, err := parseMessage(fs.Args(), *dim)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		printUsage(fs)
		os.Exit(1)
	}

	if err := send(*socketPath, msg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("ok")
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintln(os.Stderr, "usage: displayctl [--socket PATH] [--dim] <bmp_number> <brightness>")
	fmt.Fprintln(os.Stderr, "       displayctl [--socket PATH] [--dim] status <play|pause|stop|unknown>")
	fmt.Fprintln(os.Stderr, "       displayctl [--socket PATH] [--dim] volume <0-100>")
	fmt.Fprintln(os.Stderr, "       displayctl [--socket PATH] [--dim] mute")
	fmt.Fprintln(os.Stderr)
	fs.PrintDefaults()
}

// parseMessage turns command-line arguments into a display message.
func parseMessage(args []string, dim bool) (displayMessage, error) {
	brightness := activeBrightness
	if dim {
		brightness = dimBrightness
	}

	if len(args) == 0 {
		return displayMessage{}, fmt.Errorf("missing command")
	}

	switch args[0] {
	case "status":
		if len(args) != 2 {
			return displayMessage{}, fmt.Errorf("status requires one of play, pause, stop, unknown")
		}
		code, ok := map[string]int{
			"play":    codePlay,
			"pause":   codePause,
			"stop":    codeStop,
			"unknown": codeUnknown,
		}[args[1]]
		if !ok {
			return displayMessage{}, fmt.Errorf("unknown status: %s", args[1])
		}
		return displayMessage{BmpNumber: code, Brightness: brightness}, nil

	case "volume":
		if len(args) != 2 {
			return displayMessage{}, fmt.Errorf("volume requires a value")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 || v > 100 {
			return displayMessage{}, fmt.Errorf("invalid volume: %s", args[1])
		}
		return displayMessage{BmpNumber: v, Brightness: brightness}, nil

	case "mute":
		return displayMessage{BmpNumber: codeMute, Brightness: brightness}, nil
	}

	if len(args) != 2 {
		return displayMessage{}, fmt.Errorf("expected <bmp_number> <brightness>")
	}
	bmp, err := strconv.Atoi(args[0])
	if err != nil {
		return displayMessage{}, fmt.Errorf("invalid bmp_number: %s", args[0])
	}
	b, err := strconv.Atoi(args[1])
	if err != nil || b < 0 || b > 255 {
		return displayMessage{}, fmt.Errorf("invalid brightness: %s", args[1])
	}
	return displayMessage{BmpNumber: bmp, Brightness: b}, nil
}

func send(socketPath string, msg displayMessage) error {
	conn, err := net.Dial("unixgram", socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
