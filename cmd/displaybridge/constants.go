package main

import "time"

// Display codes (bmp_number) understood by the display driver.
// Volume levels 0-100 are sent as their own code.
const (
	codeUnknown = 100
	codePlay    = 101
	codePause   = 102
	codeStop    = 103
	codeMute    = 104
)

// Brightness levels written by the display driver to the backlight.
const (
	defaultActiveBrightness = 159 // Any live status/volume/mute update
	defaultDimBrightness    = 32  // After the idle window elapses
)

const (
	defaultVolumioURL    = "http://localhost:3000"
	defaultDisplaySocket = "/tmp/volumio.sock"
	defaultIdleMS        = 5000 // Idle window before dimming (ms)
	defaultMPDAddr       = "localhost:6600"
	defaultMirrorPath    = "/ws/display"

	// Socket.IO reconnect backoff bounds (doubling between the two).
	reconnectDelayMin = 500 * time.Millisecond
	reconnectDelayMax = 5 * time.Second

	// Queue between event sources and the daemon goroutine.
	eventQueueSize = 64
)

// Source kinds selectable in config.
const (
	sourceVolumio = "volumio"
	sourceMPD     = "mpd"
)
