package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("displaybridge v%s\n", version)
	fmt.Println("Volumio playback state to display driver bridge")
}

func printUsage(fs *flag.FlagSet) {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  displaybridge [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Listens for pushState events from Volumio (Socket.IO) and sends")
	fmt.Println("  {\"bmp_number\":N,\"brightness\":B} datagrams to the display driver's")
	fmt.Println("  Unix socket. The display is dimmed after a period without events.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fs.PrintDefaults()
	fmt.Println()
	fmt.Println("Flags override values from the config file; unset flags leave them alone.")
}

func main() {
	fs := flag.NewFlagSet("displaybridge", flag.ExitOnError)

	var (
		configPath    = fs.StringP("config", "c", "", "Path to YAML config file")
		sourceKind    = fs.String("source", sourceVolumio, "Playback source: volumio|mpd")
		volumioURL    = fs.String("volumio-url", defaultVolumioURL, "Volumio Socket.IO base URL")
		mpdAddr       = fs.String("mpd-addr", defaultMPDAddr, "MPD address (host:port, or socket path with --mpd-network=unix)")
		mpdNetwork    = fs.String("mpd-network", "tcp", "MPD network: tcp|unix")
		displaySocket = fs.String("display-socket", defaultDisplaySocket, "Display driver datagram socket path")
		idleMS        = fs.Int("idle-ms", defaultIdleMS, "Dim the display after this many milliseconds without events")
		mirrorListen  = fs.String("mirror-listen", "", "Listen address for the WebSocket display mirror (empty disables)")
		logLevelStr   = fs.String("log-level", "info", "Log level: error, warn, info, debug")
		showVersion   = fs.BoolP("version", "V", false, "Print version and exit")
		showHelp      = fs.BoolP("help", "h", false, "Print help message")
	)

	fs.Usage = func() { printUsage(fs) }
	_ = fs.Parse(os.Args[1:])

	if *showHelp {
		printUsage(fs)
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	var ov FlagOverrides
	if fs.Changed("source") {
		ov.SourceKind = sourceKind
	}
	if fs.Changed("volumio-url") {
		ov.VolumioURL = volumioURL
	}
	if fs.Changed("mpd-addr") {
		ov.MPDAddr = mpdAddr
	}
	if fs.Changed("mpd-network") {
		ov.MPDNetwork = mpdNetwork
	}
	if fs.Changed("display-socket") {
		ov.DisplaySocket = displaySocket
	}
	if fs.Changed("idle-ms") {
		ov.IdleMS = idleMS
	}
	if fs.Changed("mirror-listen") {
		ov.MirrorListen = mirrorListen
	}
	if fs.Changed("log-level") {
		ov.LogLevel = logLevelStr
	}
	ov.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel, os.Stdout)

	source, err := newPlayerSource(&cfg, logger)
	if err != nil {
		logger.Error("failed to set up player source", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Central event bus: sources and the mirror produce, the daemon consumes.
	events := make(chan Event, eventQueueSize)

	var broadcasts chan StateBroadcast
	if cfg.Mirror.ListenAddr != "" {
		broadcasts = make(chan StateBroadcast, eventQueueSize)
		mirror := NewMirrorServer(logger, events, MirrorBuffers{})
		mux := http.NewServeMux()
		mirror.Register(mux, cfg.Mirror.Path)

		go mirror.Run(ctx)
		go mirror.RunBroadcaster(ctx, broadcasts)
		go func() {
			if err := runMirrorServer(ctx, cfg.Mirror.ListenAddr, mux, logger); err != nil {
				logger.Error("display mirror error", "error", err)
			}
		}()
	}

	sender := NewDatagramSender(ExpandPath(cfg.Display.SocketPath))

	daemonDone := make(chan struct{})
	go func() {
		defer close(daemonDone)
		runDaemon(ctx, events, daemonDeps{
			Sender:     sender,
			Source:     source,
			Broadcasts: broadcasts,
		}, cfg.ToDisplayConfig(), &BridgeState{}, logger)
	}()

	logger.Debug("configuration",
		"source", cfg.Source.Kind,
		"volumio_url", cfg.Volumio.URL,
		"mpd_network", cfg.MPD.Network,
		"mpd_addr", cfg.MPD.Addr,
		"display_socket", sender.Path(),
		"idle_ms", cfg.Display.IdleMS,
		"active_brightness", cfg.Display.ActiveBrightness,
		"dim_brightness", cfg.Display.DimBrightness,
		"mirror_listen", cfg.Mirror.ListenAddr)
	logger.Info("starting displaybridge", "version", version, "source", source.Name(), "display_socket", sender.Path())

	if err := source.Run(ctx, events); err != nil {
		logger.Error("player source stopped", "error", err)
		stop()
		<-daemonDone
		os.Exit(1)
	}

	<-daemonDone
	logger.Info("shut down")
}

// newPlayerSource builds the source selected by source.kind.
func newPlayerSource(cfg *Config, logger *slog.Logger) (PlayerSource, error) {
	switch cfg.Source.Kind {
	case sourceMPD:
		password, err := cfg.MPDPassword()
		if err != nil {
			return nil, err
		}
		return NewMPDSource(cfg.MPD.Network, cfg.MPD.Addr, password, logger), nil
	default:
		return NewVolumioSource(cfg.Volumio.URL, logger)
	}
}
