// Command voxwire is the interactive voice chat client for the room server.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/voxwire/internal/client"
	"github.com/MrWong99/voxwire/internal/config"
	"github.com/MrWong99/voxwire/internal/health"
	"github.com/MrWong99/voxwire/internal/observe"
	"github.com/MrWong99/voxwire/internal/protocol"
)

// version is stamped by the build; "dev" otherwise.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	var (
		configPath = flag.String("config", "", "path to the YAML configuration file")
		serverURL  = flag.String("server", "", "room server base URL (overrides config)")
		room       = flag.String("room", "", "room to join on startup (overrides config)")
		userID     = flag.String("user", "", "user id to announce (overrides config)")
		backend    = flag.String("backend", "", "capture backend: auto, miniaudio or portaudio (overrides config)")
		logLevel   = flag.String("log-level", "", "log verbosity: debug, info, warn or error (overrides config)")
		debugAddr  = flag.String("debug-addr", "", "debug listener address for metrics and probes (overrides config)")
	)
	flag.Parse()

	// The level var lets a config reload retune verbosity on the fly.
	levelVar := new(slog.LevelVar)

	// ── Load configuration ────────────────────────────────────────────────────
	cfg := &config.Config{}
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, func(old, cur *config.Config) {
			applyReload(levelVar, *logLevel != "", old, cur)
		})
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "voxwire: config file %q not found\n", *configPath)
			} else {
				fmt.Fprintf(os.Stderr, "voxwire: %v\n", err)
			}
			return 1
		}
		defer watcher.Stop()

		// Copy before applying flags so the watcher's own config stays
		// untouched for later diffs.
		base := *watcher.Current()
		cfg = &base
	}

	// ── Flag overrides ────────────────────────────────────────────────────────
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *room != "" {
		cfg.Room = *room
	}
	if *userID != "" {
		cfg.UserID = *userID
	}
	if *backend != "" {
		cfg.Audio.Backend = config.CaptureBackend(*backend)
	}
	if *logLevel != "" {
		cfg.LogLevel = config.LogLevel(*logLevel)
	}
	if *debugAddr != "" {
		cfg.Debug.ListenAddr = *debugAddr
	}

	if cfg.ServerURL == "" {
		fmt.Fprintln(os.Stderr, "voxwire: no server URL; set server_url in the config file or pass -server")
		return 1
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "voxwire: %v\n", err)
		return 1
	}
	if cfg.UserID == "" {
		cfg.UserID = "guest-" + uuid.NewString()[:8]
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar.Set(slogLevel(cfg.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar})))

	slog.Info("voxwire starting",
		"version", version,
		"server", cfg.ServerURL,
		"user", cfg.UserID,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxwire",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "error", err)
		return 1
	}

	// ── Session ───────────────────────────────────────────────────────────────
	sess := client.New(client.Config{
		ServerURL: cfg.ServerURL,
		Backend:   string(cfg.Audio.Backend),
		FrameSize: cfg.Audio.FrameSize,
	}, client.Callbacks{
		OnText: printEntry,
		OnHistory: func(entries []protocol.Entry) {
			if len(entries) == 0 {
				fmt.Println("(no transcript history)")
				return
			}
			fmt.Printf("transcript history, %d lines:\n", len(entries))
			for _, e := range entries {
				printEntry(e)
			}
		},
		OnDisconnected: func(err error) {
			slog.Warn("connection to the room lost", "error", err)
			fmt.Println("connection lost; use join to reconnect")
		},
	})

	// ── Debug listener ────────────────────────────────────────────────────────
	var debugSrv *http.Server
	if cfg.Debug.ListenAddr != "" {
		debugSrv = startDebugListener(cfg.Debug.ListenAddr, sess)
	}

	printStartupSummary(cfg)

	// ── Join on startup ───────────────────────────────────────────────────────
	if cfg.Room != "" {
		if err := sess.Connect(ctx, cfg.Room, cfg.UserID); err != nil {
			slog.Error("could not join room", "room", cfg.Room, "error", err)
		} else {
			fmt.Printf("joined %s as %s\n", cfg.Room, cfg.UserID)
		}
	}

	fmt.Println("commands: join [room], leave, record, stop, history, status, quit")

	// ── Command loop ──────────────────────────────────────────────────────────
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if handleCommand(ctx, sess, cfg, line) {
				break loop
			}
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutting down")

	if err := sess.Disconnect(); err != nil {
		slog.Warn("disconnect error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if debugSrv != nil {
		if err := debugSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("debug listener shutdown error", "error", err)
		}
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "error", err)
	}
	slog.Info("goodbye")
	return 0
}

// ── Command loop ──────────────────────────────────────────────────────────────

// handleCommand runs one command line. Returns true when the user asked to
// quit.
func handleCommand(ctx context.Context, sess *client.Session, cfg *config.Config, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "join":
		room := cfg.Room
		if len(fields) > 1 {
			room = fields[1]
		}
		if room == "" {
			fmt.Println("usage: join <room>")
			return false
		}
		if err := sess.Connect(ctx, room, cfg.UserID); err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		fmt.Printf("joined %s as %s\n", room, cfg.UserID)

	case "leave":
		if err := sess.Disconnect(); err != nil {
			fmt.Printf("error: %v\n", err)
		}

	case "record":
		if err := sess.StartRecording(ctx); err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		fmt.Println("recording; stop ends the take")

	case "stop":
		if err := sess.StopRecording(); err != nil {
			fmt.Printf("error: %v\n", err)
		}

	case "history":
		entries := sess.Transcript().Entries()
		if len(entries) == 0 {
			fmt.Println("(transcript is empty)")
			return false
		}
		for _, e := range entries {
			printEntry(e)
		}

	case "status":
		printStatus(sess.Info())

	case "help":
		fmt.Println("commands: join [room], leave, record, stop, history, status, quit")

	case "quit", "exit":
		return true

	default:
		fmt.Printf("unknown command %q; try help\n", fields[0])
	}
	return false
}

// printEntry renders one transcript line for the terminal.
func printEntry(e protocol.Entry) {
	var b strings.Builder
	if e.Timestamp != 0 {
		fmt.Fprintf(&b, "[%s] ", e.Timestamp.Time().Local().Format("15:04:05"))
	}
	fmt.Fprintf(&b, "%s: %s", e.UserID, e.Text)
	if len(e.Emote) > 0 {
		fmt.Fprintf(&b, "  (%s)", strings.Join(e.Emote, ", "))
	}
	fmt.Println(b.String())
}

func printStatus(info client.Info) {
	fmt.Printf("state: %s\n", info.State)
	if info.State == client.StateConnected {
		fmt.Printf("room: %s  user: %s\n", info.RoomID, info.UserID)
	}
	if info.Recording {
		fmt.Printf("recording via %s: %d frames captured, %d overruns\n",
			info.Backend, info.Capture.FramesEmitted, info.Capture.Overruns)
	}
}

// ── Config reload ─────────────────────────────────────────────────────────────

// applyReload reacts to a config file change. Only the log level can be
// applied to the running process; a -log-level flag pins it.
func applyReload(levelVar *slog.LevelVar, levelPinned bool, old, cur *config.Config) {
	d := config.Diff(old, cur)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && !levelPinned {
		levelVar.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level updated", "level", d.NewLogLevel)
	}
	if len(d.RestartNeeded) > 0 {
		slog.Warn("config changed; restart to apply", "fields", strings.Join(d.RestartNeeded, ", "))
	}
}

// ── Debug listener ────────────────────────────────────────────────────────────

// startDebugListener serves Prometheus metrics and health probes on addr.
func startDebugListener(addr string, sess *client.Session) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	probes := health.New(health.Checker{
		Name: "session",
		Check: func(_ context.Context) error {
			if sess.State() != client.StateConnected {
				return errors.New("no active room connection")
			}
			return nil
		},
	})
	probes.Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("debug listener up", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("debug listener error", "error", err)
		}
	}()
	return srv
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔════════════════════════════════════════╗")
	fmt.Println("║          voxwire — voice chat          ║")
	fmt.Println("╠════════════════════════════════════════╣")
	printField("Server", cfg.ServerURL)
	printField("Room", orElse(cfg.Room, "(join manually)"))
	printField("User", cfg.UserID)
	printField("Backend", orElse(string(cfg.Audio.Backend), string(config.BackendAuto)))
	if cfg.Audio.FrameSize > 0 {
		printField("Frame size", fmt.Sprintf("%d samples", cfg.Audio.FrameSize))
	}
	printField("Debug", orElse(cfg.Debug.ListenAddr, "(disabled)"))
	fmt.Println("╚════════════════════════════════════════╝")
}

func printField(name, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", name, value)
}

func orElse(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// ── Logger ────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
