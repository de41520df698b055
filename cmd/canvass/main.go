package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/elicitworks/canvass/internal/api"
	"github.com/elicitworks/canvass/internal/config"
	"github.com/elicitworks/canvass/internal/events"
	"github.com/elicitworks/canvass/internal/identity"
	"github.com/elicitworks/canvass/internal/interview"
	"github.com/elicitworks/canvass/internal/nav"
	"github.com/elicitworks/canvass/internal/script"
	"github.com/elicitworks/canvass/internal/sessionapi"
	"github.com/elicitworks/canvass/internal/simulate"
	"github.com/elicitworks/canvass/internal/syncer"
	"github.com/elicitworks/canvass/internal/transcript"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("canvass starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Interview script
	sc := script.Default()
	if cfg.ScriptPath != "" {
		loaded, err := script.Load(cfg.ScriptPath)
		if err != nil {
			slog.Error("failed to load script", "path", cfg.ScriptPath, "error", err)
			os.Exit(1)
		}
		sc = loaded
		slog.Info("script loaded", "path", cfg.ScriptPath, "questions", sc.Total())
	} else {
		slog.Info("using built-in script", "questions", sc.Total())
	}

	stateDir := expandHome(cfg.StateDir)

	// Session API
	remote := sessionapi.NewClient(cfg.SessionAPIURL, cfg.SessionAPIToken, slog.Default())
	slog.Info("session API client ready", "url", cfg.SessionAPIURL)

	// Event publisher (optional — canvass works without NATS, just no events)
	var pub *events.Publisher
	if cfg.NatsURL != "" {
		p, err := events.Connect(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		pub = p
		defer pub.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured — running without events")
	}

	// Transcript store with file persistence
	persist := transcript.NewFileStore(filepath.Join(stateDir, "session.json"))
	store := transcript.NewStore(remote, persist, pub, slog.Default(), sc.Total(), sc.Opening)

	if snap, ok, err := persist.Load(); err != nil {
		slog.Warn("failed to load persisted session", "error", err)
	} else if ok {
		store.Restore(snap)
		slog.Info("session restored", "session_id", snap.SessionID, "messages", len(snap.Messages))
	}

	// Participant identity
	identityPath := filepath.Join(stateDir, "identity")
	if id, err := identity.Load(identityPath); err != nil {
		slog.Warn("failed to load identity", "error", err)
	} else if id != "" {
		store.SetProlificID(id)
		slog.Info("identity restored", "prolific_id", id)
	}

	// Remote status synchronizer
	sy := syncer.New(store, remote, pub, slog.Default())
	go sy.Run(ctx)

	// Interview engine
	streamer := simulate.New(store, slog.Default())
	engine := interview.New(store, sc, streamer, slog.Default())

	// HTTP API
	srv := api.NewServer(api.Options{
		Port:         cfg.Port,
		APIToken:     cfg.APIToken,
		Store:        store,
		Engine:       engine,
		Checker:      sy,
		Evaluator:    nav.NewEvaluator(sy),
		Records:      remote,
		IdentityPath: identityPath,
		Logger:       slog.Default(),
	})
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("canvass ready", "port", cfg.Port, "questions", sc.Total())

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	engine.Stop()
	cancel()
	slog.Info("canvass stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
