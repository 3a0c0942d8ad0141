// Command pulsecord relays an application's audio from the local
// PulseAudio or PipeWire server into the Discord voice channel of a
// followed user.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/pulsecord/internal/buffer"
	"github.com/MrWong99/pulsecord/internal/capture"
	"github.com/MrWong99/pulsecord/internal/config"
	"github.com/MrWong99/pulsecord/internal/health"
	"github.com/MrWong99/pulsecord/internal/meter"
	"github.com/MrWong99/pulsecord/internal/observe"
	"github.com/MrWong99/pulsecord/internal/pipeline"
	"github.com/MrWong99/pulsecord/internal/source"
	"github.com/MrWong99/pulsecord/internal/ui"
	"github.com/MrWong99/pulsecord/internal/voice"
)

// version is set via -ldflags at build time.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "pulsecord.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Credentials may live in a .env file during development.
	_ = godotenv.Load()

	// ── Load configuration (with hot reload for the log level) ───────────────
	logLevel := new(slog.LevelVar)
	watcher, err := config.NewWatcher(*configPath, func(_, cfg *config.Config) {
		logLevel.Set(cfg.Server.LogLevel.Level())
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "pulsecord: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "pulsecord: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("pulsecord starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Discord gateway ───────────────────────────────────────────────────────
	session, err := discordgo.New("Bot " + cfg.Discord.BotToken)
	if err != nil {
		slog.Error("failed to create Discord session", "err", err)
		return 1
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	// ── Audio pipeline ────────────────────────────────────────────────────────
	ring := buffer.New(cfg.Buffer.CapacityFrames)
	levels := meter.New()
	ring.SetTap(levels.Process)

	registry := source.NewRegistry(source.PactlLister{},
		source.WithMatchThreshold(cfg.Source.MatchThreshold),
		source.WithSpotifyAllowed(cfg.Source.AllowSpotify),
	)
	sourceWatcher := source.NewWatcher()

	supervisor := capture.NewSupervisor(ring,
		capture.WithStartTimeout(cfg.Capture.StartTimeout),
		capture.WithLatencyMsec(cfg.Capture.LatencyMsec),
	)
	defer supervisor.Stop()

	delivery, err := voice.New(session, cfg.Discord.GuildID, cfg.Discord.TargetUserID, ring)
	if err != nil {
		slog.Error("failed to create voice delivery", "err", err)
		return 1
	}

	if err := session.Open(); err != nil {
		slog.Error("failed to open Discord gateway", "err", err)
		return 1
	}
	defer session.Close()
	slog.Info("discord gateway connected", "guild_id", cfg.Discord.GuildID)

	coordinator := pipeline.NewCoordinator(
		registry, supervisor, delivery,
		ring, levels, sourceWatcher.Changes(),
		pipeline.WithCaptureBackoff(pipeline.NewBackoff(cfg.Retry.Initial, cfg.Retry.Max, cfg.Retry.Attempts)),
		pipeline.WithVoiceBackoff(pipeline.NewBackoff(cfg.Retry.Initial, cfg.Retry.Max, cfg.Retry.Attempts)),
	)

	reg, err := metrics.RegisterPipeline(func() observe.PipelineStats {
		snap := coordinator.Snapshot()
		return observe.PipelineStats{
			FramesSent:     snap.FramesSent,
			SilenceFrames:  snap.SilenceFrames,
			SendDrops:      snap.SendDrops,
			ChunksDropped:  snap.ChunksDropped,
			BufferedFrames: ring.Len(),
		}
	})
	if err != nil {
		slog.Error("failed to register pipeline metrics", "err", err)
		return 1
	}
	defer reg.Unregister()

	// ── Status server ─────────────────────────────────────────────────────────
	probes := health.New(
		health.PactlChecker(),
		health.DiscordChecker(func() bool { return session.DataReady }),
	)
	server := ui.NewServer(coordinator, metrics, probes)

	// ── Run ───────────────────────────────────────────────────────────────────
	slog.Info("relay ready, press Ctrl+C to shut down")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sourceWatcher.Run(ctx) })
	g.Go(func() error { return coordinator.Run(ctx) })
	g.Go(func() error { return delivery.Run(ctx) })
	g.Go(func() error { return server.Run(ctx, cfg.Server.ListenAddr) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}
