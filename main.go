// Command arena runs the game-battle service: it builds submitted games
// into sandbox images, launches pairwise sessions, bridges their terminals
// over WebSocket and maintains the preference-driven leaderboard.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"gamebattle/arena/internal/auth"
	"gamebattle/arena/internal/config"
	"gamebattle/arena/internal/game"
	gamesdir "gamebattle/arena/internal/games"
	"gamebattle/arena/internal/httpapi"
	"gamebattle/arena/internal/launch"
	"gamebattle/arena/internal/logging"
	"gamebattle/arena/internal/metrics"
	"gamebattle/arena/internal/prefs"
	"gamebattle/arena/internal/rating"
	"gamebattle/arena/internal/reports"
	"gamebattle/arena/internal/sandbox"
	"gamebattle/arena/internal/session"
	"gamebattle/arena/internal/transcript"
)

// sandboxRuntime adapts the Docker-backed runtime to the game layer.
type sandboxRuntime struct {
	runtime *sandbox.Runtime
}

func (r sandboxRuntime) Create(ctx context.Context, image string, limits sandbox.Limits) (game.Instance, error) {
	container, err := r.runtime.Create(ctx, image, limits)
	if err != nil {
		return nil, err
	}
	metrics.ContainersStarted.Inc()
	return container, nil
}

func main() {
	// 1.- Environment and logging come first; everything else logs.
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(logging.Config{Level: "info"})
		l := logging.L()
		l.Fatal().Err(err).Msg("configuration invalid")
	}
	logging.Setup(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log := logging.Component("main")

	// 2.- Stores. Redis backs preferences and reports.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	preferenceStore := prefs.NewRedisStore(redisClient)
	reportStore := reports.NewRedisStore(redisClient)

	// 3.- Roster and catalogue.
	roster := gamesdir.NewRoster()
	if err := roster.LoadFile(cfg.TeamsPath); err != nil {
		log.Fatal().Err(err).Str("path", cfg.TeamsPath).Msg("load teams")
	}
	builder, err := launch.NewDockerBuilder()
	if err != nil {
		log.Fatal().Err(err).Msg("docker builder")
	}
	launcher := launch.NewLauncher(cfg.GamesPath, builder)
	scanCtx, cancelScan := context.WithTimeout(context.Background(), 30*time.Minute)
	if err := launcher.Scan(scanCtx); err != nil {
		cancelScan()
		log.Fatal().Err(err).Msg("scan games")
	}
	cancelScan()

	// 4.- Rating engine bound to the preference log; the bind replays the
	// full history so ratings are ready before the first request.
	engine := rating.NewEngine(roster, reportStore)
	bindCtx, cancelBind := context.WithTimeout(context.Background(), 5*time.Minute)
	if err := preferenceStore.Bind(bindCtx, engine); err != nil {
		cancelBind()
		log.Fatal().Err(err).Msg("bind rating engine")
	}
	cancelBind()

	// 5.- Sandbox runtime and the session registry.
	runtime, err := sandbox.NewRuntime()
	if err != nil {
		log.Fatal().Err(err).Msg("sandbox runtime")
	}
	var archiver *transcript.Archiver
	if cfg.TranscriptPath != "" {
		archiver, err = transcript.NewArchiver(cfg.TranscriptPath)
		if err != nil {
			log.Fatal().Err(err).Msg("transcript archiver")
		}
	}
	manager := session.NewManager(session.ManagerOptions{
		Runtime:            sandboxRuntime{runtime: runtime},
		Catalogue:          launcher,
		MaxSessionsPerUser: cfg.MaxSessionsPerUser,
		TTL:                cfg.SessionTTL,
		Limits: sandbox.Limits{
			MemoryBytes: cfg.ContainerMemoryBytes,
			CPUNanos:    cfg.ContainerCPUNanos,
		},
		OnStop: func(id uuid.UUID, s *session.Session) {
			if archiver == nil {
				return
			}
			var records []transcript.GameRecord
			for _, g := range s.Games() {
				records = append(records, transcript.GameRecord{
					Name:   g.Meta().Name,
					Frames: g.Frames(),
				})
			}
			if _, err := archiver.Archive(id.String(), s.Owner(), records); err != nil {
				log.Warn().Err(err).Str("session", id.String()).Msg("archive transcript")
			}
		},
	})

	// 6.- HTTP surface.
	handlers, err := httpapi.New(httpapi.Options{
		Manager:           manager,
		Launcher:          launcher,
		Roster:            roster,
		Engine:            engine,
		Preferences:       preferenceStore,
		Reports:           reportStore,
		Verifier:          auth.NewVerifier(cfg.AuthSecret, cfg.AdminEmails),
		EnableCompetition: cfg.EnableCompetition,
		WebhookURL:        cfg.ReportWebhook,
		ReportWindow:      cfg.ReportWindow,
		ReportBurst:       cfg.ReportBurst,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("http surface")
	}
	server := &http.Server{
		Addr:              cfg.Address,
		Handler:           handlers.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address).Msg("arena listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("serve")
		}
	}()

	// 7.- Graceful shutdown: stop accepting, then tear every session down.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	manager.StopAll(shutdownCtx)
	if err := redisClient.Close(); err != nil {
		log.Warn().Err(err).Msg("redis close")
	}
}
