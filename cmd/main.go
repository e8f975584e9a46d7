package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strangerchat/backend/internal/api/handler"
	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/config"
	"strangerchat/backend/internal/identity"
	"strangerchat/backend/internal/localization"
	"strangerchat/backend/internal/storage"
	"strangerchat/backend/internal/telegram"
	"strangerchat/backend/internal/worker"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const telegramQueueSize = 1024

func setupRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}
	log.Infof("Redis connection established (%s)", opt.Addr)
	return rdb
}

func setupArchive(cfg *config.Config) *storage.Archive {
	if cfg.Database.DSN == "" {
		log.Warn("DATABASE_URL is empty; conversation archive and profiles are disabled")
		return nil
	}
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}
	archive := storage.NewArchive(db)
	if err := archive.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Info("PostgreSQL connection established, migrations complete")
	return archive
}

// setupTelegram returns nil when Telegram is off. Sends run on their own
// goroutine so a slow Bot API never holds up matchmaking.
func setupTelegram(ctx context.Context, cfg *config.Config, archive *storage.Archive) chathub.Notifier {
	if cfg.Telegram.BotToken == "" {
		return nil
	}
	if archive == nil {
		log.Warn("TELEGRAM_BOT_TOKEN is set but there is no profile database to find chats in; Telegram is off")
		return nil
	}
	bot, err := telegram.NewBot(cfg.Telegram.BotToken)
	if err != nil {
		log.Fatalf("Failed to start Telegram bot: %v", err)
	}
	texts, err := localization.NewLocalizer(cfg.Telegram.LocalesDir)
	if err != nil {
		log.Fatalf("Failed to load locales: %v", err)
	}
	async := chathub.NewAsyncNotifier(telegram.NewNotifier(bot, archive, texts), telegramQueueSize)
	go async.Run(ctx)
	return async
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn("Error loading .env file")
	}

	cfg := config.Load()
	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(level)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.Info("Starting StrangerChat matchmaking backend...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Dependencies
	archive := setupArchive(cfg)
	var archiver chathub.Archiver
	var profiles handler.Profiles
	if archive != nil {
		archiver, profiles = archive, archive
	}

	hub := chathub.NewManagerService()
	go hub.Run(ctx)

	// The local fan-out delivers to sockets on this node; Telegram is sent once,
	// by the node that produced the event.
	var notifier chathub.Notifier
	var store storage.Store
	var rdb *redis.Client
	switch cfg.Match.Store {
	case config.StoreMemory:
		log.Warn("Using the in-memory store; run a single instance only")
		store = storage.NewMemoryStore(storage.WithEndedRetention(cfg.Match.EndedRetention))
		notifier = chathub.FanOut{hub, setupTelegram(ctx, cfg, archive)}
	default:
		rdb = setupRedis(ctx, cfg)
		defer rdb.Close()
		store = storage.NewRedisStore(rdb, cfg.Match.EndedRetention)
		relay := chathub.NewRedisRelay(rdb, hub)
		go func() {
			if err := relay.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Fatalf("Event relay stopped: %v", err)
			}
		}()
		notifier = chathub.FanOut{relay, setupTelegram(ctx, cfg, archive)}
	}

	// 2. Matchmaking
	conversations := chathub.NewConversationManager(store, archiver, notifier)
	matcher := chathub.NewMatcherService(store, conversations, chathub.WithMaxPairAttempts(cfg.Match.MaxPairAttempts))
	var sweepOpts []chathub.SweeperOption
	if rdb != nil {
		sweepOpts = append(sweepOpts, chathub.WithPositionLedger(storage.NewRedisPositions(rdb)))
	}
	sweeper := chathub.NewSweeper(matcher, chathub.SweepConfig{
		Interval:                cfg.Match.SweepInterval,
		QueueIdleTimeout:        cfg.Match.QueueIdleTimeout,
		ConversationIdleTimeout: cfg.Match.ConversationIdleTimeout,
		NotifyQueuePosition:     cfg.Match.NotifyQueuePosition,
	}, sweepOpts...)

	switch cfg.Match.SweepMode {
	case config.SweepModeAsynq:
		processor, err := worker.NewProcessor(sweeper, cfg.Redis.URL, cfg.Match.SweepInterval)
		if err != nil {
			log.Fatalf("Failed to set up sweep worker: %v", err)
		}
		if err := processor.Start(); err != nil {
			log.Fatalf("Failed to start sweep worker: %v", err)
		}
		defer processor.Stop()
	default:
		go sweeper.Run(ctx)
	}

	// 3. HTTP
	limiter := handler.NewRateLimiter(cfg.Match.JoinRate, cfg.Match.JoinBurst)
	go limiter.Run(ctx)

	r := gin.Default()
	tokens := identity.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	handler.NewHandler(matcher, hub, tokens, profiles, limiter).Register(r)

	server := &http.Server{
		Addr:           ":" + cfg.Server.Port,
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Infof("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("ERROR: graceful shutdown failed: %v", err)
	}
}
