package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/castlegate/chess-arena/internal/auth"
	"github.com/castlegate/chess-arena/internal/bot"
	appcfg "github.com/castlegate/chess-arena/internal/config"
	"github.com/castlegate/chess-arena/internal/engine/uci"
	"github.com/castlegate/chess-arena/internal/game"
	"github.com/castlegate/chess-arena/internal/gateway"
	"github.com/castlegate/chess-arena/internal/obslog"
	"github.com/castlegate/chess-arena/internal/queue"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	repo, closeDB := buildRepository(cfg, logger)
	defer closeDB()

	cache, closeRedis := buildCache(cfg, logger)
	defer closeRedis()

	engine, closeEngine := buildEngine(cfg, logger)
	defer closeEngine()

	profiles := loadProfiles(cfg, logger)
	generator := bot.NewGenerator(engine, profiles, logger)
	generator.SetMoveTime(cfg.EngineMoveTimeMS)
	games := game.New(repo, cache, generator, logger)
	matchQueue := queue.New(games, logger)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	gw := gateway.New(games, matchQueue, verifier, cfg.AllowedOrigins, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func buildRepository(cfg *appcfg.AppConfig, logger *zap.Logger) (game.Repository, func()) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory repository")
		return game.NewMemoryRepository(), func() {}
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("open postgres", zap.Error(err))
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		logger.Fatal("ping postgres", zap.Error(err))
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return game.NewRepository(db), func() { _ = db.Close() }
}

func buildCache(cfg *appcfg.AppConfig, logger *zap.Logger) (game.SnapshotCache, func()) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set, running without snapshot cache")
		return nil, func() {}
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("parse redis url", zap.Error(err))
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal("ping redis", zap.Error(err))
	}
	ttl := time.Duration(cfg.GameSnapshotTTLSec) * time.Second
	return game.NewRedisCache(client, ttl), func() { _ = client.Close() }
}

func buildEngine(cfg *appcfg.AppConfig, logger *zap.Logger) (bot.Engine, func()) {
	if cfg.StockfishPath == "" {
		logger.Warn("STOCKFISH_PATH not set, bot games use random legal moves")
		return nil, func() {}
	}
	pool, err := uci.NewPool(uci.PoolConfig{
		BinaryPath: cfg.StockfishPath,
		Capacity:   cfg.EnginePoolSize,
	})
	if err != nil {
		logger.Fatal("engine pool init", zap.Error(err))
	}
	return pool, func() { _ = pool.Close() }
}

func loadProfiles(cfg *appcfg.AppConfig, logger *zap.Logger) *bot.ProfileSet {
	if cfg.BotProfilesFile == "" {
		return bot.DefaultProfiles()
	}
	profiles, err := bot.LoadProfiles(cfg.BotProfilesFile)
	if err != nil {
		logger.Fatal("load bot profiles", zap.Error(err),
			zap.String("file", cfg.BotProfilesFile))
	}
	logger.Info("bot profiles loaded",
		zap.String("file", cfg.BotProfilesFile),
		zap.Int("count", len(profiles.All())))
	return profiles
}
