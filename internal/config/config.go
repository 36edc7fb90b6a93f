package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	ListenAddr string

	JWTSecret string

	DatabaseURL string
	RedisURL    string

	StockfishPath    string
	EnginePoolSize   int
	EngineMoveTimeMS int

	BotProfilesFile string

	GameSnapshotTTLSec int

	AllowedOrigins []string
}

// Load reads configuration from the environment. DATABASE_URL and
// REDIS_URL are optional; without them the server falls back to the
// in-memory repository and skips the snapshot cache. STOCKFISH_PATH is
// optional too, bot games then play random legal moves.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":8080",
		EnginePoolSize:     2,
		EngineMoveTimeMS:   1000,
		GameSnapshotTTLSec: 3600,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.JWTSecret = strings.TrimSpace(os.Getenv("JWT_SECRET"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.StockfishPath = strings.TrimSpace(os.Getenv("STOCKFISH_PATH"))
	cfg.BotProfilesFile = strings.TrimSpace(os.Getenv("BOT_PROFILES_FILE"))

	if v := strings.TrimSpace(os.Getenv("ENGINE_POOL_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EnginePoolSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ENGINE_MOVE_TIME_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EngineMoveTimeMS = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GAME_SNAPSHOT_TTL")); v != "" { // seconds
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.GameSnapshotTTLSec = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}
