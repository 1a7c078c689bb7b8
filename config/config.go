package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string
	ServiceToken   string

	StoreDriver string // postgres | memory
	DatabaseURL string
	RedisAddr   string
	RedisPass   string
	RedisDB     int

	RegistryURL         string
	RegistryToken       string
	DonationSyncEvery   time.Duration
	RosterSyncEvery     time.Duration
	DonationChangeTopic string

	RankingEvery     time.Duration
	RankingInline    bool
	ReconcileEvery   time.Duration
	DedupeTTL        time.Duration
	DedupePurgeEvery time.Duration
	RecomputeWorkers int

	R2AccountID    string
	R2AccessKeyID  string
	R2AccessSecret string
	R2Bucket       string
	LeaderboardKey string

	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		ServiceToken:   os.Getenv("SERVICE_TOKEN"),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		RedisPass:   os.Getenv("REDIS_PASSWORD"),

		RegistryURL:         os.Getenv("REGISTRY_URL"),
		RegistryToken:       os.Getenv("REGISTRY_SERVICE_TOKEN"),
		DonationChangeTopic: getEnv("DONATION_CHANGE_CHANNEL", "donation_changes"),

		R2AccountID:    os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		R2AccessKeyID:  os.Getenv("R2_ACCESS_KEY_ID"),
		R2AccessSecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
		R2Bucket:       os.Getenv("R2_BUCKET_NAME"),
		LeaderboardKey: getEnv("LEADERBOARD_OBJECT_KEY", "leaderboard/global.json"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  os.Getenv("LOG_PATH"),
	}

	var err error
	durations := []struct {
		dst      *time.Duration
		key, def string
	}{
		{&cfg.DonationSyncEvery, "DONATION_SYNC_INTERVAL", "1m"},
		{&cfg.RosterSyncEvery, "ROSTER_SYNC_INTERVAL", "5m"},
		{&cfg.RankingEvery, "RANKING_REFRESH_INTERVAL", "30s"},
		{&cfg.ReconcileEvery, "LEDGER_RECONCILE_INTERVAL", "10m"},
		{&cfg.DedupeTTL, "EVENT_DEDUPE_TTL", "10m"},
		{&cfg.DedupePurgeEvery, "EVENT_DEDUPE_PURGE_INTERVAL", "1m"},
	}
	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(getEnv(d.key, d.def)); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
	}

	ints := []struct {
		dst      *int
		key, def string
	}{
		{&cfg.RedisDB, "REDIS_DB", "0"},
		{&cfg.RecomputeWorkers, "RECOMPUTE_WORKERS", "4"},
		{&cfg.LogMaxSizeMB, "LOG_MAX_SIZE_MB", "100"},
		{&cfg.LogMaxBackups, "LOG_MAX_BACKUPS", "3"},
		{&cfg.LogMaxAgeDays, "LOG_MAX_AGE_DAYS", "7"},
	}
	for _, n := range ints {
		if *n.dst, err = strconv.Atoi(getEnv(n.key, n.def)); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", n.key, err)
		}
	}

	if cfg.RankingInline, err = strconv.ParseBool(getEnv("RANKING_INLINE", "false")); err != nil {
		return nil, fmt.Errorf("invalid RANKING_INLINE: %w", err)
	}
	if cfg.LogCompress, err = strconv.ParseBool(getEnv("LOG_COMPRESS", "false")); err != nil {
		return nil, fmt.Errorf("invalid LOG_COMPRESS: %w", err)
	}

	switch cfg.StoreDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable not set")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	return cfg, nil
}

// R2Enabled reports whether leaderboard export credentials are present.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2Bucket != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
