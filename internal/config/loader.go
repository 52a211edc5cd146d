package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies WHALEWATCH_* environment variable overrides, and
// returns the final Config. An empty path skips the file and uses defaults
// plus environment. The returned Config has NOT been validated; the caller
// should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known WHALEWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Hyperliquid ──
	setStr(&cfg.Hyperliquid.APIURL, "WHALEWATCH_HYPERLIQUID_API_URL")
	setStr(&cfg.Hyperliquid.LeaderboardURL, "WHALEWATCH_HYPERLIQUID_LEADERBOARD_URL")
	setDuration(&cfg.Hyperliquid.Timeout, "WHALEWATCH_HYPERLIQUID_TIMEOUT")
	setFloat64(&cfg.Hyperliquid.RequestsPerSecond, "WHALEWATCH_HYPERLIQUID_REQUESTS_PER_SECOND")
	setInt(&cfg.Hyperliquid.Burst, "WHALEWATCH_HYPERLIQUID_BURST")
	setInt(&cfg.Hyperliquid.MaxRetries, "WHALEWATCH_HYPERLIQUID_MAX_RETRIES")
	setInt(&cfg.Hyperliquid.SharedLimit, "WHALEWATCH_HYPERLIQUID_SHARED_LIMIT")
	setDuration(&cfg.Hyperliquid.SharedWindow, "WHALEWATCH_HYPERLIQUID_SHARED_WINDOW")

	// ── Discovery / collector / analysis ──
	setInt(&cfg.Discovery.MaxTraders, "WHALEWATCH_DISCOVERY_MAX_TRADERS")
	setDuration(&cfg.Discovery.Interval, "WHALEWATCH_DISCOVERY_INTERVAL")
	setDuration(&cfg.Collector.Interval, "WHALEWATCH_COLLECTOR_INTERVAL")
	setInt(&cfg.Collector.Concurrency, "WHALEWATCH_COLLECTOR_CONCURRENCY")
	setBool(&cfg.Collector.ArchiveRaw, "WHALEWATCH_COLLECTOR_ARCHIVE_RAW")
	setDuration(&cfg.Analysis.Interval, "WHALEWATCH_ANALYSIS_INTERVAL")
	setFloat64(&cfg.Analysis.MinTradeValue, "WHALEWATCH_ANALYSIS_MIN_TRADE_VALUE")
	setDuration(&cfg.Analysis.ConsensusWindow, "WHALEWATCH_ANALYSIS_CONSENSUS_WINDOW")
	setDuration(&cfg.Analysis.RecentWindow, "WHALEWATCH_ANALYSIS_RECENT_WINDOW")
	setBool(&cfg.Analysis.TrackNewTrades, "WHALEWATCH_ANALYSIS_TRACK_NEW_TRADES")
	setDuration(&cfg.Analysis.MarketCtxTTL, "WHALEWATCH_ANALYSIS_MARKET_CTX_TTL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "WHALEWATCH_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "WHALEWATCH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "WHALEWATCH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "WHALEWATCH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "WHALEWATCH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "WHALEWATCH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "WHALEWATCH_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "WHALEWATCH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "WHALEWATCH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "WHALEWATCH_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "WHALEWATCH_REDIS_ENABLED")
	setStr(&cfg.Redis.URL, "WHALEWATCH_REDIS_URL")
	setStr(&cfg.Redis.Addr, "WHALEWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WHALEWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WHALEWATCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "WHALEWATCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "WHALEWATCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "WHALEWATCH_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "WHALEWATCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "WHALEWATCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "WHALEWATCH_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "WHALEWATCH_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "WHALEWATCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "WHALEWATCH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "WHALEWATCH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "WHALEWATCH_S3_FORCE_PATH_STYLE")

	// ── Report ──
	setStr(&cfg.Report.OutputDir, "WHALEWATCH_REPORT_OUTPUT_DIR")

	// ── Server ──
	setInt(&cfg.Server.Port, "WHALEWATCH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "WHALEWATCH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "WHALEWATCH_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "WHALEWATCH_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "WHALEWATCH_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "WHALEWATCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramToken, "TELEGRAM_TOKEN") // compatibility alias
	setStr(&cfg.Notify.TelegramChatID, "WHALEWATCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.TelegramChatID, "CHAT_ID") // compatibility alias
	setStr(&cfg.Notify.TelegramProxy, "WHALEWATCH_NOTIFY_TELEGRAM_PROXY")
	setStr(&cfg.Notify.DiscordWebhookURL, "WHALEWATCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "WHALEWATCH_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.MessageGap, "WHALEWATCH_NOTIFY_MESSAGE_GAP")

	// ── Top-level ──
	setStr(&cfg.Mode, "WHALEWATCH_MODE")
	setStr(&cfg.LogLevel, "WHALEWATCH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
