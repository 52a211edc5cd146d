// Package config defines the top-level configuration for whalewatch and
// provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by WHALEWATCH_* environment variables.
type Config struct {
	Hyperliquid HyperliquidConfig `toml:"hyperliquid"`
	Discovery   DiscoveryConfig   `toml:"discovery"`
	Collector   CollectorConfig   `toml:"collector"`
	Analysis    AnalysisConfig    `toml:"analysis"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Report      ReportConfig      `toml:"report"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// HyperliquidConfig holds exchange endpoints and client resilience settings.
type HyperliquidConfig struct {
	APIURL            string   `toml:"api_url"`
	LeaderboardURL    string   `toml:"leaderboard_url"`
	Timeout           duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
	MaxRetries        int      `toml:"max_retries"`
	// SharedLimit caps requests per SharedWindow across every replica that
	// shares the same Redis. Zero disables the shared limiter.
	SharedLimit  int      `toml:"shared_limit"`
	SharedWindow duration `toml:"shared_window"`
}

// DiscoveryConfig controls how the tracked trader set is chosen.
type DiscoveryConfig struct {
	MaxTraders int      `toml:"max_traders"`
	Interval   duration `toml:"interval"`
}

// CollectorConfig controls fill collection.
type CollectorConfig struct {
	Interval    duration `toml:"interval"`
	Concurrency int      `toml:"concurrency"`
	ArchiveRaw  bool     `toml:"archive_raw"`
}

// AnalysisConfig holds the engine thresholds and windows.
type AnalysisConfig struct {
	Interval        duration `toml:"interval"`
	MinTradeValue   float64  `toml:"min_trade_value"`
	ConsensusWindow duration `toml:"consensus_window"`
	RecentWindow    duration `toml:"recent_window"`
	TrackNewTrades  bool     `toml:"track_new_trades"`
	MarketCtxTTL    duration `toml:"market_ctx_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis is optional: when
// disabled the market context is fetched on every cycle and no cross-process
// lock, shared limiter or signal bus is used.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	URL        string `toml:"url"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters. An empty Bucket
// disables the S3 report sink and the raw fill archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ReportConfig controls where sentiment CSVs are written.
type ReportConfig struct {
	OutputDir string `toml:"output_dir"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit caps API requests per client IP per RateWindow. It needs
	// Redis; zero disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	TelegramProxy     string   `toml:"telegram_proxy"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	MessageGap        duration `toml:"message_gap"`
}

// Enabled reports whether at least one notification channel is configured.
func (n NotifyConfig) Enabled() bool {
	return (n.TelegramToken != "" && n.TelegramChatID != "") || n.DiscordWebhookURL != ""
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Hyperliquid: HyperliquidConfig{
			APIURL:            "https://api.hyperliquid.xyz/info",
			LeaderboardURL:    "https://stats-data.hyperliquid.xyz/Mainnet/leaderboard",
			Timeout:           duration{30 * time.Second},
			RequestsPerSecond: 2,
			Burst:             1,
			MaxRetries:        3,
			SharedLimit:       20,
			SharedWindow:      duration{time.Second},
		},
		Discovery: DiscoveryConfig{
			MaxTraders: 5,
			Interval:   duration{time.Hour},
		},
		Collector: CollectorConfig{
			Interval:    duration{time.Minute},
			Concurrency: 4,
		},
		Analysis: AnalysisConfig{
			Interval:        duration{time.Minute},
			MinTradeValue:   10000,
			ConsensusWindow: duration{10 * time.Minute},
			RecentWindow:    duration{24 * time.Hour},
			TrackNewTrades:  true,
			MarketCtxTTL:    duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "whalewatch",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Prefix:         "whalewatch/",
			UseSSL:         true,
			ForcePathStyle: true,
		},
		Report: ReportConfig{
			OutputDir: "reports",
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events:     []string{"consensus", "new_trade", "error"},
			MessageGap: duration{500 * time.Millisecond},
		},
		Mode:     "run",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"discover": true,
	"collect":  true,
	"analyze":  true,
	"serve":    true,
	"run":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// minMessageGap is the smallest spacing between ranked notifications that
// chat transports tolerate.
const minMessageGap = 500 * time.Millisecond

var validEvents = map[string]bool{
	"consensus": true,
	"new_trade": true,
	"error":     true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: discover, collect, analyze, serve, run)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Hyperliquid
	if !isHTTPURL(c.Hyperliquid.APIURL) {
		errs = append(errs, fmt.Sprintf("hyperliquid: api_url must be an http(s) URL, got %q", c.Hyperliquid.APIURL))
	}
	if !isHTTPURL(c.Hyperliquid.LeaderboardURL) {
		errs = append(errs, fmt.Sprintf("hyperliquid: leaderboard_url must be an http(s) URL, got %q", c.Hyperliquid.LeaderboardURL))
	}
	if c.Hyperliquid.RequestsPerSecond <= 0 {
		errs = append(errs, "hyperliquid: requests_per_second must be > 0")
	}
	if c.Hyperliquid.MaxRetries < 0 {
		errs = append(errs, "hyperliquid: max_retries must be >= 0")
	}
	if c.Hyperliquid.SharedLimit > 0 && c.Hyperliquid.SharedWindow.Duration <= 0 {
		errs = append(errs, "hyperliquid: shared_window must be > 0 when shared_limit is set")
	}

	// Discovery / collector / analysis
	if c.Discovery.MaxTraders < 1 {
		errs = append(errs, "discovery: max_traders must be >= 1")
	}
	if c.Discovery.Interval.Duration <= 0 {
		errs = append(errs, "discovery: interval must be > 0")
	}
	if c.Collector.Interval.Duration <= 0 {
		errs = append(errs, "collector: interval must be > 0")
	}
	if c.Collector.Concurrency < 1 {
		errs = append(errs, "collector: concurrency must be >= 1")
	}
	if c.Collector.ArchiveRaw && c.S3.Bucket == "" {
		errs = append(errs, "collector: archive_raw requires s3.bucket")
	}
	if c.Analysis.Interval.Duration <= 0 {
		errs = append(errs, "analysis: interval must be > 0")
	}
	if c.Analysis.MinTradeValue < 0 {
		errs = append(errs, "analysis: min_trade_value must be >= 0")
	}
	if c.Analysis.ConsensusWindow.Duration <= 0 {
		errs = append(errs, "analysis: consensus_window must be > 0")
	}
	if c.Analysis.RecentWindow.Duration <= 0 {
		errs = append(errs, "analysis: recent_window must be > 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.URL == "" && c.Redis.Addr == "" {
			errs = append(errs, "redis: url or addr must be set when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 is optional; region only matters once a bucket is set.
	if c.S3.Bucket != "" && c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty when bucket is set")
	}
	if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
		errs = append(errs, "s3: access_key and secret_key must be set together")
	}

	if c.Report.OutputDir == "" && c.S3.Bucket == "" {
		errs = append(errs, "report: output_dir or s3.bucket must be set")
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("server: rate_limit must be >= 0, got %d", c.Server.RateLimit))
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be positive when rate_limit is set")
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	if c.Notify.TelegramProxy != "" && !isProxyURL(c.Notify.TelegramProxy) {
		errs = append(errs, fmt.Sprintf("notify: telegram_proxy is not a valid URL: %q", c.Notify.TelegramProxy))
	}
	for _, e := range c.Notify.Events {
		if !validEvents[e] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q (valid: consensus, new_trade, error)", e))
		}
	}
	if gap := c.Notify.MessageGap.Duration; gap < 0 || (gap > 0 && gap < minMessageGap) {
		errs = append(errs, fmt.Sprintf("notify: message_gap must be 0 (default) or at least %s", minMessageGap))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isProxyURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
