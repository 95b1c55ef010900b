// Package config loads application configuration from environment
// variables (with optional .env file) plus an optional YAML preset
// overlay for indicator and sub-pane defaults.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Service
	ListenAddr  string
	MetricsAddr string

	// Persistence backend: "sqlite", "redis" or "memory"
	StoreBackend  string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string

	// Chart session
	Symbol            string
	Interval          string
	IntervalSeconds   int
	RefreshEvery      time.Duration
	ComparisonSymbols []string

	// Historical data
	DataBaseURL string
	DataAPIKey  string

	// Stream channels
	PriceStreamURL string
	AlertStreamURL string
	OrderStreamURL string

	// Reconnect policy
	StreamInitialDelay time.Duration
	StreamMaxDelay     time.Duration
	StreamMaxAttempts  int

	// Annotation engine
	DrawingCap int

	// Logging
	LogFile      string
	LogMaxSizeMB int

	// Scheduled store compaction (cron spec, empty disables)
	CompactionCron string

	// Optional YAML preset file
	PresetsPath string
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is applied first when
// present.
func Load() *Config {
	// Missing .env is the normal case in production
	_ = godotenv.Load()

	return &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		StoreBackend:  getEnv("STORE_BACKEND", "sqlite"),
		SQLitePath:    getEnv("SQLITE_PATH", "data/chartcore.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		Symbol:            getEnv("CHART_SYMBOL", "RELIANCE"),
		Interval:          getEnv("CHART_INTERVAL", "5m"),
		IntervalSeconds:   getEnvInt("CHART_INTERVAL_SECONDS", 300),
		RefreshEvery:      getEnvDuration("CHART_REFRESH_EVERY", time.Minute),
		ComparisonSymbols: getEnvList("CHART_COMPARISON_SYMBOLS"),

		DataBaseURL: getEnv("DATA_BASE_URL", "http://localhost:8081"),
		DataAPIKey:  getEnv("DATA_API_KEY", ""),

		PriceStreamURL: getEnv("PRICE_STREAM_URL", "ws://localhost:8082/ws/price"),
		AlertStreamURL: getEnv("ALERT_STREAM_URL", "ws://localhost:8082/ws/alerts"),
		OrderStreamURL: getEnv("ORDER_STREAM_URL", "ws://localhost:8082/ws/orders"),

		StreamInitialDelay: getEnvDuration("STREAM_INITIAL_DELAY", time.Second),
		StreamMaxDelay:     getEnvDuration("STREAM_MAX_DELAY", 30*time.Second),
		StreamMaxAttempts:  getEnvInt("STREAM_MAX_ATTEMPTS", 5),

		DrawingCap: getEnvInt("DRAWING_CAP", 200),

		LogFile:      getEnv("LOG_FILE", ""),
		LogMaxSizeMB: getEnvInt("LOG_MAX_SIZE_MB", 50),

		CompactionCron: getEnv("COMPACTION_CRON", "0 3 * * *"),

		PresetsPath: getEnv("PRESETS_PATH", ""),
	}
}

// Presets are chart defaults loaded from an optional YAML file: which
// indicator keys start enabled, which sub-panes exist, and the style
// tables the AI drawing converter uses.
type Presets struct {
	Indicators []string `yaml:"indicators"` // e.g. ["sma20", "sma50", "bb"]
	SubPanes   []string `yaml:"sub_panes"`  // e.g. ["rsi", "macd", "volume"]

	Styles struct {
		BullishColor string `yaml:"bullish_color"`
		BearishColor string `yaml:"bearish_color"`
		NeutralColor string `yaml:"neutral_color"`
	} `yaml:"styles"`
}

// DefaultPresets returns the built-in chart defaults.
func DefaultPresets() *Presets {
	p := &Presets{
		Indicators: []string{"sma20", "sma50", "sma200", "rsi", "bb"},
		SubPanes:   []string{"rsi", "volume"},
	}
	p.Styles.BullishColor = "#22c55e"
	p.Styles.BearishColor = "#ef4444"
	p.Styles.NeutralColor = "#eab308"
	return p
}

// LoadPresets reads the YAML preset file at path, falling back to the
// defaults when path is empty or the file is absent.
func LoadPresets(path string) (*Presets, error) {
	p := DefaultPresets()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, fmt.Errorf("read presets: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	return p, nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid duration for %s: %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
