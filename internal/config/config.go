package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

type Config struct {
	Mode     Mode   `yaml:"mode"`
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	GCPProjectID   string `yaml:"gcp_project"`
	GCPLocation    string `yaml:"gcp_location"`
	GeminiAPIKey   string `yaml:"gemini_api_key"`
	ModelName      string `yaml:"model_name"`
	EmbeddingModel string `yaml:"embedding_model"`
	MaxToolSteps   int    `yaml:"max_tool_steps"`
	UseMockLLM     bool   `yaml:"use_mock_llm"` // true = use mock even on GCP

	// StorageBackend holds chat transcripts: memory, firestore, sqlite, pebble or redis.
	StorageBackend string `yaml:"storage_backend"`
	// LedgerBackend holds financial data: memory, firestore or sqlite.
	LedgerBackend string `yaml:"ledger_backend"`
	SQLitePath    string `yaml:"sqlite_path"`
	PebblePath    string `yaml:"pebble_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisDB       int    `yaml:"redis_db"`

	NavigateDelay time.Duration `yaml:"navigate_delay"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	ModelTimeout  time.Duration `yaml:"model_timeout"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	NetWorthCron     string `yaml:"networth_cron"`
	NetWorthCurrency string `yaml:"networth_currency"`
}

func defaults() *Config {
	return &Config{
		Mode:     ModeLocal,
		Port:     "8080",
		LogLevel: "info",

		GCPLocation:    "us-central1",
		ModelName:      "gemini-2.5-flash",
		EmbeddingModel: "gemini-embedding-001",
		MaxToolSteps:   4,

		StorageBackend: "memory",
		LedgerBackend:  "memory",
		SQLitePath:     "data/finassist.db",
		PebblePath:     "data/transcripts",
		RedisAddr:      "localhost:6379",

		NavigateDelay: 1500 * time.Millisecond,
		WriteTimeout:  5 * time.Second,
		ModelTimeout:  60 * time.Second,

		RateLimitRPS:   1,
		RateLimitBurst: 5,

		NetWorthCron:     "0 0 1 * *",
		NetWorthCurrency: "USD",
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getIntEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getFloatEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// Load builds the config from defaults, an optional YAML file (FINASSIST_CONFIG)
// and FINASSIST_* env vars, in that order. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := defaults()

	if path := os.Getenv("FINASSIST_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	switch getEnv("FINASSIST_MODE", string(cfg.Mode)) {
	case "gcp":
		cfg.Mode = ModeGCP
	default:
		cfg.Mode = ModeLocal
	}

	cfg.Port = getEnv("FINASSIST_PORT", getEnv("PORT", cfg.Port))
	cfg.LogLevel = getEnv("FINASSIST_LOG_LEVEL", cfg.LogLevel)

	cfg.GCPProjectID = getEnv("FINASSIST_GCP_PROJECT", cfg.GCPProjectID)
	cfg.GCPLocation = getEnv("FINASSIST_GCP_LOCATION", cfg.GCPLocation)
	cfg.GeminiAPIKey = getEnv("FINASSIST_GEMINI_API_KEY", getEnv("GEMINI_API_KEY", cfg.GeminiAPIKey))
	cfg.ModelName = getEnv("FINASSIST_MODEL_NAME", cfg.ModelName)
	cfg.EmbeddingModel = getEnv("FINASSIST_EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.UseMockLLM = getBoolEnv("FINASSIST_USE_MOCK_LLM", cfg.UseMockLLM || cfg.Mode == ModeLocal)

	cfg.StorageBackend = getEnv("FINASSIST_STORAGE_BACKEND", cfg.StorageBackend)
	cfg.LedgerBackend = getEnv("FINASSIST_LEDGER_BACKEND", cfg.LedgerBackend)
	cfg.SQLitePath = getEnv("FINASSIST_SQLITE_PATH", cfg.SQLitePath)
	cfg.PebblePath = getEnv("FINASSIST_PEBBLE_PATH", cfg.PebblePath)
	cfg.RedisAddr = getEnv("FINASSIST_REDIS_ADDR", cfg.RedisAddr)
	cfg.NetWorthCron = getEnv("FINASSIST_NETWORTH_CRON", cfg.NetWorthCron)
	cfg.NetWorthCurrency = getEnv("FINASSIST_NETWORTH_CURRENCY", cfg.NetWorthCurrency)

	var err error
	if cfg.MaxToolSteps, err = getIntEnv("FINASSIST_MAX_TOOL_STEPS", cfg.MaxToolSteps); err != nil {
		return err
	}
	if cfg.RedisDB, err = getIntEnv("FINASSIST_REDIS_DB", cfg.RedisDB); err != nil {
		return err
	}
	if cfg.RateLimitBurst, err = getIntEnv("FINASSIST_RATE_LIMIT_BURST", cfg.RateLimitBurst); err != nil {
		return err
	}
	if cfg.RateLimitRPS, err = getFloatEnv("FINASSIST_RATE_LIMIT_RPS", cfg.RateLimitRPS); err != nil {
		return err
	}
	if cfg.NavigateDelay, err = getDurationEnv("FINASSIST_NAVIGATE_DELAY", cfg.NavigateDelay); err != nil {
		return err
	}
	if cfg.WriteTimeout, err = getDurationEnv("FINASSIST_WRITE_TIMEOUT", cfg.WriteTimeout); err != nil {
		return err
	}
	if cfg.ModelTimeout, err = getDurationEnv("FINASSIST_MODEL_TIMEOUT", cfg.ModelTimeout); err != nil {
		return err
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	// Minimal validation in GCP mode
	if c.Mode == ModeGCP && c.GCPProjectID == "" && c.GeminiAPIKey == "" && !c.UseMockLLM {
		return fmt.Errorf("FINASSIST_GCP_PROJECT or FINASSIST_GEMINI_API_KEY must be set in gcp mode")
	}

	switch c.StorageBackend {
	case "memory", "firestore", "sqlite", "pebble", "redis":
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	switch c.LedgerBackend {
	case "memory", "firestore", "sqlite":
	default:
		return fmt.Errorf("unknown ledger backend %q", c.LedgerBackend)
	}
	if (c.StorageBackend == "firestore" || c.LedgerBackend == "firestore") && c.GCPProjectID == "" {
		return fmt.Errorf("FINASSIST_GCP_PROJECT is required for the firestore backend")
	}

	if c.MaxToolSteps <= 0 {
		return fmt.Errorf("max tool steps must be positive, got %d", c.MaxToolSteps)
	}
	if c.NavigateDelay < 0 {
		return fmt.Errorf("navigate delay must not be negative")
	}
	if !gronx.IsValid(c.NetWorthCron) {
		return fmt.Errorf("invalid net worth cron expression %q", c.NetWorthCron)
	}
	return nil
}
