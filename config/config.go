package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full engine configuration, loaded from an optional JSON
// file and overlaid with environment variables.
type Config struct {
	Symbols        []string             `json:"symbols"`
	MarketData     MarketDataConfig     `json:"market_data"`
	RiskConfig     RiskConfig           `json:"risk"`
	SchedulerConfig SchedulerConfig     `json:"scheduler"`
	LoggingConfig  LoggingConfig        `json:"logging"`
	ServerConfig   ServerConfig         `json:"server"`
	AuthConfig     AuthConfig           `json:"auth"`
	VaultConfig    VaultConfig          `json:"vault"`
	RedisConfig    RedisConfig          `json:"redis"`
	DatabaseConfig DatabaseConfig       `json:"database"`
	EATransportConfig EATransportConfig `json:"ea_transport"`
	BulletinConfig BulletinConfig       `json:"bulletin"`
}

// MarketDataConfig selects the market data adapter and its parameters.
type MarketDataConfig struct {
	Provider string `json:"provider"` // "mock" until a live broker feed is wired
	Seed     int64  `json:"seed"`
}

// RiskConfig seeds the initial risk parameter snapshot; subsequent
// updates flow through internal/riskparams's Redis-backed hot reload.
type RiskConfig struct {
	MaxRiskPerTrade      float64       `json:"max_risk_per_trade"`
	MaxVolumePerTrade    float64       `json:"max_volume_per_trade"`
	MinConfidence        float64       `json:"min_confidence"`
	SignalExpiry         time.Duration `json:"signal_expiry"`
	BrokerMinIncrement   float64       `json:"broker_min_increment"`
	RequiredAgreement    int           `json:"required_agreement"`
	DedupeWindow         time.Duration `json:"dedupe_window"`
	MaxConcurrentSignals int           `json:"max_concurrent_signals"`
}

// SchedulerConfig tunes the per-symbol tick loop.
type SchedulerConfig struct {
	Interval         time.Duration `json:"interval"`
	TickDeadline     time.Duration `json:"tick_deadline"`
	MaxWorkers       int           `json:"max_workers"`
	FailureThreshold int           `json:"failure_threshold"`
	CooldownPeriod   time.Duration `json:"cooldown_period"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level       string `json:"level"`
	JSONFormat  bool   `json:"json_format"`
	IncludeFile bool   `json:"include_file"`
}

// ServerConfig configures the status API HTTP listener.
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ShutdownTimeout int    `json:"shutdown_timeout"`
}

// AuthConfig configures the status API's bearer-token auth.
type AuthConfig struct {
	Enabled           bool   `json:"enabled"`
	JWTSecret         string `json:"jwt_secret"`
	AdminUsername     string `json:"admin_username"`
	AdminPasswordHash string `json:"admin_password_hash"`
}

// VaultConfig configures broker credential resolution.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
}

// RedisConfig configures the risk-parameter cache/pub-sub store.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// DatabaseConfig configures the ledger's PostgreSQL durability store.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// EATransportConfig configures the EA wire protocol listener.
type EATransportConfig struct {
	Addr            string `json:"addr"`
	HandshakeSecret string `json:"handshake_secret"`
}

// BulletinConfig configures the signal bulletin board writer.
type BulletinConfig struct {
	OutputDir  string        `json:"output_dir"`
	MaxAge     time.Duration `json:"max_age"`
	MaxSignals int           `json:"max_signals"`
}

// Load reads config.json if present, then overlays environment
// variable overrides, matching the layering the bot's original
// configuration loader used.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if syms := getEnvOrDefault("SYMBOLS", ""); syms != "" {
		cfg.Symbols = strings.Split(syms, ",")
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = []string{"EURUSD", "GBPUSD", "USDJPY", "XAUUSD"}
	}

	cfg.MarketData.Provider = getEnvOrDefault("MARKET_DATA_PROVIDER", defaultString(cfg.MarketData.Provider, "mock"))
	cfg.MarketData.Seed = int64(getEnvIntOrDefault("MARKET_DATA_SEED", int(cfg.MarketData.Seed)))

	cfg.RiskConfig.MaxRiskPerTrade = getEnvFloatOrDefault("RISK_MAX_PER_TRADE", defaultFloat(cfg.RiskConfig.MaxRiskPerTrade, 0.01))
	cfg.RiskConfig.MaxVolumePerTrade = getEnvFloatOrDefault("RISK_MAX_VOLUME_PER_TRADE", defaultFloat(cfg.RiskConfig.MaxVolumePerTrade, 1000))
	cfg.RiskConfig.MinConfidence = getEnvFloatOrDefault("RISK_MIN_CONFIDENCE", defaultFloat(cfg.RiskConfig.MinConfidence, 0.6))
	cfg.RiskConfig.SignalExpiry = getEnvDurationOrDefault("RISK_SIGNAL_EXPIRY", defaultDuration(cfg.RiskConfig.SignalExpiry, 4*time.Hour))
	cfg.RiskConfig.BrokerMinIncrement = getEnvFloatOrDefault("RISK_BROKER_MIN_INCREMENT", defaultFloat(cfg.RiskConfig.BrokerMinIncrement, 0.01))
	cfg.RiskConfig.RequiredAgreement = getEnvIntOrDefault("RISK_REQUIRED_AGREEMENT", defaultInt(cfg.RiskConfig.RequiredAgreement, 2))
	cfg.RiskConfig.DedupeWindow = getEnvDurationOrDefault("RISK_DEDUPE_WINDOW", defaultDuration(cfg.RiskConfig.DedupeWindow, 30*time.Minute))
	cfg.RiskConfig.MaxConcurrentSignals = getEnvIntOrDefault("RISK_MAX_CONCURRENT_SIGNALS", defaultInt(cfg.RiskConfig.MaxConcurrentSignals, 3))

	cfg.SchedulerConfig.Interval = getEnvDurationOrDefault("SCHEDULER_INTERVAL", defaultDuration(cfg.SchedulerConfig.Interval, time.Minute))
	cfg.SchedulerConfig.TickDeadline = getEnvDurationOrDefault("SCHEDULER_TICK_DEADLINE", defaultDuration(cfg.SchedulerConfig.TickDeadline, 20*time.Second))
	cfg.SchedulerConfig.MaxWorkers = getEnvIntOrDefault("SCHEDULER_MAX_WORKERS", defaultInt(cfg.SchedulerConfig.MaxWorkers, 4))
	cfg.SchedulerConfig.FailureThreshold = getEnvIntOrDefault("SCHEDULER_FAILURE_THRESHOLD", defaultInt(cfg.SchedulerConfig.FailureThreshold, 5))
	cfg.SchedulerConfig.CooldownPeriod = getEnvDurationOrDefault("SCHEDULER_COOLDOWN_PERIOD", defaultDuration(cfg.SchedulerConfig.CooldownPeriod, 15*time.Minute))

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultString(cfg.LoggingConfig.Level, "info"))
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)

	cfg.ServerConfig.Port = getEnvIntOrDefault("STATUS_API_PORT", defaultInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("STATUS_API_HOST", defaultString(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("STATUS_API_ALLOWED_ORIGINS", defaultString(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("STATUS_API_SHUTDOWN_TIMEOUT", defaultInt(cfg.ServerConfig.ShutdownTimeout, 10))

	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AdminUsername = getEnvOrDefault("AUTH_ADMIN_USERNAME", defaultString(cfg.AuthConfig.AdminUsername, "admin"))
	cfg.AuthConfig.AdminPasswordHash = getEnvOrDefault("AUTH_ADMIN_PASSWORD_HASH", cfg.AuthConfig.AdminPasswordHash)

	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", defaultString(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", defaultString(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", defaultString(cfg.VaultConfig.SecretPath, "genx/broker-credentials"))

	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", defaultString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultString(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", defaultString(cfg.DatabaseConfig.User, "genx"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", defaultString(cfg.DatabaseConfig.Database, "genx_signal_engine"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", defaultString(cfg.DatabaseConfig.SSLMode, "disable"))

	cfg.EATransportConfig.Addr = getEnvOrDefault("EA_TRANSPORT_ADDR", defaultString(cfg.EATransportConfig.Addr, ":9090"))
	cfg.EATransportConfig.HandshakeSecret = getEnvOrDefault("EA_HANDSHAKE_SECRET", cfg.EATransportConfig.HandshakeSecret)

	cfg.BulletinConfig.OutputDir = getEnvOrDefault("SIGNAL_OUTPUT_DIR", getEnvOrDefault("BULLETIN_OUTPUT_DIR", defaultString(cfg.BulletinConfig.OutputDir, "signal_output")))
	cfg.BulletinConfig.MaxAge = getEnvDurationOrDefault("BULLETIN_MAX_AGE", defaultDuration(cfg.BulletinConfig.MaxAge, 24*time.Hour))
	cfg.BulletinConfig.MaxSignals = getEnvIntOrDefault("BULLETIN_MAX_SIGNALS", defaultInt(cfg.BulletinConfig.MaxSignals, 50))
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(file, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return &cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true"
	}
	return defaultValue
}

func defaultString(v, d string) string {
	if v == "" {
		return d
	}
	return v
}

func defaultInt(v, d int) int {
	if v == 0 {
		return d
	}
	return v
}

func defaultFloat(v, d float64) float64 {
	if v == 0 {
		return d
	}
	return v
}

func defaultDuration(v, d time.Duration) time.Duration {
	if v == 0 {
		return d
	}
	return v
}

// GenerateSampleConfig writes a sample configuration file to filename.
func GenerateSampleConfig(filename string) error {
	cfg := Config{
		Symbols: []string{"EURUSD", "GBPUSD", "USDJPY", "XAUUSD"},
		MarketData: MarketDataConfig{
			Provider: "mock",
			Seed:     42,
		},
		RiskConfig: RiskConfig{
			MaxRiskPerTrade:      0.01,
			MaxVolumePerTrade:    1000,
			MinConfidence:        0.6,
			SignalExpiry:         4 * time.Hour,
			BrokerMinIncrement:   0.01,
			RequiredAgreement:    2,
			DedupeWindow:         30 * time.Minute,
			MaxConcurrentSignals: 3,
		},
		SchedulerConfig: SchedulerConfig{
			Interval:         time.Minute,
			TickDeadline:     20 * time.Second,
			MaxWorkers:       4,
			FailureThreshold: 5,
			CooldownPeriod:   15 * time.Minute,
		},
		LoggingConfig: LoggingConfig{
			Level:      "info",
			JSONFormat: true,
		},
		ServerConfig: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ShutdownTimeout: 10,
		},
		EATransportConfig: EATransportConfig{
			Addr: ":9090",
		},
		BulletinConfig: BulletinConfig{
			OutputDir:  "signal_output",
			MaxAge:     24 * time.Hour,
			MaxSignals: 50,
		},
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling sample config: %w", err)
	}
	return os.WriteFile(filename, data, 0o644)
}
