package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"stratval/internal/errors"
)

// Config is the complete application configuration. Values come from
// defaults, then an optional YAML file, then environment overrides.
type Config struct {
	Workspace  string            `yaml:"workspace"`
	LogLevel   string            `yaml:"log_level"`
	Backtest   BacktestConfig    `yaml:"backtest"`
	WalkFwd    WalkForwardConfig `yaml:"walk_forward"`
	Gates      GatesConfig       `yaml:"gates"`
	Statistics StatisticsConfig  `yaml:"statistics"`
	Sanity     SanityConfig      `yaml:"sanity"`
	LLM        LLMConfig         `yaml:"llm"`
	Catalog    CatalogConfig     `yaml:"catalog"`
	Server     ServerConfig      `yaml:"server"`
}

// BacktestConfig holds engine driver settings.
type BacktestConfig struct {
	Mode            string        `yaml:"mode"` // "local" or "cloud"
	LeanCLI         string        `yaml:"lean_cli"`
	ProjectName     string        `yaml:"project_name"`
	CredentialsPath string        `yaml:"credentials_path"`
	APIBaseURL      string        `yaml:"api_base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	NodeWaitMin     time.Duration `yaml:"node_wait_min"`
	NodeWaitMax     time.Duration `yaml:"node_wait_max"`
	MaxRateRetries  int           `yaml:"max_rate_retries"`
	RequestsPerSec  float64       `yaml:"requests_per_sec"`
	BenchmarkCAGR   float64       `yaml:"benchmark_cagr"`
}

// WalkForwardConfig controls the window schedule and correction loop.
type WalkForwardConfig struct {
	Windows        int `yaml:"windows"`
	MaxCorrections int `yaml:"max_corrections"`
	Parallelism    int `yaml:"parallelism"`
}

// GatesConfig holds the pass/fail thresholds.
type GatesConfig struct {
	MinSharpe      float64 `yaml:"min_sharpe"`
	MinConsistency float64 `yaml:"min_consistency"`
	MaxDrawdown    float64 `yaml:"max_drawdown"`
	MinCAGR        float64 `yaml:"min_cagr"`
	MinTrades      int     `yaml:"min_trades"`
}

// StatisticsConfig controls the significance stage.
type StatisticsConfig struct {
	BaseAlpha   float64 `yaml:"base_alpha"`
	Comparisons int     `yaml:"comparisons"`
}

// SanityConfig holds the too-good-to-be-true bands.
type SanityConfig struct {
	SharpeImpossible  float64 `yaml:"sharpe_impossible"`
	SharpeSuspicious  float64 `yaml:"sharpe_suspicious"`
	SharpeExceptional float64 `yaml:"sharpe_exceptional"`
	CAGRImpossible    float64 `yaml:"cagr_impossible"`
	WinRateSuspicious float64 `yaml:"win_rate_suspicious"`
}

// LLMConfig holds the completion-provider settings.
type LLMConfig struct {
	APIKey      string  `yaml:"-"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// CatalogConfig selects the optional catalog index database.
type CatalogConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres", empty disables
	DSN    string `yaml:"dsn"`
}

// ServerConfig holds status-server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Workspace: "./workspace",
		LogLevel:  "info",
		Backtest: BacktestConfig{
			Mode:           "cloud",
			LeanCLI:        "lean",
			ProjectName:    "stratval",
			APIBaseURL:     "https://www.quantconnect.com/api/v2",
			Timeout:        30 * time.Minute,
			PollInterval:   10 * time.Second,
			NodeWaitMin:    30 * time.Second,
			NodeWaitMax:    60 * time.Second,
			MaxRateRetries: 3,
			RequestsPerSec: 2,
			BenchmarkCAGR:  0.10,
		},
		WalkFwd: WalkForwardConfig{
			Windows:        5,
			MaxCorrections: 3,
			Parallelism:    2,
		},
		Gates: GatesConfig{
			MinSharpe:      1.0,
			MinConsistency: 0.6,
			MaxDrawdown:    0.25,
			MinCAGR:        0.05,
			MinTrades:      30,
		},
		Statistics: StatisticsConfig{
			BaseAlpha:   0.01,
			Comparisons: 4,
		},
		Sanity: SanityConfig{
			SharpeImpossible:  5.0,
			SharpeSuspicious:  3.0,
			SharpeExceptional: 2.5,
			CAGRImpossible:    2.0,
			WinRateSuspicious: 0.95,
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o",
			MaxTokens:   4000,
			Temperature: 0.2,
		},
		Server: ServerConfig{
			Addr: ":8090",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (if path is non-empty and the file exists), then env overrides. A
// .env file alongside the process is honored when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, errors.Wrap(err, "failed to read config file")
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Workspace = getEnvOrDefault("STRATVAL_WORKSPACE", cfg.Workspace)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)

	cfg.Backtest.Mode = getEnvOrDefault("BACKTEST_MODE", cfg.Backtest.Mode)
	cfg.Backtest.LeanCLI = getEnvOrDefault("LEAN_CLI", cfg.Backtest.LeanCLI)
	cfg.Backtest.CredentialsPath = getEnvOrDefault("LEAN_CREDENTIALS", cfg.Backtest.CredentialsPath)
	cfg.Backtest.APIBaseURL = getEnvOrDefault("QC_API_URL", cfg.Backtest.APIBaseURL)

	cfg.LLM.APIKey = getEnvOrDefault("OPENAI_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.BaseURL = getEnvOrDefault("OPENAI_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Model = getEnvOrDefault("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.MaxTokens = getEnvIntOrDefault("MAX_TOKENS", cfg.LLM.MaxTokens)

	cfg.Catalog.Driver = getEnvOrDefault("CATALOG_DRIVER", cfg.Catalog.Driver)
	cfg.Catalog.DSN = getEnvOrDefault("CATALOG_DSN", cfg.Catalog.DSN)

	cfg.Server.Addr = getEnvOrDefault("SERVER_ADDR", cfg.Server.Addr)
}

func validate(cfg *Config) error {
	if cfg.Workspace == "" {
		return errors.ConfigInvalid("workspace path is required")
	}
	switch cfg.Backtest.Mode {
	case "local", "cloud":
	default:
		return errors.ConfigInvalid("backtest mode must be local or cloud")
	}
	switch cfg.WalkFwd.Windows {
	case 1, 2, 5, 12:
	default:
		return errors.ConfigInvalid("walk_forward windows must be 1, 2, 5 or 12")
	}
	if cfg.WalkFwd.MaxCorrections < 0 {
		return errors.ConfigInvalid("max_corrections must be non-negative")
	}
	if cfg.Gates.MaxDrawdown <= 0 {
		return errors.ConfigInvalid("gates max_drawdown must be positive")
	}
	if cfg.Statistics.Comparisons < 1 {
		return errors.ConfigInvalid("statistics comparisons must be at least 1")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
