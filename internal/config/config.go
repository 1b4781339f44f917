// Package config loads autotab settings from the workspace: an optional .env file,
// an optional autotab.yml, and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultOracle        = "gemini"
	DefaultGeminiModel   = "gemini-1.5-flash"
	DefaultOpenAIModel   = "gpt-3.5-turbo"
	DefaultMaxCandidates = 2
	DefaultAutoML        = "portfolio"
)

// Config is the resolved configuration for one autotab invocation.
type Config struct {
	Oracle    OracleConfig    `yaml:"oracle"`
	Narrative NarrativeConfig `yaml:"narrative"`
	Planner   PlannerConfig   `yaml:"planner"`
	AutoML    AutoMLConfig    `yaml:"automl"`
	Logging   LoggingConfig   `yaml:"logging"`
	Audit     AuditConfig     `yaml:"audit"`
	Notify    bool            `yaml:"notify"`
}

// OracleConfig selects the provider used for planning and repair.
type OracleConfig struct {
	// Provider is one of gemini, openai, codex, mock.
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api-key"`
	BaseURL    string `yaml:"base-url"`
	TimeoutSec int    `yaml:"timeout-sec"`
}

// NarrativeConfig controls the optional report narrative. It always talks to an
// OpenAI-compatible endpoint unless Provider says otherwise.
type NarrativeConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api-key"`
	BaseURL  string `yaml:"base-url"`
}

type PlannerConfig struct {
	MaxCandidates int `yaml:"max-candidates"`
}

type AutoMLConfig struct {
	// Backend is portfolio or none.
	Backend string `yaml:"backend"`
}

type LoggingConfig struct {
	ToFile bool   `yaml:"to-file"`
	Level  string `yaml:"level"`
}

type AuditConfig struct {
	DBPath string `yaml:"db-path"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Oracle: OracleConfig{
			Provider: DefaultOracle,
		},
		Narrative: NarrativeConfig{
			Provider: "openai",
		},
		Planner: PlannerConfig{MaxCandidates: DefaultMaxCandidates},
		AutoML:  AutoMLConfig{Backend: DefaultAutoML},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load resolves configuration from envPath, configPath and the process environment.
// Both files are optional. Variables already present in the environment win over .env.
func Load(envPath, configPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", configPath, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read %s: %w", configPath, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.fillProviderDefaults()
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := lookupEnv("AUTOTAB_ORACLE"); ok {
		cfg.Oracle.Provider = strings.ToLower(v)
	}
	if v, ok := lookupEnv("AUTOTAB_AUTOML"); ok {
		cfg.AutoML.Backend = strings.ToLower(v)
	}
	if v, ok := lookupEnv("AUTOTAB_AUDIT_DB"); ok {
		cfg.Audit.DBPath = v
	}
	if v, ok := lookupEnv("AUTOTAB_MAX_CANDIDATES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUTOTAB_MAX_CANDIDATES: %w", err)
		}
		cfg.Planner.MaxCandidates = n
	}
	if v, ok := lookupEnv("AUTOTAB_NARRATIVE"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUTOTAB_NARRATIVE: %w", err)
		}
		cfg.Narrative.Enabled = enabled
	}

	switch cfg.Oracle.Provider {
	case "gemini":
		if v, ok := lookupEnv("GOOGLE_API_KEY"); ok {
			cfg.Oracle.APIKey = v
		}
		if v, ok := lookupEnv("GEMINI_MODEL"); ok {
			cfg.Oracle.Model = v
		}
	case "openai":
		if v, ok := lookupEnv("OPENAI_API_KEY"); ok {
			cfg.Oracle.APIKey = v
		}
		if v, ok := lookupEnv("OPENAI_BASE_URL"); ok {
			cfg.Oracle.BaseURL = v
		}
		if v, ok := lookupEnv("OPENAI_MODEL"); ok {
			cfg.Oracle.Model = v
		}
	}

	if cfg.Narrative.Provider == "openai" {
		if v, ok := lookupEnv("OPENAI_API_KEY"); ok {
			cfg.Narrative.APIKey = v
		}
		if v, ok := lookupEnv("OPENAI_BASE_URL"); ok {
			cfg.Narrative.BaseURL = v
		}
		if v, ok := lookupEnv("OPENAI_MODEL"); ok {
			cfg.Narrative.Model = v
		}
	}
	return nil
}

func (c *Config) fillProviderDefaults() {
	if c.Oracle.Model == "" {
		switch c.Oracle.Provider {
		case "gemini":
			c.Oracle.Model = DefaultGeminiModel
		case "openai":
			c.Oracle.Model = DefaultOpenAIModel
		}
	}
	if c.Narrative.Model == "" && c.Narrative.Provider == "openai" {
		c.Narrative.Model = DefaultOpenAIModel
	}
	if c.Planner.MaxCandidates <= 0 {
		c.Planner.MaxCandidates = DefaultMaxCandidates
	}
	if c.AutoML.Backend == "" {
		c.AutoML.Backend = DefaultAutoML
	}
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
