package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the config file when --config is not given.
const EnvConfigPath = "QUESTLOG_CONFIG"

// Config holds all questlog configuration. Values come from Default, then
// the YAML file, then QUESTLOG_* environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Engine   EngineConfig   `yaml:"engine"`
	Notify   NotifyConfig   `yaml:"notify"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Bind string `yaml:"bind" env:"QUESTLOG_BIND"`
	Port int    `yaml:"port" env:"QUESTLOG_PORT"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"QUESTLOG_DB"`
}

type LLMConfig struct {
	Provider     string        `yaml:"provider" env:"QUESTLOG_LLM_PROVIDER"` // "claude-cli", "anthropic", "ollama", "none"
	Model        string        `yaml:"model" env:"QUESTLOG_LLM_MODEL"`
	AnthropicURL string        `yaml:"anthropic_url" env:"QUESTLOG_ANTHROPIC_URL"`
	AnthropicKey string        `yaml:"anthropic_key" env:"ANTHROPIC_API_KEY"`
	OllamaURL    string        `yaml:"ollama_url" env:"QUESTLOG_OLLAMA_URL"`
	OllamaModel  string        `yaml:"ollama_model" env:"QUESTLOG_OLLAMA_MODEL"`
	Timeout      time.Duration `yaml:"timeout" env:"QUESTLOG_LLM_TIMEOUT"`
}

type EngineConfig struct {
	LearningRate   float64       `yaml:"learning_rate" env:"QUESTLOG_LEARNING_RATE"`
	LevelThreshold float64       `yaml:"level_threshold" env:"QUESTLOG_LEVEL_THRESHOLD"`
	AnalyzeTimeout time.Duration `yaml:"analyze_timeout" env:"QUESTLOG_ANALYZE_TIMEOUT"`
}

type NotifyConfig struct {
	WebhookURL     string        `yaml:"webhook_url" env:"QUESTLOG_WEBHOOK_URL"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout" env:"QUESTLOG_WEBHOOK_TIMEOUT"`
	ObsidianVault  string        `yaml:"obsidian_vault" env:"QUESTLOG_OBSIDIAN_VAULT"`
	ObsidianFolder string        `yaml:"obsidian_folder" env:"QUESTLOG_OBSIDIAN_FOLDER"`
}

type LogConfig struct {
	Mode string `yaml:"mode" env:"QUESTLOG_LOG_MODE"` // "dev" or "prod"
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		LLM: LLMConfig{
			Provider: "claude-cli",
			Model:    "haiku",
			Timeout:  120 * time.Second,
		},
		Engine: EngineConfig{
			LearningRate:   0.01,
			LevelThreshold: 10,
			AnalyzeTimeout: 60 * time.Second,
		},
		Notify: NotifyConfig{
			WebhookTimeout: 10 * time.Second,
			ObsidianFolder: "Questlog",
		},
		Log: LogConfig{
			Mode: "dev",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (if any) and the
// environment. An empty path falls back to $QUESTLOG_CONFIG; a missing file
// at the fallback location is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings the rest of the program cannot work with.
func (c *Config) Validate() error {
	var errs []error
	switch c.LLM.Provider {
	case "claude-cli", "anthropic", "ollama", "none":
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}
	if c.Engine.LearningRate <= 0 || c.Engine.LearningRate > 1 {
		errs = append(errs, fmt.Errorf("engine.learning_rate: %v not in (0, 1]", c.Engine.LearningRate))
	}
	if c.Engine.LevelThreshold <= 0 {
		errs = append(errs, fmt.Errorf("engine.level_threshold: must be positive"))
	}
	switch c.Log.Mode {
	case "dev", "prod":
	default:
		errs = append(errs, fmt.Errorf("log.mode: %q is not dev or prod", c.Log.Mode))
	}
	return errors.Join(errs...)
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
