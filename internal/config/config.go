package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"

	DefaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"
	DefaultModel    = "deepseek/deepseek-r1-0528:free"

	DefaultPersona = "You are Epsilon, a helpful and friendly AI assistant. Always respond in a conversational, " +
		"understanding, empathetic way and not in huge paragraphs use spaces after each sentence. " +
		"Break down complex topics into simple, easy-to-understand explanations. Use examples when helpful, " +
		"and maintain a warm, supportive tone. Keep responses well-structured but natural, " +
		"like you're talking to a friend who wants to learn."

	DefaultGreeting = "Hello! I'm Epsilon, your AI assistant. How can I help you today?"
)

// Config holds application configuration
type Config struct {
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	Persona  string        `yaml:"persona"`
	Greeting string        `yaml:"greeting"`
	Theme    string        `yaml:"theme"`
	Timeout  time.Duration `yaml:"timeout"` // 0 disables the request timeout

	LogDir    string `yaml:"log_dir"`
	Debug     bool   `yaml:"debug"`
	Telemetry bool   `yaml:"telemetry"` // Export traces and metrics to files under LogDir
	UsageDB   string `yaml:"usage_db"`  // SQLite usage ledger path; empty disables it
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Endpoint: DefaultEndpoint,
		Model:    DefaultModel,
		Persona:  DefaultPersona,
		Greeting: DefaultGreeting,
		Theme:    ThemeLight,
		LogDir:   "logs",
	}
}

// Load builds the configuration from defaults, the YAML file at path (if it
// exists), an optional .env file and EPSILON_* environment variables, in that
// order of precedence.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	// .env never overrides variables that are already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("EPSILON_ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv("EPSILON_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("EPSILON_PERSONA"); v != "" {
		c.Persona = v
	}
	if v := os.Getenv("EPSILON_GREETING"); v != "" {
		c.Greeting = v
	}
	if v := os.Getenv("EPSILON_THEME"); v != "" {
		c.Theme = v
	}
	if v := os.Getenv("EPSILON_LOG_DIR"); v != "" {
		c.LogDir = v
	}
	if v := os.Getenv("EPSILON_USAGE_DB"); v != "" {
		c.UsageDB = v
	}
	if v := os.Getenv("EPSILON_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid EPSILON_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := os.Getenv("EPSILON_DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid EPSILON_DEBUG: %w", err)
		}
		c.Debug = b
	}
	if v := os.Getenv("EPSILON_TELEMETRY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid EPSILON_TELEMETRY: %w", err)
		}
		c.Telemetry = b
	}
	return nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint must not be empty")
	}
	if c.Model == "" {
		return errors.New("model must not be empty")
	}
	if c.Theme != ThemeLight && c.Theme != ThemeDark {
		return fmt.Errorf("unknown theme %q (light|dark)", c.Theme)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %s", c.Timeout)
	}
	return nil
}
