package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the bot configuration.
type Config struct {
	OneBot  OneBotConfig  `yaml:"onebot"`
	Bottle  BottleConfig  `yaml:"bottle"`
	Bot     BotConfig     `yaml:"bot"`
	Ops     OpsConfig     `yaml:"ops"`
	Logging LoggingConfig `yaml:"logging"`
}

// OneBotConfig holds the OneBot v11 websocket connection settings.
type OneBotConfig struct {
	URL         string `yaml:"url"` // ws://host:port
	AccessToken string `yaml:"access_token"`
}

// BottleConfig holds the drift-bottle API settings.
type BottleConfig struct {
	APIKey          string `yaml:"api_key"`
	APIURL          string `yaml:"api_url"` // empty = default endpoint
	DailyPickLimit  int    `yaml:"daily_pick_limit"`
	DailyThrowLimit int    `yaml:"daily_throw_limit"`
	APITimeoutSec   int    `yaml:"api_timeout_sec"`
}

// BotConfig holds behaviour settings of the bot itself.
type BotConfig struct {
	Admins         []int64 `yaml:"admins"`   // QQ ids allowed to use the admin command group
	DataDir        string  `yaml:"data_dir"` // quota file lives here
	CommandsPerSec float64 `yaml:"commands_per_sec"`
	CommandBurst   int     `yaml:"command_burst"`
}

// OpsConfig holds the ops HTTP listener settings (health, metrics).
type OpsConfig struct {
	Port int `yaml:"port"` // 0 = disabled
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// Substitute env variables of the form ${VAR} / ${VAR:-default}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values and clamps
// the limits to their floors (pick/throw >= 1, timeout >= 3s).
func (c *Config) ApplyDefaults() {
	if c.Bottle.DailyPickLimit <= 0 {
		c.Bottle.DailyPickLimit = 10
	}
	if c.Bottle.DailyThrowLimit <= 0 {
		c.Bottle.DailyThrowLimit = 5
	}
	if c.Bottle.APITimeoutSec <= 0 {
		c.Bottle.APITimeoutSec = 8
	} else if c.Bottle.APITimeoutSec < 3 {
		c.Bottle.APITimeoutSec = 3
	}
	if c.Bot.DataDir == "" {
		c.Bot.DataDir = "data"
	}
	if c.Bot.CommandsPerSec <= 0 {
		c.Bot.CommandsPerSec = 5
	}
	if c.Bot.CommandBurst <= 0 {
		c.Bot.CommandBurst = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.OneBot.URL == "" {
		return fmt.Errorf("onebot.url is required")
	}
	if !strings.HasPrefix(c.OneBot.URL, "ws://") && !strings.HasPrefix(c.OneBot.URL, "wss://") {
		return fmt.Errorf("onebot.url must start with ws:// or wss://, got %q", c.OneBot.URL)
	}
	if strings.TrimSpace(c.Bottle.APIKey) == "" {
		return fmt.Errorf("bottle.api_key is required")
	}
	if c.Ops.Port < 0 || c.Ops.Port > 65535 {
		return fmt.Errorf("ops.port must be between 0 and 65535, got %d", c.Ops.Port)
	}
	return nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
