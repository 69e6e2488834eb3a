// Package config loads the CLI settings from ~/.giveaway/config.toml and
// GIVEAWAY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = ".giveaway"
	envPrefix  = "GIVEAWAY"

	TransportBeacon    = "beacon"
	TransportSimulated = "simulated"
)

type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Proximity ProximityConfig `mapstructure:"proximity"`
	Session   SessionConfig   `mapstructure:"session"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	History   HistoryConfig   `mapstructure:"history"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
	Log       LogConfig       `mapstructure:"log"`
}

type APIConfig struct {
	BaseURL  string        `mapstructure:"base_url" validate:"omitempty,url"`
	TokenRef string        `mapstructure:"token_ref" validate:"required,startswith=giveaway/"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type ProximityConfig struct {
	Transport      string        `mapstructure:"transport" validate:"oneof=beacon simulated"`
	ListenAddr     string        `mapstructure:"listen_addr" validate:"required"`
	BroadcastAddr  string        `mapstructure:"broadcast_addr" validate:"required"`
	Interval       time.Duration `mapstructure:"interval" validate:"gt=0"`
	DeviceName     string        `mapstructure:"device_name"`
	TransferToken  string        `mapstructure:"transfer_token"`
	SimulatedPeers int           `mapstructure:"simulated_peers" validate:"gte=0,lte=20"`
	SimulatedDelay time.Duration `mapstructure:"simulated_delay" validate:"gte=0"`
}

type SessionConfig struct {
	ScanWindow    time.Duration `mapstructure:"scan_window" validate:"gt=0"`
	DragThreshold float64       `mapstructure:"drag_threshold" validate:"gt=0"`
	MaxPeers      int           `mapstructure:"max_peers" validate:"gte=1,lte=5"`
	ScreenWidth   float64       `mapstructure:"screen_width" validate:"gt=0"`
	ScreenHeight  float64       `mapstructure:"screen_height" validate:"gt=0"`
}

type CatalogConfig struct {
	PageSize int `mapstructure:"page_size" validate:"gt=0,lte=100"`
}

type HistoryConfig struct {
	Path       string `mapstructure:"path" validate:"required"`
	MaxEntries int    `mapstructure:"max_entries" validate:"gte=0"`
}

type SecretsConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

var validate = validator.New()

// Dir returns the directory holding config.toml, history and file secrets.
func Dir(homeDir string) string {
	return filepath.Join(homeDir, configDir)
}

// SetDefaults registers every key with its default so environment overrides
// are picked up by Unmarshal.
func SetDefaults(v *viper.Viper, homeDir string) {
	dir := Dir(homeDir)

	v.SetDefault("api.base_url", "")
	v.SetDefault("api.token_ref", "giveaway/api_token")
	v.SetDefault("api.timeout", 15*time.Second)

	v.SetDefault("proximity.transport", TransportBeacon)
	v.SetDefault("proximity.listen_addr", "0.0.0.0:47800")
	v.SetDefault("proximity.broadcast_addr", "255.255.255.255:47800")
	v.SetDefault("proximity.interval", time.Second)
	v.SetDefault("proximity.device_name", "")
	v.SetDefault("proximity.transfer_token", "")
	v.SetDefault("proximity.simulated_peers", 3)
	v.SetDefault("proximity.simulated_delay", 300*time.Millisecond)

	v.SetDefault("session.scan_window", 5*time.Second)
	v.SetDefault("session.drag_threshold", 100.0)
	v.SetDefault("session.max_peers", 5)
	v.SetDefault("session.screen_width", 390.0)
	v.SetDefault("session.screen_height", 844.0)

	v.SetDefault("catalog.page_size", 20)

	v.SetDefault("history.path", filepath.Join(dir, "history.toml"))
	v.SetDefault("history.max_entries", 500)

	v.SetDefault("secrets.dir", filepath.Join(dir, "secrets"))

	v.SetDefault("log.level", "warn")
}

// Load reads the config file (when present) and the environment into v and
// returns the validated result. A missing config file is not an error.
func Load(v *viper.Viper, homeDir string) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	SetDefaults(v, homeDir)
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(Dir(homeDir))
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.History.Path = expandHome(cfg.History.Path, homeDir)
	cfg.Secrets.Dir = expandHome(cfg.Secrets.Dir, homeDir)
	v.Set("history.path", cfg.History.Path)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrors validator.ValidationErrors
		if !errors.As(err, &fieldErrors) {
			return fmt.Errorf("invalid config: %w", err)
		}

		messages := make([]string, 0, len(fieldErrors))
		for _, fieldErr := range fieldErrors {
			messages = append(messages, fmt.Sprintf("%s failed %q", configKey(fieldErr.Namespace()), fieldErr.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(messages, "; "))
	}

	return nil
}

// DefaultHomeDir resolves the user's home directory.
func DefaultHomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return home, nil
}

func expandHome(path, homeDir string) string {
	if path == "~" {
		return homeDir
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// configKey turns "Config.Session.MaxPeers" into "session.maxpeers".
func configKey(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.ToLower(strings.Join(parts, "."))
}
