package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// FileName is the config file kept next to the database
const FileName = "config.yaml"

// EnvPrefix prefixes environment overrides
const EnvPrefix = "HELPT"

// Load reads path on top of the defaults and applies HELPT_* environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.public_url", d.Server.PublicURL)
	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("github.api_base", d.GitHub.APIBase)
	v.SetDefault("trello.api_base", d.Trello.APIBase)
	v.SetDefault("sync.delete_limit", d.Sync.DeleteLimit)
	v.SetDefault("sync.deactivate_unseen_users", d.Sync.DeactivateUnseenUsers)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate rejects values the rest of the program cannot use
func (c *Config) Validate() error {
	if c.Sync.DeleteLimit < 0 {
		return fmt.Errorf("sync.delete_limit must not be negative, got %d", c.Sync.DeleteLimit)
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must not be negative, got %s", c.HTTP.Timeout)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// PathIn returns the config file path inside a .helpt directory
func PathIn(helptDir string) string {
	return filepath.Join(helptDir, FileName)
}
