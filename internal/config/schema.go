package config

import "time"

// Config is the full helpt configuration
type Config struct {
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	HTTP     HTTPConfig     `yaml:"http" mapstructure:"http"`
	GitHub   ProviderConfig `yaml:"github" mapstructure:"github"`
	Trello   ProviderConfig `yaml:"trello" mapstructure:"trello"`
	Sync     SyncConfig     `yaml:"sync" mapstructure:"sync"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// DatabaseConfig locates the SQLite file. An empty path means
// .helpt/db.sqlite in the project root.
type DatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the webhook receiver
type ServerConfig struct {
	Addr        string        `yaml:"addr" mapstructure:"addr"`
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	// PublicURL is the externally reachable base used for webhook callbacks
	PublicURL string `yaml:"public_url" mapstructure:"public_url"`
}

type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type ProviderConfig struct {
	APIBase string `yaml:"api_base" mapstructure:"api_base"`
}

// SyncConfig tunes reconciliation passes
type SyncConfig struct {
	// DeleteLimit aborts a pass closing more entities than this; 0 disables
	DeleteLimit           int  `yaml:"delete_limit" mapstructure:"delete_limit"`
	DeactivateUnseenUsers bool `yaml:"deactivate_unseen_users" mapstructure:"deactivate_unseen_users"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}
