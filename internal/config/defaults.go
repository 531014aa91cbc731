package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			ReadTimeout: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			Timeout: 30 * time.Second,
		},
		GitHub: ProviderConfig{APIBase: "https://api.github.com/"},
		Trello: ProviderConfig{APIBase: "https://api.trello.com/1/"},
		Sync: SyncConfig{
			DeleteLimit: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

const defaultHeader = `# helpt configuration
# Every key can be overridden from the environment, e.g. HELPT_SERVER_ADDR.
# Data source tokens are kept in the system keyring or HELPT_<NAME>_TOKEN.
`

// WriteDefault writes the default configuration to path
func WriteDefault(path string) error {
	out, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, append([]byte(defaultHeader), out...), 0644)
}
