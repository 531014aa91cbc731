package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"helpt/internal/adapters"
	"helpt/internal/config"
	"helpt/internal/db"
	"helpt/internal/logging"
	"helpt/internal/models"
	"helpt/internal/output"
)

var (
	Version    = "0.1.0"
	jsonOutput bool
	configPath string

	cfg    = config.DefaultConfig()
	logger = logging.Discard()
)

// commandsExemptFromDB lists commands that don't require database initialization
var commandsExemptFromDB = map[string]bool{
	"init":       true,
	"version":    true,
	"help":       true,
	"completion": true,
}

var rootCmd = &cobra.Command{
	Use:   "helpt",
	Short: "helpt - time tracking against GitHub issues and Trello cards",
	Long: `helpt keeps a local mirror of GitHub repositories and Trello boards
so hours can be logged against their issues and cards.

QUICK START:
  helpt init                                    # Initialize in current directory
  helpt datasource add gh github --org acme     # Connect a GitHub organization
  helpt sync workspaces gh                      # Import repositories
  helpt workspace sync-enable <id>              # Track a repository
  helpt sync tasks gh                           # Import its issues
  helpt entry add --user me --task 12 --minutes 90

WEBHOOKS:
  helpt webhook github gh --add                 # Register organization hook
  helpt serve                                   # Receive events

CREDENTIALS: tokens come from HELPT_<NAME>_TOKEN / HELPT_<NAME>_KEY,
the system keyring, or the database, in that order.

JSON OUTPUT: Add --json flag to any command for machine-readable output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		if commandsExemptFromDB[cmd.Name()] {
			return nil
		}
		return db.EnsureInitialized(cfg.Database.Path)
	},
}

func Execute() {
	defer db.CloseDB()

	if err := rootCmd.Execute(); err != nil {
		if jsonOutput {
			OutputJSON(map[string]interface{}{"error": true, "message": err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default .helpt/config.yaml)")
	rootCmd.Version = Version
}

// defaultConfigPath returns .helpt/config.yaml of the enclosing project, or
// an empty path outside of one
func defaultConfigPath() string {
	root, err := db.FindProjectRoot()
	if err != nil {
		return ""
	}
	return config.PathIn(filepath.Join(root, db.HelptDir))
}

func loadConfig() error {
	path := configPath
	if path == "" {
		path = defaultConfigPath()
	}
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	l, err := logging.New(os.Stderr, loaded.Log.Level, loaded.Log.Format)
	if err != nil {
		return err
	}
	cfg, logger = loaded, l
	return nil
}

func OutputJSON(data interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	encoder.Encode(data)
}

func IsJSONOutput() bool {
	return jsonOutput
}

func out() output.Formatter {
	return output.New(jsonOutput)
}

func openStore() *db.Store {
	return db.NewStore(db.GetDB())
}

// adapterOptions translates configuration into adapter options
func adapterOptions(c *config.Config, l *slog.Logger) []adapters.Option {
	return []adapters.Option{
		adapters.WithLogger(l),
		adapters.WithHTTPClient(adapters.NewHTTPClient(c.HTTP.Timeout)),
		adapters.WithGitHubBaseURL(c.GitHub.APIBase),
		adapters.WithTrelloBaseURL(c.Trello.APIBase),
		adapters.WithDeleteLimit(c.Sync.DeleteLimit),
		adapters.WithUserDeactivation(c.Sync.DeactivateUnseenUsers),
	}
}

// newAdapter builds the adapter for ds with resolved credentials
func newAdapter(store *db.Store, ds *models.DataSource) (adapters.Adapter, error) {
	resolved := resolveCredentials(ds)
	return adapters.New(&resolved, store, adapterOptions(cfg, logger.With("datasource", ds.Name))...)
}

// findDataSource accepts a data source name or numeric id
func findDataSource(ctx context.Context, store *db.Store, arg string) (*models.DataSource, error) {
	if id, err := strconv.ParseUint(arg, 10, 64); err == nil {
		return store.DataSource(ctx, uint(id))
	}
	return store.DataSourceByName(ctx, arg)
}

func parseID(arg, what string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return uint(id), nil
}
