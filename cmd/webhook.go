package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"helpt/internal/db"
	"helpt/internal/models"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Install and remove provider webhooks",
}

var webhookGitHubCmd = &cobra.Command{
	Use:   "github [datasource]",
	Short: "Manage GitHub organization webhooks",
	Long: `Register or remove the organization webhooks that deliver issue and
repository events to 'helpt serve'. Without a data source argument every
GitHub data source with sync-enabled workspaces is handled.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWebhook(cmd, args, models.ProviderGitHub)
	},
}

var webhookTrelloCmd = &cobra.Command{
	Use:   "trello [datasource]",
	Short: "Manage Trello board webhooks",
	Long: `Register one webhook per sync-enabled board, or remove every webhook
owned by the data source token.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWebhook(cmd, args, models.ProviderTrello)
	},
}

var (
	webhookAdd   bool
	webhookClear bool
	webhookURL   string
)

func init() {
	rootCmd.AddCommand(webhookCmd)
	for _, c := range []*cobra.Command{webhookGitHubCmd, webhookTrelloCmd} {
		webhookCmd.AddCommand(c)
		c.Flags().BoolVarP(&webhookAdd, "add", "a", false, "Register webhooks")
		c.Flags().BoolVarP(&webhookClear, "clear", "c", false, "Remove registered webhooks")
		c.Flags().StringVar(&webhookURL, "url", "", "Public base URL of 'helpt serve' (default server.public_url)")
	}
}

// handlerURL joins the public base URL with the provider's endpoint
func handlerURL(base string, typ models.ProviderType) (string, error) {
	base = strings.TrimRight(base, "/")
	if base == "" {
		return "", fmt.Errorf("no public URL: pass --url or set server.public_url")
	}
	return base + "/webhooks/" + string(typ) + "/", nil
}

func webhookTargets(ctx context.Context, store *db.Store, args []string, typ models.ProviderType, onlySync bool) ([]models.DataSource, error) {
	if len(args) == 1 {
		ds, err := findDataSource(ctx, store, args[0])
		if err != nil {
			return nil, err
		}
		if ds.Type != typ {
			return nil, fmt.Errorf("data source %s is not a %s data source", ds.Name, typ)
		}
		return []models.DataSource{*ds}, nil
	}
	if onlySync {
		return store.SyncEnabledDataSources(ctx, typ)
	}
	all, err := store.DataSources(ctx)
	if err != nil {
		return nil, err
	}
	var list []models.DataSource
	for _, ds := range all {
		if ds.Type == typ {
			list = append(list, ds)
		}
	}
	return list, nil
}

func runWebhook(cmd *cobra.Command, args []string, typ models.ProviderType) error {
	if !webhookAdd && !webhookClear {
		return fmt.Errorf("nothing to do: pass --add and/or --clear")
	}
	ctx := cmd.Context()
	store := openStore()
	f := out()

	if webhookClear {
		sources, err := webhookTargets(ctx, store, args, typ, false)
		if err != nil {
			return err
		}
		for i := range sources {
			a, err := newAdapter(store, &sources[i])
			if err != nil {
				return err
			}
			if err := a.ClearWebhooks(ctx); err != nil {
				return fmt.Errorf("%s: %w", sources[i].Name, err)
			}
			f.Success(fmt.Sprintf("Removed webhooks of %s", sources[i].Name))
		}
	}

	if webhookAdd {
		base := webhookURL
		if base == "" {
			base = cfg.Server.PublicURL
		}
		url, err := handlerURL(base, typ)
		if err != nil {
			return err
		}
		sources, err := webhookTargets(ctx, store, args, typ, true)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			f.Info(fmt.Sprintf("No %s data sources with sync-enabled workspaces", typ))
			return nil
		}
		f.Info("Registering webhooks for handler: " + url)
		for i := range sources {
			a, err := newAdapter(store, &sources[i])
			if err != nil {
				return err
			}
			if err := a.RegisterWebhook(ctx, url); err != nil {
				return fmt.Errorf("%s: %w", sources[i].Name, err)
			}
			f.Success(fmt.Sprintf("Registered webhook for %s", sources[i].Name))
		}
	}
	return nil
}
