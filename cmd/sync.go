package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"helpt/internal/db"
	"helpt/internal/models"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile local data with GitHub and Trello",
}

var syncWorkspacesCmd = &cobra.Command{
	Use:   "workspaces [datasource]",
	Short: "Import repositories or boards",
	Long: `Import the repositories of a GitHub organization or the boards of a
Trello organization, with their lists. Without --origin, workspaces no longer
reported by the remote are closed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSyncWorkspaces,
}

var syncTasksCmd = &cobra.Command{
	Use:   "tasks [datasource]",
	Short: "Import issues or cards of sync-enabled workspaces",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSyncTasks,
}

var syncAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Sync workspaces of every data source, then their tasks",
	Args:  cobra.NoArgs,
	RunE:  runSyncAll,
}

var (
	syncOrigin    string
	syncWorkspace uint
)

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncWorkspacesCmd)
	syncCmd.AddCommand(syncTasksCmd)
	syncCmd.AddCommand(syncAllCmd)

	syncWorkspacesCmd.Flags().StringVar(&syncOrigin, "origin", "", "Sync a single workspace by remote id")
	syncTasksCmd.Flags().UintVar(&syncWorkspace, "workspace", 0, "Only this workspace id")
	syncTasksCmd.Flags().StringVar(&syncOrigin, "origin", "", "Sync a single task by remote id (requires --workspace)")
}

// targetDataSources returns the named data source, or every data source
func targetDataSources(ctx context.Context, store *db.Store, args []string) ([]models.DataSource, error) {
	if len(args) == 1 {
		ds, err := findDataSource(ctx, store, args[0])
		if err != nil {
			return nil, err
		}
		return []models.DataSource{*ds}, nil
	}
	return store.DataSources(ctx)
}

func syncWorkspacesOf(ctx context.Context, store *db.Store, ds *models.DataSource, originID string) error {
	a, err := newAdapter(store, ds)
	if err != nil {
		return err
	}
	rep, err := a.SyncWorkspaces(ctx, originID)
	if err != nil {
		return fmt.Errorf("%s: %w", ds.Name, err)
	}
	out().Report(ds.Name, rep)
	return nil
}

// syncTasksOf syncs every sync-enabled open workspace of ds, or only the
// workspace with id onlyID when it is non-zero
func syncTasksOf(ctx context.Context, store *db.Store, ds *models.DataSource, onlyID uint, originID string) error {
	a, err := newAdapter(store, ds)
	if err != nil {
		return err
	}
	workspaces, err := store.Workspaces(ctx, ds.ID)
	if err != nil {
		return err
	}
	for _, ws := range workspaces {
		if onlyID != 0 {
			if ws.ID != onlyID {
				continue
			}
		} else if !ws.Sync || ws.State != models.StateOpen {
			continue
		}
		rep, err := a.SyncTasks(ctx, ws, originID)
		if err != nil {
			return fmt.Errorf("%s: %w", ws, err)
		}
		out().Report(ws.String(), rep)
	}
	return nil
}

func runSyncWorkspaces(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store := openStore()
	if syncOrigin != "" && len(args) == 0 {
		return fmt.Errorf("--origin requires a data source")
	}
	sources, err := targetDataSources(ctx, store, args)
	if err != nil {
		return err
	}
	for i := range sources {
		if err := syncWorkspacesOf(ctx, store, &sources[i], syncOrigin); err != nil {
			return err
		}
	}
	return nil
}

func runSyncTasks(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store := openStore()

	if syncWorkspace != 0 {
		ws, err := store.Workspace(ctx, syncWorkspace)
		if err != nil {
			return err
		}
		ds, err := store.DataSource(ctx, ws.DataSourceID)
		if err != nil {
			return err
		}
		return syncTasksOf(ctx, store, ds, ws.ID, syncOrigin)
	}
	if syncOrigin != "" {
		return fmt.Errorf("--origin requires --workspace")
	}

	var sources []models.DataSource
	var err error
	if len(args) == 1 {
		sources, err = targetDataSources(ctx, store, args)
	} else {
		sources, err = store.SyncEnabledDataSources(ctx, "")
	}
	if err != nil {
		return err
	}
	for i := range sources {
		if err := syncTasksOf(ctx, store, &sources[i], 0, ""); err != nil {
			return err
		}
	}
	return nil
}

func runSyncAll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store := openStore()
	sources, err := store.DataSources(ctx)
	if err != nil {
		return err
	}
	for i := range sources {
		if err := syncWorkspacesOf(ctx, store, &sources[i], ""); err != nil {
			return err
		}
		if err := syncTasksOf(ctx, store, &sources[i], 0, ""); err != nil {
			return err
		}
	}
	if err := db.SetConfig(models.ConfigLastFullSync, time.Now().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to record sync time: %w", err)
	}
	return nil
}
