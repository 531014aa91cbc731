package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"helpt/internal/models"
)

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Short:   "Manage synced repositories and boards",
	Aliases: []string{"ws"},
}

var workspaceListCmd = &cobra.Command{
	Use:   "list [datasource]",
	Short: "List workspaces",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWorkspaceList,
}

var workspaceSyncEnableCmd = &cobra.Command{
	Use:   "sync-enable <workspace-id>",
	Short: "Include a workspace in task syncs and webhooks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setWorkspaceSync(cmd, args[0], true)
	},
}

var workspaceSyncDisableCmd = &cobra.Command{
	Use:   "sync-disable <workspace-id>",
	Short: "Exclude a workspace from task syncs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setWorkspaceSync(cmd, args[0], false)
	},
}

var workspaceDefaultTaskStateCmd = &cobra.Command{
	Use:   "default-task-state <workspace-id> <open|closed|none>",
	Short: "Set the task state given to lists that have none",
	Args:  cobra.ExactArgs(2),
	RunE:  runWorkspaceDefaultTaskState,
}

var workspaceSyncOnly bool

func init() {
	rootCmd.AddCommand(workspaceCmd)
	workspaceCmd.AddCommand(workspaceListCmd)
	workspaceCmd.AddCommand(workspaceSyncEnableCmd)
	workspaceCmd.AddCommand(workspaceSyncDisableCmd)
	workspaceCmd.AddCommand(workspaceDefaultTaskStateCmd)

	workspaceListCmd.Flags().BoolVar(&workspaceSyncOnly, "sync", false, "Only sync-enabled workspaces")
}

// parseOptionalState accepts a work state or "none" to clear it
func parseOptionalState(arg string) (*models.WorkState, error) {
	if arg == "none" || arg == "" {
		return nil, nil
	}
	st, err := models.ParseWorkState(arg)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func runWorkspaceList(cmd *cobra.Command, args []string) error {
	store := openStore()
	var dsID uint
	if len(args) == 1 {
		ds, err := findDataSource(cmd.Context(), store, args[0])
		if err != nil {
			return err
		}
		dsID = ds.ID
	}
	list, err := store.ListWorkspaces(cmd.Context(), dsID, workspaceSyncOnly)
	if err != nil {
		return err
	}
	out().WorkspaceList(list)
	return nil
}

func setWorkspaceSync(cmd *cobra.Command, arg string, enabled bool) error {
	id, err := parseID(arg, "workspace")
	if err != nil {
		return err
	}
	if err := openStore().SetWorkspaceSync(cmd.Context(), id, enabled); err != nil {
		return err
	}
	verb := "enabled"
	if !enabled {
		verb = "disabled"
	}
	out().Success(fmt.Sprintf("Sync %s for workspace %d", verb, id))
	return nil
}

func runWorkspaceDefaultTaskState(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "workspace")
	if err != nil {
		return err
	}
	state, err := parseOptionalState(args[1])
	if err != nil {
		return err
	}
	if err := openStore().SetDefaultListTaskState(cmd.Context(), id, state); err != nil {
		return err
	}
	out().Success(fmt.Sprintf("Default list task state of workspace %d set to %s", id, args[1]))
	return nil
}
