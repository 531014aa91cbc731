package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"helpt/internal/models"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectAdd,
}

var projectLinkCmd = &cobra.Command{
	Use:   "link <workspace-id> <project-id>",
	Short: "Attach a project to a workspace",
	Long: `Attach a project to a workspace. When a workspace has exactly one
project, newly synced tasks are assigned to it.`,
	Args: cobra.ExactArgs(2),
	RunE: runProjectLink,
}

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectLinkCmd)
}

func runProjectAdd(cmd *cobra.Command, args []string) error {
	p := &models.Project{Name: args[0]}
	if err := openStore().CreateProject(cmd.Context(), p); err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	if IsJSONOutput() {
		OutputJSON(p)
		return nil
	}
	fmt.Printf("Created project [%d] %s\n", p.ID, p.Name)
	return nil
}

func runProjectLink(cmd *cobra.Command, args []string) error {
	wsID, err := parseID(args[0], "workspace")
	if err != nil {
		return err
	}
	projectID, err := parseID(args[1], "project")
	if err != nil {
		return err
	}
	store := openStore()
	if _, err := store.Workspace(cmd.Context(), wsID); err != nil {
		return err
	}
	if err := store.LinkProject(cmd.Context(), wsID, projectID); err != nil {
		return err
	}
	out().Success(fmt.Sprintf("Linked project %d to workspace %d", projectID, wsID))
	return nil
}
