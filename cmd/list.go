package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Manage workspace lists (Trello lists)",
}

var listSetTaskStateCmd = &cobra.Command{
	Use:   "set-task-state <list-id> <open|closed|none>",
	Short: "Force the state of every task in a list",
	Long: `Set the task state of a list. Tasks in a list with a task state take
that state on every sync, whatever the remote reports. "none" restores the
remote state.`,
	Args: cobra.ExactArgs(2),
	RunE: runListSetTaskState,
}

var listShowCmd = &cobra.Command{
	Use:   "show <workspace-id>",
	Short: "Show the lists of a workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runListShow,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.AddCommand(listSetTaskStateCmd)
	listCmd.AddCommand(listShowCmd)
}

func runListShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "workspace")
	if err != nil {
		return err
	}
	lists, err := openStore().Lists(cmd.Context(), id)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"count": len(lists), "lists": lists})
		return nil
	}
	if len(lists) == 0 {
		fmt.Println("No lists found")
		return nil
	}
	for _, l := range lists {
		taskState := ""
		if l.TaskState != nil {
			taskState = fmt.Sprintf(" (tasks forced %s)", *l.TaskState)
		}
		fmt.Printf("[%d] %s %s - %s%s\n", l.ID, l.OriginID, l.State, l.Name, taskState)
	}
	return nil
}

func runListSetTaskState(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "list")
	if err != nil {
		return err
	}
	state, err := parseOptionalState(args[1])
	if err != nil {
		return err
	}
	if err := openStore().SetListTaskState(cmd.Context(), id, state); err != nil {
		return err
	}
	out().Success(fmt.Sprintf("Task state of list %d set to %s", id, args[1]))
	return nil
}
