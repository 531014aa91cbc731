package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"helpt/internal/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect synced tasks",
}

var taskListCmd = &cobra.Command{
	Use:     "list <workspace-id>",
	Short:   "List the tasks of a workspace",
	Aliases: []string{"ls"},
	Args:    cobra.ExactArgs(1),
	RunE:    runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task with its assignees",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskListState string

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskListCmd.Flags().StringVarP(&taskListState, "state", "s", "", "Filter by state (open, closed)")
}

func runTaskList(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "workspace")
	if err != nil {
		return err
	}
	var state models.WorkState
	if taskListState != "" {
		if state, err = models.ParseWorkState(taskListState); err != nil {
			return err
		}
	}

	store := openStore()
	ws, err := store.Workspace(cmd.Context(), id)
	if err != nil {
		return err
	}
	all, err := store.Tasks(cmd.Context(), ws.ID)
	if err != nil {
		return err
	}
	tasks := make([]models.Task, 0, len(all))
	for _, t := range all {
		if state == "" || t.State == state {
			tasks = append(tasks, *t)
		}
	}
	out().TaskList(tasks, fmt.Sprintf("Tasks of %s", ws))
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "task")
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	store := openStore()
	task, err := store.Task(ctx, id)
	if err != nil {
		return err
	}
	assignees, err := store.Assignees(ctx, task.ID)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"task": task, "assignees": assignees})
		return nil
	}

	f := out()
	f.KeyValue("Task", task.String())
	f.KeyValue("State", string(task.State))
	f.KeyValue("Created", task.CreatedAt.Local().Format(models.DateTimeShortFormat))
	f.KeyValue("Updated", task.UpdatedAt.Local().Format(models.DateTimeShortFormat))
	if task.ClosedAt != nil {
		f.KeyValue("Closed", task.ClosedAt.Local().Format(models.DateTimeShortFormat))
	}
	if len(assignees) > 0 {
		f.KeyValue("Assignees", fmt.Sprint(assignees))
	}
	return nil
}
