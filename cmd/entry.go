package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"helpt/internal/db"
	"helpt/internal/models"
)

var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Log hours against tasks",
}

var entryAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Log minutes on a task",
	Long: `Log minutes on a task for one date. A user has at most one entry per
task and date; use --id to update an existing entry.`,
	Args: cobra.NoArgs,
	RunE: runEntryAdd,
}

var entryListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List hour entries",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE:    runEntryList,
}

var entryDeleteCmd = &cobra.Command{
	Use:   "delete <entry-id>",
	Short: "Delete an hour entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runEntryDelete,
}

var (
	entryID      uint
	entryUser    string
	entryTask    uint
	entryDate    string
	entryMinutes int
	entryFrom    string
	entryTo      string
	entryDeleted bool
)

func init() {
	rootCmd.AddCommand(entryCmd)
	entryCmd.AddCommand(entryAddCmd)
	entryCmd.AddCommand(entryListCmd)
	entryCmd.AddCommand(entryDeleteCmd)

	entryAddCmd.Flags().UintVar(&entryID, "id", 0, "Update this entry instead of creating one")
	entryAddCmd.Flags().StringVarP(&entryUser, "user", "u", "", "Username")
	entryAddCmd.Flags().UintVarP(&entryTask, "task", "t", 0, "Task id")
	entryAddCmd.Flags().StringVarP(&entryDate, "date", "d", "", "Date (YYYY-MM-DD, default today)")
	entryAddCmd.Flags().IntVarP(&entryMinutes, "minutes", "m", 0, "Minutes spent")
	entryAddCmd.MarkFlagRequired("user")
	entryAddCmd.MarkFlagRequired("task")
	entryAddCmd.MarkFlagRequired("minutes")

	entryListCmd.Flags().StringVarP(&entryUser, "user", "u", "", "Filter by username")
	entryListCmd.Flags().UintVarP(&entryTask, "task", "t", 0, "Filter by task id")
	entryListCmd.Flags().StringVar(&entryFrom, "from", "", "First date (YYYY-MM-DD)")
	entryListCmd.Flags().StringVar(&entryTo, "to", "", "Last date (YYYY-MM-DD)")
	entryListCmd.Flags().BoolVar(&entryDeleted, "deleted", false, "Include deleted entries")
}

func runEntryAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store := openStore()

	u, err := store.UserByUsername(ctx, entryUser)
	if err != nil {
		return err
	}
	date := entryDate
	if date == "" {
		date = time.Now().Format(models.DateFormat)
	}

	e := &models.Entry{UserID: u.ID, TaskID: entryTask, Date: date, Minutes: entryMinutes}
	if entryID != 0 {
		existing, err := store.Entry(ctx, entryID)
		if err != nil {
			return err
		}
		e.ID = existing.ID
		e.State = existing.State
		e.CreatedAt = existing.CreatedAt
	}
	if err := store.SaveEntry(ctx, e); err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(e)
		return nil
	}
	fmt.Printf("Saved entry [%d] %s\n", e.ID, e)
	return nil
}

func runEntryList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store := openStore()

	filter := db.EntryFilter{TaskID: entryTask, From: entryFrom, To: entryTo, IncludeDeleted: entryDeleted}
	if entryUser != "" {
		u, err := store.UserByUsername(ctx, entryUser)
		if err != nil {
			return err
		}
		filter.UserID = u.ID
	}
	entries, err := store.Entries(ctx, filter)
	if err != nil {
		return err
	}
	out().EntryList(entries)
	return nil
}

func runEntryDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "entry")
	if err != nil {
		return err
	}
	if err := openStore().DeleteEntry(cmd.Context(), id); err != nil {
		return err
	}
	out().Success(fmt.Sprintf("Deleted entry %d", id))
	return nil
}
