package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"helpt/internal/models"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [datasource]",
	Short: "Show what recent syncs changed",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "Maximum entries to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store := openStore()

	var dsID uint
	if len(args) == 1 {
		ds, err := findDataSource(ctx, store, args[0])
		if err != nil {
			return err
		}
		dsID = ds.ID
	}

	changes, err := store.Changes(ctx, dsID, historyLimit)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{
			"count":   len(changes),
			"changes": changes,
		})
		return nil
	}

	if len(changes) == 0 {
		fmt.Println("No sync changes recorded")
		return nil
	}

	for _, c := range changes {
		timestamp := c.SyncedAt.Local().Format(models.DateTimeShortFormat)
		if c.Created {
			fmt.Printf("[%s] %s %d (%s): created\n", timestamp, c.Entity, c.EntityID, c.OriginID)
			continue
		}
		fmt.Printf("[%s] %s %d (%s): %s\n", timestamp, c.Entity, c.EntityID, c.OriginID, strings.Join(c.Fields, ", "))
	}
	return nil
}
