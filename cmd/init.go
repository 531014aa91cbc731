package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"helpt/internal/config"
	"helpt/internal/db"
	"helpt/internal/models"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize helpt in the current directory",
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Force reinitialize")
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	helptDir := filepath.Join(cwd, db.HelptDir)
	dbPath := filepath.Join(helptDir, db.DBFileName)
	if cfg.Database.Path != "" {
		dbPath = cfg.Database.Path
	}

	// Check if already initialized
	if info, err := os.Stat(helptDir); err == nil && info.IsDir() {
		if !forceInit {
			return fmt.Errorf("already initialized. Use --force to reinitialize")
		}
		if err := os.RemoveAll(helptDir); err != nil {
			return fmt.Errorf("failed to remove existing helpt directory: %w", err)
		}
	}

	if err := os.MkdirAll(helptDir, 0755); err != nil {
		return fmt.Errorf("failed to create helpt directory: %w", err)
	}
	if err := config.WriteDefault(config.PathIn(helptDir)); err != nil {
		return err
	}

	database, err := db.InitDB(dbPath)
	if err != nil {
		return err
	}

	if err := database.Save(&models.Config{Key: models.ConfigSchemaVersion, Value: db.SchemaVersion}).Error; err != nil {
		return fmt.Errorf("failed to save schema version: %w", err)
	}
	if err := database.Save(&models.Config{Key: models.ConfigInitializedAt, Value: time.Now().Format(time.RFC3339)}).Error; err != nil {
		return fmt.Errorf("failed to save initialization time: %w", err)
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "path": helptDir, "database": dbPath})
		return nil
	}

	fmt.Printf("helpt initialized in %s/\n", db.HelptDir)
	fmt.Println("\nNext steps:")
	fmt.Println("  helpt datasource add <name> github --org <org>   Connect GitHub")
	fmt.Println("  helpt datasource add <name> trello --org <org>   Connect Trello")
	fmt.Println("  helpt sync workspaces <name>                     Import repositories or boards")
	return nil
}
