package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"helpt/internal/models"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage local users",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a local user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAdd,
}

var userLinkCmd = &cobra.Command{
	Use:   "link <datasource> <remote-username> <username>",
	Short: "Link a remote identity to a local user",
	Args:  cobra.ExactArgs(3),
	RunE:  runUserLink,
}

var userEmail string

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userLinkCmd)

	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Email address")
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	u := &models.User{Username: args[0], Email: userEmail}
	if err := openStore().CreateUser(cmd.Context(), u); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	if IsJSONOutput() {
		OutputJSON(u)
		return nil
	}
	fmt.Printf("Created user [%d] %s\n", u.ID, u.Username)
	return nil
}

func runUserLink(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store := openStore()
	ds, err := findDataSource(ctx, store, args[0])
	if err != nil {
		return err
	}
	u, err := store.UserByUsername(ctx, args[2])
	if err != nil {
		return err
	}
	if err := store.LinkUser(ctx, ds.ID, args[1], u.ID); err != nil {
		return err
	}
	out().Success(fmt.Sprintf("Linked %s user %s to %s", ds.Name, args[1], u.Username))
	return nil
}
