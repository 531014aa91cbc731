package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"helpt/internal/models"
)

var datasourceCmd = &cobra.Command{
	Use:     "datasource",
	Short:   "Manage remote data sources",
	Aliases: []string{"ds"},
}

var datasourceAddCmd = &cobra.Command{
	Use:   "add <name> <github|trello>",
	Short: "Add a data source",
	Long: `Add a connection to a GitHub organization or a Trello organization.

Secrets passed with --token and --key are stored in the system keyring when
one is available, otherwise in the database. They can also be supplied at
run time with HELPT_<NAME>_TOKEN and HELPT_<NAME>_KEY.`,
	Args: cobra.ExactArgs(2),
	RunE: runDatasourceAdd,
}

var datasourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List data sources",
	RunE:  runDatasourceList,
}

var (
	datasourceOrg   string
	datasourceToken string
	datasourceKey   string
)

func init() {
	rootCmd.AddCommand(datasourceCmd)
	datasourceCmd.AddCommand(datasourceAddCmd)
	datasourceCmd.AddCommand(datasourceListCmd)

	datasourceAddCmd.Flags().StringVar(&datasourceOrg, "org", "", "Remote organization (GitHub login or Trello organization id)")
	datasourceAddCmd.Flags().StringVar(&datasourceToken, "token", "", "API token")
	datasourceAddCmd.Flags().StringVar(&datasourceKey, "key", "", "API key (Trello only)")
	datasourceAddCmd.MarkFlagRequired("org")
}

func runDatasourceAdd(cmd *cobra.Command, args []string) error {
	typ, err := models.ParseProviderType(args[1])
	if err != nil {
		return err
	}
	ds := &models.DataSource{Name: args[0], Type: typ, Organization: datasourceOrg}

	if !storeSecret(models.KeyringTokenKey(ds.Name), datasourceToken) {
		fmt.Fprintln(os.Stderr, "Warning: keyring unavailable, storing token in the database")
		ds.Token = datasourceToken
	}
	if !storeSecret(models.KeyringKeyKey(ds.Name), datasourceKey) {
		ds.Key = datasourceKey
	}

	if err := openStore().CreateDataSource(cmd.Context(), ds); err != nil {
		return fmt.Errorf("failed to create data source: %w", err)
	}

	if IsJSONOutput() {
		OutputJSON(ds)
		return nil
	}
	fmt.Printf("Created data source [%d] %s (%s)\n", ds.ID, ds.Name, ds.Type)
	return nil
}

func runDatasourceList(cmd *cobra.Command, args []string) error {
	sources, err := openStore().DataSources(cmd.Context())
	if err != nil {
		return err
	}
	out().DataSourceList(sources)
	return nil
}
