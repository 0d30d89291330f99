package main

import (
	"github.com/spf13/cobra"

	"github.com/mhmdtwsm/GradProject-sub000/internal/config"
)

var migrateTo string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy every vault to another storage backend",
	Long: `Migrate copies the sealed vault records from the configured backend into
another one. No master password is needed and nothing is decrypted. Set
storage.backend in the config afterwards to switch over.`,
	Example: `  safevault migrate --to sqlite`,
	Args:    cobra.NoArgs,
	RunE:    runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringVar(&migrateTo, "to", config.BackendSQLite, "Target backend: json or sqlite")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	n, err := apiClient.MigrateTo(ctx, migrateTo)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "backend": migrateTo, "vaults": n})
		return nil
	}
	printSuccess("Migrated %d vault(s) to %s", n, migrateTo)
	printInfo("Set storage.backend: %s to use it", migrateTo)
	return nil
}
