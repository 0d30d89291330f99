package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mhmdtwsm/GradProject-sub000/internal/crypto"
	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
)

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Create, list and remove vaults",
}

var vaultListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vaults (no password needed)",
	Args:  cobra.NoArgs,
	RunE:  runVaultList,
}

var vaultCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty vault",
	Example: `  safevault vault create Work --icon work
  echo "$MASTER" | safevault vault create Personal`,
	Args: cobra.ExactArgs(1),
	RunE: runVaultCreate,
}

var vaultVerifyCmd = &cobra.Command{
	Use:   "verify <vault>",
	Short: "Check a master password without changing anything",
	Args:  cobra.ExactArgs(1),
	RunE:  runVaultVerify,
}

var vaultRenameCmd = &cobra.Command{
	Use:   "rename <vault> <new-name>",
	Short: "Change the display name of a vault",
	Args:  cobra.ExactArgs(2),
	RunE:  runVaultRename,
}

var vaultDeleteCmd = &cobra.Command{
	Use:   "delete <vault>",
	Short: "Delete a vault and every account in it",
	Long:  `Delete removes the vault record irreversibly. There is no undo.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runVaultDelete,
}

var (
	vaultIcon string
	vaultYes  bool
)

func init() {
	rootCmd.AddCommand(vaultCmd)
	vaultCmd.AddCommand(vaultListCmd, vaultCreateCmd, vaultVerifyCmd, vaultRenameCmd, vaultDeleteCmd)

	vaultCreateCmd.Flags().StringVarP(&vaultIcon, "icon", "i", string(models.IconMisc),
		"Icon: work, social, warning or misc")
	vaultDeleteCmd.Flags().BoolVarP(&vaultYes, "yes", "y", false,
		"Do not ask for confirmation")
}

func runVaultList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	vaults, err := apiClient.ListVaults(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "vaults": vaults})
		return nil
	}

	if len(vaults) == 0 {
		printInfo("No vaults yet. Create one with: safevault vault create <name>")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tICON\tID\tUPDATED")
	for _, v := range vaults {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.Name, v.Icon, v.ID, v.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runVaultCreate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	icon, err := models.ParseIcon(vaultIcon)
	if err != nil {
		return err
	}

	password, err := promptNewPassword("Master password: ")
	if err != nil {
		return err
	}
	defer crypto.Wipe(password)

	meta, err := apiClient.CreateVault(ctx, args[0], icon, password)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "vault": meta})
		return nil
	}
	printSuccess("Created vault %s (%s)", meta.Name, meta.ID)
	return nil
}

func runVaultVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	s, meta, err := openVault(ctx, args[0])
	if err != nil {
		return err
	}
	defer apiClient.LockVault(meta.ID)

	accounts, err := apiClient.ListAccounts(s)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "vault_id": meta.ID, "accounts": len(accounts)})
		return nil
	}
	printSuccess("Password correct for %s (%d accounts)", meta.Name, len(accounts))
	return nil
}

func runVaultRename(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	meta, err := apiClient.ResolveVault(ctx, args[0])
	if err != nil {
		return err
	}

	if err := apiClient.RenameVault(ctx, meta.ID, args[1]); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "vault_id": meta.ID})
		return nil
	}
	printSuccess("Renamed %s to %s", meta.Name, args[1])
	return nil
}

func runVaultDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	meta, err := apiClient.ResolveVault(ctx, args[0])
	if err != nil {
		return err
	}

	if !vaultYes {
		ok, err := confirm(fmt.Sprintf("Delete vault %s and all of its accounts?", meta.Name))
		if err != nil {
			return err
		}
		if !ok {
			printWarning("Aborted")
			return nil
		}
	}

	if err := apiClient.DeleteVault(ctx, meta.ID); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "vault_id": meta.ID})
		return nil
	}
	printSuccess("Deleted vault %s", meta.Name)
	return nil
}
