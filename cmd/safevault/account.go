package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/mhmdtwsm/GradProject-sub000/internal/crypto"
	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
	"github.com/mhmdtwsm/GradProject-sub000/internal/session"
)

var accountCmd = &cobra.Command{
	Use:     "account",
	Aliases: []string{"acc"},
	Short:   "Manage the accounts stored in a vault",
	Long: `Account commands unlock the vault named by --vault for the duration of
the command and lock it again before exiting.`,
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts (passwords are not shown)",
	Args:  cobra.NoArgs,
	RunE:  runAccountList,
}

var accountGetCmd = &cobra.Command{
	Use:   "get <account-id>",
	Short: "Show one account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountGet,
}

var accountAddCmd = &cobra.Command{
	Use:     "add",
	Short:   "Add an account",
	Example: `  safevault account add -V Work --title GitHub --email me@example.com`,
	Args:    cobra.NoArgs,
	RunE:    runAccountAdd,
}

var accountUpdateCmd = &cobra.Command{
	Use:   "update <account-id>",
	Short: "Change fields of an account; unset flags stay as they are",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountUpdate,
}

var accountDeleteCmd = &cobra.Command{
	Use:   "delete <account-id>",
	Short: "Delete an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountDelete,
}

var (
	accountVault string

	accountTitle    string
	accountURL      string
	accountEmail    string
	accountNotes    string
	accountPassword bool

	showPassword bool
	copyPassword bool
)

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountListCmd, accountGetCmd, accountAddCmd, accountUpdateCmd, accountDeleteCmd)

	accountCmd.PersistentFlags().StringVarP(&accountVault, "vault", "V", "", "Vault name or id")
	_ = accountCmd.MarkPersistentFlagRequired("vault")

	for _, c := range []*cobra.Command{accountAddCmd, accountUpdateCmd} {
		c.Flags().StringVarP(&accountTitle, "title", "t", "", "Account title")
		c.Flags().StringVarP(&accountURL, "url", "u", "", "Login URL")
		c.Flags().StringVarP(&accountEmail, "email", "e", "", "Email or username")
		c.Flags().StringVarP(&accountNotes, "notes", "n", "", "Free-form notes")
	}
	accountUpdateCmd.Flags().BoolVarP(&accountPassword, "password", "p", false, "Prompt for a new account password")

	accountGetCmd.Flags().BoolVarP(&showPassword, "show", "s", false, "Print the password")
	accountGetCmd.Flags().BoolVar(&copyPassword, "copy", false, "Copy the password to the clipboard")
}

// openVault resolves ref and unlocks it with a prompted master password.
func openVault(ctx context.Context, ref string) (*session.Session, models.VaultMetadata, error) {
	meta, err := apiClient.ResolveVault(ctx, ref)
	if err != nil {
		return nil, meta, err
	}

	password, err := promptPassword(fmt.Sprintf("Master password for %s: ", meta.Name))
	if err != nil {
		return nil, meta, err
	}
	defer crypto.Wipe(password)

	logger.WithField("vault_id", meta.ID).Debug("Unlocking vault")
	s, err := apiClient.UnlockVault(ctx, meta.ID, password)
	if err != nil {
		return nil, meta, err
	}
	return s, meta, nil
}

func runAccountList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	s, meta, err := openVault(ctx, accountVault)
	if err != nil {
		return err
	}
	defer apiClient.LockVault(meta.ID)

	accounts, err := apiClient.ListAccounts(s)
	if err != nil {
		return err
	}

	if jsonOutput {
		items := make([]map[string]string, 0, len(accounts))
		for _, a := range accounts {
			items = append(items, map[string]string{
				"id":    a.ID,
				"title": a.Title,
				"url":   a.URL,
				"email": a.Email,
			})
		}
		printJSON(map[string]interface{}{"success": true, "vault_id": meta.ID, "accounts": items})
		return nil
	}

	if len(accounts) == 0 {
		printInfo("Vault %s is empty", meta.Name)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tEMAIL\tURL")
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Title, a.Email, a.URL)
	}
	return w.Flush()
}

func runAccountGet(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	s, meta, err := openVault(ctx, accountVault)
	if err != nil {
		return err
	}
	defer apiClient.LockVault(meta.ID)

	a, err := apiClient.GetAccount(s, args[0])
	if err != nil {
		return err
	}

	if copyPassword {
		if err := clipboard.WriteAll(a.Password); err != nil {
			return fmt.Errorf("copy to clipboard: %w", err)
		}
	}
	if !showPassword {
		a.Password = ""
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "account": a, "copied": copyPassword})
		return nil
	}

	fmt.Printf("Title:    %s\n", a.Title)
	fmt.Printf("URL:      %s\n", a.URL)
	fmt.Printf("Email:    %s\n", a.Email)
	if showPassword {
		fmt.Printf("Password: %s\n", a.Password)
	}
	if a.Notes != "" {
		fmt.Printf("Notes:    %s\n", a.Notes)
	}
	if copyPassword {
		printInfo("Password copied to clipboard")
	}
	return nil
}

func runAccountAdd(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	s, meta, err := openVault(ctx, accountVault)
	if err != nil {
		return err
	}
	defer apiClient.LockVault(meta.ID)

	password, err := promptPassword("Account password (leave empty for none): ")
	if err != nil {
		return err
	}

	id, err := apiClient.AddAccount(ctx, s, models.AccountFields{
		Title:    accountTitle,
		URL:      accountURL,
		Email:    accountEmail,
		Password: string(password),
		Notes:    accountNotes,
	})
	crypto.Wipe(password)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "vault_id": meta.ID, "account_id": id})
		return nil
	}
	printSuccess("Added %s to %s (%s)", accountTitle, meta.Name, id)
	return nil
}

func runAccountUpdate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	var u models.AccountUpdate
	flags := cmd.Flags()
	if flags.Changed("title") {
		u.Title = &accountTitle
	}
	if flags.Changed("url") {
		u.URL = &accountURL
	}
	if flags.Changed("email") {
		u.Email = &accountEmail
	}
	if flags.Changed("notes") {
		u.Notes = &accountNotes
	}

	s, meta, err := openVault(ctx, accountVault)
	if err != nil {
		return err
	}
	defer apiClient.LockVault(meta.ID)

	if accountPassword {
		password, err := promptPassword("New account password: ")
		if err != nil {
			return err
		}
		p := string(password)
		crypto.Wipe(password)
		u.Password = &p
	}

	if u.Empty() {
		printWarning("Nothing to update")
	}
	if err := apiClient.UpdateAccount(ctx, s, args[0], u); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "vault_id": meta.ID, "account_id": args[0]})
		return nil
	}
	printSuccess("Updated account %s", args[0])
	return nil
}

func runAccountDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	s, meta, err := openVault(ctx, accountVault)
	if err != nil {
		return err
	}
	defer apiClient.LockVault(meta.ID)

	if err := apiClient.DeleteAccount(ctx, s, args[0]); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "vault_id": meta.ID, "account_id": args[0]})
		return nil
	}
	printSuccess("Deleted account %s", args[0])
	return nil
}
