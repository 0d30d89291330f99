package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mhmdtwsm/GradProject-sub000/internal/client"
	"github.com/mhmdtwsm/GradProject-sub000/internal/config"
	"github.com/mhmdtwsm/GradProject-sub000/internal/events"
	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
)

// Set by the build.
var version = "dev"

var (
	cfgFile    string
	jsonOutput bool
	verbose    bool

	cfg       *config.Config
	logger    *events.Logger
	apiClient *client.Client
)

// skipClient marks commands that run without opening the vault store.
const skipClient = "skip-client"

var rootCmd = &cobra.Command{
	Use:     "safevault",
	Short:   "Local password vaults",
	Version: version,
	Long: `safevault keeps account credentials in password-protected vaults on local disk.

Every vault is sealed with a key derived from its own master password. Nothing
in a vault can be read without that password.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Config file (default: ./safevault.yaml or the user config dir)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Debug logging")
}

func setup(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if jsonOutput {
		color.NoColor = true
	}

	if cmd.Annotations[skipClient] != "" {
		return nil
	}

	var err error
	cfg, err = config.NewLoader(cfgFile).Load()
	if err != nil {
		return err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	events.SetDefault(logger)

	apiClient, err = client.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("open vault store: %w", err)
	}
	return nil
}

func main() {
	err := rootCmd.Execute()

	// Locks every vault still open, including after a failed command.
	if apiClient != nil {
		if cerr := apiClient.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	if err != nil {
		if jsonOutput {
			printJSON(map[string]interface{}{
				"success": false,
				"code":    models.Code(err),
				"error":   err.Error(),
			})
		} else {
			printError("%s", describeError(err))
		}
		os.Exit(1)
	}
}

// describeError turns the error taxonomy into the messages a user sees.
func describeError(err error) string {
	switch {
	case errors.Is(err, models.ErrAuthenticationFailed):
		return "Incorrect password"
	case errors.Is(err, models.ErrPersistenceFailed):
		return fmt.Sprintf("Storage error: %v", err)
	default:
		return err.Error()
	}
}

func printSuccess(format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(os.Stdout, format+"\n", args...)
}

func printInfo(format string, args ...interface{}) {
	color.New(color.FgCyan).Fprintf(os.Stdout, format+"\n", args...)
}

func printWarning(format string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(os.Stderr, format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
