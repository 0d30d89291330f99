package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mhmdtwsm/GradProject-sub000/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:         "init [path]",
	Short:       "Write an example config file",
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{skipClient: "true"},
	RunE:        runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := "safevault.yaml"
	if len(args) == 1 {
		path = args[0]
	} else if dir, err := os.UserConfigDir(); err == nil {
		path = filepath.Join(dir, "safevault", "config.yaml")
	}

	if err := config.SaveExample(path); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "path": path})
		return nil
	}
	printSuccess("Wrote %s", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if jsonOutput {
		printJSON(cfg)
		return nil
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	fmt.Print(string(data))
	return nil
}
