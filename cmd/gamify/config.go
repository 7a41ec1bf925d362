package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/config"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage gamify configuration",
	Long:  `View and initialize gamify configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Prints the configuration after defaults, config file, .env files and
environment variables are applied. The access token is never printed; only
where it would be taken from.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var forceInit bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path used by init",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), getConfigPath())
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	_, source := config.ResolveToken(tokenFlag, cfg, config.NewKeyringManager(logger))
	fmt.Fprintf(cmd.OutOrStdout(), "# token source: %s\n", source)

	f := output.NewFormatter(output.FormatYAML)
	if outputFlag != "" {
		format, err := output.ParseFormat(outputFlag)
		if err != nil {
			return err
		}
		if format == output.FormatJSON {
			f = output.NewFormatter(format)
		}
	}
	return f.Format(cfg, cmd.OutOrStdout())
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil && !forceInit {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", configPath)
	}

	defaultCfg := config.Default()
	defaultCfg.Organization = cfg.Organization
	if err := defaultCfg.Save(configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", configPath)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Store your personal access token: gamify login")
	fmt.Fprintln(out, "  2. Try it out: gamify stats --org <organization>")
	return nil
}

func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}

	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".gamify", "config.yaml")
}
