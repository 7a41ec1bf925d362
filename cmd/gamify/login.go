package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/config"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/errors"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a personal access token in the OS keychain",
	Long: `Prompts for an Azure DevOps personal access token and stores it in the
OS keychain. The token needs read access to Code, Build and Work Items.

The token can also be piped in:
  echo "$PAT" | gamify login`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored personal access token",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

func runLogin(cmd *cobra.Command, args []string) error {
	km := config.NewKeyringManager(logger)
	if !km.IsAvailable() {
		return errors.ConfigError("OS keychain not available; set AZURE_DEVOPS_PAT instead")
	}

	out := cmd.ErrOrStderr()
	fmt.Fprint(out, "Personal access token: ")
	token, err := config.ReadSecret(os.Stdin, out)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	if token == "" {
		return errors.ValidationError("token cannot be empty")
	}

	if err := km.SaveToken(token); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Token saved to OS keychain")
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	km := config.NewKeyringManager(logger)
	if err := km.DeleteToken(); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Token removed from OS keychain")
	return nil
}
