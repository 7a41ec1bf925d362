package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	// KeyringService is the service name in the OS keychain
	KeyringService = "AzureDevOpsGamification"

	// KeyringTokenItem is the key for the Azure DevOps personal access token
	KeyringTokenItem = "azure-devops-pat"
)

// KeyringManager handles secure credential storage in OS keychain
type KeyringManager struct {
	logger logrus.FieldLogger
}

// NewKeyringManager creates a new keyring manager
func NewKeyringManager(logger logrus.FieldLogger) *KeyringManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &KeyringManager{
		logger: logger.WithField("component", "keyring"),
	}
}

// SaveToken stores the PAT in the OS keychain
// - macOS: Keychain Access.app
// - Windows: Credential Manager
// - Linux: Secret Service (requires libsecret)
func (km *KeyringManager) SaveToken(token string) error {
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	if err := keyring.Set(KeyringService, KeyringTokenItem, token); err != nil {
		km.logger.WithError(err).Error("failed to save token to keychain")
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}

	km.logger.WithField("service", KeyringService).Info("token saved to keychain")
	return nil
}

// GetToken retrieves the PAT from the OS keychain, "" when none is stored
func (km *KeyringManager) GetToken() (string, error) {
	token, err := keyring.Get(KeyringService, KeyringTokenItem)
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		km.logger.WithError(err).Debug("failed to read token from keychain")
		return "", fmt.Errorf("failed to read from OS keychain: %w", err)
	}
	return token, nil
}

// DeleteToken removes the PAT from the OS keychain
func (km *KeyringManager) DeleteToken() error {
	err := keyring.Delete(KeyringService, KeyringTokenItem)
	if err == keyring.ErrNotFound {
		// Already deleted, not an error
		return nil
	}
	if err != nil {
		km.logger.WithError(err).Error("failed to delete token from keychain")
		return fmt.Errorf("failed to delete from OS keychain: %w", err)
	}

	km.logger.Info("token deleted from keychain")
	return nil
}

// IsAvailable checks if OS keychain is available
// Returns false on headless systems (CI/CD) where keychain isn't available
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "test-availability")
	if err == nil || err == keyring.ErrNotFound {
		return true
	}
	km.logger.WithError(err).Debug("keychain not available")
	return false
}

// ResolveToken picks the access token by precedence: flag, environment/config, keychain.
// Returns the token and where it came from.
func ResolveToken(flagValue string, cfg *Config, km *KeyringManager) (string, string) {
	if flagValue != "" {
		return flagValue, "flag"
	}
	if os.Getenv("AZURE_DEVOPS_PAT") != "" && cfg.Token != "" {
		return cfg.Token, "env"
	}
	if km != nil {
		if token, err := km.GetToken(); err == nil && token != "" {
			return token, "keychain"
		}
	}
	if cfg.Token != "" {
		return cfg.Token, "config"
	}
	return "", "none"
}

// ReadSecret reads a token from in without echoing when it is a terminal
func ReadSecret(in *os.File, out io.Writer) (string, error) {
	if term.IsTerminal(int(in.Fd())) {
		bytes, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(out) // New line after password input
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(bytes)), nil
	}

	// Piped input
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
