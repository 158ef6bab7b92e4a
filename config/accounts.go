package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Account is one rewards account processed by its own runner instance.
type Account struct {
	Email string `yaml:"email"`

	// ProfileDir overrides the Chrome profile directory. When empty the
	// profile lives under BrowserConfig.SessionDir/<email>.
	ProfileDir string `yaml:"profile_dir"`

	// Disabled accounts are listed but never run.
	Disabled bool `yaml:"disabled"`
}

// AccountsFile is the structure of accounts.yaml.
type AccountsFile struct {
	Accounts []Account `yaml:"accounts"`
}

// LoadAccounts reads and validates the accounts file at path.
func LoadAccounts(path string) ([]Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	var f AccountsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Accounts))
	accounts := make([]Account, 0, len(f.Accounts))
	for i, a := range f.Accounts {
		a.Email = strings.TrimSpace(a.Email)
		if a.Email == "" {
			return nil, fmt.Errorf("account %d: email is required", i)
		}
		key := strings.ToLower(a.Email)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("account %d: duplicate email %q", i, a.Email)
		}
		seen[key] = struct{}{}
		if a.Disabled {
			continue
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

// ProfilePath returns the Chrome profile directory for the account.
func (a Account) ProfilePath(sessionDir string) string {
	if a.ProfileDir != "" {
		return a.ProfileDir
	}
	return filepath.Join(sessionDir, a.Email)
}
