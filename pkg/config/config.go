// Package config loads the optional YAML configuration file. A missing
// file yields the defaults; present values are clamped to safe ranges
// rather than rejected.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults and bounds
const (
	DefaultIterations = 200_000
	MinIterations     = 100_000

	DefaultSessionTimeout = 900   // seconds
	MinSessionTimeout     = 1     // seconds
	MaxSessionTimeout     = 86400 // seconds

	DefaultClipboardClear = 30 // seconds, 0 disables auto-clear

	FileName = "config.yaml"
	DirName  = ".vecna"
)

// Config holds user-tunable settings.
type Config struct {
	// KDFIterations is the PBKDF2 iteration count for new vaults.
	KDFIterations int `yaml:"kdf_iterations"`

	// SessionTimeout is the session key lifetime in seconds.
	SessionTimeout int `yaml:"session_timeout"`

	// ClipboardClear is the delay in seconds before a copied secret is
	// cleared from the clipboard. Zero disables clearing.
	ClipboardClear int `yaml:"clipboard_clear"`

	// VaultDir overrides the vault directory. Empty means the default
	// under the user's home directory.
	VaultDir string `yaml:"vault_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		KDFIterations:  DefaultIterations,
		SessionTimeout: DefaultSessionTimeout,
		ClipboardClear: DefaultClipboardClear,
	}
}

// DefaultDir returns the default vault directory under the user's home.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Load reads the configuration at path. A missing file is not an error;
// the defaults apply. A present file is merged over the defaults and
// clamped.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	cfg.clamp()
	return cfg, nil
}

// LoadDefault loads the configuration from the default location.
func LoadDefault() (*Config, error) {
	dir, err := DefaultDir()
	if err != nil {
		return nil, err
	}
	return Load(filepath.Join(dir, FileName))
}

// clamp forces out-of-range values back into their bounds. Weakening the
// KDF below the floor is never honored.
func (c *Config) clamp() {
	if c.KDFIterations < MinIterations {
		c.KDFIterations = MinIterations
	}
	if c.SessionTimeout < MinSessionTimeout {
		c.SessionTimeout = MinSessionTimeout
	}
	if c.SessionTimeout > MaxSessionTimeout {
		c.SessionTimeout = MaxSessionTimeout
	}
	if c.ClipboardClear < 0 {
		c.ClipboardClear = 0
	}
}
