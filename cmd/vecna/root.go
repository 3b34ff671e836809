package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vecna-vault/vecna/pkg/audit"
	"github.com/vecna-vault/vecna/pkg/config"
	"github.com/vecna-vault/vecna/pkg/crypto"
	"github.com/vecna-vault/vecna/pkg/session"
	"github.com/vecna-vault/vecna/pkg/vault"
)

var (
	flagVaultDir string

	cfg         *config.Config
	vaultDir    string
	v           *vault.Vault
	auditLogger *audit.Logger
)

var rootCmd = &cobra.Command{
	Use:   "vecna",
	Short: "vecna is a local encrypted store for credentials and command aliases",
	Long: `A single-user secret store. Records live in one encrypted container
file; a master password unlocks it for a limited session.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE builds the engine before any subcommand runs.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadDefault()
		if err != nil {
			return err
		}

		vaultDir = flagVaultDir
		if vaultDir == "" {
			vaultDir = cfg.VaultDir
		}
		if vaultDir == "" {
			vaultDir, err = config.DefaultDir()
			if err != nil {
				return err
			}
		}

		cache, err := session.New()
		if err != nil {
			return err
		}

		auditLogger, err = openAuditLogger()
		if err != nil {
			// The vault stays usable without its audit trail.
			fmt.Fprintf(os.Stderr, "warning: audit log unavailable: %v\n", err)
			auditLogger = nil
		}

		v = vault.New(vaultDir, cache, vault.Options{
			Iterations:     cfg.KDFIterations,
			SessionTimeout: time.Duration(cfg.SessionTimeout) * time.Second,
			Audit:          auditLogger,
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if auditLogger != nil {
			auditLogger.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagVaultDir, "vault-dir", "", "Vault directory (default ~/.vecna)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(statusCmd)
}

// openAuditLogger opens the audit database inside the vault directory.
// The directory may not exist yet before init; that is not an error here,
// the logger is simply skipped until it does.
func openAuditLogger() (*audit.Logger, error) {
	if _, err := os.Stat(vaultDir); err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(vaultDir, vault.DirMode); err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	}
	return audit.Open(filepath.Join(vaultDir, vault.AuditFileName))
}

// readPassword prompts on stderr and reads a password without echo.
func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}

// ensureUnlocked prompts for the master password when no live session
// exists. Operations that then still fail with a locked error report the
// expiry to the user.
func ensureUnlocked() error {
	if v.Status().Unlocked {
		return nil
	}
	password, err := readPassword("Enter master password: ")
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(password)

	if err := v.Unlock(password); err != nil {
		if errors.Is(err, vault.ErrVaultNotFound) {
			return fmt.Errorf("vault not initialized: run 'vecna init' first")
		}
		return err
	}
	return nil
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new vault",
	Long: `Create a new encrypted vault protected by a master password.
The vault is unlocked for a session once created.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if v.Exists() {
			return vault.ErrAlreadyInitialized
		}

		password, err := readPassword("Enter master password: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(password)
		if len(password) == 0 {
			return errors.New("master password must not be empty")
		}

		confirm, err := readPassword("Confirm master password: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(confirm)
		if string(password) != string(confirm) {
			return errors.New("passwords do not match")
		}

		if err := v.Init(password); err != nil {
			return err
		}
		if err := v.Unlock(password); err != nil {
			return err
		}

		fmt.Printf("Vault initialized at %s\n", v.Path())
		fmt.Printf("Session active for %ds\n", cfg.SessionTimeout)
		return nil
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock the vault for a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword("Enter master password: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(password)

		if err := v.Unlock(password); err != nil {
			return err
		}
		fmt.Printf("Vault unlocked for %ds\n", cfg.SessionTimeout)
		return nil
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Lock the vault and discard the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := v.Lock(); err != nil {
			return err
		}
		fmt.Println("Vault locked")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vault and session state",
	RunE: func(cmd *cobra.Command, args []string) error {
		st := v.Status()
		if !st.Initialized {
			fmt.Println("Vault: not initialized")
			return nil
		}
		fmt.Printf("Vault: %s\n", v.Path())
		if st.Unlocked {
			fmt.Printf("Session: unlocked, %s remaining\n", st.Remaining.Round(time.Second))
		} else {
			fmt.Println("Session: locked")
		}
		return nil
	},
}
