package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/vecna-vault/vecna/pkg/crypto"
	"github.com/vecna-vault/vecna/pkg/password"
	"github.com/vecna-vault/vecna/pkg/vault"
)

// Credential command flags
var (
	credAddUsername string
	credAddNotes    string
	credAddTags     string
	credAddGenerate bool

	credGetShow   bool
	credGetNoCopy bool

	credListTags string

	credUpdateNewName  string
	credUpdateUsername string
	credUpdateNotes    string
	credUpdateTags     string
	credUpdatePassword bool
)

var credCmd = &cobra.Command{
	Use:     "cred",
	Aliases: []string{"credential"},
	Short:   "Manage stored credentials",
}

func init() {
	rootCmd.AddCommand(credCmd)
	credCmd.AddCommand(credAddCmd)
	credCmd.AddCommand(credGetCmd)
	credCmd.AddCommand(credListCmd)
	credCmd.AddCommand(credUpdateCmd)
	credCmd.AddCommand(credDeleteCmd)

	credAddCmd.Flags().StringVarP(&credAddUsername, "username", "u", "", "Username for the credential")
	credAddCmd.Flags().StringVar(&credAddNotes, "notes", "", "Free-form notes")
	credAddCmd.Flags().StringVar(&credAddTags, "tags", "", "Comma-separated tags (e.g. work,api)")
	credAddCmd.Flags().BoolVarP(&credAddGenerate, "generate", "g", false, "Generate the password instead of prompting")

	credGetCmd.Flags().BoolVar(&credGetShow, "show", false, "Print the password in plaintext")
	credGetCmd.Flags().BoolVar(&credGetNoCopy, "no-copy", false, "Do not copy the password to the clipboard")

	credListCmd.Flags().StringVar(&credListTags, "tag", "", "Filter by comma-separated tags (any match)")

	credUpdateCmd.Flags().StringVar(&credUpdateNewName, "new-name", "", "Rename the credential")
	credUpdateCmd.Flags().StringVarP(&credUpdateUsername, "username", "u", "", "New username")
	credUpdateCmd.Flags().StringVar(&credUpdateNotes, "notes", "", "New notes")
	credUpdateCmd.Flags().StringVar(&credUpdateTags, "tags", "", "New comma-separated tags (replaces existing)")
	credUpdateCmd.Flags().BoolVarP(&credUpdatePassword, "password", "p", false, "Prompt for a new password")
}

// splitTags parses a comma-separated tag list, dropping empty entries.
func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

var credAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Store a new credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		var secret string
		if credAddGenerate {
			generated, err := password.Generate(password.DefaultLength, password.Options{})
			if err != nil {
				return err
			}
			secret = generated
		} else {
			entered, err := readPassword("Enter password for credential: ")
			if err != nil {
				return err
			}
			defer crypto.SecureWipe(entered)
			secret = string(entered)
		}

		err := v.AddCredential(vault.CredentialRecord{
			Name:     args[0],
			Username: credAddUsername,
			Password: secret,
			Notes:    credAddNotes,
			Tags:     splitTags(credAddTags),
		})
		if err != nil {
			return err
		}

		fmt.Printf("Credential %q stored\n", args[0])
		if credAddGenerate {
			fmt.Println("Generated password (shown once):")
			fmt.Println(secret)
		}
		return nil
	},
}

var credGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		rec, err := v.GetCredential(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Name:     %s\n", rec.Name)
		if rec.Username != "" {
			fmt.Printf("Username: %s\n", rec.Username)
		}
		if credGetShow {
			fmt.Printf("Password: %s\n", rec.Password)
		} else {
			fmt.Printf("Password: %s\n", strings.Repeat("*", len(rec.Password)))
		}
		if rec.Notes != "" {
			fmt.Printf("Notes:    %s\n", rec.Notes)
		}
		if len(rec.Tags) > 0 {
			fmt.Printf("Tags:     %s\n", strings.Join(rec.Tags, ", "))
		}
		fmt.Printf("Updated:  %s\n", rec.UpdatedAt.Local().Format(time.RFC3339))

		// Copying is the default retrieval path; the clipboard failing
		// (headless host, no display) should not fail the command.
		if !credGetNoCopy {
			if err := copyToClipboard(rec.Password); err != nil {
				fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			}
		}
		return nil
	},
}

var credListCmd = &cobra.Command{
	Use:   "list",
	Short: "List credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		records, err := v.ListCredentials(splitTags(credListTags))
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No credentials found")
			return nil
		}
		for _, rec := range records {
			line := rec.Name
			if rec.Username != "" {
				line += "  (" + rec.Username + ")"
			}
			if len(rec.Tags) > 0 {
				line += "  [" + strings.Join(rec.Tags, ", ") + "]"
			}
			fmt.Println(line)
		}
		return nil
	},
}

var credUpdateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Update fields of a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		var upd vault.CredentialUpdate
		changed := false
		if cmd.Flags().Changed("new-name") {
			upd.NewName = &credUpdateNewName
			changed = true
		}
		if cmd.Flags().Changed("username") {
			upd.Username = &credUpdateUsername
			changed = true
		}
		if cmd.Flags().Changed("notes") {
			upd.Notes = &credUpdateNotes
			changed = true
		}
		if cmd.Flags().Changed("tags") {
			tags := splitTags(credUpdateTags)
			upd.Tags = &tags
			changed = true
		}
		if credUpdatePassword {
			entered, err := readPassword("Enter new password: ")
			if err != nil {
				return err
			}
			defer crypto.SecureWipe(entered)
			secret := string(entered)
			upd.Password = &secret
			changed = true
		}
		if !changed {
			return fmt.Errorf("nothing to update: pass at least one field flag")
		}

		if err := v.UpdateCredential(args[0], upd); err != nil {
			return err
		}
		fmt.Printf("Credential %q updated\n", args[0])
		return nil
	},
}

var credDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		if err := v.DeleteCredential(args[0]); err != nil {
			return err
		}
		fmt.Printf("Credential %q deleted\n", args[0])
		return nil
	},
}

// copyToClipboard copies a secret and, when configured, blocks until the
// clear delay passes and overwrites it. Interrupting the wait leaves the
// secret on the clipboard.
func copyToClipboard(secret string) error {
	if err := clipboard.WriteAll(secret); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	if cfg.ClipboardClear <= 0 {
		fmt.Fprintln(os.Stderr, "Copied to clipboard")
		return nil
	}

	fmt.Fprintf(os.Stderr, "Copied to clipboard, clearing in %ds (Ctrl-C keeps it)\n", cfg.ClipboardClear)
	time.Sleep(time.Duration(cfg.ClipboardClear) * time.Second)

	// Only clear if the clipboard still holds our secret.
	if current, err := clipboard.ReadAll(); err == nil && current == secret {
		if err := clipboard.WriteAll(""); err != nil {
			return fmt.Errorf("failed to clear clipboard: %w", err)
		}
		fmt.Fprintln(os.Stderr, "Clipboard cleared")
	}
	return nil
}
