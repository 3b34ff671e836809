package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vecna-vault/vecna/pkg/vault"
)

// Alias command flags
var (
	aliasAddNotes string
	aliasAddTags  string

	aliasGetCopy bool

	aliasListTags string

	aliasUpdateNewName string
	aliasUpdateCommand string
	aliasUpdateNotes   string
	aliasUpdateTags    string
)

var aliasCmd = &cobra.Command{
	Use:   "alias",
	Short: "Manage stored command aliases",
	Long: `Aliases are named command strings kept inside the encrypted vault,
for commands that embed tokens or connection strings.`,
}

func init() {
	rootCmd.AddCommand(aliasCmd)
	aliasCmd.AddCommand(aliasAddCmd)
	aliasCmd.AddCommand(aliasGetCmd)
	aliasCmd.AddCommand(aliasListCmd)
	aliasCmd.AddCommand(aliasUpdateCmd)
	aliasCmd.AddCommand(aliasDeleteCmd)

	aliasAddCmd.Flags().StringVar(&aliasAddNotes, "notes", "", "Free-form notes")
	aliasAddCmd.Flags().StringVar(&aliasAddTags, "tags", "", "Comma-separated tags")

	aliasGetCmd.Flags().BoolVarP(&aliasGetCopy, "copy", "c", false, "Copy the command to the clipboard")

	aliasListCmd.Flags().StringVar(&aliasListTags, "tag", "", "Filter by comma-separated tags (any match)")

	aliasUpdateCmd.Flags().StringVar(&aliasUpdateNewName, "new-name", "", "Rename the alias")
	aliasUpdateCmd.Flags().StringVar(&aliasUpdateCommand, "command", "", "New command string")
	aliasUpdateCmd.Flags().StringVar(&aliasUpdateNotes, "notes", "", "New notes")
	aliasUpdateCmd.Flags().StringVar(&aliasUpdateTags, "tags", "", "New comma-separated tags (replaces existing)")
}

var aliasAddCmd = &cobra.Command{
	Use:   "add <name> <command>",
	Short: "Store a new alias",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		err := v.AddAlias(vault.AliasRecord{
			Name:    args[0],
			Command: args[1],
			Notes:   aliasAddNotes,
			Tags:    splitTags(aliasAddTags),
		})
		if err != nil {
			return err
		}
		fmt.Printf("Alias %q stored\n", args[0])
		return nil
	},
}

var aliasGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show an alias",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		rec, err := v.GetAlias(args[0])
		if err != nil {
			return err
		}

		fmt.Println(rec.Command)
		if rec.Notes != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Notes: %s\n", rec.Notes)
		}
		if aliasGetCopy {
			return copyToClipboard(rec.Command)
		}
		return nil
	},
}

var aliasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List aliases",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		records, err := v.ListAliases(splitTags(aliasListTags))
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No aliases found")
			return nil
		}
		for _, rec := range records {
			line := rec.Name
			if len(rec.Tags) > 0 {
				line += "  [" + strings.Join(rec.Tags, ", ") + "]"
			}
			fmt.Println(line)
		}
		return nil
	},
}

var aliasUpdateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Update fields of an alias",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		var upd vault.AliasUpdate
		changed := false
		if cmd.Flags().Changed("new-name") {
			upd.NewName = &aliasUpdateNewName
			changed = true
		}
		if cmd.Flags().Changed("command") {
			upd.Command = &aliasUpdateCommand
			changed = true
		}
		if cmd.Flags().Changed("notes") {
			upd.Notes = &aliasUpdateNotes
			changed = true
		}
		if cmd.Flags().Changed("tags") {
			tags := splitTags(aliasUpdateTags)
			upd.Tags = &tags
			changed = true
		}
		if !changed {
			return fmt.Errorf("nothing to update: pass at least one field flag")
		}

		if err := v.UpdateAlias(args[0], upd); err != nil {
			return err
		}
		fmt.Printf("Alias %q updated\n", args[0])
		return nil
	},
}

var aliasDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete an alias",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		if err := v.DeleteAlias(args[0]); err != nil {
			return err
		}
		fmt.Printf("Alias %q deleted\n", args[0])
		return nil
	},
}
