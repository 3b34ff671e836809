package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// Audit command flags
var (
	auditListLimit int
	auditListSince string

	auditPruneOlderThan string
	auditPruneForce     bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditPruneCmd)

	auditListCmd.Flags().IntVar(&auditListLimit, "limit", 50, "Maximum entries to show (0 = all)")
	auditListCmd.Flags().StringVar(&auditListSince, "since", "", "Only entries after this duration ago (e.g. 24h, 168h)")

	auditPruneCmd.Flags().StringVar(&auditPruneOlderThan, "older-than", "", "Delete entries older than this duration (e.g. 8760h)")
	auditPruneCmd.Flags().BoolVar(&auditPruneForce, "force", false, "Skip the confirmation prompt")
}

// requireAuditLogger also unlocks the vault: the log's HMAC key derives
// from the master key, so listing or verifying needs a session.
func requireAuditLogger() error {
	if auditLogger == nil {
		return errors.New("audit log unavailable")
	}
	if err := ensureUnlocked(); err != nil {
		return err
	}
	return v.RefreshAuditKey()
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuditLogger(); err != nil {
			return err
		}

		var since time.Time
		if auditListSince != "" {
			d, err := time.ParseDuration(auditListSince)
			if err != nil {
				return fmt.Errorf("invalid --since duration: %w", err)
			}
			since = time.Now().Add(-d)
		}

		events, err := auditLogger.ListEvents(auditListLimit, since)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No audit entries")
			return nil
		}
		for _, ev := range events {
			line := fmt.Sprintf("%s  %-24s %s", ev.Timestamp, ev.Operation, ev.Result)
			if ev.NameHMAC != "" {
				line += "  name=" + ev.NameHMAC[:12]
			}
			fmt.Println(line)
		}
		return nil
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit log HMAC chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuditLogger(); err != nil {
			return err
		}

		result, err := auditLogger.Verify()
		if err != nil {
			return err
		}
		if result.Valid {
			fmt.Printf("Audit log intact: %d records verified\n", result.RecordsTotal)
			return nil
		}
		for _, msg := range result.Errors {
			fmt.Println(msg)
		}
		return fmt.Errorf("audit log verification failed with %d problem(s)", len(result.Errors))
	},
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old audit log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuditLogger(); err != nil {
			return err
		}
		if auditPruneOlderThan == "" {
			return errors.New("--older-than is required")
		}
		olderThan, err := time.ParseDuration(auditPruneOlderThan)
		if err != nil {
			return fmt.Errorf("invalid --older-than duration: %w", err)
		}

		if !auditPruneForce {
			fmt.Printf("Delete all audit entries older than %s? [y/N] ", olderThan)
			var answer string
			fmt.Scanln(&answer)
			if answer != "y" && answer != "Y" {
				fmt.Println("Aborted")
				return nil
			}
		}

		n, err := auditLogger.Prune(olderThan)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d audit entries\n", n)
		return nil
	},
}
