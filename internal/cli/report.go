package cli

import (
	"errors"
	"fmt"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/backup"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Send due document expiry reminders",
	Long: `Scan every owner with warranty reminders enabled and send a push
notification for each document whose reminder offset matches today.`,
	RunE: runScan,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Send the daily report trigger to owners with an email",
	RunE:  runReport,
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload a database snapshot to object storage",
	RunE:  runBackup,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(backupCmd)
}

func runScan(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(a *app) error {
		sum, err := a.scanner.Scan(cmd.Context())
		if err != nil {
			return fmt.Errorf("expiry scan: %w", err)
		}

		fmt.Printf("=== Expiry Scan ===\n")
		fmt.Printf("Owners processed:    %d\n", sum.OwnersProcessed)
		fmt.Printf("Owners notified:     %d\n", sum.OwnersNotified)
		fmt.Printf("Notifications sent:  %d\n", sum.NotificationsSent)
		fmt.Printf("Errors:              %d\n", sum.Errors)
		return nil
	})
}

func runReport(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(a *app) error {
		sum, err := a.report.Run(cmd.Context())
		if err != nil {
			return fmt.Errorf("daily report: %w", err)
		}

		fmt.Printf("=== Daily Report Trigger ===\n")
		fmt.Printf("Owners processed:    %d\n", sum.OwnersProcessed)
		fmt.Printf("Notifications sent:  %d\n", sum.NotificationsSent)
		fmt.Printf("Errors:              %d\n", sum.Errors)
		return nil
	})
}

func runBackup(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(a *app) error {
		if a.backup == nil {
			return errors.New("backups are disabled; set backup.enabled and backup.bucket")
		}
		res, err := a.backup.Run(cmd.Context())
		if errors.Is(err, backup.ErrNotSupported) {
			return fmt.Errorf("%w (storage driver %s)", err, a.cfg.Storage.Driver)
		}
		if err != nil {
			return fmt.Errorf("backup: %w", err)
		}

		fmt.Printf("Uploaded s3://%s/%s (%d bytes)\n", res.Bucket, res.Key, res.Size)
		return nil
	})
}
