package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/model"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/storage"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage an owner's budget and reminder settings",
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or update settings",
	Long: `Create or update settings. Only flags that are passed change; a limit of
"none" removes it.`,
	RunE: runSettingsSet,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print settings as YAML",
	RunE:  runSettingsShow,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsShowCmd)

	settingsSetCmd.Flags().StringP("owner", "o", "", "Owner ID")
	settingsSetCmd.Flags().String("daily", "", "Daily limit (amount or none)")
	settingsSetCmd.Flags().String("weekly", "", "Weekly limit (amount or none)")
	settingsSetCmd.Flags().String("monthly", "", "Monthly limit (amount or none)")
	settingsSetCmd.Flags().Float64("alert-at", model.DefaultAlertThresholdPct, "Alert threshold percentage")
	settingsSetCmd.Flags().Bool("notifications", true, "Send budget alerts")
	settingsSetCmd.Flags().Bool("warranty-reminders", false, "Send document expiry reminders")
	settingsSetCmd.Flags().IntSlice("reminder-days", nil, "Days before expiry to remind (e.g. 30,7,1)")
	settingsSetCmd.Flags().String("timezone", "", "IANA time zone for period windows")
	_ = settingsSetCmd.MarkFlagRequired("owner")

	settingsShowCmd.Flags().StringP("owner", "o", "", "Owner ID")
	_ = settingsShowCmd.MarkFlagRequired("owner")
}

func runSettingsSet(cmd *cobra.Command, _ []string) error {
	owner, _ := cmd.Flags().GetString("owner")

	return withApp(cmd, func(a *app) error {
		settings, err := a.store.GetSettings(cmd.Context(), owner)
		if errors.Is(err, storage.ErrNotFound) {
			settings = model.NewBudgetSettings(owner)
		} else if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}

		if err := applySettingsFlags(cmd.Flags(), settings); err != nil {
			return err
		}
		if err := a.store.SetSettings(cmd.Context(), settings); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}

		fmt.Printf("Settings saved for %s\n", owner)
		return printSettings(settings)
	})
}

// applySettingsFlags copies the flags that were set onto settings.
func applySettingsFlags(flags *pflag.FlagSet, settings *model.BudgetSettings) error {
	for _, kind := range model.BudgetKinds {
		if !flags.Changed(string(kind)) {
			continue
		}
		raw, _ := flags.GetString(string(kind))
		limit, err := parseLimit(raw)
		if err != nil {
			return fmt.Errorf("--%s: %w", kind, err)
		}
		settings.SetLimit(kind, limit)
	}

	if flags.Changed("alert-at") {
		pct, _ := flags.GetFloat64("alert-at")
		if pct <= 0 || pct > 100 {
			return fmt.Errorf("--alert-at must be in (0, 100], got %v", pct)
		}
		settings.AlertThresholdPct = pct
	}
	if flags.Changed("notifications") {
		settings.NotificationsEnabled, _ = flags.GetBool("notifications")
	}
	if flags.Changed("warranty-reminders") {
		settings.WarrantyRemindersEnabled, _ = flags.GetBool("warranty-reminders")
	}
	if flags.Changed("reminder-days") {
		days, _ := flags.GetIntSlice("reminder-days")
		for _, d := range days {
			if d < 0 {
				return fmt.Errorf("--reminder-days: negative offset %d", d)
			}
		}
		settings.ReminderDays = days
	}
	if flags.Changed("timezone") {
		tz, _ := flags.GetString("timezone")
		if tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("--timezone: %w", err)
			}
		}
		settings.Timezone = tz
	}
	return nil
}

// parseLimit parses a limit flag. "none" or an empty value clears the limit.
func parseLimit(raw string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "none") {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.TrimPrefix(raw, "$"))
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative limit %s", raw)
	}
	return &d, nil
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	owner, _ := cmd.Flags().GetString("owner")

	return withApp(cmd, func(a *app) error {
		settings, err := a.store.GetSettings(cmd.Context(), owner)
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Printf("No settings for %s. Use 'pocket-alerts settings set' to create them.\n", owner)
			return nil
		}
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		return printSettings(settings)
	})
}

func printSettings(settings *model.BudgetSettings) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(settings); err != nil {
		return err
	}
	return enc.Close()
}
