package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/model"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/storage"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Load owners, settings, documents and expenses from a YAML fixture",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// seedFile is the fixture format accepted by the seed command.
type seedFile struct {
	Owners []seedOwner `yaml:"owners"`
}

type seedOwner struct {
	ID        string         `yaml:"id"`
	PushToken string         `yaml:"push_token"`
	Email     string         `yaml:"email"`
	Settings  *seedSettings  `yaml:"settings"`
	Documents []seedDocument `yaml:"documents"`
	Expenses  []seedExpense  `yaml:"expenses"`
}

type seedSettings struct {
	Daily             string  `yaml:"daily"`
	Weekly            string  `yaml:"weekly"`
	Monthly           string  `yaml:"monthly"`
	AlertAt           float64 `yaml:"alert_at"`
	Notifications     *bool   `yaml:"notifications"`
	WarrantyReminders bool    `yaml:"warranty_reminders"`
	ReminderDays      []int   `yaml:"reminder_days"`
	Timezone          string  `yaml:"timezone"`
}

type seedDocument struct {
	Title   string `yaml:"title"`
	Folder  string `yaml:"folder"`
	Expires string `yaml:"expires"`
}

type seedExpense struct {
	Amount string `yaml:"amount"`
	Date   string `yaml:"date"`
}

// seedStats counts what a seed run wrote.
type seedStats struct {
	Owners    int
	Documents int
	Expenses  int
}

func runSeed(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()

	seed, err := loadSeed(f)
	if err != nil {
		return err
	}

	return withApp(cmd, func(a *app) error {
		ref, _ := a.cfg.Schedule.Location()
		stats, err := applySeed(cmd.Context(), a.store, seed, ref, time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("Seeded %d owners, %d documents, %d expenses\n", stats.Owners, stats.Documents, stats.Expenses)
		return nil
	})
}

func loadSeed(r io.Reader) (*seedFile, error) {
	var seed seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	for i, o := range seed.Owners {
		if o.ID == "" {
			return nil, fmt.Errorf("owner %d: missing id", i)
		}
	}
	return &seed, nil
}

// applySeed writes the fixture. Dates without a time are read in the owner's
// zone, or ref when the owner has none; expenses without a date use now.
func applySeed(ctx context.Context, store storage.Storage, seed *seedFile, ref *time.Location, now time.Time) (seedStats, error) {
	var stats seedStats
	for _, o := range seed.Owners {
		if err := store.UpsertDeviceToken(ctx, &model.OwnerDeviceToken{
			OwnerID:   o.ID,
			PushToken: o.PushToken,
			Email:     o.Email,
			UpdatedAt: now.UTC(),
		}); err != nil {
			return stats, fmt.Errorf("owner %s: %w", o.ID, err)
		}
		stats.Owners++

		loc := ref
		if o.Settings != nil {
			settings, err := o.Settings.toModel(o.ID)
			if err != nil {
				return stats, fmt.Errorf("owner %s settings: %w", o.ID, err)
			}
			if err := store.SetSettings(ctx, settings); err != nil {
				return stats, fmt.Errorf("owner %s settings: %w", o.ID, err)
			}
			loc = settings.Location(ref)
		}

		for _, d := range o.Documents {
			doc := &model.TrackedDocument{OwnerID: o.ID, Title: d.Title, FolderName: d.Folder}
			if d.Expires != "" {
				expires, err := parseDate(d.Expires, loc)
				if err != nil {
					return stats, fmt.Errorf("owner %s document %q: %w", o.ID, d.Title, err)
				}
				doc.ExpiryDate = &expires
			}
			if err := store.SaveDocument(ctx, doc); err != nil {
				return stats, fmt.Errorf("owner %s document %q: %w", o.ID, d.Title, err)
			}
			stats.Documents++
		}

		for i, e := range o.Expenses {
			amount, err := decimal.NewFromString(e.Amount)
			if err != nil {
				return stats, fmt.Errorf("owner %s expense %d: %w", o.ID, i, err)
			}
			at := now
			if e.Date != "" {
				if at, err = parseDate(e.Date, loc); err != nil {
					return stats, fmt.Errorf("owner %s expense %d: %w", o.ID, i, err)
				}
			}
			if err := store.RecordSpend(ctx, &model.SpendRecord{OwnerID: o.ID, Amount: amount, OccurredAt: at}); err != nil {
				return stats, fmt.Errorf("owner %s expense %d: %w", o.ID, i, err)
			}
			stats.Expenses++
		}
	}
	return stats, nil
}

func (s *seedSettings) toModel(ownerID string) (*model.BudgetSettings, error) {
	settings := model.NewBudgetSettings(ownerID)
	for kind, raw := range map[model.BudgetKind]string{
		model.KindDaily:   s.Daily,
		model.KindWeekly:  s.Weekly,
		model.KindMonthly: s.Monthly,
	} {
		limit, err := parseLimit(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		settings.SetLimit(kind, limit)
	}
	if s.AlertAt > 0 {
		settings.AlertThresholdPct = s.AlertAt
	}
	if s.Notifications != nil {
		settings.NotificationsEnabled = *s.Notifications
	}
	settings.WarrantyRemindersEnabled = s.WarrantyReminders
	settings.ReminderDays = s.ReminderDays
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return nil, err
		}
		settings.Timezone = s.Timezone
	}
	return settings, nil
}
