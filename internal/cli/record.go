package cli

import (
	"fmt"
	"time"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/budget"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/model"
	"github.com/spf13/cobra"
)

var expenseCmd = &cobra.Command{
	Use:   "expense",
	Short: "Record spending",
}

var expenseAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record an expense and check the owner's budgets",
	RunE:  runExpenseAdd,
}

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Manage tracked documents",
}

var docAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Track a document with an expiry date",
	RunE:  runDocAdd,
}

var docListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an owner's documents with expiry dates",
	RunE:  runDocList,
}

func init() {
	rootCmd.AddCommand(expenseCmd)
	expenseCmd.AddCommand(expenseAddCmd)
	rootCmd.AddCommand(docCmd)
	docCmd.AddCommand(docAddCmd)
	docCmd.AddCommand(docListCmd)

	expenseAddCmd.Flags().StringP("owner", "o", "", "Owner ID")
	expenseAddCmd.Flags().StringP("amount", "a", "", "Amount spent")
	expenseAddCmd.Flags().String("date", "", "When the expense happened (RFC 3339 or YYYY-MM-DD, default now)")
	expenseAddCmd.Flags().Bool("no-check", false, "Record without running the budget check")
	_ = expenseAddCmd.MarkFlagRequired("owner")
	_ = expenseAddCmd.MarkFlagRequired("amount")

	docAddCmd.Flags().StringP("owner", "o", "", "Owner ID")
	docAddCmd.Flags().String("title", "", "Document title")
	docAddCmd.Flags().String("folder", "", "Folder name")
	docAddCmd.Flags().String("expires", "", "Expiry date (YYYY-MM-DD)")
	_ = docAddCmd.MarkFlagRequired("owner")
	_ = docAddCmd.MarkFlagRequired("title")
	_ = docAddCmd.MarkFlagRequired("expires")

	docListCmd.Flags().StringP("owner", "o", "", "Owner ID")
	_ = docListCmd.MarkFlagRequired("owner")
}

func runExpenseAdd(cmd *cobra.Command, _ []string) error {
	owner, _ := cmd.Flags().GetString("owner")
	rawAmount, _ := cmd.Flags().GetString("amount")
	rawDate, _ := cmd.Flags().GetString("date")
	noCheck, _ := cmd.Flags().GetBool("no-check")

	amount, err := parseLimit(rawAmount)
	if err != nil || amount == nil {
		return fmt.Errorf("--amount: invalid value %q", rawAmount)
	}
	at := time.Now().UTC()
	if rawDate != "" {
		if at, err = parseDate(rawDate, time.UTC); err != nil {
			return fmt.Errorf("--date: %w", err)
		}
	}

	return withApp(cmd, func(a *app) error {
		rec := &model.SpendRecord{OwnerID: owner, Amount: *amount, OccurredAt: at}
		if err := a.store.RecordSpend(cmd.Context(), rec); err != nil {
			return fmt.Errorf("record expense: %w", err)
		}
		fmt.Printf("Recorded expense %s: $%s on %s\n", rec.ID, rec.Amount.StringFixed(2), rec.OccurredAt.Format(time.RFC3339))

		if noCheck {
			return nil
		}
		out, err := a.checker.HandleSpendEvent(cmd.Context(), &budget.ChangeEvent{OperationType: "insert", FullDocument: rec})
		if err != nil {
			return fmt.Errorf("budget check: %w", err)
		}
		fmt.Println()
		printOutcome(cmd.OutOrStdout(), out)
		return nil
	})
}

// parseDate accepts RFC 3339 timestamps or plain dates, which are read as
// midnight in loc.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

func runDocAdd(cmd *cobra.Command, _ []string) error {
	owner, _ := cmd.Flags().GetString("owner")
	title, _ := cmd.Flags().GetString("title")
	folder, _ := cmd.Flags().GetString("folder")
	rawExpires, _ := cmd.Flags().GetString("expires")

	return withApp(cmd, func(a *app) error {
		expires, err := parseDate(rawExpires, a.ownerLocation(cmd.Context(), owner))
		if err != nil {
			return fmt.Errorf("--expires: %w", err)
		}

		doc := &model.TrackedDocument{OwnerID: owner, Title: title, FolderName: folder, ExpiryDate: &expires}
		if err := a.store.SaveDocument(cmd.Context(), doc); err != nil {
			return fmt.Errorf("save document: %w", err)
		}
		fmt.Printf("Tracking %q (%s), expires %s\n", doc.Title, doc.ID, expires.Format(time.DateOnly))
		return nil
	})
}

func runDocList(cmd *cobra.Command, _ []string) error {
	owner, _ := cmd.Flags().GetString("owner")

	return withApp(cmd, func(a *app) error {
		docs, err := a.store.ListExpiringDocuments(cmd.Context(), owner)
		if err != nil {
			return fmt.Errorf("list documents: %w", err)
		}
		if len(docs) == 0 {
			fmt.Println("No documents with expiry dates.")
			return nil
		}
		for _, d := range docs {
			fmt.Printf("%s\t%s\t%s\treminders: %v\n", d.ID, d.ExpiryDate.Format(time.DateOnly), d.Title, d.RemindersSent)
		}
		return nil
	})
}
