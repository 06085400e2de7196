package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/budget"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Inspect and check spending budgets",
}

var budgetStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current period totals against limits",
	RunE:  runBudgetStatus,
}

var budgetCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the budget alert check for an owner",
	RunE:  runBudgetCheck,
}

var budgetAlertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List alerts already sent to an owner",
	RunE:  runBudgetAlerts,
}

func init() {
	rootCmd.AddCommand(budgetCmd)
	budgetCmd.AddCommand(budgetStatusCmd)
	budgetCmd.AddCommand(budgetCheckCmd)
	budgetCmd.AddCommand(budgetAlertsCmd)

	for _, c := range []*cobra.Command{budgetStatusCmd, budgetCheckCmd, budgetAlertsCmd} {
		c.Flags().StringP("owner", "o", "", "Owner ID")
		_ = c.MarkFlagRequired("owner")
	}
	budgetStatusCmd.Flags().String("output", "table", "Output format (table, yaml, json)")
}

func runBudgetStatus(cmd *cobra.Command, _ []string) error {
	owner, _ := cmd.Flags().GetString("owner")
	output, _ := cmd.Flags().GetString("output")

	return withApp(cmd, func(a *app) error {
		status, err := a.checker.Status(cmd.Context(), owner)
		if err != nil {
			return fmt.Errorf("budget status: %w", err)
		}
		return printStatus(os.Stdout, status, output)
	})
}

func printStatus(out io.Writer, status []budget.PeriodStatus, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(status)
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PERIOD\tFROM\tSPENT\tLIMIT\tALERT AT\tSTATUS\n")
	for _, s := range status {
		limit, alertAt, state := "-", "-", ""
		if s.Limit != nil {
			limit = "$" + s.Limit.StringFixed(2)
			alertAt = "$" + s.ThresholdAmount.StringFixed(2)
			switch {
			case s.Total.GreaterThanOrEqual(*s.Limit):
				state = "[EXCEEDED]"
			case s.InAlertBand:
				state = "[WARNING]"
			default:
				state = "ok"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t$%s\t%s\t%s\t%s\n",
			s.Kind, s.Start.Format("2006-01-02"), s.Total.StringFixed(2), limit, alertAt, state)
	}
	return w.Flush()
}

func runBudgetCheck(cmd *cobra.Command, _ []string) error {
	owner, _ := cmd.Flags().GetString("owner")

	return withApp(cmd, func(a *app) error {
		out, err := a.checker.Check(cmd.Context(), owner)
		if err != nil {
			return fmt.Errorf("budget check: %w", err)
		}
		printOutcome(os.Stdout, out)
		return nil
	})
}

func printOutcome(out io.Writer, o budget.Outcome) {
	if o.SkipReason != "" {
		fmt.Fprintf(out, "Skipped %s: %s\n", o.OwnerID, o.SkipReason)
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PERIOD\tSPENT\tLIMIT\tRESULT\n")
	for _, p := range o.Periods {
		result := "below threshold"
		switch {
		case p.Skipped:
			result = "no limit"
		case p.Err != nil:
			result = "error: " + p.Err.Error()
		case p.Notified:
			result = "alert sent"
		case p.AlreadySent:
			result = "already alerted"
		case !p.ShouldAlert && p.Total.GreaterThanOrEqual(p.Limit):
			result = "limit reached"
		}
		fmt.Fprintf(w, "%s\t$%s\t$%s\t%s\n", p.Kind, p.Total.StringFixed(2), p.Limit.StringFixed(2), result)
	}
	w.Flush()
}

func runBudgetAlerts(cmd *cobra.Command, _ []string) error {
	owner, _ := cmd.Flags().GetString("owner")

	return withApp(cmd, func(a *app) error {
		alerts, err := a.store.ListAlerts(cmd.Context(), owner)
		if err != nil {
			return fmt.Errorf("list alerts: %w", err)
		}
		if len(alerts) == 0 {
			fmt.Println("No alerts sent yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "SENT AT\tPERIOD\tTOTAL\n")
		for _, al := range alerts {
			fmt.Fprintf(w, "%s\t%s\t$%s\n", al.SentAt.Format("2006-01-02 15:04"), al.Kind, al.TriggeringTotal.StringFixed(2))
		}
		return w.Flush()
	})
}
