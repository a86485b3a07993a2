package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [--date YYYY-MM-DD]",
	Short: "Reconcile absences against schedules and leave",
	Long:  `Mark scheduled employees without punches as absent, deducting leave per the configured policy. Defaults to yesterday, the most recent complete day.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		date, _ := cmd.Flags().GetString("date")
		if date == "" {
			date = time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
		}

		engine, err := NewEngineFromConfig(cfg, provider)
		if err != nil {
			slog.Error("Failed to assemble engine", "error", err)
			os.Exit(1)
		}

		summary, err := engine.Reconciler.Run(ctx, date)
		if err != nil {
			slog.Error("Reconciliation failed", "date", date, "error", err)
			os.Exit(1)
		}

		fmt.Printf("Reconciled %s: %d employees checked\n", summary.Date, summary.Employees)
		fmt.Printf("  absences recorded:   %d\n", summary.Absences)
		fmt.Printf("  leave deductions:    %d\n", summary.Deductions)
		fmt.Printf("  unfunded absences:   %d\n", summary.Unfunded)
		fmt.Printf("  skipped non-working: %d\n", summary.SkippedNonWorking)
		fmt.Printf("  skipped present:     %d\n", summary.SkippedPresent)
		fmt.Printf("  skipped on leave:    %d\n", summary.SkippedOnLeave)
		fmt.Printf("  skipped existing:    %d\n", summary.SkippedExisting)

		if len(summary.Unresolved) > 0 {
			fmt.Printf("  unresolved (%d):\n", len(summary.Unresolved))
			for _, msg := range summary.Unresolved {
				fmt.Printf("    - %s\n", msg)
			}
			os.Exit(1)
		}
	},
}

func init() {
	reconcileCmd.Flags().String("date", "", "Date to reconcile (YYYY-MM-DD), defaults to yesterday")
	rootCmd.AddCommand(reconcileCmd)
}
