package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// reconcileCmd is the parent command for reconcile operations.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Trigger scheduler reconciliation",
	Long:  `Commands for triggering an out-of-band reconciliation pass outside the scheduler's normal ping interval.`,
}

var reconcileNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Trigger an immediate reconciliation pass",
	Long: `Wake the scheduler's reconcile loop immediately instead of waiting
for its next scheduled ping. Useful after editing fixture profiles or
after a manual cluster change.`,
	Example: `  # Trigger reconciliation now
  elasticagentctl reconcile now`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ShowSpinner("Triggering reconciliation...")
		err := apiClient.ReconcileNow(ctx)
		HideSpinner()

		if err != nil {
			return fmt.Errorf("failed to trigger reconciliation: %w", err)
		}

		if outputFormat == "json" {
			return printJSON(map[string]string{"status": "ok"})
		}

		fmt.Printf("%s Reconciliation triggered\n", Green("✓"))
		return nil
	},
}

func init() {
	reconcileCmd.AddCommand(reconcileNowCmd)
}
