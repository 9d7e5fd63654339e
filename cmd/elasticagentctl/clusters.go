package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// clusterCmd is the parent command for cluster operations.
var clusterCmd = &cobra.Command{
	Use:     "cluster",
	Aliases: []string{"clusters"},
	Short:   "Inspect scheduler-managed clusters",
	Long:    `Commands for viewing executor/CI server endpoints and observed quota per cluster.`,
}

var clusterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all clusters",
	Long:  `List every cluster the scheduler currently tracks, with observed quota per role.`,
	Example: `  # List all clusters
  elasticagentctl cluster list`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ShowSpinner("Fetching clusters...")
		clusters, err := apiClient.ListClusters(ctx)
		HideSpinner()

		if err != nil {
			return fmt.Errorf("failed to list clusters: %w", err)
		}

		if outputFormat == "json" {
			return printJSON(clusters)
		}

		if len(clusters) == 0 {
			fmt.Println(Dim("No clusters found."))
			return nil
		}

		headers := []string{"NAME", "EXECUTOR URL", "CI SERVER URL", "ROLES"}
		rows := make([][]string, len(clusters))
		for i, c := range clusters {
			rows[i] = []string{
				c.Name,
				c.ExecutorURL,
				c.CIServerURL,
				fmt.Sprintf("%d", len(c.Quota)),
			}
		}
		printTable(headers, rows)

		for _, c := range clusters {
			if len(c.Quota) == 0 {
				continue
			}
			fmt.Printf("\n%s %s\n", Bold("Quota for"), c.Name)
			qHeaders := []string{"ROLE", "AVAIL CPU", "AVAIL RAM", "AVAIL DISK", "USED CPU", "USED RAM", "USED DISK"}
			qRows := make([][]string, 0, len(c.Quota))
			for role, q := range c.Quota {
				qRows = append(qRows, []string{
					role,
					fmt.Sprintf("%.2f", q.Available.CPU),
					fmt.Sprintf("%.2f", q.Available.RAM),
					fmt.Sprintf("%.2f", q.Available.Disk),
					fmt.Sprintf("%.2f", q.Usage.CPU),
					fmt.Sprintf("%.2f", q.Usage.RAM),
					fmt.Sprintf("%.2f", q.Usage.Disk),
				})
			}
			printTable(qHeaders, qRows)
		}

		return nil
	},
}

func init() {
	clusterCmd.AddCommand(clusterListCmd)
}
