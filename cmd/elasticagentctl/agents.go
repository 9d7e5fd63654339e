package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// agentCmd is the parent command for agent operations.
var agentCmd = &cobra.Command{
	Use:     "agent",
	Aliases: []string{"agents"},
	Short:   "Inspect scheduler-managed agents",
	Long:    `Commands for viewing elastic-agent scheduler agent state.`,
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all agents",
	Long: `List every agent the scheduler currently tracks, across all clusters.

Filters:
  --cluster   Filter by cluster name
  --state     Filter by FSM state (e.g. running, draining, terminated)`,
	Example: `  # List all agents
  elasticagentctl agent list

  # List only agents in the "ci-build" cluster
  elasticagentctl agent list --cluster ci-build

  # List agents currently draining
  elasticagentctl agent list --state draining`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		cluster, _ := cmd.Flags().GetString("cluster")
		state, _ := cmd.Flags().GetString("state")

		ShowSpinner("Fetching agents...")
		agents, err := apiClient.ListAgents(ctx)
		HideSpinner()

		if err != nil {
			return fmt.Errorf("failed to list agents: %w", err)
		}

		filtered := make([]Agent, 0, len(agents))
		for _, a := range agents {
			if cluster != "" && a.Cluster != cluster {
				continue
			}
			if state != "" && !strings.EqualFold(a.State, state) {
				continue
			}
			filtered = append(filtered, a)
		}

		if outputFormat == "json" {
			return printJSON(filtered)
		}

		if len(filtered) == 0 {
			fmt.Println(Dim("No agents found."))
			return nil
		}

		headers := []string{"ID", "CLUSTER", "ROLE", "STATE", "RETRIES", "LAUNCHED FOR", "LAST ACTIVE"}
		rows := make([][]string, len(filtered))
		for i, a := range filtered {
			rows[i] = []string{
				truncate(a.ID, 16),
				a.Cluster,
				a.Role,
				formatAgentState(a.State),
				fmt.Sprintf("%d", a.Retries),
				a.LaunchedFor,
				formatTime(a.LastActive),
			}
		}

		printTable(headers, rows)
		return nil
	},
}

var agentShowCmd = &cobra.Command{
	Use:   "show <agent-id>",
	Short: "Show agent details",
	Long:  `Display detailed information about a single scheduler-managed agent.`,
	Example: `  # Show agent details
  elasticagentctl agent show build-agent-0`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ShowSpinner("Fetching agent details...")
		agent, err := apiClient.GetAgent(ctx, args[0])
		HideSpinner()

		if err != nil {
			return fmt.Errorf("failed to get agent: %w", err)
		}

		if outputFormat == "json" {
			return printJSON(agent)
		}

		fmt.Printf("%s\n", Bold("Agent Details"))
		fmt.Printf("  ID:            %s\n", agent.ID)
		fmt.Printf("  Cluster:       %s\n", agent.Cluster)
		fmt.Printf("  Role:          %s\n", agent.Role)
		fmt.Printf("  Environment:   %s\n", agent.Env)
		fmt.Printf("  State:         %s\n", formatAgentState(agent.State))
		fmt.Printf("  Launched for:  %s\n", agent.LaunchedFor)
		fmt.Printf("  Retries:       %d\n", agent.Retries)
		fmt.Printf("  Created:       %s\n", formatTime(agent.CreatedAt))
		fmt.Printf("  Updated:       %s\n", formatTime(agent.UpdatedAt))
		fmt.Printf("  Last active:   %s\n", formatTime(agent.LastActive))

		return nil
	},
}

func init() {
	agentListCmd.Flags().String("cluster", "", "Filter by cluster name")
	agentListCmd.Flags().String("state", "", "Filter by FSM state")

	agentCmd.AddCommand(agentListCmd)
	agentCmd.AddCommand(agentShowCmd)
}

// formatAgentState returns a colored FSM state string.
func formatAgentState(state string) string {
	switch strings.ToLower(state) {
	case "running", "ready":
		return Green(state)
	case "pending", "launching", "draining":
		return Yellow(state)
	case "failed", "terminated", "error":
		return Red(state)
	default:
		return Dim(state)
	}
}

// formatTime formats a time.Time for display, falling back to "-" for the zero value.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return Dim("-")
	}
	return formatTimestamp(t.Format(time.RFC3339))
}
