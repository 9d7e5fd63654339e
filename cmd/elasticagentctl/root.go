package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Build information (set from main.go)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Global flags
var (
	serverAddr   string
	outputFormat string
	noColor      bool
	configFile   string
)

// Global client instance
var apiClient *Client

var rootCmd = &cobra.Command{
	Use:   "elasticagentctl",
	Short: "CLI tool for operating the elastic-agent scheduler",
	Long: `elasticagentctl is a command-line interface for operating the elastic-agent
scheduler plugin.

It provides commands for inspecting:
  - Agents: view per-agent state, retry count, and timestamps
  - Clusters: view executor/CI server endpoints and observed quota
  - Reconcile: trigger an out-of-band reconciliation pass

Environment variables:
  ELASTICAGENTCTL_SERVER   Admin API address (default: localhost:8080)
  ELASTICAGENTCTL_OUTPUT   Output format: json, table (default: table)
  ELASTICAGENTCTL_CONFIG   Config file path (default: ~/.elasticagentctl/config.yaml)`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "completion" || cmd.Name() == "version" ||
			(cmd.Parent() != nil && cmd.Parent().Name() == "completion") ||
			(cmd.Parent() != nil && cmd.Parent().Name() == "config") {
			return nil
		}

		InitColor(!noColor)

		cfg, err := LoadConfig(configFile)
		if err != nil {
			cfg = &Config{}
		}

		server := serverAddr
		if server == "" {
			server = os.Getenv("ELASTICAGENTCTL_SERVER")
		}
		if server == "" && cfg.Server != "" {
			server = cfg.Server
		}
		if server == "" {
			server = "localhost:8080"
		}

		output := outputFormat
		if output == "" {
			output = os.Getenv("ELASTICAGENTCTL_OUTPUT")
		}
		if output == "" && cfg.OutputFormat != "" {
			output = cfg.OutputFormat
		}
		if output == "" {
			output = "table"
		}
		outputFormat = output

		apiClient = NewClient(server)
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		InitColor(!noColor)

		if outputFormat == "json" {
			formatter := &JSONFormatter{}
			info := map[string]string{
				"version":    Version,
				"commit":     Commit,
				"build_time": BuildTime,
				"go_version": runtime.Version(),
				"platform":   runtime.GOOS + "/" + runtime.GOARCH,
			}
			output, _ := formatter.Format(info)
			fmt.Println(output)
			return
		}

		fmt.Printf("%s\n", Bold("elasticagentctl"))
		fmt.Printf("  Version:    %s\n", Version)
		fmt.Printf("  Commit:     %s\n", Commit)
		fmt.Printf("  Built:      %s\n", BuildTime)
		fmt.Printf("  Go version: %s\n", runtime.Version())
		fmt.Printf("  Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "", "scheduler admin API address (default: localhost:8080)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: json, table (default: table)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ~/.elasticagentctl/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(completionCmd)
}
