package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config represents the CLI's own persisted settings.
type Config struct {
	Server       string `yaml:"server"`
	OutputFormat string `yaml:"output_format"`
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".elasticagentctl", "config.yaml")
}

// LoadConfig loads configuration from path (or the default path if empty).
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	return &cfg, nil
}

// SaveConfig saves configuration to path (or the default path if empty).
func SaveConfig(cfg *Config, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long:  `Commands for viewing and managing elasticagentctl configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		InitColor(!noColor)

		path := configFile
		if path == "" {
			path = DefaultConfigPath()
		}

		cfg, err := LoadConfig(path)
		if err != nil {
			cfg = &Config{}
		}

		if outputFormat == "json" {
			return printJSON(map[string]interface{}{
				"file":          path,
				"server":        resolveConfigValue(cfg.Server, serverAddr, os.Getenv("ELASTICAGENTCTL_SERVER"), "localhost:8080"),
				"output_format": resolveConfigValue(cfg.OutputFormat, outputFormat, os.Getenv("ELASTICAGENTCTL_OUTPUT"), "table"),
			})
		}

		fmt.Printf("%s\n", Bold("Configuration"))
		fmt.Printf("  Config file: %s\n", path)
		fmt.Println()
		fmt.Printf("%s\n", Bold("Settings"))

		server := resolveConfigValue(cfg.Server, serverAddr, os.Getenv("ELASTICAGENTCTL_SERVER"), "localhost:8080")
		serverSource := resolveSource(cfg.Server, serverAddr, os.Getenv("ELASTICAGENTCTL_SERVER"))
		fmt.Printf("  Server:        %s %s\n", server, Dim("("+serverSource+")"))

		output := resolveConfigValue(cfg.OutputFormat, outputFormat, os.Getenv("ELASTICAGENTCTL_OUTPUT"), "table")
		outputSource := resolveSource(cfg.OutputFormat, outputFormat, os.Getenv("ELASTICAGENTCTL_OUTPUT"))
		fmt.Printf("  Output Format: %s %s\n", output, Dim("("+outputSource+")"))

		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Available keys:
  server        - scheduler admin API address
  output_format - default output format (json, table)`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		InitColor(!noColor)

		key, value := args[0], args[1]

		path := configFile
		if path == "" {
			path = DefaultConfigPath()
		}

		cfg, err := LoadConfig(path)
		if err != nil {
			cfg = &Config{}
		}

		switch strings.ToLower(key) {
		case "server":
			cfg.Server = value
		case "output_format", "output":
			if value != "json" && value != "table" {
				return fmt.Errorf("invalid output format: %s (must be 'json' or 'table')", value)
			}
			cfg.OutputFormat = value
		default:
			return fmt.Errorf("unknown configuration key: %s", key)
		}

		if err := SaveConfig(cfg, path); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Printf("%s Set %s = %s\n", Green("✓"), Bold(key), value)
		return nil
	},
}

func resolveConfigValue(configValue, flagValue, envValue, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue != "" {
		return envValue
	}
	if configValue != "" {
		return configValue
	}
	return defaultValue
}

func resolveSource(configValue, flagValue, envValue string) string {
	if flagValue != "" {
		return "flag"
	}
	if envValue != "" {
		return "env"
	}
	if configValue != "" {
		return "config"
	}
	return "default"
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
