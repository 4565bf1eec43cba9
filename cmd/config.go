package cmd

import (
	"fmt"

	"github.com/agentlens/cli/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage agentlens configuration",
	Long: `Manage agentlens configuration stored in ~/.agentlens/config.json.

Priority order: environment variables > config file > defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()

		cmd.Printf("Data dir: %s\n", cfg.DataDir)
		cmd.Printf("Debounce: %dms\n", cfg.DebounceMs)
		cmd.Printf("Poll:     %ds\n", cfg.PollSecs)
		cmd.Printf("Debug:    %v\n", cfg.Debug)
		cmd.Println()
		cmd.Printf("Config:   %s\n", config.ConfigPath())

		return nil
	},
}

var (
	setDataDir    string
	setDebounceMs int
	setPollSecs   int
	setDebug      bool
)

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set configuration values",
	Long: `Set configuration values in ~/.agentlens/config.json.

Examples:
  # Store session data somewhere else
  agentlens config set --data-dir=/var/lib/agentlens

  # Tune the file-watch debounce window
  agentlens config set --debounce-ms=250

  # Enable debug mode
  agentlens config set --debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fc, err := config.LoadFile()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if fc == nil {
			fc = &config.Config{}
		}

		changed := false
		if cmd.Flags().Changed("data-dir") {
			fc.DataDir = setDataDir
			changed = true
		}
		if cmd.Flags().Changed("debounce-ms") {
			fc.DebounceMs = setDebounceMs
			changed = true
		}
		if cmd.Flags().Changed("poll-secs") {
			fc.PollSecs = setPollSecs
			changed = true
		}
		if cmd.Flags().Changed("debug") {
			fc.Debug = setDebug
			changed = true
		}

		if !changed {
			return fmt.Errorf("no values provided. Use --data-dir, --debounce-ms, --poll-secs, or --debug")
		}

		if err := config.SaveFile(fc); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		cmd.Println("Configuration saved")
		if fc.DataDir != "" {
			cmd.Printf("  Data dir: %s\n", fc.DataDir)
		}
		if fc.DebounceMs != 0 {
			cmd.Printf("  Debounce: %dms\n", fc.DebounceMs)
		}
		if fc.PollSecs != 0 {
			cmd.Printf("  Poll:     %ds\n", fc.PollSecs)
		}
		if fc.Debug {
			cmd.Printf("  Debug:    %v\n", fc.Debug)
		}

		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(config.ConfigPath())
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)

	configSetCmd.Flags().StringVar(&setDataDir, "data-dir", "", "Directory for session state and captured telemetry")
	configSetCmd.Flags().IntVar(&setDebounceMs, "debounce-ms", 0, "File-watch debounce window in milliseconds")
	configSetCmd.Flags().IntVar(&setPollSecs, "poll-secs", 0, "Fallback poll interval in seconds")
	configSetCmd.Flags().BoolVar(&setDebug, "debug", false, "Enable debug mode")
}
