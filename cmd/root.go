package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "agentlens",
	Short: "agentlens - Local usage telemetry for AI coding agents",
	Long: `agentlens wraps AI coding agents and reconstructs normalized usage
telemetry from their own session logs. No hooks, no agent configuration:
the agent runs exactly as it would on its own while agentlens watches the
log file it writes.

Supported agents:
  - Claude Code
  - Codex
  - Gemini CLI

Get started:
  1. Run your agent through agentlens: agentlens run claude-code
  2. Use the agent as normal - usage is captured automatically
  3. Review past runs: agentlens sessions`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("agentlens %s\n", Version)
	},
}
