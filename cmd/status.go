package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/agentlens/cli/internal/agents"
	"github.com/agentlens/cli/internal/config"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agentlens configuration and agent availability",
	Long:  `Display the current configuration and which supported agents are available on this machine.`,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Printf("agentlens v%s\n\n", Version)

	cfg := config.Load()
	fmt.Printf("Data dir: %s\n", cfg.DataDir)
	fmt.Printf("Config:   %s\n", config.ConfigPath())
	fmt.Printf("Debounce: %dms\n", cfg.DebounceMs)
	fmt.Printf("Poll:     %ds\n", cfg.PollSecs)
	fmt.Printf("Debug:    %v\n", cfg.Debug)
	fmt.Println()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to resolve home directory: %w", err)
	}

	fmt.Println("Agents:")
	registry := agents.NewRegistry(homeDir)
	for _, name := range registry.Names() {
		adapter, _ := registry.Get(name)
		checkAgent(name, adapter)
	}

	return nil
}

func checkAgent(name string, adapter agents.Adapter) {
	if _, err := exec.LookPath(adapter.Command()); err != nil {
		fmt.Printf("  %-12s not found (%q not on PATH)\n", name+":", adapter.Command())
		return
	}

	workDir, _ := os.Getwd()
	for _, dir := range adapter.SessionDirs(workDir) {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			fmt.Printf("  %-12s available (session logs in %s)\n", name+":", dir)
			return
		}
	}

	fmt.Printf("  %-12s available (no session logs yet)\n", name+":")
}
