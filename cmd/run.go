package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"

	"github.com/agentlens/cli/internal/agents"
	"github.com/agentlens/cli/internal/config"
	"github.com/agentlens/cli/internal/metrics"
	"github.com/agentlens/cli/internal/schema"
	"github.com/agentlens/cli/internal/state"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <agent> [-- <agent args...>]",
	Short: "Run an AI coding agent with telemetry capture",
	Long: `Launch an AI coding agent as a subprocess with stdio passed straight
through, so the interactive experience is unchanged. While the agent runs,
agentlens correlates the run with the session log the agent writes and
parses it incrementally into normalized usage records.

Telemetry is best effort: a capture failure is reported on stderr but never
stops or degrades the agent itself. The agent's exit code is propagated.

Examples:
  agentlens run claude-code
  agentlens run codex -- --model o3
  agentlens run gemini-cli`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runAgent,
}

func runAgent(cmd *cobra.Command, args []string) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to resolve home directory: %w", err)
	}

	registry := agents.NewRegistry(homeDir)
	adapter, ok := registry.Get(args[0])
	if !ok {
		return fmt.Errorf("unknown agent %q (supported: %s)", args[0], strings.Join(registry.Names(), ", "))
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}

	cfg := config.Load()
	store, err := state.NewSessionStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	orch := metrics.NewOrchestrator(adapter, store, workDir, metrics.Options{
		DataDir:      cfg.DataDir,
		Debounce:     cfg.Debounce(),
		PollInterval: cfg.PollInterval(),
		RetryDelays:  cfg.RetryDelays(),
		Provider:     schema.ProviderFor(adapter.Name()),
	})

	agentArgs := args[1:]
	agent := exec.Command(adapter.Command(), agentArgs...)
	agent.Stdin = os.Stdin
	agent.Stdout = os.Stdout
	agent.Stderr = os.Stderr
	agent.Dir = workDir

	ctx := context.Background()
	orch.BeforeAgentSpawn(ctx)

	if err := agent.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", adapter.Command(), err)
	}

	// Ctrl-C goes to the foreground process group, so the agent receives it
	// directly; the wrapper stays alive to flush the final telemetry pass.
	signal.Ignore(os.Interrupt)

	correlated := make(chan struct{})
	go func() {
		defer close(correlated)
		orch.AfterAgentSpawn(ctx)
	}()

	exitCode := 0
	if err := agent.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = 1
		}
	}

	<-correlated
	orch.OnAgentExit(ctx, exitCode)

	if cfg.Debug {
		fmt.Fprintf(os.Stderr, "agentlens: session %s recorded\n", orch.SessionID())
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}
