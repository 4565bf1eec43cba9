package cmd

import (
	"fmt"
	"sort"

	"github.com/agentlens/cli/internal/config"
	"github.com/agentlens/cli/internal/metrics"
	"github.com/agentlens/cli/internal/state"
	"github.com/spf13/cobra"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded agent sessions",
	Long: `List recorded sessions newest first, with token totals and tool usage
aggregated from the captured metric deltas.`,
	RunE: runSessions,
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	store, err := state.NewSessionStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	entries, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(entries) == 0 {
		cmd.Println("No sessions recorded yet. Start one with: agentlens run <agent>")
		return nil
	}

	if sessionsLimit > 0 && len(entries) > sessionsLimit {
		entries = entries[:sessionsLimit]
	}

	for _, entry := range entries {
		deltas, err := metrics.ReadDeltas(cfg.DataDir, entry.SessionID)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not read deltas for %s: %v\n", entry.SessionID, err)
		}

		var input, output int
		tools := make(map[string]int)
		for _, d := range deltas {
			input += d.Tokens.Input
			output += d.Tokens.Output
			for name, count := range d.Tools {
				tools[name] += count
			}
		}

		project := entry.Project
		if project == "" {
			project = "-"
		}

		status := string(entry.Status)
		if sess, err := store.Load(entry.SessionID); err == nil {
			status = fmt.Sprintf("%s (correlation: %s)", entry.Status, sess.Correlation.Status)
		}

		cmd.Printf("%s  %s\n", entry.StartTime.Local().Format("2006-01-02 15:04"), entry.SessionID)
		cmd.Printf("  Agent:   %s\n", entry.AgentName)
		cmd.Printf("  Project: %s\n", project)
		cmd.Printf("  Status:  %s\n", status)
		cmd.Printf("  Tokens:  %d in / %d out\n", input, output)
		if len(tools) > 0 {
			cmd.Printf("  Tools:   %s\n", formatToolCounts(tools))
		}
		cmd.Println()
	}

	return nil
}

func formatToolCounts(tools map[string]int) string {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := ""
	for i, name := range names {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s (%d)", name, tools[name])
	}
	return out
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 10, "Maximum number of sessions to show (0 for all)")
}
