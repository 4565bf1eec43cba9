// Package git shells out for the little repository context that enriches
// metric deltas: the current branch and a repo name for session records.
package git

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const gitTimeout = 2 * time.Second

// CurrentBranch returns the checked-out branch, or "" outside a repo or in
// detached HEAD state.
func CurrentBranch(workingDir string) string {
	if workingDir == "" {
		return ""
	}
	return runGitCmd(workingDir, "branch", "--show-current")
}

// RepoName derives a project name from the git remote or repo root,
// falling back to the directory basename.
func RepoName(workingDir string) string {
	if workingDir == "" {
		return ""
	}
	if remote := runGitCmd(workingDir, "remote", "get-url", "origin"); remote != "" {
		name := filepath.Base(remote)
		return strings.TrimSuffix(name, ".git")
	}
	if root := runGitCmd(workingDir, "rev-parse", "--show-toplevel"); root != "" {
		return filepath.Base(root)
	}
	return filepath.Base(workingDir)
}

// runGitCmd executes a git command with timeout and returns trimmed stdout
func runGitCmd(dir string, args ...string) string {
	ctx, cancel := context.WithTimeout(context.Background(), gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return ""
	}
	return strings.TrimSpace(stdout.String())
}
