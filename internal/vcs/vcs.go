// Package vcs implements the integration backend: git for branch, commit,
// and push, and the gh CLI for pull request submission.
package vcs

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/codemend/codemend/internal/types"
)

// Config holds backend configuration
type Config struct {
	// RepoDir is the repository root all operations run in
	RepoDir string

	// BaseBranch is the branch pull requests target (default "main")
	BaseBranch string
}

// GitBackend implements types.VCS with the git and gh CLIs.
// SECURITY: RepoDir must be a validated, trusted path. The backend does not
// perform path validation or sandboxing.
type GitBackend struct {
	gitPath    string
	ghPath     string // empty when gh is not installed
	repoDir    string
	baseBranch string
}

var _ types.VCS = (*GitBackend)(nil)

// NewGitBackend creates a git-backed integration backend. It verifies git is
// available; gh is optional and only checked when a PR is actually opened.
func NewGitBackend(ctx context.Context, cfg *Config) (*GitBackend, error) {
	if cfg.RepoDir == "" {
		return nil, fmt.Errorf("repository directory is required")
	}

	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}
	cmd := exec.CommandContext(ctx, gitPath, "version")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}

	ghPath, _ := exec.LookPath("gh")

	baseBranch := cfg.BaseBranch
	if baseBranch == "" {
		baseBranch = "main"
	}

	return &GitBackend{
		gitPath:    gitPath,
		ghPath:     ghPath,
		repoDir:    cfg.RepoDir,
		baseBranch: baseBranch,
	}, nil
}

// CreateBranch creates and checks out a new branch
func (g *GitBackend) CreateBranch(ctx context.Context, name string) error {
	if _, err := g.git(ctx, "checkout", "-b", name); err != nil {
		return &types.IntegrationError{Op: "create_branch", Err: err}
	}
	return nil
}

// Commit writes the artifact to its path in the repository, stages it, and
// commits with the given message.
func (g *GitBackend) Commit(ctx context.Context, artifact *types.Artifact, message string) error {
	target := artifact.Path
	if !filepath.IsAbs(target) {
		target = filepath.Join(g.repoDir, target)
	}
	if err := os.WriteFile(target, []byte(artifact.Content), 0o644); err != nil {
		return &types.IntegrationError{Op: "commit", Err: fmt.Errorf("write %s: %w", target, err)}
	}

	if _, err := g.git(ctx, "add", artifact.Path); err != nil {
		return &types.IntegrationError{Op: "commit", Err: err}
	}
	if _, err := g.git(ctx, "commit", "-m", message); err != nil {
		return &types.IntegrationError{Op: "commit", Err: err}
	}
	return nil
}

// Push uploads the branch to origin
func (g *GitBackend) Push(ctx context.Context, branch string) error {
	if _, err := g.git(ctx, "push", "-u", "origin", branch); err != nil {
		return &types.IntegrationError{Op: "push", Err: err}
	}
	return nil
}

// OpenPullRequest submits a PR with gh and returns its URL
func (g *GitBackend) OpenPullRequest(ctx context.Context, title, description string) (string, error) {
	if g.ghPath == "" {
		return "", &types.IntegrationError{Op: "open_pull_request", Err: fmt.Errorf("gh not found in PATH")}
	}

	cmd := exec.CommandContext(ctx, g.ghPath, "pr", "create",
		"--title", title,
		"--body", description,
		"--base", g.baseBranch)
	cmd.Dir = g.repoDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", &types.IntegrationError{
			Op:  "open_pull_request",
			Err: fmt.Errorf("gh pr create: %w: %s", err, strings.TrimSpace(string(output))),
		}
	}

	// gh prints the PR URL as the last line of output
	lines := strings.Fields(strings.TrimSpace(string(output)))
	if len(lines) == 0 {
		return "", &types.IntegrationError{Op: "open_pull_request", Err: fmt.Errorf("gh pr create produced no URL")}
	}
	return lines[len(lines)-1], nil
}

// git runs one git command in the repository
func (g *GitBackend) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.gitPath, append([]string{"-C", g.repoDir}, args...)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(string(output)))
	}
	return strings.TrimSpace(string(output)), nil
}

var branchSafeRegex = regexp.MustCompile(`[^a-z0-9-]+`)

// BranchName builds the auto-fix branch name <prefix>-<stem>-<timestamp>,
// with the file stem lowered and stripped to branch-safe characters.
func BranchName(prefix, path string, now time.Time) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem = branchSafeRegex.ReplaceAllString(strings.ToLower(stem), "-")
	stem = strings.Trim(stem, "-")
	if stem == "" {
		stem = "artifact"
	}
	return fmt.Sprintf("%s-%s-%d", prefix, stem, now.Unix())
}
