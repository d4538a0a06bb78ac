package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/codemend/codemend/internal/agents"
	"github.com/codemend/codemend/internal/ai"
	"github.com/codemend/codemend/internal/analyzer"
	"github.com/codemend/codemend/internal/config"
	"github.com/codemend/codemend/internal/report"
	"github.com/codemend/codemend/internal/storage"
	"github.com/codemend/codemend/internal/types"
	"github.com/codemend/codemend/internal/vcs"
)

var (
	agentsCreatePR bool
	agentsBranch   string
	agentsRepoDir  string
	agentsMaxFixes int
	agentsNoVCS    bool
	agentsJSONPath string
)

var agentsCmd = &cobra.Command{
	Use:   "agents <file>",
	Short: "Run the coordinated multi-role fix workflow",
	Long: `Run one pass of the role pipeline over a source file: a planning
role, then analysis, fix generation, validation, and integration. The
integration role commits validated fixes to a branch and, with
--create-pr, opens a pull request via gh.

With --no-vcs the integration role reports results without touching git,
which also works outside a repository.

Example:
  codemend agents app.py
  codemend agents --create-pr app.py
  codemend agents --no-vcs app.py`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		artifact := loadArtifact(args[0])
		client := newAIClient(cfg)

		branch := agentsBranch
		if branch == "" {
			branch = vcs.BranchName(cfg.BranchPrefix, args[0], time.Now())
		}

		var backend types.VCS
		if !agentsNoVCS {
			git, err := vcs.NewGitBackend(context.Background(), &vcs.Config{
				RepoDir:    agentsRepoDir,
				BaseBranch: cfg.DefaultBranch,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				fmt.Fprintf(os.Stderr, "Use --no-vcs to run without git integration.\n")
				os.Exit(1)
			}
			backend = git
		}

		coordinator, err := agents.New(
			analyzer.NewUnifiedAnalyzer(
				analyzer.NewStaticAnalyzer(),
				analyzer.NewLLMAnalyzer(client),
			),
			ai.NewFixer(client),
			newFixValidator(cfg, artifact),
			backend,
			agents.Config{
				MaxFixes: agentsMaxFixes,
				CreatePR: agentsCreatePR,
				Branch:   branch,
			},
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := signalContext()
		defer cancel()

		startedAt := time.Now().UTC()
		result, err := coordinator.Coordinate(ctx, artifact)
		finishedAt := time.Now().UTC()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		report.NewPrinter().PrintWorkflow(result)
		saveWorkflowRun(cfg, args[0], result, startedAt, finishedAt)

		if agentsJSONPath != "" {
			if err := report.WriteJSON(agentsJSONPath, result); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		if result.Status == types.WorkflowFailed {
			os.Exit(1)
		}
	},
}

// saveWorkflowRun records the coordinated run in history; failures only warn
func saveWorkflowRun(cfg *config.Config, path string, result *types.WorkflowResult, startedAt, finishedAt time.Time) {
	store := openHistory(cfg)
	if store == nil {
		return
	}
	defer store.Close()

	run := &storage.Run{
		ID:           storage.NewRunID(),
		Kind:         "agents",
		ArtifactPath: path,
		Status:       string(result.Status),
		PRReference:  result.PRReference,
		Result:       result,
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
	}
	if err := store.SaveRun(context.Background(), run); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record run history: %v\n", err)
	}
}

func init() {
	rootCmd.AddCommand(agentsCmd)
	agentsCmd.Flags().BoolVar(&agentsCreatePR, "create-pr", false, "Open a pull request for validated fixes")
	agentsCmd.Flags().StringVar(&agentsBranch, "branch", "", "Integration branch name (default derived from the file)")
	agentsCmd.Flags().StringVar(&agentsRepoDir, "repo", ".", "Repository directory for git operations")
	agentsCmd.Flags().IntVar(&agentsMaxFixes, "max-fixes", 10, "Maximum fix proposals in the run")
	agentsCmd.Flags().BoolVar(&agentsNoVCS, "no-vcs", false, "Skip git integration entirely")
	agentsCmd.Flags().StringVar(&agentsJSONPath, "json", "", "Also write the result as JSON to this path")
}
