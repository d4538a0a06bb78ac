package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codemend/codemend/internal/ai"
	"github.com/codemend/codemend/internal/analyzer"
	"github.com/codemend/codemend/internal/config"
	"github.com/codemend/codemend/internal/converge"
	"github.com/codemend/codemend/internal/gates"
	"github.com/codemend/codemend/internal/report"
	"github.com/codemend/codemend/internal/storage"
	"github.com/codemend/codemend/internal/types"
	"github.com/codemend/codemend/internal/vcs"
)

var (
	fixMaxRounds     int
	fixQualityTarget int
	fixDryRun        bool
	fixCreatePR      bool
	fixRepoDir       string
	fixJSONPath      string
)

var fixCmd = &cobra.Command{
	Use:   "fix <file>",
	Short: "Iteratively fix a source file until quality converges",
	Long: `Run the analyze-fix-validate loop over a source file. Each round
analyzes the file, generates fixes for the open issues, validates every
candidate, and carries the improved file into the next round. The loop
stops when the issue set empties, the quality target is reached, a round
validates nothing, or the round cap is hit.

The fixed content is written back to the file unless --dry-run is set.

Example:
  codemend fix app.py
  codemend fix --max-rounds=5 --quality-target=9 app.py
  codemend fix --dry-run app.py
  codemend fix --create-pr app.py`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cmd.Flags().Changed("max-rounds") {
			cfg.MaxRounds = fixMaxRounds
		}
		if cmd.Flags().Changed("quality-target") {
			cfg.QualityTarget = fixQualityTarget
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		artifact := loadArtifact(args[0])
		client := newAIClient(cfg)

		loop, err := converge.New(
			analyzer.NewUnifiedAnalyzer(
				analyzer.NewStaticAnalyzer(),
				analyzer.NewLLMAnalyzer(client),
			),
			ai.NewFixer(client),
			newFixValidator(cfg, artifact),
			converge.Config{
				MaxRounds:        cfg.MaxRounds,
				QualityTarget:    cfg.QualityTarget,
				MaxFixesPerRound: cfg.MaxFixesPerRound,
			},
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := signalContext()
		defer cancel()

		startedAt := time.Now().UTC()
		result, runErr := loop.Run(ctx, artifact)
		finishedAt := time.Now().UTC()

		if result != nil && len(result.Rounds) > 0 {
			report.NewPrinter().PrintConvergence(result)
			saveConvergenceRun(cfg, args[0], result, startedAt, finishedAt)
		}
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
			os.Exit(1)
		}

		changed := result.FinalArtifact.Content != artifact.Content
		switch {
		case !changed:
			fmt.Println("No changes were made.")
		case fixDryRun:
			fmt.Printf("%s Dry run: %s not modified\n", color.YellowString("!"), args[0])
		default:
			if err := os.WriteFile(args[0], []byte(result.FinalArtifact.Content), 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to write %s: %v\n", args[0], err)
				os.Exit(1)
			}
			fmt.Printf("%s Wrote fixed content to %s\n", color.GreenString("✓"), args[0])
		}

		if fixCreatePR && changed && !fixDryRun {
			if err := openFixPR(ctx, cfg, result); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		if fixJSONPath != "" {
			if err := report.WriteJSON(fixJSONPath, result); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}
	},
}

// openFixPR publishes a converged result: branch, commit, push, PR
func openFixPR(ctx context.Context, cfg *config.Config, result *converge.Result) error {
	backend, err := vcs.NewGitBackend(ctx, &vcs.Config{
		RepoDir:    fixRepoDir,
		BaseBranch: cfg.DefaultBranch,
	})
	if err != nil {
		return err
	}

	artifact := result.FinalArtifact
	branch := vcs.BranchName(cfg.BranchPrefix, artifact.Path, time.Now())
	if err := backend.CreateBranch(ctx, branch); err != nil {
		return err
	}
	if err := backend.Commit(ctx, artifact, "Apply automated code improvements"); err != nil {
		return err
	}
	if err := backend.Push(ctx, branch); err != nil {
		return err
	}

	last := result.Rounds[len(result.Rounds)-1]
	title := fmt.Sprintf("Automated fixes for %s", artifact.Path)
	body := fmt.Sprintf("Quality %d/10 after %d rounds (stop reason: %s).",
		last.QualityScore, len(result.Rounds), result.StopReason)
	ref, err := backend.OpenPullRequest(ctx, title, body)
	if err != nil {
		return err
	}
	fmt.Printf("%s Opened %s\n", color.GreenString("✓"), color.CyanString(ref))
	return nil
}

// newFixValidator builds the standard gate set: syntax is blocking,
// import resolution and the static recheck are advisory. The recheck
// baseline is the initial artifact's static issue count.
func newFixValidator(cfg *config.Config, initial *types.Artifact) *gates.Validator {
	static := analyzer.NewStaticAnalyzer()
	baseline := 0
	if res, err := static.Analyze(context.Background(), initial); err == nil {
		baseline = len(res.Issues)
	}

	validator, err := gates.NewValidator([]gates.Gate{
		gates.NewSyntaxGate(),
		gates.NewImportsGate(""),
		gates.NewStaticRecheckGate(static, baseline),
	}, gates.WithGateTimeout(cfg.GateTimeout))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return validator
}

// saveConvergenceRun records the run in history; failures only warn
func saveConvergenceRun(cfg *config.Config, path string, result *converge.Result, startedAt, finishedAt time.Time) {
	store := openHistory(cfg)
	if store == nil {
		return
	}
	defer store.Close()

	status := types.WorkflowSuccess
	if result.StopReason == types.StopCancelled {
		status = types.WorkflowPartial
	}

	run := &storage.Run{
		ID:           storage.NewRunID(),
		Kind:         "fix",
		ArtifactPath: path,
		Status:       string(status),
		StopReason:   string(result.StopReason),
		Rounds:       result.Rounds,
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
	}
	run.QualityBefore = result.Rounds[0].QualityScore
	run.QualityAfter = result.Rounds[len(result.Rounds)-1].QualityScore

	if err := store.SaveRun(context.Background(), run); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record run history: %v\n", err)
	}
}

func init() {
	rootCmd.AddCommand(fixCmd)
	fixCmd.Flags().IntVar(&fixMaxRounds, "max-rounds", 0, "Maximum analyze-fix-validate rounds (overrides config)")
	fixCmd.Flags().IntVar(&fixQualityTarget, "quality-target", 0, "Stop once quality reaches this score, 0 disables (overrides config)")
	fixCmd.Flags().BoolVar(&fixDryRun, "dry-run", false, "Report fixes without writing the file")
	fixCmd.Flags().BoolVar(&fixCreatePR, "create-pr", false, "Commit the fixed file to a branch and open a pull request")
	fixCmd.Flags().StringVar(&fixRepoDir, "repo", ".", "Repository directory for git operations")
	fixCmd.Flags().StringVar(&fixJSONPath, "json", "", "Also write the result as JSON to this path")
}
