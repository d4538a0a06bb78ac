package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codemend/codemend/internal/converge"
	"github.com/codemend/codemend/internal/report"
	"github.com/codemend/codemend/internal/storage"
	"github.com/codemend/codemend/internal/types"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show past runs",
	Long: `List recent runs from the history database, or show one run in
detail when a run id is given.

Example:
  codemend history
  codemend history --limit=5
  codemend history 2f7c9a1e-...`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		store, err := storage.New(cfg.HistoryPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		ctx := context.Background()
		if len(args) == 1 {
			showRun(ctx, store, args[0])
			return
		}
		listRuns(ctx, store)
	},
}

func listRuns(ctx context.Context, store *storage.Store) {
	runs, err := store.ListRuns(ctx, historyLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return
	}

	gray := color.New(color.FgHiBlack).SprintFunc()
	for _, run := range runs {
		line := fmt.Sprintf("%s  %-6s %-24s %s",
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.Kind, truncate(run.ArtifactPath, 24), statusString(run.Status))
		if run.StopReason != "" {
			line += fmt.Sprintf(" (%s)", run.StopReason)
		}
		if run.QualityBefore != 0 || run.QualityAfter != 0 {
			line += fmt.Sprintf("  quality %d→%d", run.QualityBefore, run.QualityAfter)
		}
		fmt.Println(line)
		fmt.Printf("  %s\n", gray(run.ID))
	}
}

func showRun(ctx context.Context, store *storage.Store, id string) {
	run, err := store.GetRun(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("%s %s\n", cyan("Run:"), run.ID)
	fmt.Printf("  Kind:     %s\n", run.Kind)
	fmt.Printf("  Artifact: %s\n", run.ArtifactPath)
	fmt.Printf("  Status:   %s\n", statusString(run.Status))
	fmt.Printf("  Started:  %s (took %s)\n",
		run.StartedAt.Local().Format("2006-01-02 15:04:05"),
		run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	if run.PRReference != "" {
		fmt.Printf("  PR:       %s\n", color.CyanString(run.PRReference))
	}

	printer := report.NewPrinter()
	if len(run.Rounds) > 0 {
		printer.PrintConvergence(&converge.Result{
			Rounds:     run.Rounds,
			StopReason: types.StopReason(run.StopReason),
		})
	}
	if run.Result != nil {
		printer.PrintWorkflow(run.Result)
	}
}

func statusString(status string) string {
	switch types.WorkflowStatus(status) {
	case types.WorkflowSuccess:
		return color.GreenString(status)
	case types.WorkflowFailed:
		return color.RedString(status)
	default:
		return color.YellowString(status)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to list")
}
