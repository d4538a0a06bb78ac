package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codemend/codemend/internal/analyzer"
	"github.com/codemend/codemend/internal/report"
	"github.com/codemend/codemend/internal/types"
)

var (
	analyzeStaticOnly bool
	analyzeJSONPath   string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyze a source file and report issues",
	Long: `Analyze a source file with pattern-based static checks plus an AI
review pass, and print the issues found with a 1-10 quality score.

With --static-only the AI pass is skipped and no API key is needed.

Example:
  codemend analyze app.py
  codemend analyze --static-only app.py
  codemend analyze --json=result.json app.py`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		artifact := loadArtifact(args[0])

		var eng types.Analyzer = analyzer.NewStaticAnalyzer()
		if !analyzeStaticOnly {
			client := newAIClient(cfg)
			eng = analyzer.NewUnifiedAnalyzer(
				analyzer.NewStaticAnalyzer(),
				analyzer.NewLLMAnalyzer(client),
			)
		}

		result, err := eng.Analyze(context.Background(), artifact)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		report.NewPrinter().PrintAnalysis(artifact.Path, result)

		if analyzeJSONPath != "" {
			if err := report.WriteJSON(analyzeJSONPath, result); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&analyzeStaticOnly, "static-only", false, "Skip the AI analysis pass")
	analyzeCmd.Flags().StringVar(&analyzeJSONPath, "json", "", "Also write the result as JSON to this path")
}
