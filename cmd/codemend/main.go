// Command codemend analyzes source files and drives AI-assisted fix
// workflows: single-shot analysis, iterative convergence runs, and
// multi-role coordinated runs that can open pull requests.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codemend/codemend/internal/ai"
	"github.com/codemend/codemend/internal/analyzer"
	"github.com/codemend/codemend/internal/config"
	"github.com/codemend/codemend/internal/storage"
	"github.com/codemend/codemend/internal/types"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "codemend",
	Short: "AI-assisted code analysis and repair",
	Long: `codemend finds issues in source files and fixes them with an
analyze-fix-validate loop backed by the Anthropic API.

Configuration is read from .codemend.yaml in the current directory (or
--config), with CODEMEND_* environment variables taking precedence.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default .codemend.yaml)")
}

// signalContext returns a context cancelled by Ctrl-C. The loop notices
// between rounds; in-flight API calls run to completion first.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadConfig loads and validates configuration for a command run
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// loadArtifact reads the file under repair into an artifact
func loadArtifact(path string) *types.Artifact {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return &types.Artifact{
		Path:     path,
		Content:  string(data),
		Language: analyzer.DetectLanguage(path),
	}
}

// newAIClient builds the Anthropic client from config. Exits with a hint
// when no API key is available, since every AI-backed command needs one.
func newAIClient(cfg *config.Config) *ai.Client {
	client, err := ai.NewClient(&ai.Config{
		Model:             cfg.Model,
		MaxTokens:         cfg.MaxTokens,
		RequestsPerMinute: cfg.RequestsPerMinute,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Set ANTHROPIC_API_KEY to use AI-backed commands.\n")
		os.Exit(1)
	}
	return client
}

// openHistory opens the run history store. History is best-effort: a
// failure here must not abort a run, so callers get nil plus a warning.
func openHistory(cfg *config.Config) *storage.Store {
	store, err := storage.New(cfg.HistoryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: run history unavailable: %v\n", err)
		return nil
	}
	return store
}
