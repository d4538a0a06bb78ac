package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codemend/codemend/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default .codemend.yaml in the current directory",
	Long: `Write a .codemend.yaml with the default configuration so the
settings are visible and editable. Refuses to overwrite an existing file.

Example:
  cd ~/myproject
  codemend init`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath
		if path == "" {
			path = ".codemend.yaml"
		}
		if err := config.WriteDefault(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("\n%s Wrote %s\n\n", color.GreenString("✓"), color.CyanString(path))
		fmt.Printf("%s Next steps:\n", gray("→"))
		fmt.Printf("  %s\n", gray("codemend analyze <file>"))
		fmt.Printf("  %s\n", gray("codemend fix <file>"))
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
