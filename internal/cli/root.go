// Package cli implements the kiwi command line, which analyzes local books
// without the message broker.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kiwi",
		Short: "Extract character profiles and relationships from novels",
		Long: `Kiwi reads a book chunk by chunk, detects its characters, keeps a running
summary and maintains a profile for every character together with the
relationships between them.

Runs are checkpointed after every chunk and can be paused and resumed.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML file overriding environment settings")

	analyzeCmd := &cobra.Command{
		Use:   "analyze <file>...",
		Short: "Analyze one or more UTF-8 text files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  RunAnalyze,
	}
	analyzeCmd.Flags().Int("parallel", 1, "Number of books analyzed at the same time")
	analyzeCmd.Flags().String("book-id", "", "Book id (single file only, default: file name)")
	analyzeCmd.Flags().String("run-id", "", "Run id to use or continue (single file only)")

	resumeCmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Continue a paused or interrupted run from its last checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  RunResume,
	}

	pauseCmd := &cobra.Command{
		Use:   "pause <run-id>",
		Short: "Ask a running analysis to stop at the next chunk boundary",
		Args:  cobra.ExactArgs(1),
		RunE:  RunPause,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the postgres schema",
		Args:  cobra.NoArgs,
		RunE:  RunMigrate,
	}
	migrateCmd.Flags().Bool("down", false, "Drop the schema instead")

	charactersCmd := &cobra.Command{
		Use:   "characters <book-id>",
		Short: "Print the characters and relationships of a book as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  RunCharacters,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kiwi %s\n", version)
		},
	}

	rootCmd.AddCommand(
		analyzeCmd,
		resumeCmd,
		pauseCmd,
		migrateCmd,
		charactersCmd,
		versionCmd,
	)

	return rootCmd
}
