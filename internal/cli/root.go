// Package cli provides the command-line interface for datachat.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mweiler/datachat-go/internal/api"
	"github.com/mweiler/datachat-go/internal/chat"
	"github.com/mweiler/datachat-go/internal/config"
	"github.com/mweiler/datachat-go/internal/metrics"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool
	timings bool

	// Global config and collaborators, built once per invocation.
	cfg       config.Config
	apiClient *api.Client
	store     *chat.Store
	collector *metrics.Collector
	logger    *slog.Logger

	logCleanup func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "datachat",
	Short: "Conversational data analysis client",
	Long: `Datachat is a chat client for asking natural-language questions about
your project's data. Answers arrive as text and chart visualizations;
conversations are threaded, searchable, and can be marked important.

Run 'datachat chat' for the interactive view or 'datachat ask' for a
one-shot question.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// login and help run without a configured client.
		if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "login" {
			return nil
		}

		cfg = config.Load()

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		// The chat TUI owns the terminal; keep its logs file-only.
		quiet := cmd.Name() == "chat"
		logger, logCleanup = config.SetupLogger(cfg.LogFile, level, quiet)

		apiClient = api.New(cfg.ServerURL, cfg.Token)
		collector = metrics.NewCollector()
		store = chat.NewStore(apiClient, collector, logger, chat.StoreConfig{
			ProjectID:                cfg.ProjectID,
			VisualizationMinChars:    cfg.VisualizationMinChars,
			RecentConversationWindow: cfg.RecentConversationWindow,
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if timings && collector != nil {
			printTimings(collector.Snapshot())
		}
		if logCleanup != nil {
			if err := logCleanup(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// printTimings renders the request timing summary gathered during this
// invocation.
func printTimings(snap metrics.Snapshot) {
	if len(snap.Requests) == 0 {
		return
	}
	fmt.Fprintln(os.Stderr, "\nRequest timings:")
	for _, r := range snap.Requests {
		fmt.Fprintf(os.Stderr, "  %-20s count=%d avg=%.0fms min=%dms max=%dms\n",
			r.Kind, r.Count, r.AvgTimeMs, r.MinTimeMs, r.MaxTimeMs)
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&timings, "timings", false, "print request timings on exit")

	// Add subcommands
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(importantCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(loginCmd)
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
