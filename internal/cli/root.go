// Package cli provides the brainbot command-line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driving"
	"github.com/theotherzach/project-brain-bot/internal/logger"
)

var version = "dev"

// Services holds the wired services the commands delegate to. The main
// package builds it from configuration and injects it before Execute.
type Services struct {
	Provider    driving.ContextProvider
	SyncRunner  driving.SyncRunner
	Scheduler   driving.Scheduler
	Registry    driven.ConnectorRegistry
	SyncHistory driven.SyncHistoryStore
	LLM         driven.LLMService

	// ServeAddr is the default listen address for the serve command.
	ServeAddr string
}

var services *Services

// SetServices injects the wired services.
func SetServices(s *Services) {
	services = s
}

// SetVersion sets the version string printed by the version command.
func SetVersion(v string) {
	version = v
}

var verboseFlag bool

var rootCmd = &cobra.Command{
	Use:   "brainbot",
	Short: "Project brain bot for answering questions about your project",
	Long: `Brainbot aggregates context from the tools a project lives in
(Linear, Notion, GitHub, Mixpanel, Datadog, local docs) and answers
natural-language questions against it.

Indexable sources are synchronised into a vector index in the
background; live sources are queried at question time.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verboseFlag)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
