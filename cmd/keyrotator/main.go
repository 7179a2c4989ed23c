package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systmms/keyrotator/cmd/keyrotator/commands"
	"github.com/systmms/keyrotator/internal/config"
	krerrors "github.com/systmms/keyrotator/internal/errors"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", krerrors.SimplifyError(err))
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile string
		noColor    bool
		debug      bool
		jsonLogs   bool
	)

	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "keyrotator",
		Short: "Rotate IAM access keys stored in Secrets Manager",
		Long: `keyrotator is the rotation function for Secrets Manager secrets that hold
an IAM user's access key. It runs as a Lambda function, and locally to
inspect a secret or re-run a single rotation step.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Path = configFile
			cfg.Logger = commands.NewLogger(debug, noColor, jsonLogs)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Write logs as JSON")

	rootCmd.AddCommand(
		commands.NewLambdaCommand(cfg, commands.AWSClients),
		commands.NewStepCommand(cfg, commands.AWSClients),
		commands.NewStatusCommand(cfg, commands.AWSClients),
		commands.NewVersionCommand(commands.BuildInfo{Version: version, Commit: commit, Date: date}),
	)

	return rootCmd.Execute()
}
