package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sankar-v/lms/pkg/logger"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "knowledge",
		Short:         "Ingest documents and search them semantically",
		Long:          "knowledge loads documents, chunks them, embeds the chunks and stores them in pgvector for semantic search and question answering.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env file is fine; env vars may come from the shell.
			_ = godotenv.Load()
			level, logJSON, logSource, err := logger.GetLoggerConfig(cmd)
			if err != nil {
				return err
			}
			logger.SetupLogger(level, logJSON, logSource)
			return nil
		},
	}
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("log-json", false, "emit logs as JSON")
	cmd.PersistentFlags().Bool("log-source", false, "annotate logs with source locations")
	cmd.AddCommand(
		newIngestCmd(),
		newSearchCmd(),
		newAskCmd(),
		newDocumentsCmd(),
		newDeleteCmd(),
		newStatsCmd(),
	)
	return cmd
}
