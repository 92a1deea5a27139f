package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sankar-v/lms/ingest"
	"github.com/sankar-v/lms/loader"
)

func newIngestCmd() *cobra.Command {
	var (
		recursive bool
		pattern   string
		title     string
		category  string
		tags      []string
	)
	cmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Ingest a file or directory into the knowledge store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)
			opts := &loader.Options{Title: title, Category: category, Tags: tags}
			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("cannot access %q: %w", path, err)
			}
			if info.IsDir() {
				tasks, err := app.pipeline.IngestDirectory(ctx, path, pattern, recursive, opts)
				printTasks(tasks)
				return err
			}
			task, err := app.pipeline.IngestFile(ctx, path, opts)
			printTasks([]ingest.Task{task})
			return err
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "descend into subdirectories")
	cmd.Flags().StringVar(&pattern, "pattern", "", "glob pattern for directory ingestion (default all supported files)")
	cmd.Flags().StringVar(&title, "title", "", "document title stored in metadata")
	cmd.Flags().StringVar(&category, "category", "", "category stored in metadata")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag stored in metadata (repeatable)")
	return cmd
}

func printTasks(tasks []ingest.Task) {
	for _, task := range tasks {
		switch task.Status {
		case ingest.StatusCompleted:
			fmt.Printf("%-9s  %s  (%d chunks)\n", task.Status, task.Source, task.TotalChunks)
		case ingest.StatusFailed:
			fmt.Printf("%-9s  %s  (%s)\n", task.Status, task.Source, task.Error)
		default:
			fmt.Printf("%-9s  %s  (%.0f%%)\n", task.Status, task.Source, task.Progress()*100)
		}
	}
}
