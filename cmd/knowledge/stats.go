package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)
			stats, err := app.pipeline.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("documents: %d\n", stats.Store.Documents)
			fmt.Printf("chunks:    %d\n", stats.Store.Chunks)
			fmt.Printf("model:     %s (%d dimensions)\n", app.cfg.Embedder.Model, app.cfg.Embedder.Dimension)
			fmt.Printf("table:     %s\n", app.cfg.VectorDB.Table)
			return nil
		},
	}
}
