package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	var (
		documentID string
		source     string
		all        bool
		yes        bool
	)
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove documents from the knowledge store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			selected := 0
			for _, set := range []bool{documentID != "", source != "", all} {
				if set {
					selected++
				}
			}
			if selected != 1 {
				return fmt.Errorf("specify exactly one of --document, --source or --all")
			}
			ctx := cmd.Context()
			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)
			switch {
			case documentID != "":
				removed, err := app.pipeline.DeleteDocument(ctx, documentID)
				if err != nil {
					return err
				}
				fmt.Printf("removed %d chunks of document %s\n", removed, documentID)
			case source != "":
				removed, err := app.pipeline.DeleteSource(ctx, source)
				if err != nil {
					return err
				}
				fmt.Printf("removed %d chunks from source %s\n", removed, source)
			case all:
				if !yes {
					return fmt.Errorf("refusing to clear the store without --yes")
				}
				if err := app.pipeline.Reset(ctx); err != nil {
					return err
				}
				fmt.Println("store cleared")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&documentID, "document", "", "document ID to remove")
	cmd.Flags().StringVar(&source, "source", "", "source path to remove")
	cmd.Flags().BoolVar(&all, "all", false, "remove every stored chunk")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm destructive operations")
	return cmd
}
