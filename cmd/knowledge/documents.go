package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sankar-v/lms/vectordb"
)

func newDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Inspect stored documents",
	}
	cmd.AddCommand(newDocumentsListCmd(), newDocumentsShowCmd())
	return cmd
}

func newDocumentsListCmd() *cobra.Command {
	var (
		offset int
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored documents, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)
			docs, total, err := app.store.ListDocuments(ctx, offset, limit)
			if err != nil {
				return err
			}
			for _, doc := range docs {
				fmt.Printf(
					"%s  %4d chunks  %s  %s\n",
					doc.DocumentID,
					doc.Chunks,
					doc.UpdatedAt.Format("2006-01-02 15:04"),
					doc.Source,
				)
			}
			fmt.Printf("%d of %d documents\n", len(docs), total)
			return nil
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "number of documents to skip")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of documents to show")
	return cmd
}

func newDocumentsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <document-id>",
		Short: "Show a document's chunks in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)
			detail, err := app.store.GetDocument(ctx, args[0])
			if err != nil {
				if errors.Is(err, vectordb.ErrNotFound) {
					return fmt.Errorf("document %q not found", args[0])
				}
				return err
			}
			fmt.Printf("document %s (%s), %d chunks\n\n", detail.DocumentID, detail.Source, len(detail.Chunks))
			for _, chunk := range detail.Chunks {
				fmt.Printf("--- chunk %d (%s) ---\n%s\n\n", chunk.Index, chunk.ID, snippet(chunk.Text, 400))
			}
			return nil
		},
	}
	return cmd
}
