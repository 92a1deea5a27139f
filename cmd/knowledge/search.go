package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/sankar-v/lms/retriever"
)

func newSearchCmd() *cobra.Command {
	var (
		topK     int
		minScore float64
		filters  []string
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find the chunks most similar to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)
			opts, err := buildSearchOptions(topK, minScore, cmd.Flags().Changed("min-score"), filters)
			if err != nil {
				return err
			}
			results, err := app.retriever.Search(ctx, args[0], opts)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("no matches")
				return nil
			}
			for i, result := range results {
				fmt.Printf("%d. [%.3f] %s\n", i+1, result.Score, result.Source)
				fmt.Println(indent(snippet(result.Text, 300), "   "))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "maximum number of results (default from config)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "minimum similarity score in [0, 1]")
	cmd.Flags().StringSliceVar(&filters, "filter", nil, "metadata filter as key=value (repeatable)")
	return cmd
}

func newAskCmd() *cobra.Command {
	var (
		topK     int
		minScore float64
		filters  []string
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the ingested documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)
			opts, err := buildSearchOptions(topK, minScore, cmd.Flags().Changed("min-score"), filters)
			if err != nil {
				return err
			}
			model, err := openai.New(
				openai.WithModel(app.cfg.Retrieval.ChatModel),
				openai.WithToken(app.cfg.Embedder.APIKey),
			)
			if err != nil {
				return fmt.Errorf("initialize chat model: %w", err)
			}
			gen, err := retriever.NewLLMGenerator(model)
			if err != nil {
				return err
			}
			answer, err := app.retriever.Ask(ctx, args[0], gen, opts)
			if err != nil {
				return err
			}
			fmt.Println(answer.Text)
			if len(answer.Results) > 0 {
				fmt.Println("\nSources:")
				for i, result := range answer.Results {
					fmt.Printf("  %d. [%.3f] %s\n", i+1, result.Score, result.Source)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "maximum number of supporting chunks (default from config)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "minimum similarity score in [0, 1]")
	cmd.Flags().StringSliceVar(&filters, "filter", nil, "metadata filter as key=value (repeatable)")
	return cmd
}

func buildSearchOptions(topK int, minScore float64, minScoreSet bool, filters []string) (*retriever.Options, error) {
	opts := &retriever.Options{TopK: topK}
	if minScoreSet {
		opts.MinScore = &minScore
	}
	if len(filters) > 0 {
		opts.Filters = make(map[string]string, len(filters))
		for _, filter := range filters {
			key, value, ok := strings.Cut(filter, "=")
			if !ok || key == "" {
				return nil, fmt.Errorf("invalid filter %q, expected key=value", filter)
			}
			opts.Filters[key] = value
		}
	}
	return opts, nil
}

func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}
