package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// LLMGenerator grounds a language model on retrieved chunks. The prompt
// instructs the model to answer only from the provided context.
type LLMGenerator struct {
	model       llms.Model
	temperature float64
}

// NewLLMGenerator wraps a langchaingo model as a Generator.
func NewLLMGenerator(model llms.Model) (*LLMGenerator, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	return &LLMGenerator{model: model, temperature: 0.2}, nil
}

func (g *LLMGenerator) Generate(ctx context.Context, question string, results []Result) (*Answer, error) {
	prompt := buildPrompt(question, results)
	text, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt, llms.WithTemperature(g.temperature))
	if err != nil {
		return nil, fmt.Errorf("retriever: generate answer: %w", err)
	}
	return &Answer{Text: strings.TrimSpace(text)}, nil
}

func buildPrompt(question string, results []Result) string {
	var sb strings.Builder
	sb.WriteString("Answer the question using only the context below. ")
	sb.WriteString("If the context does not contain the answer, say you don't know.\n\n")
	if len(results) == 0 {
		sb.WriteString("Context: (none)\n")
	} else {
		sb.WriteString("Context:\n")
		for i, result := range results {
			fmt.Fprintf(&sb, "[%d] (source: %s)\n%s\n\n", i+1, result.Source, result.Text)
		}
	}
	fmt.Fprintf(&sb, "Question: %s\nAnswer:", question)
	return sb.String()
}
