// Package answer produces grounded replies from validated passages.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/supportdesk/backend/internal/pipeline"
)

// RefusalMessage is returned verbatim whenever no passage grounds an answer.
// It is a fixed sentence, never paraphrased, so refusal behavior stays
// deterministically testable.
const RefusalMessage = "This information is not available in the provided documentation."

const systemPrompt = `You are a customer support assistant. Answer strictly from the provided documentation excerpts. Do not use outside knowledge. If the excerpts do not contain the answer, say so. Keep the answer concise and factual.`

// Completer is the single LLM call the generator needs.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type Generator struct {
	llm Completer
}

func NewGenerator(llm Completer) *Generator {
	return &Generator{llm: llm}
}

// Generate answers the query from the given passages only. An empty passage
// set short-circuits to the fixed refusal sentence without an LLM call.
func (g *Generator) Generate(ctx context.Context, passages []pipeline.Passage, query string) (string, error) {
	if len(passages) == 0 {
		return RefusalMessage, nil
	}

	reply, err := g.llm.Complete(ctx, systemPrompt, buildPrompt(passages, query))
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return RefusalMessage, nil
	}

	return reply, nil
}

func buildPrompt(passages []pipeline.Passage, query string) string {
	var b strings.Builder

	b.WriteString("Documentation excerpts:\n")
	for i, p := range passages {
		b.WriteString(fmt.Sprintf("\n[Excerpt %d, document %s]\n%s\n", i+1, p.DocID, p.Text))
	}

	b.WriteString("\nCustomer question: ")
	b.WriteString(query)

	return b.String()
}
