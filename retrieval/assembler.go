package retrieval

import (
	"context"
	"fmt"
	"strings"
)

const defaultTopK = 3

// Assembler turns a user query into a formatted context block by fetching
// the top-k snippets from the retrieval service.
type Assembler struct {
	retriever Retriever
	topK      int
}

func NewAssembler(retriever Retriever, topK int) *Assembler {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Assembler{retriever: retriever, topK: topK}
}

// Assemble fetches snippets for the query and formats them as a numbered
// block for the system message. No matching snippets yields an empty string.
func (a *Assembler) Assemble(ctx context.Context, query string) (string, error) {
	snippets, err := a.retriever.Retrieve(ctx, query, a.topK)
	if err != nil {
		return "", fmt.Errorf("retrieving context: %w", err)
	}
	if len(snippets) == 0 {
		return "", nil
	}

	var b strings.Builder
	for i, s := range snippets {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, strings.TrimSpace(s.Text))
	}
	return strings.TrimSpace(b.String()), nil
}
