package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/docent-ai/docent/internal/kb"
)

// NoResultsText is returned when the knowledge base has nothing for a
// query. An explicit sentence rather than an empty string, so the model
// has something to reason about.
const NoResultsText = "No relevant information found in the knowledge base for your query."

// RegisterSearchKB adds the search_kb tool backed by the knowledge base.
func RegisterSearchKB(r *Registry, svc *kb.Service) {
	r.Register(&Tool{
		Name:        "search_kb",
		Description: "Search the knowledge base for relevant information. Returns content from knowledge articles that may be relevant to the query.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query to find relevant knowledge base items",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			if query == "" {
				return "Error: No search query provided. Please specify a query parameter.", nil
			}

			items := svc.Search(ctx, query)
			if len(items) == 0 {
				return NoResultsText, nil
			}

			var b strings.Builder
			for _, item := range items {
				fmt.Fprintf(&b, "=== %s ===\n%s\n\n", item.Name, item.Content)
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	})
}
