package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// NewSearchTool returns the search_web tool. With a Google Programmable
// Search key and engine id configured it queries the Custom Search API;
// otherwise it answers with canned results so the loop stays exercisable
// without credentials.
func NewSearchTool(apiKey, engineID string, timeout time.Duration) *Tool {
	return &Tool{
		Name:        "search_web",
		Description: "Search the web for information on a given query",
		InputSchema: `{"type":"object","properties":{"query":{"type":"string","description":"The search query"}},"required":["query"]}`,
		Validate:    requireString("query"),
		Cacheable:   false,
		Timeout:     timeout,
		Execute: func(ctx context.Context, input map[string]any) (any, error) {
			query, err := stringArg(input, "query")
			if err != nil {
				return nil, err
			}
			if apiKey == "" || engineID == "" {
				return cannedSearch(query), nil
			}
			return searchGoogle(ctx, apiKey, engineID, query)
		},
	}
}

func searchGoogle(ctx context.Context, apiKey, engineID, query string) (any, error) {
	svc, err := customsearch.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating search service: %w", err)
	}

	resp, err := svc.Cse.List().Cx(engineID).Q(query).Num(3).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	if len(resp.Items) == 0 {
		return fmt.Sprintf("No results found for %q.", query), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:\n\n", query)
	for i, item := range resp.Items {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, item.Title, item.Link)
	}
	return b.String(), nil
}

func cannedSearch(query string) string {
	return fmt.Sprintf("Search results for %q:\n\n"+
		"1. (offline) No live search configured — set tools.searchApiKey and tools.searchEngineId.\n"+
		"2. (offline) Query received: %s\n", query, query)
}
