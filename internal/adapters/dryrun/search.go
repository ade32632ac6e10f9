package dryrun

import (
	"context"
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

// SearchHit mirrors the shape of a real search result.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchTool stands in for web_search with fixed results.
type SearchTool struct {
	name string
}

// NewSearchTool returns a tool registered under name, usually "web_search".
func NewSearchTool(name string) *SearchTool {
	if name == "" {
		name = "web_search"
	}
	return &SearchTool{name: name}
}

func (s *SearchTool) Name() string { return s.name }

func (s *SearchTool) Description() string {
	return "Offline search returning placeholder results"
}

func (s *SearchTool) Params() []core.ParamSpec {
	return []core.ParamSpec{
		{Name: "query", Type: core.ParamString, Required: true, Description: "Search query"},
		{Name: "max_results", Type: core.ParamInteger, Default: 3, Description: "Number of results"},
	}
}

func (s *SearchTool) Execute(ctx context.Context, params map[string]interface{}) (*core.ToolOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query, _ := params["query"].(string)
	query = strings.TrimSpace(query)
	n := 3
	switch v := params["max_results"].(type) {
	case int:
		n = v
	case float64:
		n = int(v)
	}
	if n < 1 {
		n = 1
	}
	hits := make([]SearchHit, 0, n)
	for i := 1; i <= n; i++ {
		hits = append(hits, SearchHit{
			Title:   fmt.Sprintf("Result %d for %q", i, query),
			URL:     fmt.Sprintf("https://example.invalid/%d", i),
			Snippet: "Offline placeholder result.",
		})
	}
	return &core.ToolOutput{
		Data:   map[string]interface{}{"query": query, "results": hits},
		Source: "dryrun",
	}, nil
}

var _ core.Tool = (*SearchTool)(nil)
