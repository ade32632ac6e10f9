package tools

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

// DefaultWebSearchEndpoint is the Tavily-compatible search endpoint.
const DefaultWebSearchEndpoint = "https://api.tavily.com/search"

// WebSearchConfig configures WebSearch.
type WebSearchConfig struct {
	Endpoint    string
	APIKey      string
	CostPerCall float64
	Client      HTTPDoer
}

// WebSearch queries a Tavily-compatible JSON search API.
type WebSearch struct {
	cfg WebSearchConfig
}

// NewWebSearch creates the web_search tool.
func NewWebSearch(cfg WebSearchConfig) *WebSearch {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultWebSearchEndpoint
	}
	if cfg.Client == nil {
		cfg.Client = defaultHTTPClient()
	}
	return &WebSearch{cfg: cfg}
}

func (w *WebSearch) Name() string { return "web_search" }

func (w *WebSearch) Description() string {
	return "Search the web and return a short answer with source links"
}

func (w *WebSearch) Params() []core.ParamSpec {
	return []core.ParamSpec{
		{Name: "query", Type: core.ParamString, Required: true, Description: "Search query"},
		{Name: "max_results", Type: core.ParamInteger, Default: 5, Description: "Number of results (1-10)"},
		{Name: "depth", Type: core.ParamString, Default: "basic", Description: "basic or advanced"},
	}
}

type webSearchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

type webSearchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// SearchHit is one normalized search result.
type SearchHit struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score,omitempty"`
}

// WebSearchData is the Data payload of a web_search result.
type WebSearchData struct {
	Query   string      `json:"query"`
	Answer  string      `json:"answer,omitempty"`
	Results []SearchHit `json:"results"`
}

func (w *WebSearch) Execute(ctx context.Context, params map[string]interface{}) (*core.ToolOutput, error) {
	if w.cfg.APIKey == "" {
		return nil, errors.New("web_search: no API key configured")
	}
	query := stringParam(params, "query")
	depth := strings.ToLower(stringParam(params, "depth"))
	if depth != "advanced" {
		depth = "basic"
	}

	var resp webSearchResponse
	err := doJSON(ctx, w.cfg.Client, w.Name(), http.MethodPost, w.cfg.Endpoint, nil, webSearchRequest{
		APIKey:        w.cfg.APIKey,
		Query:         query,
		SearchDepth:   depth,
		MaxResults:    intParam(params, "max_results", 5, 1, 10),
		IncludeAnswer: true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	data := WebSearchData{Query: query, Answer: strings.TrimSpace(resp.Answer), Results: make([]SearchHit, 0, len(resp.Results))}
	for _, r := range resp.Results {
		data.Results = append(data.Results, SearchHit{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: truncate(r.Content, 400),
			Score:   r.Score,
		})
	}
	cost := w.cfg.CostPerCall
	if depth == "advanced" {
		cost *= 2
	}
	return &core.ToolOutput{Data: data, Cost: cost, Source: "tavily"}, nil
}
