package tools

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

// DefaultNPMRegistry is the public npm registry.
const DefaultNPMRegistry = "https://registry.npmjs.org"

// NPMSearchConfig configures NPMSearch.
type NPMSearchConfig struct {
	BaseURL string
	Client  HTTPDoer
}

// NPMSearch looks up packages on the npm registry.
type NPMSearch struct {
	cfg NPMSearchConfig
}

// NewNPMSearch creates the npm_search tool.
func NewNPMSearch(cfg NPMSearchConfig) *NPMSearch {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultNPMRegistry
	}
	if cfg.Client == nil {
		cfg.Client = defaultHTTPClient()
	}
	return &NPMSearch{cfg: cfg}
}

func (n *NPMSearch) Name() string { return "npm_search" }

func (n *NPMSearch) Description() string {
	return "Search the npm registry for packages"
}

func (n *NPMSearch) Params() []core.ParamSpec {
	return []core.ParamSpec{
		{Name: "query", Type: core.ParamString, Required: true, Description: "Package search text"},
		{Name: "size", Type: core.ParamInteger, Default: 5, Description: "Number of packages (1-25)"},
	}
}

type npmSearchResponse struct {
	Total   int `json:"total"`
	Objects []struct {
		Package struct {
			Name        string `json:"name"`
			Version     string `json:"version"`
			Description string `json:"description"`
			Links       struct {
				NPM        string `json:"npm"`
				Repository string `json:"repository"`
			} `json:"links"`
		} `json:"package"`
		Score struct {
			Final float64 `json:"final"`
		} `json:"score"`
	} `json:"objects"`
}

// Package is one npm_search hit.
type Package struct {
	Name        string  `json:"name"`
	Version     string  `json:"version"`
	Description string  `json:"description,omitempty"`
	URL         string  `json:"url,omitempty"`
	Repository  string  `json:"repository,omitempty"`
	Score       float64 `json:"score"`
}

// NPMSearchData is the Data payload of an npm_search result.
type NPMSearchData struct {
	Query    string    `json:"query"`
	Total    int       `json:"total"`
	Packages []Package `json:"packages"`
}

func (n *NPMSearch) Execute(ctx context.Context, params map[string]interface{}) (*core.ToolOutput, error) {
	query := stringParam(params, "query")
	v := url.Values{}
	v.Set("text", query)
	v.Set("size", strconv.Itoa(intParam(params, "size", 5, 1, 25)))

	var resp npmSearchResponse
	if err := doJSON(ctx, n.cfg.Client, n.Name(), http.MethodGet,
		n.cfg.BaseURL+"/-/v1/search?"+v.Encode(), nil, nil, &resp); err != nil {
		return nil, err
	}

	data := NPMSearchData{Query: query, Total: resp.Total, Packages: make([]Package, 0, len(resp.Objects))}
	for _, o := range resp.Objects {
		data.Packages = append(data.Packages, Package{
			Name:        o.Package.Name,
			Version:     o.Package.Version,
			Description: truncate(o.Package.Description, 200),
			URL:         o.Package.Links.NPM,
			Repository:  o.Package.Links.Repository,
			Score:       o.Score.Final,
		})
	}
	return &core.ToolOutput{Data: data, Source: "npm"}, nil
}
