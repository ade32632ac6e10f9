package tools

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

// DefaultGitHubAPI is the public GitHub REST API base URL.
const DefaultGitHubAPI = "https://api.github.com"

// GitHubSearchConfig configures GitHubSearch.
type GitHubSearchConfig struct {
	BaseURL string
	Token   string
	Client  HTTPDoer
}

// GitHubSearch finds repositories related to a topic, to surface prior art
// and candidate libraries.
type GitHubSearch struct {
	cfg GitHubSearchConfig
}

// NewGitHubSearch creates the github_search tool. A token is optional and
// only raises the rate limit.
func NewGitHubSearch(cfg GitHubSearchConfig) *GitHubSearch {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGitHubAPI
	}
	if cfg.Client == nil {
		cfg.Client = defaultHTTPClient()
	}
	return &GitHubSearch{cfg: cfg}
}

func (g *GitHubSearch) Name() string { return "github_search" }

func (g *GitHubSearch) Description() string {
	return "Search GitHub repositories, ordered by stars"
}

func (g *GitHubSearch) Params() []core.ParamSpec {
	return []core.ParamSpec{
		{Name: "query", Type: core.ParamString, Required: true, Description: "Repository search query"},
		{Name: "limit", Type: core.ParamInteger, Default: 5, Description: "Number of repositories (1-20)"},
		{Name: "language", Type: core.ParamString, Description: "Restrict to a language"},
	}
}

type githubSearchResponse struct {
	TotalCount int `json:"total_count"`
	Items      []struct {
		FullName    string `json:"full_name"`
		HTMLURL     string `json:"html_url"`
		Description string `json:"description"`
		Stars       int    `json:"stargazers_count"`
		Language    string `json:"language"`
		UpdatedAt   string `json:"updated_at"`
	} `json:"items"`
}

// Repository is one github_search hit.
type Repository struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Stars       int    `json:"stars"`
	Language    string `json:"language,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// GitHubSearchData is the Data payload of a github_search result.
type GitHubSearchData struct {
	Query        string       `json:"query"`
	TotalCount   int          `json:"total_count"`
	Repositories []Repository `json:"repositories"`
}

func (g *GitHubSearch) Execute(ctx context.Context, params map[string]interface{}) (*core.ToolOutput, error) {
	query := stringParam(params, "query")
	q := query
	if lang := stringParam(params, "language"); lang != "" {
		q += " language:" + lang
	}
	limit := intParam(params, "limit", 5, 1, 20)

	v := url.Values{}
	v.Set("q", q)
	v.Set("sort", "stars")
	v.Set("order", "desc")
	v.Set("per_page", strconv.Itoa(limit))

	headers := map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	}
	if g.cfg.Token != "" {
		headers["Authorization"] = "Bearer " + g.cfg.Token
	}

	var resp githubSearchResponse
	if err := doJSON(ctx, g.cfg.Client, g.Name(), http.MethodGet,
		g.cfg.BaseURL+"/search/repositories?"+v.Encode(), headers, nil, &resp); err != nil {
		return nil, err
	}

	data := GitHubSearchData{Query: query, TotalCount: resp.TotalCount, Repositories: make([]Repository, 0, len(resp.Items))}
	for _, it := range resp.Items {
		data.Repositories = append(data.Repositories, Repository{
			Name:        it.FullName,
			URL:         it.HTMLURL,
			Description: truncate(it.Description, 200),
			Stars:       it.Stars,
			Language:    it.Language,
			UpdatedAt:   it.UpdatedAt,
		})
	}
	return &core.ToolOutput{Data: data, Source: "github"}, nil
}
