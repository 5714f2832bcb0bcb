package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/af-corp/aegis-chat/internal/config"
	"github.com/af-corp/aegis-chat/internal/llm"
)

// SearchResult is a single web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchResponse is what web_search returns to the model.
type SearchResponse struct {
	Query   string         `json:"query"`
	Answer  string         `json:"answer,omitempty"`
	Results []SearchResult `json:"results"`
}

// Searcher runs a web search.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) (SearchResponse, error)
}

func webSearchTool(s Searcher) Tool {
	return &handler[WebSearchArgs]{
		kind: KindWebSearch,
		description: "Search the web for current, factual information. Use it whenever the answer depends on " +
			"recent events, prices, places, people or anything you are not certain about.",
		schema: llm.Schema{
			Type: "object",
			Properties: map[string]llm.Property{
				"query":       {Type: "string", Description: "The search query"},
				"max_results": {Type: "integer", Description: "Maximum number of results (1-10, default 5)"},
			},
			Required: []string{"query"},
		},
		exec: func(ctx context.Context, _ string, args WebSearchArgs) (any, error) {
			return s.Search(ctx, strings.TrimSpace(args.Query), args.MaxResults)
		},
	}
}

// HTTPSearcher calls a Tavily-compatible search API.
type HTTPSearcher struct {
	client     *http.Client
	endpoint   string
	apiKey     string
	maxResults int
}

func NewHTTPSearcher(cfg config.SearchToolConfig) (*HTTPSearcher, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("search api key is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.tavily.com/search"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	return &HTTPSearcher{
		client:     &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		apiKey:     cfg.APIKey,
		maxResults: maxResults,
	}, nil
}

type searchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
}

type searchAPIResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

const maxSnippetLen = 300

func (s *HTTPSearcher) Search(ctx context.Context, query string, maxResults int) (SearchResponse, error) {
	if maxResults <= 0 {
		maxResults = s.maxResults
	}
	body, err := json.Marshal(searchRequest{
		APIKey:        s.apiKey,
		Query:         query,
		SearchDepth:   "basic",
		IncludeAnswer: true,
		MaxResults:    maxResults,
	})
	if err != nil {
		return SearchResponse{}, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return SearchResponse{}, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SearchResponse{}, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return SearchResponse{}, fmt.Errorf("search api returned status %d", resp.StatusCode)
	}

	var apiResp searchAPIResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return SearchResponse{}, fmt.Errorf("unmarshal search response: %w", err)
	}

	out := SearchResponse{Query: query, Answer: apiResp.Answer, Results: make([]SearchResult, 0, len(apiResp.Results))}
	for _, r := range apiResp.Results {
		out.Results = append(out.Results, SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: truncate(strings.TrimSpace(r.Content), maxSnippetLen),
		})
	}
	return out, nil
}

// truncate cuts s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
