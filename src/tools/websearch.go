package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// SearchResult is one hit returned by the search API.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// WebSearchTool queries the Tavily search API and returns the generated answer
// followed by the top results.
type WebSearchTool struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	// Shown limits how many results make it into the tool output.
	Shown int
	// SnippetLen truncates each result's content.
	SnippetLen int
	client     *http.Client
}

// NewWebSearchTool constructs a search tool with a 10 second HTTP timeout.
func NewWebSearchTool(apiKey string) *WebSearchTool {
	return NewWebSearchToolWithClient(apiKey, &http.Client{Timeout: 10 * time.Second})
}

// NewWebSearchToolWithClient constructs a search tool using the supplied HTTP client.
func NewWebSearchToolWithClient(apiKey string, client *http.Client) *WebSearchTool {
	return &WebSearchTool{
		APIKey:     apiKey,
		Endpoint:   tavilyEndpoint,
		MaxResults: 3,
		Shown:      2,
		SnippetLen: 200,
		client:     client,
	}
}

func (w *WebSearchTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "web_search",
		Description: "Searches the web and returns a short answer with the top sources.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Search query."},
			},
			"required": []any{"query"},
		},
	}
}

func (w *WebSearchTool) Invoke(ctx context.Context, req ToolRequest) (ToolResponse, error) {
	query, err := stringArg(req.Arguments, "query")
	if err != nil {
		return ToolResponse{}, err
	}
	answer, results, err := w.Search(ctx, query)
	if err != nil {
		return ToolResponse{}, err
	}

	shown := results
	if w.Shown > 0 && len(shown) > w.Shown {
		shown = shown[:w.Shown]
	}
	return ToolResponse{
		Content: formatSearch(answer, shown, w.SnippetLen),
		Metadata: map[string]string{
			"query":   query,
			"results": strconv.Itoa(len(results)),
		},
	}, nil
}

// Search posts a query to the API and returns the answer and raw results.
func (w *WebSearchTool) Search(ctx context.Context, query string) (string, []SearchResult, error) {
	if strings.TrimSpace(w.APIKey) == "" {
		return "", nil, errors.New("tavily: API key is missing")
	}
	if strings.TrimSpace(query) == "" {
		return "", nil, errors.New("query is empty")
	}

	payload, err := json.Marshal(map[string]any{
		"api_key":        w.APIKey,
		"query":          query,
		"max_results":    w.MaxResults,
		"include_answer": true,
	})
	if err != nil {
		return "", nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := w.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("tavily http %d", resp.StatusCode)
	}

	var body struct {
		Answer  string         `json:"answer"`
		Results []SearchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", nil, fmt.Errorf("decode response: %w", err)
	}
	return body.Answer, body.Results, nil
}

func formatSearch(answer string, results []SearchResult, snippetLen int) string {
	if len(results) == 0 {
		return answer
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Summary: %s\n\nDetails:\n", answer)
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", r.Title, truncateRunes(r.Content, snippetLen))
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
