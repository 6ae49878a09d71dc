package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/parleyhq/parley/core"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// TavilySearchTool performs web searches through the Tavily HTTP API and
// streams each result as a formatted text chunk.
type TavilySearchTool struct {
	client   *http.Client
	endpoint string

	mu            sync.Mutex
	defaultAPIKey string
	apiKey        string
}

type tavilyRequest struct {
	Query         string `json:"query"`
	Topic         string `json:"topic"`
	SearchDepth   string `json:"search_depth"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyResponse struct {
	Answer       string         `json:"answer"`
	ResponseTime float64        `json:"response_time"`
	Results      []tavilyResult `json:"results"`
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// NewTavilySearchTool creates a TavilySearchTool with apiKey. The key may be
// empty and supplied later via Configure.
func NewTavilySearchTool(apiKey string) *TavilySearchTool {
	return &TavilySearchTool{
		client:        &http.Client{Timeout: 30 * time.Second},
		endpoint:      tavilyEndpoint,
		defaultAPIKey: apiKey,
		apiKey:        apiKey,
	}
}

// Name implements Tool.
func (t *TavilySearchTool) Name() string { return "TavilySearch" }

// Description implements Tool.
func (t *TavilySearchTool) Description() string {
	return "Search the web using the Tavily search engine, covering real-time news and general queries"
}

// Configure implements Configurable. It is applied on every dispatch; a
// grant-supplied api_key overrides the constructor key for that grant, and a
// grant without one falls back to the constructor key.
func (t *TavilySearchTool) Configure(config map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if key, ok := config["api_key"].(string); ok && key != "" {
		t.apiKey = key
		return
	}
	t.apiKey = t.defaultAPIKey
}

// Run implements Tool.
func (t *TavilySearchTool) Run(ctx context.Context, args map[string]any, _ []core.ContextEntry) <-chan core.ToolEvent {
	out := make(chan core.ToolEvent)
	go func() {
		defer close(out)

		t.mu.Lock()
		apiKey := t.apiKey
		t.mu.Unlock()
		if apiKey == "" {
			emit(ctx, out, core.NewToolError("Tavily API key is not configured"))
			return
		}

		query := queryArg(args)
		if query == "" {
			emit(ctx, out, core.NewToolError("no search query provided"))
			return
		}

		payload := tavilyRequest{
			Query:         query,
			Topic:         stringArg(args, "topic", "general"),
			SearchDepth:   stringArg(args, "search_depth", "basic"),
			MaxResults:    intArg(args, "max_results", 5),
			IncludeAnswer: boolArg(args, "include_answer", false),
		}
		body, err := json.Marshal(payload)
		if err != nil {
			emit(ctx, out, core.NewToolError(fmt.Sprintf("failed to encode search request: %v", err)))
			return
		}

		if !emit(ctx, out, core.NewToolStatus(fmt.Sprintf("Searching for '%s' using Tavily...", query))) {
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
		if err != nil {
			emit(ctx, out, core.NewToolError(fmt.Sprintf("failed to build search request: %v", err)))
			return
		}
		req.Header.Set("Authorization", "Bearer "+apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			emit(ctx, out, core.NewToolError(fmt.Sprintf("network error during Tavily search: %v", err)))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			emit(ctx, out, core.NewToolError(fmt.Sprintf("Tavily API error: %d, %s", resp.StatusCode, detail)))
			return
		}

		var data tavilyResponse
		if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
			emit(ctx, out, core.NewToolError(fmt.Sprintf("failed to decode search response: %v", err)))
			return
		}

		if payload.IncludeAnswer && data.Answer != "" {
			if !emit(ctx, out, core.NewToolChunk(data.Answer+"\n\n")) {
				return
			}
		}
		for _, r := range data.Results {
			text := fmt.Sprintf("Title: %s\nURL: %s\nContent: %s\n\n", r.Title, r.URL, r.Content)
			if !emit(ctx, out, core.NewToolChunk(text)) {
				return
			}
		}
		if data.ResponseTime > 0 {
			if !emit(ctx, out, core.NewToolStatus(fmt.Sprintf("Search completed in %.2f seconds", data.ResponseTime))) {
				return
			}
		}
		emit(ctx, out, core.NewToolResult(map[string]any{
			"status":       "success",
			"result_count": len(data.Results),
		}))
	}()
	return out
}

func boolArg(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}
