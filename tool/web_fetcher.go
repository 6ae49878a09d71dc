package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/parleyhq/parley/core"
)

const (
	fetchChunkSize = 1000
	fetchMaxBody   = 2 << 20
)

// WebContentFetcherTool fetches a web page over HTTP and streams its content
// in fixed-size chunks.
type WebContentFetcherTool struct {
	client *http.Client

	mu      sync.Mutex
	headers map[string]string
}

const fetcherUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// NewWebContentFetcherTool creates a WebContentFetcherTool with a browser-like
// default User-Agent.
func NewWebContentFetcherTool() *WebContentFetcherTool {
	return &WebContentFetcherTool{
		client:  &http.Client{Timeout: 30 * time.Second},
		headers: map[string]string{"User-Agent": fetcherUserAgent},
	}
}

// Name implements Tool.
func (t *WebContentFetcherTool) Name() string { return "WebContentFetcher" }

// Description implements Tool.
func (t *WebContentFetcherTool) Description() string {
	return "Fetch the content of a web page"
}

// Configure implements Configurable. It is applied on every dispatch and
// rebuilds the header set, so one grant's headers never leak into another's.
func (t *WebContentFetcherTool) Configure(config map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.headers = map[string]string{"User-Agent": fetcherUserAgent}
	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				t.headers[k] = s
			}
		}
	}
}

// Run implements Tool.
func (t *WebContentFetcherTool) Run(ctx context.Context, args map[string]any, _ []core.ContextEntry) <-chan core.ToolEvent {
	out := make(chan core.ToolEvent)
	go func() {
		defer close(out)

		url := stringArg(args, "url", "")
		if url == "" {
			url = stringArg(args, "message", "")
		}
		if url == "" {
			emit(ctx, out, core.NewToolError("no url provided"))
			return
		}

		if !emit(ctx, out, core.NewToolStatus(fmt.Sprintf("Fetching content from %s...", url))) {
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			emit(ctx, out, core.NewToolError(fmt.Sprintf("invalid url %q: %v", url, err)))
			return
		}
		t.mu.Lock()
		for k, v := range t.headers {
			req.Header.Set(k, v)
		}
		t.mu.Unlock()

		resp, err := t.client.Do(req)
		if err != nil {
			emit(ctx, out, core.NewToolError(fmt.Sprintf("network error fetching content: %v", err)))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			emit(ctx, out, core.NewToolError(fmt.Sprintf("failed to fetch content: HTTP %d", resp.StatusCode)))
			return
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBody))
		if err != nil {
			emit(ctx, out, core.NewToolError(fmt.Sprintf("error reading response body: %v", err)))
			return
		}

		content := string(body)
		for i := 0; i < len(content); i += fetchChunkSize {
			end := i + fetchChunkSize
			if end > len(content) {
				end = len(content)
			}
			if !emit(ctx, out, core.NewToolChunk(content[i:end])) {
				return
			}
		}

		emit(ctx, out, core.NewToolResult(map[string]any{
			"status":         "success",
			"url":            url,
			"content_length": len(content),
			"truncated":      len(body) == fetchMaxBody,
		}))
	}()
	return out
}
