// Package compiler talks to the external compiler collaborator.
package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxResponseBytes bounds a compiler response body.
const maxResponseBytes = 64 << 20

// Result is the outcome of compiling one source text. When OK is false
// only Diagnostics is meaningful.
type Result struct {
	OK          bool   `json:"ok"`
	JS          string `json:"js,omitempty"`
	HTML        string `json:"html,omitempty"`
	CSS         string `json:"css,omitempty"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

// Compiler compiles source into script, markup and style. An error means
// the compiler could not be reached or did not answer in time; a source
// that does not compile is a Result with OK false.
type Compiler interface {
	Compile(ctx context.Context, source string) (Result, error)
}

// HTTPClient calls a compiler service that accepts {"source": ...} and
// answers with a Result.
type HTTPClient struct {
	url    string
	client *http.Client
}

// NewHTTPClient creates a client for the compiler at url.
func NewHTTPClient(url string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		url: strings.TrimRight(url, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Compile posts source to the compiler service.
func (c *HTTPClient) Compile(ctx context.Context, source string) (Result, error) {
	body, err := json.Marshal(map[string]string{"source": source})
	if err != nil {
		return Result{}, fmt.Errorf("encode compile request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build compile request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("call compiler: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read compiler response: %w", err)
	}

	// Compilers report bad source as 200 or 422 with ok=false.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnprocessableEntity {
		return Result{}, fmt.Errorf("compiler returned status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("decode compiler response: %w", err)
	}
	if !result.OK && result.Diagnostics == "" {
		result.Diagnostics = "compilation failed"
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
