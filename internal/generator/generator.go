// Package generator submits content-generation jobs to an external pipeline.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Request is one content-generation job.
type Request struct {
	Prompt   string            `json:"prompt"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Generator submits a generation job and returns the id of the post it will produce.
type Generator interface {
	Submit(ctx context.Context, req Request) (string, error)
}

// HTTPGenerator talks to a generation pipeline over HTTP:
// POST {base}/generate with a Request body, answered by {"post_id": "..."}.
type HTTPGenerator struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPGenerator creates an HTTP generator client with connection pooling.
func NewHTTPGenerator(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPGenerator{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger.With("component", "generator"),
	}
}

type submitResponse struct {
	PostID string `json:"post_id"`
}

// Submit sends req and returns the post id. A non-2xx status or an empty
// post id is an error.
func (g *HTTPGenerator) Submit(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("generate: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("generate: decode response: %w", err)
	}
	if out.PostID == "" {
		return "", fmt.Errorf("generate: response carried no post_id")
	}

	g.logger.Debug("generation submitted", "post_id", out.PostID, "duration", time.Since(start))
	return out.PostID, nil
}

// LocalGenerator accepts every job and mints a post id itself. It keeps the
// submitted requests so development setups can inspect them.
type LocalGenerator struct {
	mu       sync.Mutex
	requests []Request
	logger   *slog.Logger
}

// NewLocalGenerator creates a generator that never leaves the process.
func NewLocalGenerator(logger *slog.Logger) *LocalGenerator {
	return &LocalGenerator{logger: logger.With("component", "generator")}
}

func (g *LocalGenerator) Submit(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	postID := "local_" + uuid.New().String()
	g.logger.Info("local generation", "post_id", postID, "prompt_len", len(req.Prompt))
	return postID, nil
}

// Requests returns a copy of every request received so far.
func (g *LocalGenerator) Requests() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Request(nil), g.requests...)
}
