package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nachoal/local-vlm-go/llm"
)

const (
	defaultBaseURL        = "http://localhost:11434"
	defaultTimeout        = 300 * time.Second // Local vision models are slow on small GPUs
	defaultConnectTimeout = 5 * time.Second
	defaultPullTimeout    = 300 * time.Second
	defaultModel          = "llava"

	maxStreamLine = 1024 * 1024
)

// Client implements the LLM client interface for Ollama
type Client struct {
	options    llm.ClientOptions
	httpClient *http.Client
	now        func() time.Time
}

// tagsResponse is the body of GET /api/tags
type tagsResponse struct {
	Models []struct {
		Name       string    `json:"name"`
		ModifiedAt time.Time `json:"modified_at"`
		Size       int64     `json:"size"`
		Digest     string    `json:"digest"`
	} `json:"models"`
}

// pullRequest is the body of POST /api/pull
type pullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

// NewClient creates a new Ollama client. It does not contact the server;
// use CheckReady for that.
func NewClient(opts ...llm.ClientOption) (*Client, error) {
	options := llm.ClientOptions{
		BaseURL:        defaultBaseURL,
		Timeout:        defaultTimeout,
		ConnectTimeout: defaultConnectTimeout,
		PullTimeout:    defaultPullTimeout,
		DefaultModel:   defaultModel,
	}

	// Apply options
	for _, opt := range opts {
		opt(&options)
	}

	// Check for custom base URL from environment
	if options.BaseURL == defaultBaseURL {
		if envURL := os.Getenv("OLLAMA_URL"); envURL != "" {
			options.BaseURL = envURL
		}
	}
	options.BaseURL = strings.TrimRight(options.BaseURL, "/")

	if options.BaseURL == "" {
		return nil, fmt.Errorf("base URL must not be empty")
	}

	return &Client{
		options: options,
		// Timeouts are applied per call through the request context
		httpClient: &http.Client{},
		now:        time.Now,
	}, nil
}

// BaseURL returns the server address the client talks to
func (c *Client) BaseURL() string {
	return c.options.BaseURL
}

// DefaultModel returns the model used when a request leaves it empty
func (c *Client) DefaultModel() string {
	return c.options.DefaultModel
}

// Generate sends a non-streaming request to /api/generate
func (c *Client) Generate(ctx context.Context, request *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	payload := *request
	payload.Stream = false
	if payload.Model == "" {
		payload.Model = c.options.DefaultModel
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := withTimeout(ctx, c.options.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.options.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &llm.APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var genResp llm.GenerateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &genResp, nil
}

// ListModels returns available models in Ollama
func (c *Client) ListModels(ctx context.Context) ([]llm.Model, error) {
	ctx, cancel := withTimeout(ctx, c.options.ConnectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.options.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &llm.APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var response tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	models := make([]llm.Model, len(response.Models))
	for i, model := range response.Models {
		supportsVision := isVisionModel(model.Name)
		desc := fmt.Sprintf("Local model (%s)", formatBytes(model.Size))
		if supportsVision {
			desc = desc + " · Vision"
		}
		models[i] = llm.Model{
			ID:             model.Name,
			ModifiedAt:     model.ModifiedAt,
			Size:           model.Size,
			Digest:         model.Digest,
			Description:    desc,
			SupportsVision: supportsVision,
		}
	}

	return models, nil
}

// Pull downloads model through /api/pull. Each NDJSON status line is passed
// to progress; the pull succeeds once a "success" status arrives.
func (c *Client) Pull(ctx context.Context, model string, progress func(llm.PullProgress)) error {
	if model == "" {
		return fmt.Errorf("model name must not be empty")
	}

	body, err := json.Marshal(pullRequest{Name: model, Stream: true})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	// PullTimeout bounds the silence between stream lines, not the whole download
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	idle := c.options.PullTimeout
	var timer *time.Timer
	if idle > 0 {
		timer = time.AfterFunc(idle, func() {
			cancel(fmt.Errorf("no pull progress for %s: %w", idle, context.DeadlineExceeded))
		})
		defer timer.Stop()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.options.BaseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", pullErr(ctx, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return &llm.APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
	for scanner.Scan() {
		if timer != nil {
			timer.Reset(idle)
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var p llm.PullProgress
		if err := json.Unmarshal(line, &p); err != nil {
			continue
		}
		if p.Error != "" {
			return fmt.Errorf("pull %s: %s", model, p.Error)
		}
		if progress != nil && p.Status != "" {
			progress(p)
		}
		if p.Status == "success" {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read pull stream: %w", pullErr(ctx, err))
	}
	if cause := context.Cause(ctx); cause != nil {
		return fmt.Errorf("failed to read pull stream: %w", cause)
	}

	return fmt.Errorf("pull %s ended without success", model)
}

// CheckReady asks the server for its local models. A model counts as
// present when any local tag starts with its name ("llava" matches
// "llava:7b").
func (c *Client) CheckReady(ctx context.Context, model string) llm.Status {
	status := llm.Status{Model: model, CheckedAt: c.now()}

	models, err := c.ListModels(ctx)
	if err != nil {
		status.State = llm.StateUnavailable
		status.Detail = err.Error()
		return status
	}

	if model == "" {
		status.State = llm.StateMissing
		status.Detail = "no model configured"
		return status
	}

	for _, m := range models {
		if strings.HasPrefix(m.ID, model) {
			status.State = llm.StateReady
			return status
		}
	}

	status.State = llm.StateMissing
	status.Detail = fmt.Sprintf("model %s is not pulled", model)
	return status
}

// Close cleans up resources
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// setHeaders sets common headers for requests. Ollama needs no authentication.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "local-vlm-go/1.0")
}

// pullErr prefers the cancellation cause, so an idle pull reports a
// deadline rather than a bare "context canceled".
func pullErr(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil && ctx.Err() != nil {
		return cause
	}
	return err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// formatBytes formats bytes to human readable string
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// isVisionModel returns true if the given model name is likely vision-capable
func isVisionModel(name string) bool {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "llava"),
		strings.Contains(n, "bakllava"),
		strings.Contains(n, "moondream"),
		strings.Contains(n, "qwen2.5vl"),
		strings.Contains(n, "gemma3"),
		strings.Contains(n, "minicpm-v"),
		strings.Contains(n, ":vision"),
		strings.Contains(n, "-vision"):
		return true
	default:
		return false
	}
}
