package llm

import (
	"time"
)

// Options contains model inference parameters
type Options struct {
	Temperature *float64 `json:"temperature,omitempty"` // Creativity (0.0-2.0)
	NumPredict  *int     `json:"num_predict,omitempty"` // Max tokens to generate
	NumCtx      *int     `json:"num_ctx,omitempty"`     // Context window size
}

// GenerateRequest represents a single-prompt completion request
type GenerateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Images  []string `json:"images,omitempty"` // base64-encoded images for vision models
	Options *Options `json:"options,omitempty"`
}

// GenerateResponse represents a completed generation.
// Durations are in nanoseconds as reported by the backend.
type GenerateResponse struct {
	Model              string    `json:"model"`
	CreatedAt          time.Time `json:"created_at"`
	Response           string    `json:"response"`
	Done               bool      `json:"done"`
	DoneReason         string    `json:"done_reason,omitempty"`
	TotalDuration      int64     `json:"total_duration,omitempty"`
	LoadDuration       int64     `json:"load_duration,omitempty"`
	PromptEvalCount    int       `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64     `json:"prompt_eval_duration,omitempty"`
	EvalCount          *int      `json:"eval_count,omitempty"` // nil when the backend did not report it
	EvalDuration       int64     `json:"eval_duration,omitempty"`
}

// Model represents an available model
type Model struct {
	ID             string    `json:"id"`
	ModifiedAt     time.Time `json:"modified_at"`
	Size           int64     `json:"size"`
	Digest         string    `json:"digest,omitempty"`
	Description    string    `json:"description,omitempty"`
	SupportsVision bool      `json:"supports_vision"`
}

// PullProgress is one status line of a model download
type PullProgress struct {
	Status    string `json:"status"`
	Digest    string `json:"digest,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Percent returns download progress in [0,1], or -1 when unknown
func (p PullProgress) Percent() float64 {
	if p.Total <= 0 {
		return -1
	}
	return float64(p.Completed) / float64(p.Total)
}

// ClientOptions contains options for creating an LLM client
type ClientOptions struct {
	BaseURL        string
	Timeout        time.Duration // per generate request
	ConnectTimeout time.Duration // readiness checks and model listing
	PullTimeout    time.Duration
	DefaultModel   string
}

// ClientOption is a functional option for configuring clients
type ClientOption func(*ClientOptions)

// WithBaseURL sets the base URL
func WithBaseURL(url string) ClientOption {
	return func(o *ClientOptions) {
		o.BaseURL = url
	}
}

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *ClientOptions) {
		o.Timeout = timeout
	}
}

// WithConnectTimeout sets the timeout for short metadata calls
func WithConnectTimeout(timeout time.Duration) ClientOption {
	return func(o *ClientOptions) {
		o.ConnectTimeout = timeout
	}
}

// WithPullTimeout sets how long a model download may go without progress
func WithPullTimeout(timeout time.Duration) ClientOption {
	return func(o *ClientOptions) {
		o.PullTimeout = timeout
	}
}

// WithModel sets the default model
func WithModel(model string) ClientOption {
	return func(o *ClientOptions) {
		o.DefaultModel = model
	}
}

// Float64Ptr is a helper function to get a pointer to a float64
func Float64Ptr(f float64) *float64 {
	return &f
}

// IntPtr is a helper function to get a pointer to an int
func IntPtr(i int) *int {
	return &i
}
