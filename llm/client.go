// Package llm defines the backend-neutral types used to talk to a local
// inference server.
package llm

import (
	"context"
)

// Client defines the interface for inference backends
type Client interface {
	// Generate sends a single flattened prompt (plus images) and waits for the full response
	Generate(ctx context.Context, request *GenerateRequest) (*GenerateResponse, error)

	// ListModels returns models available locally
	ListModels(ctx context.Context) ([]Model, error)

	// Pull downloads a model, reporting each status line to progress
	Pull(ctx context.Context, model string, progress func(PullProgress)) error

	// CheckReady reports whether model can serve requests right now
	CheckReady(ctx context.Context, model string) Status

	// Close cleans up any resources
	Close() error
}
