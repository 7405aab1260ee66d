// Package chat answers user prompts with a local vision-language model,
// keeping the conversation and the model readiness state.
package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nachoal/local-vlm-go/history"
	"github.com/nachoal/local-vlm-go/llm"
	"github.com/nachoal/local-vlm-go/prompt"
)

// Service is the chat front of a single local model
type Service struct {
	client llm.Client
	config Config
	conv   *history.Conversation
	logger *zap.Logger
	now    func() time.Time

	// One generation at a time; the model shares a single GPU
	genMu sync.Mutex

	statusMu sync.RWMutex
	status   llm.Status
}

// New creates a chat service. The initial status is unavailable until
// EnsureModel or Refresh runs.
func New(client llm.Client, conv *history.Conversation, logger *zap.Logger, opts ...Option) *Service {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if conv == nil {
		conv = history.NewConversation(history.DefaultMaxTurns)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		client: client,
		config: config,
		conv:   conv,
		logger: logger,
		now:    time.Now,
		status: llm.Status{
			State:  llm.StateUnavailable,
			Model:  config.Model,
			Detail: "not checked yet",
		},
	}
}

// Config returns the service configuration
func (s *Service) Config() Config {
	return s.config
}

// Status returns the last known readiness without contacting the server
func (s *Service) Status() llm.Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// Refresh asks the server again and caches the answer
func (s *Service) Refresh(ctx context.Context) llm.Status {
	status := s.client.CheckReady(ctx, s.config.Model)
	s.setStatus(status)
	s.logger.Info("model status refreshed",
		zap.String("model", status.Model),
		zap.String("state", string(status.State)),
		zap.String("detail", status.Detail))
	return status
}

// EnsureModel checks readiness and pulls the model when the server does not
// have it yet. Each pull status line is passed to progress.
func (s *Service) EnsureModel(ctx context.Context, progress func(llm.PullProgress)) llm.Status {
	status := s.Refresh(ctx)
	if status.State != llm.StateMissing {
		return status
	}

	s.logger.Info("pulling model", zap.String("model", s.config.Model))
	if err := s.client.Pull(ctx, s.config.Model, progress); err != nil {
		s.logger.Error("model pull failed", zap.String("model", s.config.Model), zap.Error(err))
		failed := llm.Status{
			State:     llm.StateMissing,
			Model:     s.config.Model,
			Detail:    err.Error(),
			CheckedAt: s.now(),
		}
		s.setStatus(failed)
		return failed
	}

	return s.Refresh(ctx)
}

func (s *Service) setStatus(status llm.Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = status
}

// History returns a copy of the conversation turns
func (s *Service) History() []prompt.Turn {
	return s.conv.Turns()
}

// Conversation exposes the underlying conversation
func (s *Service) Conversation() *history.Conversation {
	return s.conv
}

// Clear forgets the conversation
func (s *Service) Clear() {
	s.conv.Clear()
}

// Example builds the request for the n-th starter prompt (1-based) with its
// image attached. It fails when n is out of range or the image is missing.
func (s *Service) Example(n int) (Request, error) {
	if n < 1 || n > len(Examples) {
		return Request{}, fmt.Errorf("no example %d, pick 1-%d", n, len(Examples))
	}

	ex := Examples[n-1]
	path := filepath.Join(s.config.ExamplesDir, ex.Image)
	if _, err := os.Stat(path); err != nil {
		return Request{}, fmt.Errorf("example image %s not found", path)
	}

	return Request{Prompt: ex.Prompt, ImagePath: path}, nil
}

// Respond answers req. Failures the user should see are returned as replies
// with Failed set; the reply and the user turn are added to the conversation
// unless the prompt is blank.
func (s *Service) Respond(ctx context.Context, req Request) *Reply {
	reply := &Reply{ID: uuid.NewString()}
	logger := s.logger.With(zap.String("request_id", reply.ID), zap.String("model", s.config.Model))

	if status := s.Status(); !status.Ready() {
		logger.Warn("model not ready", zap.String("state", string(status.State)))
		return s.fail(reply, req, MsgNotReady, nil)
	}

	if strings.TrimSpace(req.Prompt) == "" {
		reply.Text = MsgEmptyPrompt
		reply.Failed = true
		return reply
	}

	s.genMu.Lock()
	defer s.genMu.Unlock()

	flattener := prompt.Flattener{MaxChars: s.config.MaxContextChars, Strict: s.config.StrictHistory}
	fullPrompt, err := flattener.Flatten(req.Prompt, s.conv.Turns())
	if err != nil {
		logger.Error("invalid history", zap.Error(err))
		return s.fail(reply, req, MsgBadHistory+err.Error(), err)
	}

	genReq := &llm.GenerateRequest{
		Model:  s.config.Model,
		Prompt: fullPrompt,
		Options: &llm.Options{
			Temperature: llm.Float64Ptr(s.temperature(req)),
			NumPredict:  llm.IntPtr(s.maxTokens(req)),
			NumCtx:      llm.IntPtr(s.config.NumCtx),
		},
	}

	if req.HasImage() {
		encoded, err := s.prepareImage(req)
		if err != nil {
			logger.Warn("image processing failed", zap.Error(err))
			return s.fail(reply, req, MsgImageError+err.Error(), err)
		}
		genReq.Images = []string{encoded}
	}

	logger.Debug("generating",
		zap.Int("prompt_chars", len(fullPrompt)),
		zap.Int("images", len(genReq.Images)))

	start := s.now()
	resp, err := s.client.Generate(ctx, genReq)
	reply.Latency = s.now().Sub(start)
	if err != nil {
		return s.fail(reply, req, s.describe(logger, err), err)
	}

	reply.Text = resp.Response
	reply.Metrics = buildMetrics(s.config, reply.Latency, resp.EvalCount, fullPrompt)
	s.record(req, reply.Rendered())

	logger.Info("response generated",
		zap.Duration("latency", reply.Latency),
		zap.Intp("eval_count", resp.EvalCount))

	return reply
}

// describe maps a generation error to the text shown to the user
func (s *Service) describe(logger *zap.Logger, err error) string {
	var apiErr *llm.APIError
	switch {
	case errors.As(err, &apiErr):
		logger.Error("backend error",
			zap.Int("status", apiErr.StatusCode),
			zap.String("body", apiErr.Body))
		return MsgInternalError
	case isTimeout(err):
		logger.Warn("generation timed out", zap.Error(err))
		return MsgTimeout
	case errors.Is(err, context.Canceled):
		logger.Info("generation cancelled")
		return MsgCancelled
	default:
		logger.Error("generation failed", zap.Error(err))
		return MsgUnreachable + err.Error()
	}
}

func (s *Service) fail(reply *Reply, req Request, text string, err error) *Reply {
	reply.Text = text
	reply.Failed = true
	reply.Err = err
	s.record(req, reply.Text)
	return reply
}

func (s *Service) record(req Request, rendered string) {
	if strings.TrimSpace(req.Prompt) == "" {
		return
	}
	s.conv.AddExchange(userTurn(req), rendered)
}

func (s *Service) prepareImage(req Request) (string, error) {
	if req.ImagePath != "" {
		return s.config.Normalizer.PrepareFile(req.ImagePath)
	}
	return s.config.Normalizer.Prepare(bytes.NewReader(req.Image))
}

func (s *Service) temperature(req Request) float64 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	return s.config.Temperature
}

func (s *Service) maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return s.config.MaxTokens
}

// userTurn is the conversation form of req. Images are kept as references.
func userTurn(req Request) prompt.Turn {
	if !req.HasImage() {
		return prompt.UserText(req.Prompt)
	}

	ref := req.ImagePath
	if ref == "" {
		ref = req.ImageName
	}
	if ref == "" {
		ref = "upload"
	}
	return prompt.UserWithAttachments(req.Prompt, ref)
}

// buildMetrics returns the performance lines in display order
func buildMetrics(cfg Config, latency time.Duration, evalCount *int, fullPrompt string) []Metric {
	seconds := latency.Seconds()

	tokens := "N/A"
	count := 0
	if evalCount != nil {
		count = *evalCount
		tokens = strconv.Itoa(count)
	}

	rate := "N/A"
	if seconds > 0 {
		rate = fmt.Sprintf("%.1f", float64(count)/seconds)
	}

	return []Metric{
		{Name: "Response Time", Value: fmt.Sprintf("%.2fs", seconds)},
		{Name: "Tokens Generated", Value: tokens},
		{Name: "Tokens/Second", Value: rate},
		{Name: "Model", Value: cfg.Model},
		{Name: "Hardware", Value: cfg.Hardware},
		{Name: "Cost", Value: "$0.00 (No API fees!)"},
		{Name: "Context Length", Value: strconv.Itoa(len(strings.Fields(fullPrompt)))},
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
