// Package server exposes the chat service over a local HTTP API.
package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/nachoal/local-vlm-go/chat"
	"github.com/nachoal/local-vlm-go/history"
	"github.com/nachoal/local-vlm-go/llm"
)

const (
	// DefaultListenAddr keeps the API on the loopback interface
	DefaultListenAddr = "127.0.0.1:7862"

	maxBodySize = 20 * 1024 * 1024
)

// Config is the server configuration
type Config struct {
	ListenAddr string
}

// Server serves the chat API
type Server struct {
	config Config
	chat   *chat.Service
	logger *zap.Logger
	app    *fiber.App
}

// ErrorResponse is the body of 4xx answers
type ErrorResponse struct {
	Error string `json:"error"`
}

// ChatRequest is the JSON form of POST /api/chat
type ChatRequest struct {
	Text        string  `json:"text"`
	Image       string  `json:"image,omitempty"` // base64, optionally a data URL
	ImageName   string  `json:"image_name,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// ChatResponse is the answer of POST /api/chat
type ChatResponse struct {
	ID        string        `json:"id"`
	Response  string        `json:"response"`
	Rendered  string        `json:"rendered"`
	Metrics   []chat.Metric `json:"metrics,omitempty"`
	Failed    bool          `json:"failed"`
	LatencyMS int64         `json:"latency_ms"`
}

// TurnView is one conversation turn as returned by GET /api/history
type TurnView struct {
	Role        string    `json:"role"`
	Text        string    `json:"text"`
	Attachments []string  `json:"attachments,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// HistoryResponse is the answer of GET /api/history
type HistoryResponse struct {
	Title string        `json:"title"`
	Stats history.Stats `json:"stats"`
	Turns []TurnView    `json:"turns"`
}

// StatusResponse is the answer of the status endpoints
type StatusResponse struct {
	llm.Status
	Label string `json:"label"`
}

// New creates a server for svc
func New(config Config, svc *chat.Service, logger *zap.Logger) *Server {
	if config.ListenAddr == "" {
		config.ListenAddr = DefaultListenAddr
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		BodyLimit:             maxBodySize,
		// Prompts outlive the handler in the conversation
		Immutable: true,
		// Generation can take minutes on small GPUs
		ReadTimeout: 10 * time.Minute,
	})

	s := &Server{
		config: config,
		chat:   svc,
		logger: logger,
		app:    app,
	}
	s.routes()

	return s
}

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	s.app.Get("/api/status", s.handleStatus)
	s.app.Post("/api/status/refresh", s.handleRefresh)
	s.app.Post("/api/chat", s.handleChat)
	s.app.Get("/api/history", s.handleHistory)
	s.app.Delete("/api/history", s.handleClearHistory)
	s.app.Get("/api/examples", s.handleExamples)
	s.app.Post("/api/examples/:n", s.handleRunExample)
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts serving on the configured address
func (s *Server) Run() error {
	s.logger.Info("starting chat server",
		zap.String("listen", s.config.ListenAddr),
		zap.String("model", s.chat.Config().Model),
	)

	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(statusResponse(s.chat.Status()))
}

func (s *Server) handleRefresh(c *fiber.Ctx) error {
	return c.JSON(statusResponse(s.chat.Refresh(c.UserContext())))
}

func statusResponse(status llm.Status) StatusResponse {
	return StatusResponse{Status: status, Label: status.Label()}
}

// handleChat accepts JSON or multipart bodies and answers with the reply.
// User-facing failures (model not ready, bad image, timeout) are 200
// answers with failed set; only malformed requests get a 4xx.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var (
		req chat.Request
		err error
	)

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		req, err = parseMultipart(c)
	} else {
		req, err = parseJSON(c.Body())
	}
	if err != nil {
		s.logger.Warn("invalid chat request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	s.logger.Debug("received chat request",
		zap.Int("prompt_chars", len(req.Prompt)),
		zap.Bool("image", req.HasImage()),
		zap.Float64("temperature", req.Temperature),
		zap.Int("max_tokens", req.MaxTokens),
	)

	return c.JSON(chatResponse(s.chat.Respond(c.UserContext(), req)))
}

func chatResponse(reply *chat.Reply) ChatResponse {
	return ChatResponse{
		ID:        reply.ID,
		Response:  reply.Text,
		Rendered:  reply.Rendered(),
		Metrics:   reply.Metrics,
		Failed:    reply.Failed,
		LatencyMS: reply.Latency.Milliseconds(),
	}
}

func parseJSON(body []byte) (chat.Request, error) {
	var in ChatRequest
	if err := json.Unmarshal(body, &in); err != nil {
		return chat.Request{}, fmt.Errorf("invalid request body")
	}

	req := chat.Request{
		Prompt:    in.Text,
		ImageName: in.ImageName,
	}
	if in.Temperature != 0 {
		req.Temperature = chat.ClampTemperature(in.Temperature)
	}
	if in.MaxTokens != 0 {
		req.MaxTokens = chat.ClampMaxTokens(in.MaxTokens)
	}

	if in.Image != "" {
		data, err := decodeImage(in.Image)
		if err != nil {
			return chat.Request{}, err
		}
		req.Image = data
	}

	return req, nil
}

func parseMultipart(c *fiber.Ctx) (chat.Request, error) {
	req := chat.Request{Prompt: c.FormValue("text")}

	if v := c.FormValue("temperature"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return chat.Request{}, fmt.Errorf("invalid temperature %q", v)
		}
		req.Temperature = chat.ClampTemperature(t)
	}
	if v := c.FormValue("max_tokens"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return chat.Request{}, fmt.Errorf("invalid max_tokens %q", v)
		}
		req.MaxTokens = chat.ClampMaxTokens(n)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		// no attachment
		return req, nil
	}

	f, err := fh.Open()
	if err != nil {
		return chat.Request{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return chat.Request{}, fmt.Errorf("failed to read upload: %w", err)
	}
	req.Image = data
	req.ImageName = fh.Filename

	return req, nil
}

// decodeImage accepts raw base64 or a data URL
func decodeImage(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i != -1 {
			s = s[i+1:]
		}
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("image is not valid base64")
	}
	return data, nil
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	conv := s.chat.Conversation()
	entries := conv.Entries()

	turns := make([]TurnView, len(entries))
	for i, e := range entries {
		turns[i] = TurnView{
			Role:        string(e.Turn.Role),
			Text:        e.Turn.Text(),
			Attachments: e.Turn.Attachments(),
			Timestamp:   e.Timestamp,
		}
	}

	return c.JSON(HistoryResponse{
		Title: conv.Title(),
		Stats: conv.Stats(),
		Turns: turns,
	})
}

func (s *Server) handleClearHistory(c *fiber.Ctx) error {
	s.chat.Clear()
	s.logger.Info("conversation cleared")
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleExamples(c *fiber.Ctx) error {
	return c.JSON(chat.Examples)
}

// handleRunExample sends the n-th example prompt with its image
func (s *Server) handleRunExample(c *fiber.Ctx) error {
	n, err := c.ParamsInt("n")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "example must be a number"})
	}

	req, err := s.chat.Example(n)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: err.Error()})
	}

	s.logger.Info("example request", zap.Int("example", n), zap.String("image", req.ImagePath))
	return c.JSON(chatResponse(s.chat.Respond(c.UserContext(), req)))
}
