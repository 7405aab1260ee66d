package chat

import (
	"strings"
	"time"

	"github.com/nachoal/local-vlm-go/prompt"
	"github.com/nachoal/local-vlm-go/vision"
)

// User-facing replies for requests that never reach the model
const (
	MsgNotReady      = "❌ Model not ready. Please check Ollama setup."
	MsgEmptyPrompt   = "❌ Please enter a prompt."
	MsgImageError    = "❌ Error processing image: "
	MsgTimeout       = "❌ Request timed out. Try reducing max_tokens or simplifying the prompt."
	MsgInternalError = "Internal Server Error"
	MsgUnreachable   = "❌ Error connecting to Ollama: "
	MsgBadHistory    = "❌ Conversation history is invalid: "
	MsgCancelled     = "❌ Request cancelled."
)

// Slider bounds and defaults for generation parameters
const (
	MinTemperature     = 0.1
	MaxTemperature     = 1.0
	DefaultTemperature = 0.7
	MinMaxTokens       = 50
	MaxMaxTokens       = 500
	DefaultMaxTokens   = 200
	DefaultNumCtx      = 4096
	DefaultHardware    = "RTX 3050 (Local)"
	DefaultExamplesDir = "examples"
)

// Config contains chat service configuration
type Config struct {
	Model           string
	Hardware        string
	Temperature     float64
	MaxTokens       int
	NumCtx          int
	MaxContextChars int
	StrictHistory   bool
	Normalizer      vision.Normalizer
	ExamplesDir     string // where the Examples images live
}

// DefaultConfig returns a default chat configuration
func DefaultConfig() Config {
	return Config{
		Model:           "llava",
		Hardware:        DefaultHardware,
		Temperature:     DefaultTemperature,
		MaxTokens:       DefaultMaxTokens,
		NumCtx:          DefaultNumCtx,
		MaxContextChars: prompt.DefaultMaxChars,
		ExamplesDir:     DefaultExamplesDir,
	}
}

// Option is a function that modifies chat configuration
type Option func(*Config)

// WithModel sets the model tag used for generation
func WithModel(model string) Option {
	return func(c *Config) {
		if model != "" {
			c.Model = model
		}
	}
}

// WithHardware sets the hardware label shown in metrics
func WithHardware(label string) Option {
	return func(c *Config) {
		if label != "" {
			c.Hardware = label
		}
	}
}

// WithTemperature sets the default sampling temperature
func WithTemperature(temp float64) Option {
	return func(c *Config) {
		c.Temperature = temp
	}
}

// WithMaxTokens sets the default generation limit
func WithMaxTokens(tokens int) Option {
	return func(c *Config) {
		c.MaxTokens = tokens
	}
}

// WithNumCtx sets the model context window
func WithNumCtx(n int) Option {
	return func(c *Config) {
		c.NumCtx = n
	}
}

// WithMaxContextChars bounds the flattened prompt
func WithMaxContextChars(n int) Option {
	return func(c *Config) {
		c.MaxContextChars = n
	}
}

// WithStrictHistory makes unknown history roles an error
func WithStrictHistory(strict bool) Option {
	return func(c *Config) {
		c.StrictHistory = strict
	}
}

// WithNormalizer sets how attached images are prepared
func WithNormalizer(n vision.Normalizer) Option {
	return func(c *Config) {
		c.Normalizer = n
	}
}

// WithExamplesDir sets the directory holding the example images
func WithExamplesDir(dir string) Option {
	return func(c *Config) {
		if dir != "" {
			c.ExamplesDir = dir
		}
	}
}

// Request is one user submission. Temperature and MaxTokens fall back to the
// service defaults when zero. At most one of ImagePath and Image is used;
// ImagePath wins.
type Request struct {
	Prompt      string
	ImagePath   string
	Image       []byte
	ImageName   string
	Temperature float64
	MaxTokens   int
}

// HasImage reports whether the request carries an image
func (r Request) HasImage() bool {
	return r.ImagePath != "" || len(r.Image) > 0
}

// Metric is one line of the performance block
type Metric struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Reply is the service answer to a Request
type Reply struct {
	ID      string        `json:"id"`
	Text    string        `json:"response"`
	Metrics []Metric      `json:"metrics,omitempty"`
	Latency time.Duration `json:"latency"`
	Failed  bool          `json:"failed"`
	Err     error         `json:"-"`
}

// Rendered returns the reply text followed by the metrics block, the form
// shown to the user and kept in the conversation.
func (r *Reply) Rendered() string {
	if len(r.Metrics) == 0 {
		return r.Text
	}

	var sb strings.Builder
	sb.WriteString(r.Text)
	sb.WriteString("\n\n")
	sb.WriteString(prompt.MetricsMarker)
	sb.WriteString("\n")
	for _, m := range r.Metrics {
		sb.WriteString("• **")
		sb.WriteString(m.Name)
		sb.WriteString(":** ")
		sb.WriteString(m.Value)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Metric returns the value of the named metric
func (r *Reply) Metric(name string) (string, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m.Value, true
		}
	}
	return "", false
}

// Example is a canned prompt offered by the interfaces
type Example struct {
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
	Image  string `json:"image"` // file name under Config.ExamplesDir
}

// Examples are the starter prompts shown next to the chat, each paired
// with the image it is meant for
var Examples = []Example{
	{Title: "Describe", Prompt: "Describe this image in detail", Image: "bar-graph-example.png"},
	{Title: "Objects", Prompt: "What objects do you see?", Image: "object-example.jpg"},
	{Title: "Story", Prompt: "Write a story about this image", Image: "story-example.jpg"},
	{Title: "Mood", Prompt: "What's the mood of this scene?", Image: "mood-example.png"},
}

// ClampTemperature keeps t within the slider range
func ClampTemperature(t float64) float64 {
	switch {
	case t < MinTemperature:
		return MinTemperature
	case t > MaxTemperature:
		return MaxTemperature
	default:
		return t
	}
}

// ClampMaxTokens keeps n within the slider range
func ClampMaxTokens(n int) int {
	switch {
	case n < MinMaxTokens:
		return MinMaxTokens
	case n > MaxMaxTokens:
		return MaxMaxTokens
	default:
		return n
	}
}
