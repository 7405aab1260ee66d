package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"github.com/nachoal/local-vlm-go/chat"
	"github.com/nachoal/local-vlm-go/llm"
	"github.com/nachoal/local-vlm-go/tui/styles"
)

const (
	defaultWidth     = 80
	headerHeight     = 3
	inputHeight      = 3
	footerHeight     = 1
	maxMarkdownWidth = 100

	// /status answers from cache while the last check is younger than this
	statusMaxAge = 30 * time.Second
)

// ChatModel is the terminal chat screen
type ChatModel struct {
	// Core components
	service  *chat.Service
	styles   *styles.Styles
	renderer *glamour.TermRenderer
	logger   *zap.Logger

	// UI components
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	help     help.Model
	keys     KeyMap

	// Settings applied to the next request
	temperature  float64
	maxTokens    int
	pendingImage string

	// State
	messages     []Message
	isProcessing bool
	cancel       context.CancelFunc
	width        int
	height       int
	ready        bool
}

// Message represents a line of the transcript
type Message struct {
	Role      string
	Content   string
	Failed    bool
	Image     string
	Timestamp time.Time
}

// Message types
type replyMsg struct {
	reply *chat.Reply
}

type statusMsg struct {
	status llm.Status
}

// NewChat creates the chat screen for svc
func NewChat(svc *chat.Service, theme styles.Theme, logger *zap.Logger) *ChatModel {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Create textarea
	ta := textarea.New()
	ta.Placeholder = "Ask about an image... (/image <path> to attach, /help for commands)"
	ta.Focus()
	ta.CharLimit = 0
	ta.ShowLineNumbers = false

	// Enter sends the message
	ta.KeyMap.InsertNewline.SetEnabled(false)

	st := styles.NewStyles(theme)

	// Create spinner
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = st.Spinner

	cfg := svc.Config()
	return &ChatModel{
		service:     svc,
		styles:      st,
		renderer:    newRenderer(theme, defaultWidth),
		logger:      logger,
		textarea:    ta,
		spinner:     s,
		help:        help.New(),
		keys:        DefaultKeyMap(),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		messages:    []Message{},
	}
}

func newRenderer(theme styles.Theme, width int) *glamour.TermRenderer {
	if width > maxMarkdownWidth {
		width = maxMarkdownWidth
	}
	style := theme.Markdown
	if style == "" {
		style = "notty"
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return renderer
}

func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		textarea.Blink,
	)
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		vpHeight := msg.Height - headerHeight - inputHeight - footerHeight - 2
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}

		m.textarea.SetWidth(msg.Width - 4)
		m.textarea.SetHeight(inputHeight)
		m.help.Width = msg.Width
		m.renderer = newRenderer(m.styles.Theme, msg.Width-4)
		m.updateView()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.cancelRun()
			return m, tea.Quit

		case key.Matches(msg, m.keys.Cancel):
			if m.cancelRun() {
				return m, nil
			}

		case key.Matches(msg, m.keys.Clear):
			m.handleCommand("/clear")
			return m, nil

		case key.Matches(msg, m.keys.Send):
			if !m.isProcessing {
				value := m.textarea.Value()
				m.textarea.Reset()
				if cmd := m.submit(value); cmd != nil {
					cmds = append(cmds, cmd)
				}
			}
			return m, tea.Batch(cmds...)

		case key.Matches(msg, m.keys.Reset):
			if m.textarea.Value() != "" {
				m.textarea.Reset()
			} else {
				m.cancelRun()
				return m, tea.Quit
			}
		}

	case replyMsg:
		m.isProcessing = false
		m.cancel = nil
		m.addReply(msg.reply)
		m.updateView()

	case statusMsg:
		m.addMessage("system", statusText(msg.status))
		m.updateView()

	case spinner.TickMsg:
		s, cmd := m.spinner.Update(msg)
		m.spinner = s
		cmds = append(cmds, cmd)
	}

	// Handle textarea input
	if !m.isProcessing {
		ta, cmd := m.textarea.Update(msg)
		m.textarea = ta
		cmds = append(cmds, cmd)
	}

	// Handle viewport scrolling
	vp, cmd := m.viewport.Update(msg)
	m.viewport = vp
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m ChatModel) View() string {
	if !m.ready {
		return "\nInitializing..."
	}

	var b strings.Builder

	// Header
	status := m.service.Status()
	b.WriteString(m.styles.Header.Render("🖼️  Local Vision Chat"))
	b.WriteString("  ")
	b.WriteString(m.styles.RenderStatus(string(status.State), status.Label()))
	b.WriteString("\n")
	b.WriteString(m.styles.Label.Render(fmt.Sprintf("Model: %s | Commands: /image, /temp, /tokens, /status, /help, /exit", status.Model)))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", m.width) + "\n")

	// Conversation viewport
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	// Input area
	if m.isProcessing {
		b.WriteString(fmt.Sprintf("%s Generating... (esc to cancel)\n", m.spinner.View()))
	} else {
		b.WriteString(m.textarea.View())
		b.WriteString("\n")
	}

	// Footer
	b.WriteString(m.styles.StatusBar.Render(m.footer()))
	b.WriteString("  ")
	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))

	return b.String()
}

func (m *ChatModel) footer() string {
	parts := []string{
		fmt.Sprintf("temp %.1f", m.temperature),
		fmt.Sprintf("max tokens %d", m.maxTokens),
	}
	if m.pendingImage != "" {
		parts = append(parts, m.styles.PendingImage.Render("📎 "+filepath.Base(m.pendingImage)))
	}
	return strings.Join(parts, " | ")
}

// submit handles one line of input: a slash command or a prompt
func (m *ChatModel) submit(input string) tea.Cmd {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}

	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}

	req := chat.Request{Prompt: input, ImagePath: m.pendingImage}
	m.pendingImage = ""

	return m.sendMessage(req)
}

// sendMessage shows the prompt in the transcript and runs it with the
// current temperature and token settings
func (m *ChatModel) sendMessage(req chat.Request) tea.Cmd {
	req.Temperature = m.temperature
	req.MaxTokens = m.maxTokens

	m.messages = append(m.messages, Message{
		Role:      "user",
		Content:   req.Prompt,
		Image:     req.ImagePath,
		Timestamp: time.Now(),
	})
	m.updateView()

	m.isProcessing = true
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	svc := m.service

	return func() tea.Msg {
		defer cancel()
		return replyMsg{reply: svc.Respond(ctx, req)}
	}
}

// cancelRun aborts the request in flight, if any
func (m *ChatModel) cancelRun() bool {
	if m.cancel == nil {
		return false
	}
	m.cancel()
	m.cancel = nil
	m.logger.Info("request cancelled by user")
	return true
}

func (m *ChatModel) handleCommand(input string) tea.Cmd {
	name, arg := parseCommand(input)

	switch name {
	case "/help":
		m.addMessage("system", helpText)

	case "/image":
		m.attachImage(arg)

	case "/temp", "/temperature":
		if arg == "" {
			m.addMessage("system", fmt.Sprintf("Temperature is %.1f", m.temperature))
			break
		}
		t, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			m.addError(fmt.Sprintf("Invalid temperature %q", arg))
			break
		}
		m.temperature = chat.ClampTemperature(t)
		m.addMessage("system", fmt.Sprintf("Temperature set to %.1f", m.temperature))

	case "/tokens":
		if arg == "" {
			m.addMessage("system", fmt.Sprintf("Max tokens is %d", m.maxTokens))
			break
		}
		n, err := strconv.Atoi(arg)
		if err != nil {
			m.addError(fmt.Sprintf("Invalid token count %q", arg))
			break
		}
		m.maxTokens = chat.ClampMaxTokens(n)
		m.addMessage("system", fmt.Sprintf("Max tokens set to %d", m.maxTokens))

	case "/status":
		status := m.service.Status()
		if status.Stale(time.Now(), statusMaxAge) {
			return m.refresh()
		}
		m.addMessage("system", statusText(status))

	case "/refresh":
		return m.refresh()

	case "/examples":
		var b strings.Builder
		b.WriteString("Try one of these with /example <n>, or attach your own image:")
		for i, ex := range chat.Examples {
			fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, ex.Prompt, ex.Image)
		}
		m.addMessage("system", b.String())

	case "/example":
		n, err := strconv.Atoi(arg)
		if err != nil {
			m.addError(fmt.Sprintf("Usage: /example <1-%d>", len(chat.Examples)))
			break
		}
		req, err := m.service.Example(n)
		if err != nil {
			m.addError(err.Error() + ". Attach your own with /image <path>")
			break
		}
		return m.sendMessage(req)

	case "/clear":
		m.service.Clear()
		m.messages = []Message{}
		m.pendingImage = ""

	case "/exit", "/quit":
		m.cancelRun()
		return tea.Quit

	default:
		m.addError(fmt.Sprintf("Unknown command %s. Type /help for the list.", name))
	}

	m.updateView()
	return nil
}

// refresh re-checks readiness off the UI goroutine
func (m *ChatModel) refresh() tea.Cmd {
	svc := m.service
	return func() tea.Msg {
		return statusMsg{status: svc.Refresh(context.Background())}
	}
}

func (m *ChatModel) attachImage(arg string) {
	if arg == "" {
		if m.pendingImage == "" {
			m.addMessage("system", "Usage: /image <path>")
		} else {
			m.addMessage("system", "Detached "+m.pendingImage)
			m.pendingImage = ""
		}
		return
	}

	path := expandPath(arg)
	if !looksLikeImagePath(path) {
		m.addError("Not an image file: " + arg)
		return
	}
	if !fileExists(path) {
		m.addError("File not found: " + arg)
		return
	}

	m.pendingImage = path
	m.addMessage("system", "📎 Attached "+path+" to the next message")
}

// parseCommand splits "/name rest" into its name and trimmed argument
func parseCommand(input string) (string, string) {
	input = strings.TrimSpace(input)
	name, arg, _ := strings.Cut(input, " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

func statusText(status llm.Status) string {
	text := fmt.Sprintf("%s (%s)", status.Label(), status.Model)
	if status.Detail != "" {
		text += ": " + status.Detail
	}
	return text
}

func (m *ChatModel) addMessage(role, content string) {
	m.messages = append(m.messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

func (m *ChatModel) addError(content string) {
	m.messages = append(m.messages, Message{
		Role:      "system",
		Content:   content,
		Failed:    true,
		Timestamp: time.Now(),
	})
}

func (m *ChatModel) addReply(reply *chat.Reply) {
	m.messages = append(m.messages, Message{
		Role:      "assistant",
		Content:   reply.Rendered(),
		Failed:    reply.Failed,
		Timestamp: time.Now(),
	})
}

func (m *ChatModel) updateView() {
	var content strings.Builder

	for _, msg := range m.messages {
		content.WriteString("\n")
		switch msg.Role {
		case "user":
			content.WriteString(m.styles.RenderRole("user"))
			content.WriteString(" ")
			content.WriteString(msg.Content)
			if msg.Image != "" {
				content.WriteString("\n")
				content.WriteString(m.styles.Attachment.Render("   📎 " + filepath.Base(msg.Image)))
			}
		case "assistant":
			content.WriteString(m.styles.RenderRole("assistant"))
			content.WriteString("\n")
			if msg.Failed {
				content.WriteString(m.styles.ErrorMessage.Render(msg.Content))
			} else {
				content.WriteString(m.renderMarkdown(msg.Content))
			}
		default:
			if msg.Failed {
				content.WriteString(m.styles.ErrorMessage.Render(msg.Content))
			} else {
				content.WriteString(m.styles.SystemMessage.Render(msg.Content))
			}
		}
		content.WriteString("\n")
	}

	m.viewport.SetContent(content.String())
	m.viewport.GotoBottom()
}

func (m *ChatModel) renderMarkdown(content string) string {
	if m.renderer == nil {
		return content
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

func looksLikeImagePath(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".tif", ".tiff":
		return true
	default:
		return false
	}
}

func expandPath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), `"'`)
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, p[2:])
	}
	return p
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

// Help text
const helpText = `Available commands:
/image <path>  - Attach an image to the next message (/image alone detaches)
/temp <0.1-1>  - Set the temperature
/tokens <n>    - Set max tokens (50-500)
/status        - Show model readiness
/refresh       - Check the model again
/examples      - Show example prompts
/example <n>   - Run example n with its image
/clear         - Clear the conversation
/exit          - Exit (also ctrl+d)
esc cancels a running request`
