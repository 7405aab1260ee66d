package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nachoal/local-vlm-go/chat"
	"github.com/nachoal/local-vlm-go/config"
	"github.com/nachoal/local-vlm-go/history"
	"github.com/nachoal/local-vlm-go/internal/logger"
	"github.com/nachoal/local-vlm-go/llm"
	"github.com/nachoal/local-vlm-go/llm/ollama"
	"github.com/nachoal/local-vlm-go/server"
	"github.com/nachoal/local-vlm-go/tui"
	"github.com/nachoal/local-vlm-go/tui/styles"
	"github.com/nachoal/local-vlm-go/vision"
)

var (
	// Flags
	configFile  string
	modelName   string
	ollamaURL   string
	debug       bool
	listenAddr  string
	imagePath   string
	temperature float64
	maxTokens   int
	pickModel   bool

	// Root command
	rootCmd = &cobra.Command{
		Use:   "vlm-chat",
		Short: "Chat with a local vision-language model",
		Long:  "vlm-chat - talk to a vision-language model served by a local Ollama, with images and conversation memory",
		RunE:  runTUI,
	}

	// Query command for one-shot queries
	queryCmd = &cobra.Command{
		Use:   "query [message]",
		Short: "Send a one-shot prompt without entering the TUI",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuery,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat over a local HTTP API",
		RunE:  runServe,
	}

	modelsCmd = &cobra.Command{
		Use:   "models",
		Short: "List local models",
		RunE:  runModels,
	}

	pullCmd = &cobra.Command{
		Use:   "pull [model]",
		Short: "Download a model into Ollama",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPull,
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Check whether the model is ready",
		RunE:  runStatus,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ~/.local-vlm/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&modelName, "model-name", "", "Ollama model tag, e.g. llava:7b")
	rootCmd.PersistentFlags().StringVar(&ollamaURL, "ollama-url", "", "Ollama base URL (default http://localhost:11434)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	queryCmd.Flags().StringVarP(&imagePath, "image", "i", "", "Image to send with the prompt")
	queryCmd.Flags().Float64Var(&temperature, "temperature", chat.DefaultTemperature, "Sampling temperature (0.1-1.0)")
	queryCmd.Flags().IntVar(&maxTokens, "max-tokens", chat.DefaultMaxTokens, "Maximum tokens to generate (50-500)")

	serveCmd.Flags().StringVar(&listenAddr, "listen", server.DefaultListenAddr, "Address to listen on")

	modelsCmd.Flags().BoolVar(&pickModel, "pick", false, "Choose the default model interactively")

	// Add subcommands
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Only report a file that exists but cannot be parsed
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles what every command needs
type app struct {
	manager *config.Manager
	cfg     *config.Config
	logger  *zap.Logger
	client  *ollama.Client
	chat    *chat.Service
	closers []func() error
}

func (a *app) Close() {
	_ = a.logger.Sync()
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// newApp loads configuration and wires the client and chat service.
// With logToFile set the logger writes to a file so the TUI stays intact.
func newApp(cmd *cobra.Command, logToFile bool) (*app, error) {
	manager, err := config.NewManager(configFile)
	if err != nil {
		return nil, err
	}
	if err := manager.BindFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	cfg, err := manager.Config()
	if err != nil {
		return nil, err
	}

	a := &app{manager: manager, cfg: cfg}

	if logToFile {
		path := cfg.LogFile
		if path == "" {
			path = filepath.Join(filepath.Dir(manager.Path()), "vlm-chat.log")
		}
		l, closeFn, err := logger.NewFile(cfg.Debug, path)
		if err != nil {
			return nil, err
		}
		a.logger = l
		a.closers = append(a.closers, closeFn)
	} else {
		a.logger = logger.New(cfg.Debug, os.Stderr)
	}

	client, err := ollama.NewClient(
		llm.WithBaseURL(cfg.OllamaURL),
		llm.WithModel(cfg.ModelName),
		llm.WithTimeout(cfg.RequestTimeout),
		llm.WithConnectTimeout(cfg.ConnectTimeout),
		llm.WithPullTimeout(cfg.PullTimeout),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}
	a.client = client
	a.closers = append(a.closers, client.Close)

	a.chat = chat.New(client,
		history.NewConversation(cfg.HistoryMaxTurns),
		a.logger,
		chat.WithModel(cfg.ModelName),
		chat.WithHardware(cfg.Hardware),
		chat.WithTemperature(chat.ClampTemperature(cfg.Temperature)),
		chat.WithMaxTokens(cfg.MaxTokens),
		chat.WithNumCtx(cfg.NumCtx),
		chat.WithMaxContextChars(cfg.MaxContextChars),
		chat.WithStrictHistory(cfg.StrictHistory),
		chat.WithNormalizer(vision.Normalizer{MaxSize: cfg.MaxImageSize, JPEGQuality: cfg.JPEGQuality}),
		chat.WithExamplesDir(cfg.ExamplesDir),
	)

	a.logger.Debug("configuration loaded",
		zap.String("config", manager.Path()),
		zap.String("ollama_url", client.BaseURL()),
		zap.String("model", a.chat.Config().Model))

	return a, nil
}

// ensureModel makes sure the model is pulled, printing progress to w
func ensureModel(ctx context.Context, a *app, w io.Writer) llm.Status {
	model := a.chat.Config().Model
	status := a.chat.EnsureModel(ctx, func(p llm.PullProgress) {
		if p.Total > 0 {
			fmt.Fprintf(w, "📥 %s (%.0f%%)\n", p.Status, p.Percent()*100)
			return
		}
		fmt.Fprintf(w, "📥 %s\n", p.Status)
	})

	switch status.State {
	case llm.StateReady:
		fmt.Fprintf(w, "Model %s is ready\n", model)
	case llm.StateMissing:
		fmt.Fprintf(w, "❌ Error pulling model: %s\n", status.Detail)
	default:
		fmt.Fprintf(w, "❌ Ollama is not running. Please start Ollama first. (%s)\n", status.Detail)
	}
	return status
}

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	// The TUI still opens when the model is not ready; /refresh retries
	ensureModel(cmd.Context(), a, os.Stdout)

	p := tea.NewProgram(
		tui.NewChat(a.chat, styles.GetTheme(a.cfg.Theme), a.logger),
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	ensureModel(ctx, a, os.Stderr)

	reply := a.chat.Respond(ctx, chat.Request{
		Prompt:      strings.Join(args, " "),
		ImagePath:   imagePath,
		Temperature: chat.ClampTemperature(temperature),
		MaxTokens:   chat.ClampMaxTokens(maxTokens),
	})

	if reply.Failed {
		return errors.New(reply.Text)
	}

	fmt.Println(reply.Rendered())
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ensureModel(ctx, a, os.Stderr)

	srv := server.New(server.Config{ListenAddr: a.cfg.Listen}, a.chat, a.logger)

	go func() {
		<-ctx.Done()
		a.logger.Info("shutting down")
		if err := srv.Shutdown(); err != nil {
			a.logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	return srv.Run()
}

func runModels(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if pickModel {
		selector := tui.NewModelSelector(a.client)
		if _, err := tea.NewProgram(selector, tea.WithAltScreen()).Run(); err != nil {
			return fmt.Errorf("error running model picker: %w", err)
		}
		if err := selector.Err(); err != nil {
			return err
		}
		if selected := selector.Selected(); selected != "" {
			if err := a.manager.SetDefaultModel(selected); err != nil {
				return err
			}
			fmt.Printf("Default model set to %s (%s)\n", selected, a.manager.Path())
		}
		return nil
	}

	models, err := a.client.ListModels(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	if len(models) == 0 {
		fmt.Println("No local models. Pull one with: vlm-chat pull llava")
		return nil
	}

	current := a.chat.Config().Model
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tMODEL\tDESCRIPTION\tMODIFIED")
	for _, m := range models {
		mark := ""
		if strings.HasPrefix(m.ID, current) {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", mark, m.ID, m.Description, m.ModifiedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func runPull(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	model := a.chat.Config().Model
	if len(args) == 1 {
		model = args[0]
	}

	fmt.Printf("Pulling %s...\n", model)
	err = a.client.Pull(cmd.Context(), model, func(p llm.PullProgress) {
		if p.Total > 0 {
			fmt.Printf("📥 %s (%.0f%%)\n", p.Status, p.Percent()*100)
			return
		}
		fmt.Printf("📥 %s\n", p.Status)
	})
	if err != nil {
		return fmt.Errorf("failed to pull %s: %w", model, err)
	}

	fmt.Printf("Model %s is ready\n", model)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	status := a.chat.Refresh(cmd.Context())
	fmt.Printf("Ollama:  %s\n", a.client.BaseURL())
	fmt.Printf("Model:   %s\n", status.Model)
	fmt.Printf("Status:  %s\n", status.Label())
	if status.Detail != "" {
		fmt.Printf("Detail:  %s\n", status.Detail)
	}

	if !status.Ready() {
		return fmt.Errorf("model %s is not ready", status.Model)
	}
	return nil
}
