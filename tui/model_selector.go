package tui

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nachoal/local-vlm-go/llm"
)

// ModelItem represents a local model in the list
type ModelItem struct {
	Model llm.Model
}

func (i ModelItem) Title() string {
	if i.Model.SupportsVision {
		return "👁  " + i.Model.ID
	}
	return "   " + i.Model.ID
}
func (i ModelItem) Description() string { return i.Model.Description }
func (i ModelItem) FilterValue() string { return i.Model.ID }

// ModelSelector lets the user pick one of the models already pulled
type ModelSelector struct {
	list     list.Model
	client   llm.Client
	selected string
	loading  bool
	err      error
	width    int
	height   int
}

// NewModelSelector creates a new model selector
func NewModelSelector(client llm.Client) *ModelSelector {
	// Create list with custom styles
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.Color("170")).
		BorderLeftForeground(lipgloss.Color("170"))
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.Color("170")).
		BorderLeftForeground(lipgloss.Color("170"))

	l := list.New([]list.Item{}, delegate, 80, 20)
	l.Title = "Select a local model"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(true)
	l.Styles.Title = lipgloss.NewStyle().
		Background(lipgloss.Color("62")).
		Foreground(lipgloss.Color("230")).
		Padding(0, 1)

	return &ModelSelector{
		list:    l,
		client:  client,
		loading: true,
		width:   80,
		height:  20,
	}
}

// Selected returns the chosen model tag, empty if the user quit
func (m *ModelSelector) Selected() string {
	return m.selected
}

// Err returns the loading error, if any
func (m *ModelSelector) Err() error {
	return m.err
}

func (m *ModelSelector) Init() tea.Cmd {
	return m.loadModels()
}

func (m *ModelSelector) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		// Keys go to the filter input while filtering
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "enter":
			if i, ok := m.list.SelectedItem().(ModelItem); ok {
				m.selected = i.Model.ID
				return m, tea.Quit
			}
		}

	case modelsLoadedMsg:
		m.loading = false
		if len(msg.models) == 0 {
			m.err = fmt.Errorf("no local models found - pull one with `vlm-chat pull`")
			return m, nil
		}
		m.list.SetItems(modelItems(msg.models))
		return m, nil

	case errMsg:
		m.err = msg.err
		m.loading = false
		return m, nil
	}

	// Update the list
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *ModelSelector) View() string {
	if m.loading {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Render("Loading models...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(lipgloss.Color("9")).
			Render(fmt.Sprintf("Error loading models: %v", m.err))
	}

	return m.list.View()
}

// modelItems lists vision models first, then by name
func modelItems(models []llm.Model) []list.Item {
	sorted := append([]llm.Model(nil), models...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SupportsVision != sorted[j].SupportsVision {
			return sorted[i].SupportsVision
		}
		return sorted[i].ID < sorted[j].ID
	})

	items := make([]list.Item, len(sorted))
	for i, model := range sorted {
		items[i] = ModelItem{Model: model}
	}
	return items
}

// loadModels fetches the local models from the server
func (m *ModelSelector) loadModels() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		models, err := client.ListModels(ctx)
		if err != nil {
			return errMsg{err: fmt.Errorf("failed to load models: %w", err)}
		}
		return modelsLoadedMsg{models: models}
	}
}

// Messages for model selector
type modelsLoadedMsg struct {
	models []llm.Model
}

type errMsg struct {
	err error
}
