// Package tui renders live export progress in the terminal.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ItemStatus is the export status of an item.
type ItemStatus int

const (
	StatusPending ItemStatus = iota
	StatusSyncing
	StatusSkipped
	StatusDone
	StatusError
)

// ItemType distinguishes hierarchy levels.
type ItemType int

const (
	TypeNotebook ItemType = iota
	TypeSection
	TypePage
)

// Item is one notebook, section or page being exported.
type Item struct {
	ID     string
	Title  string
	Type   ItemType
	Status ItemStatus
	Error  string
}

// maxRecentItems is the number of recently finished items to show.
const maxRecentItems = 5

// Model is the Bubble Tea model for the export TUI.
type Model struct {
	items map[string]*Item

	pendingCount int
	syncingCount int
	skippedCount int
	doneCount    int
	errorCount   int
	totalCount   int

	// current is the page being exported right now; the pipeline is
	// strictly sequential, so there is at most one.
	current *Item

	recentItems []*Item

	spinner  spinner.Model
	done     bool
	err      error
	quitting bool

	headerStyle  lipgloss.Style
	titleStyle   lipgloss.Style
	countStyle   lipgloss.Style
	doneStyle    lipgloss.Style
	skippedStyle lipgloss.Style
	errorStyle   lipgloss.Style
	barStyle     lipgloss.Style
	dimStyle     lipgloss.Style
}

// Messages for updating the TUI from the export walk.
type (
	// AddItemMsg adds a new item (starts as pending).
	AddItemMsg struct {
		Item *Item
	}

	// UpdateStatusMsg updates the status of an item.
	UpdateStatusMsg struct {
		ID     string
		Status ItemStatus
		Error  string
	}

	// DoneMsg signals that the export is complete.
	DoneMsg struct {
		Err error
	}
)

// New creates a new TUI model.
func New() Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return Model{
		items:       make(map[string]*Item),
		recentItems: make([]*Item, 0),
		spinner:     s,

		headerStyle:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		titleStyle:   lipgloss.NewStyle().Bold(true),
		countStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		doneStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		skippedStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		barStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
		dimStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case AddItemMsg:
		item := msg.Item
		item.Status = StatusPending
		m.items[item.ID] = item
		m.pendingCount++
		m.totalCount++
		return m, nil

	case UpdateStatusMsg:
		item, ok := m.items[msg.ID]
		if !ok {
			return m, nil
		}

		m.adjustCount(item.Status, -1)
		item.Status = msg.Status
		item.Error = msg.Error
		m.adjustCount(item.Status, +1)

		if msg.Status == StatusSyncing {
			m.current = item
		} else if m.current == item {
			m.current = nil
		}

		if msg.Status == StatusDone || msg.Status == StatusSkipped || msg.Status == StatusError {
			m.recentItems = append(m.recentItems, item)
			if len(m.recentItems) > maxRecentItems {
				m.recentItems = m.recentItems[len(m.recentItems)-maxRecentItems:]
			}
		}
		return m, nil

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) adjustCount(status ItemStatus, delta int) {
	switch status {
	case StatusPending:
		m.pendingCount += delta
	case StatusSyncing:
		m.syncingCount += delta
	case StatusSkipped:
		m.skippedCount += delta
	case StatusDone:
		m.doneCount += delta
	case StatusError:
		m.errorCount += delta
	}
}

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(m.headerStyle.Render("Exporting OneNote to Markdown"))
	b.WriteString("\n")

	completed := m.doneCount + m.skippedCount + m.errorCount
	if m.totalCount > 0 {
		percent := float64(completed) / float64(m.totalCount) * 100
		barWidth := 40
		filledWidth := int(float64(barWidth) * float64(completed) / float64(m.totalCount))
		if filledWidth > barWidth {
			filledWidth = barWidth
		}

		bar := strings.Repeat("━", filledWidth) + strings.Repeat("─", barWidth-filledWidth)
		b.WriteString(m.barStyle.Render(bar))
		b.WriteString(fmt.Sprintf(" %.0f%% (%d/%d)\n", percent, completed, m.totalCount))
	}

	counts := fmt.Sprintf("Exported: %d  Skipped: %d  Errors: %d  Pending: %d",
		m.doneCount, m.skippedCount, m.errorCount, m.pendingCount)
	b.WriteString(m.countStyle.Render(counts))
	b.WriteString("\n\n")

	if m.current != nil {
		b.WriteString(fmt.Sprintf("  %s %s %s\n\n",
			m.spinner.View(),
			icon(m.current.Type),
			m.titleStyle.Render(truncate(m.current.Title, 50)),
		))
	}

	if len(m.recentItems) > 0 {
		b.WriteString(m.dimStyle.Render("Recent:"))
		b.WriteString("\n")
		for _, item := range m.recentItems {
			b.WriteString(m.renderRecentItem(item))
			b.WriteString("\n")
		}
	}

	if m.done {
		b.WriteString("\n")
		if m.err != nil {
			b.WriteString(m.errorStyle.Render("✗ Export failed: " + m.err.Error()))
		} else {
			b.WriteString(m.doneStyle.Render("✓ Export complete"))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) renderRecentItem(item *Item) string {
	var status string
	switch item.Status {
	case StatusDone:
		status = m.doneStyle.Render("✓")
	case StatusSkipped:
		status = m.skippedStyle.Render("=")
	case StatusError:
		errMsg := item.Error
		if len(errMsg) > 30 {
			errMsg = errMsg[:27] + "..."
		}
		status = m.errorStyle.Render("✗ " + errMsg)
	default:
		status = " "
	}

	return fmt.Sprintf("  %s %s %s",
		status,
		icon(item.Type),
		m.dimStyle.Render(truncate(item.Title, 50)),
	)
}

func icon(t ItemType) string {
	switch t {
	case TypeNotebook:
		return "📓"
	case TypeSection:
		return "📁"
	default:
		return "📄"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
