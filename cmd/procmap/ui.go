package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"procmap/internal/app"
	"procmap/internal/graph"
)

var (
	titleStyle = lipgloss.NewStyle().
			MarginLeft(2).
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true).
			Render

	docStyle = lipgloss.NewStyle().Margin(1, 2)

	cycleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	placeholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FBBF24")).
				Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

type item struct {
	title, desc string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title + i.desc }

type model struct {
	list       list.Model
	cycles     [][]string
	stats      graph.Statistics
	fileCount  int
	lastUpdate time.Time
}

type updateMsg struct {
	cycles    [][]string
	stats     graph.Statistics
	fileCount int
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v-4)
	case updateMsg:
		m.cycles = msg.cycles
		m.stats = msg.stats
		m.fileCount = msg.fileCount
		m.lastUpdate = time.Now()

		items := []list.Item{}
		for _, c := range m.cycles {
			items = append(items, item{
				title: "Call Cycle",
				desc:  strings.Join(c, " -> "),
			})
		}
		if m.stats.PlaceholderCount > 0 {
			items = append(items, item{
				title: "Unresolved Targets",
				desc:  fmt.Sprintf("%d called procedures or tables without registered facts", m.stats.PlaceholderCount),
			})
		}
		m.list.SetItems(items)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m model) View() string {
	status := statusStyle.Render(fmt.Sprintf("Last update: %v | %d files | %d procedures | %d tables",
		m.lastUpdate.Format("15:04:05"), m.fileCount, m.stats.ProcedureCount, m.stats.TableCount))

	var summary string
	if len(m.cycles) == 0 && m.stats.PlaceholderCount == 0 {
		summary = successStyle.Render("✅ Graph Clean")
	} else {
		summary = fmt.Sprintf("⚠️  %s | %s",
			cycleStyle.Render(fmt.Sprintf("%d Cycles", len(m.cycles))),
			placeholderStyle.Render(fmt.Sprintf("%d Unresolved", m.stats.PlaceholderCount)))
	}

	header := fmt.Sprintf("%s\n%s | %s\n", titleStyle("Procedure Dependency Monitor"), status, summary)
	return docStyle.Render(header + "\n" + m.list.View())
}

func initialModel() model {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Detected Issues"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)

	return model{
		list:       l,
		lastUpdate: time.Now(),
	}
}

func runUI(a *app.App) error {
	m := initialModel()
	p := tea.NewProgram(m, tea.WithAltScreen())

	a.SetUpdateHandler(func(u app.Update) {
		p.Send(updateMsg{
			cycles:    u.Cycles,
			stats:     u.Statistics,
			fileCount: u.FileCount,
		})
	})

	// Seed the UI with the state from the initial scan.
	go func() {
		cycles := a.Graph.DetectCycles()
		stats := a.Graph.Statistics()
		stats.CycleCount = len(cycles)
		p.Send(updateMsg{cycles: cycles, stats: stats})
	}()

	_, err := p.Run()
	return err
}
