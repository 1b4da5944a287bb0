// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quotio/quotio/usage"
)

// dashboardRefreshInterval is how often the dashboard re-reads the
// history file. The daemon flushes on its own interval; refreshing
// faster than that only rereads unchanged data.
const dashboardRefreshInterval = 2 * time.Second

// recentRowsShown bounds the request log pane.
const recentRowsShown = 10

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	paneTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")).
			MarginTop(1)

	errorRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
)

// tickMsg drives the periodic reload.
type tickMsg time.Time

// snapshotMsg carries a freshly loaded snapshot (or the load error).
type snapshotMsg struct {
	snapshot usage.Snapshot
	err      error
}

// dashboardModel is the bubbletea model behind `quotio usage --watch`.
// It is read-only: state lives in the daemon and in the history file,
// the dashboard just renders the latest flush.
type dashboardModel struct {
	historyPath string
	frontPort   uint16

	providers table.Model
	snapshot  usage.Snapshot
	loadErr   error
	width     int
}

func runDashboard(historyPath string, frontPort uint16) error {
	columns := []table.Column{
		{Title: "Provider", Width: 10},
		{Title: "Requests", Width: 9},
		{Title: "Errors", Width: 7},
		{Title: "Sent", Width: 10},
		{Title: "Received", Width: 10},
		{Title: "Avg", Width: 8},
		{Title: "Last model", Width: 24},
	}

	providerTable := table.New(
		table.WithColumns(columns),
		table.WithHeight(8),
		table.WithFocused(true),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("15")).Background(lipgloss.Color("57"))
	providerTable.SetStyles(styles)

	model := dashboardModel{
		historyPath: historyPath,
		frontPort:   frontPort,
		providers:   providerTable,
	}

	_, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(m.reload, scheduleTick())
}

// reload reads the history file off the update loop.
func (m dashboardModel) reload() tea.Msg {
	snapshot, err := usage.Load(m.historyPath)
	return snapshotMsg{snapshot: snapshot, err: err}
}

func scheduleTick() tea.Cmd {
	return tea.Tick(dashboardRefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.reload
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		return m, tea.Batch(m.reload, scheduleTick())

	case snapshotMsg:
		m.loadErr = msg.err
		if msg.err == nil {
			m.snapshot = msg.snapshot
			m.providers.SetRows(providerRows(msg.snapshot))
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.providers, cmd = m.providers.Update(msg)
	return m, cmd
}

func providerRows(snapshot usage.Snapshot) []table.Row {
	rows := make([]table.Row, 0, len(snapshot.Providers))
	for _, provider := range sortedProviders(snapshot) {
		totals := snapshot.Providers[provider]
		rows = append(rows, table.Row{
			provider,
			fmt.Sprintf("%d", totals.Requests),
			fmt.Sprintf("%d", totals.Errors),
			formatBytes(totals.RequestBytes),
			formatBytes(totals.ResponseBytes),
			formatAverageLatency(totals.Latency),
			totals.LastModel,
		})
	}
	return rows
}

func (m dashboardModel) View() string {
	var view strings.Builder

	view.WriteString(titleStyle.Render(fmt.Sprintf("quotio · relay on :%d", m.frontPort)))
	view.WriteString("\n")

	if m.loadErr != nil {
		view.WriteString(errorRowStyle.Render(fmt.Sprintf("history unreadable: %v", m.loadErr)))
		view.WriteString("\n")
	}

	view.WriteString(paneTitleStyle.Render("Providers"))
	view.WriteString("\n")
	if len(m.snapshot.Providers) == 0 {
		view.WriteString(dimStyle.Render("no usage recorded yet"))
		view.WriteString("\n")
	} else {
		view.WriteString(m.providers.View())
		view.WriteString("\n")
	}

	view.WriteString(paneTitleStyle.Render("Recent requests"))
	view.WriteString("\n")
	view.WriteString(m.recentView())

	view.WriteString(helpStyle.Render("q quit · r refresh"))
	view.WriteString("\n")

	return view.String()
}

// recentView renders the tail of the recent-request ring, newest first.
func (m dashboardModel) recentView() string {
	recent := m.snapshot.Recent
	if len(recent) == 0 {
		return dimStyle.Render("none yet") + "\n"
	}

	var view strings.Builder
	shown := 0
	for i := len(recent) - 1; i >= 0 && shown < recentRowsShown; i-- {
		record := recent[i]

		line := fmt.Sprintf("%s  %3s  %-7s %-28s %9s  %s",
			record.Timestamp.Format("15:04:05"),
			statusLabel(record.StatusCode),
			record.Method,
			truncate(record.Path, 28),
			formatBytes(record.ResponseBytes),
			record.Duration.Round(time.Millisecond),
		)
		if record.StatusCode >= 400 || record.StatusCode == 0 {
			line = errorRowStyle.Render(line)
		}
		view.WriteString(line)
		view.WriteString("\n")
		shown++
	}
	return view.String()
}

func statusLabel(code int) string {
	if code == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", code)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 1 {
		return s[:max]
	}
	return s[:max-1] + "…"
}
