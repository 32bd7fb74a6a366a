// Package tui implements the terminal dashboard: a live table of fired
// alerts streamed from the gateway.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chain-sentinel/internal/schema"
	"chain-sentinel/internal/tui/stream"
	"chain-sentinel/internal/tui/styles"
)

const maxAlerts = 200

// Model is the bubbletea model for the dashboard.
type Model struct {
	client *stream.Client
	server string

	alerts    []*schema.FiredAlert
	connected bool
	streamErr error
	width     int
	height    int
}

type alertMsg struct {
	alert *schema.FiredAlert
}

type disconnectedMsg struct {
	err error
}

// NewModel creates the dashboard model for a connected stream client.
func NewModel(client *stream.Client, server string) Model {
	return Model{
		client:    client,
		server:    server,
		connected: true,
	}
}

// Init starts waiting for the first alert.
func (m Model) Init() tea.Cmd {
	return m.waitForAlert()
}

// waitForAlert blocks on the stream until the next alert or disconnect.
func (m Model) waitForAlert() tea.Cmd {
	return func() tea.Msg {
		alert, ok := <-m.client.Alerts()
		if !ok {
			return disconnectedMsg{err: m.client.Err()}
		}
		return alertMsg{alert: alert}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.client.Close()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case alertMsg:
		// Newest first, bounded.
		m.alerts = append([]*schema.FiredAlert{msg.alert}, m.alerts...)
		if len(m.alerts) > maxAlerts {
			m.alerts = m.alerts[:maxAlerts]
		}
		return m, m.waitForAlert()

	case disconnectedMsg:
		m.connected = false
		m.streamErr = msg.err
	}

	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("Chain Sentinel — Live Alerts"))
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n\n")
	b.WriteString(m.renderTable())
	b.WriteString("\n")
	b.WriteString(styles.Help.Render("q: quit"))

	return b.String()
}

func (m Model) renderStatus() string {
	if m.connected {
		return styles.StatusOK.Render("● connected ") + styles.Muted.Render(m.server)
	}
	status := styles.StatusError.Render("● disconnected")
	if m.streamErr != nil {
		status += " " + styles.Muted.Render(m.streamErr.Error())
	}
	return status
}

func (m Model) renderTable() string {
	header := fmt.Sprintf("%-8s  %-10s  %-10s  %-24s  %-14s  %s",
		"TIME", "SEVERITY", "CHAIN", "RULE", "VALUE", "TX")

	var rows []string
	rows = append(rows, styles.TableHeader.Render(header))

	if len(m.alerts) == 0 {
		rows = append(rows, styles.Muted.Render("waiting for alerts..."))
		return lipgloss.JoinVertical(lipgloss.Left, rows...)
	}

	visible := m.alerts
	if limit := m.height - 8; limit > 0 && len(visible) > limit {
		visible = visible[:limit]
	}

	for _, alert := range visible {
		value := "-"
		if alert.Value != nil {
			value = fmt.Sprintf("%.4f", *alert.Value)
		}
		row := fmt.Sprintf("%-8s  %-10s  %-10s  %-24s  %-14s  %s",
			alert.FiredAt.Local().Format("15:04:05"),
			alert.Severity,
			truncate(alert.Blockchain, 10),
			truncate(alert.RuleName, 24),
			value,
			truncate(alert.TransactionHash, 18),
		)
		rows = append(rows, severityStyle(alert.Severity).Render(row))
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func severityStyle(s schema.Severity) lipgloss.Style {
	switch s {
	case schema.SeverityCritical:
		return styles.SeverityCritical
	case schema.SeverityHigh:
		return styles.SeverityHigh
	case schema.SeverityMedium:
		return styles.SeverityMedium
	default:
		return styles.SeverityLow
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}

// Run connects to the gateway and runs the dashboard until quit.
func Run(serverURL, token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := stream.Dial(ctx, serverURL, token)
	if err != nil {
		return err
	}

	p := tea.NewProgram(NewModel(client, serverURL), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		client.Close()
		return fmt.Errorf("dashboard error: %w", err)
	}
	return nil
}
