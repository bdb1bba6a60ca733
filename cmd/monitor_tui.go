// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/knxstat/pkg/client"
	"github.com/Thermoquad/knxstat/pkg/knxnet"
	"github.com/Thermoquad/knxstat/pkg/stats"
)

const (
	maxLogEntries   = 500
	maxGroupValues  = 8
	headerReserve   = 18 // lines above the event log
	minLogHeight    = 5
	defaultTUIWidth = 80
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Background(lipgloss.Color("235")).Padding(0, 1)
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	txStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	kind      entryKind
}

type entryKind int

const (
	entryInfo entryKind = iota
	entryRX
	entryTX
	entryError
)

// Messages
type (
	tickMsg         time.Time
	connectedMsg    struct{}
	connectErrMsg   struct{ err error }
	sessionEndedMsg struct{ err error }
)

// monitorModel is the full-screen bus monitor
type monitorModel struct {
	ctx    context.Context
	client *client.Client
	cfg    client.Config

	spinner    spinner.Model
	viewport   viewport.Model
	connecting bool
	connection string
	since      time.Time
	ended      bool

	log   []logEntry
	prev  stats.Snapshot
	snap  stats.Snapshot
	rates stats.Rates

	width    int
	height   int
	quitting bool
}

func newMonitorModel(ctx context.Context, c *client.Client, cfg client.Config) *monitorModel {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(warningStyle))
	vp := viewport.New(defaultTUIWidth-4, minLogHeight)
	return &monitorModel{
		ctx:        ctx,
		client:     c,
		cfg:        cfg,
		spinner:    sp,
		viewport:   vp,
		connecting: true,
		width:      defaultTUIWidth,
		height:     24,
	}
}

func (m *monitorModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.connectCmd(),
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *monitorModel) connectCmd() tea.Cmd {
	return func() tea.Msg {
		if err := m.client.Start(m.ctx); err != nil {
			return connectErrMsg{err}
		}
		return connectedMsg{}
	}
}

func (m *monitorModel) waitDoneCmd() tea.Cmd {
	return func() tea.Msg {
		<-m.client.Done()
		return sessionEndedMsg{m.client.Err()}
	}
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case spinner.TickMsg:
		if !m.connecting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		m.prev = m.snap
		m.snap = m.client.Statistics()
		if !m.prev.Taken.IsZero() {
			m.rates = m.snap.Rates(m.prev)
		}
		return m, tickCmd()

	case connectedMsg:
		m.connecting = false
		m.since = time.Now()
		m.connection = describeConnection(m.client, m.cfg)
		m.addLogEntry(time.Now(), "Connected: "+m.connection, entryInfo)
		return m, m.waitDoneCmd()

	case connectErrMsg:
		m.connecting = false
		m.ended = true
		m.addLogEntry(time.Now(), fmt.Sprintf("Connection failed: %v", msg.err), entryError)

	case sessionEndedMsg:
		m.ended = true
		text := "Session closed"
		if msg.err != nil {
			text = fmt.Sprintf("Session ended: %v", msg.err)
		}
		m.addLogEntry(time.Now(), text, entryError)

	case monitorEvent:
		kind := entryRX
		switch {
		case msg.err != nil:
			kind = entryError
		case msg.outgoing:
			kind = entryTX
		}
		m.addLogEntry(msg.at, msg.summary(), kind)
	}

	return m, nil
}

func (m *monitorModel) resize() {
	h := m.height - headerReserve
	if h < minLogHeight {
		h = minLogHeight
	}
	m.viewport.Width = m.width - 4
	m.viewport.Height = h
	m.refreshLog()
}

func (m *monitorModel) addLogEntry(at time.Time, message string, kind entryKind) {
	m.log = append(m.log, logEntry{timestamp: at, message: message, kind: kind})

	// Keep only last N entries
	if len(m.log) > maxLogEntries {
		m.log = m.log[len(m.log)-maxLogEntries:]
	}
	m.refreshLog()
}

// refreshLog re-renders the event log, following the tail unless the user
// scrolled up
func (m *monitorModel) refreshLog() {
	follow := m.viewport.AtBottom()

	var b strings.Builder
	if len(m.log) == 0 {
		b.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for i, entry := range m.log {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(headerStyle.Render(entry.timestamp.Format("15:04:05.000")))
		b.WriteString(" ")
		switch entry.kind {
		case entryError:
			b.WriteString(errorStyle.Render("✗ " + entry.message))
		case entryTX:
			b.WriteString(txStyle.Render(entry.message))
		case entryRX:
			b.WriteString(valueStyle.Render(entry.message))
		default:
			b.WriteString(warningStyle.Render("ℹ " + entry.message))
		}
	}
	m.viewport.SetContent(b.String())
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m *monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("KNXSTAT - BUS MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Mode: %s | Press 'q' to quit, arrows to scroll", m.cfg.Mode)))
	s.WriteString("\n\n")

	switch {
	case m.connecting:
		s.WriteString(m.spinner.View())
		s.WriteString(warningStyle.Render(" Connecting..."))
	case m.ended:
		s.WriteString(errorStyle.Render("✗ Disconnected"))
	default:
		s.WriteString(valueStyle.Render("✓ " + m.connection))
		s.WriteString(headerStyle.Render(" (up " + formatUptime(time.Since(m.since)) + ")"))
	}
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.statsView()))
	s.WriteString("\n")

	if values := m.groupValuesView(); values != "" {
		s.WriteString(labelStyle.Render("Group Values:"))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(values))
		s.WriteString("\n")
	}

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 2).Render(m.viewport.View()))

	return s.String()
}

func (m *monitorModel) statsView() string {
	snap := m.snap
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
		labelStyle.Render("Sent:"), valueStyle.Render(fmt.Sprintf("%d (%d B)", snap.TotalSent(), snap.BytesSent)),
		labelStyle.Render("Received:"), valueStyle.Render(fmt.Sprintf("%d (%d B)", snap.TotalReceived(), snap.BytesReceived)),
		labelStyle.Render("Errors:"), func() string {
			text := fmt.Sprintf("%d", snap.Errors)
			if snap.Errors > 0 {
				return errorStyle.Render(text)
			}
			return valueStyle.Render(text)
		}(),
	)

	if snap.MalformedFrames > 0 || snap.UnsupportedFrames > 0 {
		fmt.Fprintf(&b, "%s %s   %s %s\n",
			labelStyle.Render("Malformed:"), errorStyle.Render(fmt.Sprintf("%d", snap.MalformedFrames)),
			labelStyle.Render("Unsupported:"), warningStyle.Render(fmt.Sprintf("%d", snap.UnsupportedFrames)),
		)
	}

	fmt.Fprintf(&b, "%s %s   %s %s",
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f tx/s, %.1f rx/s", m.rates.SentPerSec, m.rates.ReceivedPerSec)),
		labelStyle.Render("Error Rate:"), func() string {
			text := fmt.Sprintf("%.1f err/s", m.rates.ErrorsPerSec)
			if m.rates.ErrorsPerSec > 0 {
				return errorStyle.Render(text)
			}
			return valueStyle.Render(text)
		}(),
	)
	return b.String()
}

// groupValuesView lists the most recently updated group addresses
func (m *monitorModel) groupValuesView() string {
	entries := m.client.StatusCache().CopyStatusMap()
	if len(entries) == 0 {
		return ""
	}

	addrs := slices.SortedFunc(maps.Keys(entries), func(a, b knxnet.GroupAddress) int {
		return entries[b].Timestamp.Compare(entries[a].Timestamp)
	})
	if len(addrs) > maxGroupValues {
		addrs = addrs[:maxGroupValues]
	}

	lines := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		st := entries[addr]
		value := valueStyle.Render(formatValue(st.Payload))
		if st.Dirty {
			value = warningStyle.Render(formatValue(st.Payload) + " (stale)")
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			labelStyle.Render(fmt.Sprintf("%-9s", addr.String())),
			value,
			headerStyle.Render(fmt.Sprintf("from %s at %s", st.Source, st.Timestamp.Format("15:04:05"))),
		))
	}
	return strings.Join(lines, "\n")
}
