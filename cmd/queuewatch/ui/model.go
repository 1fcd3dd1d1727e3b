package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const logLimit = 50

type tickMsg time.Time

type loadedMsg struct {
	Snap Snapshot
	Logs []LogLine
	Err  error
}

type Model struct {
	Source   Source
	Interval time.Duration
	Table    table.Model
	Logs     viewport.Model
	Snap     Snapshot
	Err      error
}

func NewModel(src Source, interval time.Duration) Model {
	columns := []table.Column{
		{Title: "", Width: 1},
		{Title: "Package", Width: 28},
		{Title: "Version", Width: 8},
		{Title: "Kind", Width: 11},
		{Title: "Stage", Width: 20},
		{Title: "Tries", Width: 5},
		{Title: "Failure", Width: 40},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	st := table.DefaultStyles()
	st.Header = st.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	st.Selected = st.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(st)

	if interval <= 0 {
		interval = time.Second
	}
	return Model{Source: src, Interval: interval, Table: t, Logs: viewport.New(100, 8)}
}

func (m Model) load() tea.Msg {
	snap, logs, err := m.Source.Load(logLimit)
	return loadedMsg{Snap: snap, Logs: logs, Err: err}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.Interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load, m.tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Table.SetHeight(max(msg.Height-16, 3))
		m.Logs.Width = msg.Width - 4
	case tickMsg:
		return m, tea.Batch(m.load, m.tick())
	case loadedMsg:
		m.Err = msg.Err
		if msg.Err == nil {
			m.apply(msg.Snap, msg.Logs)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m *Model) apply(snap Snapshot, logs []LogLine) {
	m.Snap = snap
	rows := make([]table.Row, 0, len(snap.Items))
	active := -1
	for i, it := range snap.Items {
		mark := ""
		if it.ID == snap.ActiveID && snap.ActiveID != "" {
			mark = ">"
			active = i
		}
		name := it.PackageName
		if it.DisplayName != "" {
			name = it.DisplayName
		}
		rows = append(rows, table.Row{
			mark,
			name,
			fmt.Sprint(it.VersionCode),
			it.Classification,
			stageLabel(it),
			fmt.Sprint(it.Attempts),
			it.FailureMessage,
		})
	}
	m.Table.SetRows(rows)
	if active >= 0 {
		m.Table.SetCursor(active)
	}

	var b strings.Builder
	for _, l := range logs {
		fmt.Fprintf(&b, "%s %-5s %s", l.At.Local().Format("15:04:05"), l.Level, l.Message)
		if l.Code != "" {
			fmt.Fprintf(&b, " (%s)", l.Code)
		}
		if l.PackageName != "" {
			fmt.Fprintf(&b, " [%s", l.PackageName)
			if l.Attempts > 0 {
				fmt.Fprintf(&b, " #%d", l.Attempts)
			}
			b.WriteString("]")
		}
		b.WriteString("\n")
	}
	m.Logs.SetContent(b.String())
}

func stageLabel(it Item) string {
	if it.Stage == "downloading" && it.BytesTotal > 0 {
		return fmt.Sprintf("downloading %d%%", it.BytesDone*100/it.BytesTotal)
	}
	return it.Stage
}

func (m Model) status() string {
	s := m.Snap
	if s.Halted {
		return haltedStyle.Render("halted on failure")
	}
	state := "idle"
	if s.Running {
		state = "running"
	}
	return titleStyle.Render(fmt.Sprintf("%s | policy %s, %d retries | %d items", state, s.Policy.Failure, s.Policy.MaxRetries, len(s.Items)))
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Install Queue") + " " + m.status() + "\n\n")
	b.WriteString(m.Table.View())
	b.WriteString("\n\n")
	b.WriteString(blurredStyle.Render("Recent log") + "\n")
	b.WriteString(m.Logs.View())
	b.WriteString("\n")
	b.WriteString(blurredStyle.Render("Press 'q' to quit, up/down to navigate"))
	if m.Err != nil {
		b.WriteString("\n" + errorMessageStyle(m.Err.Error()))
	}
	return docStyle.Render(b.String())
}
