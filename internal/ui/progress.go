// Package ui renders link progress in the terminal.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/obellish/vmm-sub002/internal/pipeline"
)

// share of the bar covered by per-file work; the rest belongs to the
// merge, encode and write stages
const fileShare = 0.6

var linkStages = []pipeline.Stage{pipeline.StageMerge, pipeline.StageEncode, pipeline.StageWrite}

type progressModel struct {
	title      string
	events     <-chan pipeline.Event
	spinner    spinner.Model
	prog       progress.Model
	items      []fileItem
	index      map[string]int
	finished   map[pipeline.Stage]bool
	stageLabel string
	failed     bool
	width      int
	done       bool
}

type fileItem struct {
	path   string
	status string
	weight float64
}

type eventMsg pipeline.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders link progress. The
// model quits once events is closed.
func NewProgressModel(title string, files []string, events <-chan pipeline.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	items := make([]fileItem, 0, len(files))
	index := make(map[string]int, len(files))
	for i, file := range files {
		items = append(items, fileItem{path: file, status: "queued"})
		index[file] = i
	}
	return &progressModel{
		title:    title,
		events:   events,
		spinner:  sp,
		prog:     prog,
		items:    items,
		index:    index,
		finished: make(map[pipeline.Stage]bool, len(linkStages)),
		width:    80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(pipeline.Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	if m.stageLabel != "" {
		header = fmt.Sprintf("%s (%s)", header, m.stageLabel)
	}
	switch {
	case m.done && m.failed:
		header = "failed: " + header
	case m.done:
		header = "done: " + header
	default:
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	const statusWidth = 10
	nameWidth := max(m.width-statusWidth-4, 20)
	for _, item := range m.items {
		status := styleStatus(item.status).Render(fmt.Sprintf("%*s", statusWidth, item.status))
		fmt.Fprintf(&b, "  %s %s\n", status, truncate(item.path, nameWidth))
	}

	b.WriteString("\n")
	if m.done && !m.failed {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.ViewAs(m.percent()))
	}
	b.WriteString("\n")
	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev pipeline.Event) tea.Cmd {
	if ev.Status == pipeline.StatusError {
		m.failed = true
	}
	if ev.File == "" {
		if label := stageLabel(ev.Stage, ev.Status); label != "" {
			m.stageLabel = label
		}
		if ev.Status == pipeline.StatusDone || ev.Status == pipeline.StatusCached {
			m.finished[ev.Stage] = true
		}
		return m.prog.SetPercent(m.percent())
	}

	idx, ok := m.index[ev.File]
	if !ok {
		return nil
	}
	item := &m.items[idx]
	if label := fileLabel(ev.Stage, ev.Status); label != "" {
		item.status = label
	}
	item.weight = max(item.weight, fileWeight(ev.Stage, ev.Status))
	return m.prog.SetPercent(m.percent())
}

func (m *progressModel) percent() float64 {
	var files float64
	for _, item := range m.items {
		files += item.weight
	}
	if len(m.items) > 0 {
		files /= float64(len(m.items))
	}
	var stages float64
	for _, s := range linkStages {
		if m.finished[s] {
			stages++
		}
	}
	return fileShare*files + (1-fileShare)*stages/float64(len(linkStages))
}

func fileWeight(stage pipeline.Stage, status pipeline.Status) float64 {
	switch {
	case status == pipeline.StatusCached, stage == pipeline.StageDecode && status == pipeline.StatusDone:
		return 1
	case stage == pipeline.StageDecode:
		return 0.5
	case stage == pipeline.StageRead && status == pipeline.StatusDone:
		return 0.4
	case stage == pipeline.StageRead && status == pipeline.StatusWorking:
		return 0.1
	default:
		return 0
	}
}

func fileLabel(stage pipeline.Stage, status pipeline.Status) string {
	switch status {
	case pipeline.StatusQueued:
		return "queued"
	case pipeline.StatusError:
		return "error"
	case pipeline.StatusCached:
		return "cached"
	case pipeline.StatusWorking:
		switch stage {
		case pipeline.StageRead:
			return "reading"
		case pipeline.StageDecode:
			return "decoding"
		}
	case pipeline.StatusDone:
		switch stage {
		case pipeline.StageRead:
			return "read"
		case pipeline.StageDecode:
			return "decoded"
		}
	}
	return ""
}

func stageLabel(stage pipeline.Stage, status pipeline.Status) string {
	if status == pipeline.StatusError {
		return string(stage) + " failed"
	}
	if status != pipeline.StatusWorking {
		return ""
	}
	switch stage {
	case pipeline.StageRead:
		return "reading"
	case pipeline.StageDecode:
		return "decoding"
	case pipeline.StageMerge:
		return "merging"
	case pipeline.StageEncode:
		return "encoding"
	case pipeline.StageWrite:
		return "writing"
	default:
		return ""
	}
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case "decoded", "cached":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case "error":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case "reading", "read", "decoding":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	// the tail counts towards width
	return runewidth.Truncate(value, width, "...")
}
