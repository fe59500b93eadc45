package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/satindergrewal/lyricast/internal/session"
)

var (
	colorRed    = lipgloss.Color("#E06C75")
	colorGreen  = lipgloss.Color("#98C379")
	colorYellow = lipgloss.Color("#E5C07B")
	colorMuted  = lipgloss.Color("#636B78")

	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C678DD")).Bold(true)
	trackStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ABB2BF"))
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	warnStyle  = lipgloss.NewStyle().Foreground(colorYellow)
	okStyle    = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	boxStyle   = lipgloss.NewStyle().Padding(1, 2)
)

const maxBarWidth = 60

type keyMap struct {
	Abort key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Abort: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "abort"),
		),
	}
}

type progressMsg session.Progress

type doneMsg session.Outcome

type model struct {
	title   string
	keys    keyMap
	bar     progress.Model
	updates <-chan session.Progress
	abort   func()
	wait    func() session.Outcome

	prog     session.Progress
	aborting bool
	outcome  *session.Outcome
}

func newModel(title string, abort func(), updates <-chan session.Progress, wait func() session.Outcome) model {
	return model{
		title:   title,
		keys:    defaultKeyMap(),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		updates: updates,
		abort:   abort,
		wait:    wait,
		prog:    session.Progress{State: session.Preloading},
	}
}

// listen delivers the next progress snapshot, or the outcome once the
// session has reported it.
func (m model) listen() tea.Cmd {
	updates, wait := m.updates, m.wait
	return func() tea.Msg {
		if pr, ok := <-updates; ok {
			return progressMsg(pr)
		}
		return doneMsg(wait())
	}
}

func (m model) Init() tea.Cmd {
	return m.listen()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-8, maxBarWidth)
		if m.bar.Width < 10 {
			m.bar.Width = 10
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Abort) && !m.aborting && m.outcome == nil {
			m.aborting = true
			abort := m.abort
			return m, func() tea.Msg {
				abort()
				return nil
			}
		}
		return m, nil

	case progressMsg:
		m.prog = session.Progress(msg)
		return m, m.listen()

	case doneMsg:
		o := session.Outcome(msg)
		m.outcome = &o
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	if m.outcome != nil {
		b.WriteString(m.outcomeView())
		return boxStyle.Render(b.String()) + "\n"
	}

	pr := m.prog
	if pr.Tracks > 0 {
		line := fmt.Sprintf("Track %d/%d", pr.Track+1, pr.Tracks)
		if pr.Title != "" {
			line += "  " + pr.Title
		}
		b.WriteString(trackStyle.Render(line))
		b.WriteString("\n")
	}
	b.WriteString(m.bar.ViewAs(pr.Percent / 100))
	b.WriteString("\n\n")

	status := pr.State.String()
	if pr.Codec != "" {
		status += "  " + pr.Codec
	}
	b.WriteString(mutedStyle.Render(status))
	if pr.Fallback {
		b.WriteString("  " + warnStyle.Render("(fallback codec)"))
	}
	b.WriteString("\n")

	if m.aborting {
		b.WriteString(warnStyle.Render("aborting..."))
	} else {
		h := m.keys.Abort.Help()
		b.WriteString(mutedStyle.Render(h.Key + " " + h.Desc))
	}
	return boxStyle.Render(b.String()) + "\n"
}

func (m model) outcomeView() string {
	o := m.outcome
	switch o.Status {
	case session.Succeeded:
		s := okStyle.Render("Done")
		if a := o.Artifact; a != nil {
			s += mutedStyle.Render(fmt.Sprintf("  %s  %.1fs  %s", a.Name, a.Duration, humanBytes(a.Size())))
		}
		return s
	case session.AbortedByUser:
		return warnStyle.Render("Aborted")
	}
	s := errStyle.Render("Failed")
	if o.Err != nil {
		s += "  " + mutedStyle.Render(o.Err.Error())
	}
	return s
}

func humanBytes(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := unit, 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
