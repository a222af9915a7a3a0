// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tempokey/internal/engine"
	musickey "tempokey/internal/key"
	"tempokey/internal/stabilizer"
)

// Controller receives the monitor's commands. *engine.Engine implements it.
type Controller interface {
	Tap(now time.Time)
	Reset()
	ExitManualMode()
	SetKeyDisplayMode(mode musickey.DisplayMode)
}

var _ Controller = (*engine.Engine)(nil)

type keyMap struct {
	Tap     key.Binding
	Reset   key.Binding
	Auto    key.Binding
	Display key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tap, k.Reset, k.Auto, k.Display, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var keys = keyMap{
	Tap:     key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "tap")),
	Reset:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset")),
	Auto:    key.NewBinding(key.WithKeys("m", "esc"), key.WithHelp("m", "auto tempo")),
	Display: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "key display")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

var (
	labelStyle = lipgloss.NewStyle().Width(8).Bold(true)
	valueStyle = lipgloss.NewStyle().Width(14).Bold(true)
	stateStyle = lipgloss.NewStyle().Width(11)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75")).Bold(true)

	bandColors = map[stabilizer.Band]lipgloss.Color{
		stabilizer.BandHigh:   lipgloss.Color("#25A065"),
		stabilizer.BandMedium: lipgloss.Color("#E5C07B"),
		stabilizer.BandLow:    lipgloss.Color("#E06C75"),
	}
)

type eventMsg struct{ ev any }

type eventsClosedMsg struct{}

// waitForEvent blocks on the next engine event.
func waitForEvent(events <-chan any) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{ev}
	}
}

// MonitorModel shows the live tempo and key and forwards key presses to a
// Controller.
type MonitorModel struct {
	ctl    Controller
	events <-chan any
	now    func() time.Time

	tempo   engine.TempoEvent
	key     engine.KeyEvent
	capture engine.CaptureEvent
	waiting bool
	mode    musickey.DisplayMode

	bar  progress.Model
	help help.Model
}

// NewMonitorModel creates a monitor reading events and driving ctl.
func NewMonitorModel(ctl Controller, events <-chan any, mode musickey.DisplayMode) MonitorModel {
	return MonitorModel{
		ctl:    ctl,
		events: events,
		now:    time.Now,
		mode:   mode,
		tempo:  engine.TempoEvent{State: stabilizer.Analyzing},
		key:    engine.KeyEvent{State: stabilizer.Analyzing, DisplayMode: mode},
		bar:    progress.New(progress.WithWidth(20), progress.WithoutPercentage()),
		help:   help.New(),
	}
}

func (m MonitorModel) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.apply(msg.ev)
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Tap):
			m.ctl.Tap(m.now())
		case key.Matches(msg, keys.Reset):
			m.ctl.Reset()
		case key.Matches(msg, keys.Auto):
			m.ctl.ExitManualMode()
		case key.Matches(msg, keys.Display):
			m.mode = m.mode.Next()
			m.ctl.SetKeyDisplayMode(m.mode)
		}
	}
	return m, nil
}

func (m *MonitorModel) apply(ev any) {
	switch ev := ev.(type) {
	case engine.TempoEvent:
		m.tempo = ev
	case engine.KeyEvent:
		m.key = ev
		m.mode = ev.DisplayMode
	case engine.SilenceEvent:
		m.waiting = ev.Waiting
	case engine.CaptureEvent:
		m.capture = ev
	}
}

func (m MonitorModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("tempokey") + "\n\n")

	bpm := "--"
	if m.tempo.HasBPM {
		bpm = fmt.Sprintf("%.1f BPM", m.tempo.BPM)
	}
	tempoNote := ""
	if m.tempo.Manual {
		tempoNote = dimStyle.Render(fmt.Sprintf("  manual, %d taps", m.tempo.Taps))
	} else if m.tempo.Choice != "" && m.tempo.Choice != "raw" {
		tempoNote = dimStyle.Render("  " + m.tempo.Choice)
	}
	sb.WriteString(m.row("TEMPO", bpm, m.tempo.State, m.tempo.Band, m.tempo.Confidence, m.tempo.HasBPM) + tempoNote + "\n")

	name := m.key.Display
	if name == "" {
		name = "--"
	}
	sb.WriteString(m.row("KEY", name, m.key.State, m.key.Band, m.key.Confidence, m.key.Key != "") + "\n\n")

	sb.WriteString(m.status() + "\n\n")
	sb.WriteString(m.help.View(keys))
	return sb.String()
}

func (m MonitorModel) row(label, value string, state stabilizer.State, band stabilizer.Band, conf float64, held bool) string {
	style := valueStyle
	if held {
		style = style.Foreground(bandColors[band])
	} else {
		conf = 0
	}
	return labelStyle.Render(label) +
		style.Render(value) +
		stateStyle.Render(state.String()) +
		m.bar.ViewAs(conf)
}

func (m MonitorModel) status() string {
	var parts []string
	switch {
	case m.capture.Error != "":
		parts = append(parts, errStyle.Render("capture "+m.capture.Status+": "+m.capture.Error))
	case m.capture.Status != "":
		parts = append(parts, dimStyle.Render("capture "+m.capture.Status+" via "+m.capture.Backend))
	}
	if m.waiting {
		parts = append(parts, warnStyle.Render("waiting for audio"))
	}
	return strings.Join(parts, "  •  ")
}

// StartMonitorUI runs the live monitor until the user quits, events closes
// or ctx is cancelled.
func StartMonitorUI(ctx context.Context, ctl Controller, events <-chan any, mode musickey.DisplayMode) error {
	p := tea.NewProgram(
		NewMonitorModel(ctl, events, mode),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
