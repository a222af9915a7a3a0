// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tempokey/internal/audio"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))
)

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	DetailScreen
)

// listDevices is replaced in tests.
var listDevices = audio.GetDevices

// DeviceListModel is the Bubble Tea model for browsing capture devices.
type DeviceListModel struct {
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType
}

func (m DeviceListModel) Init() tea.Cmd { return fetchDevices }

// fetchDevices gets the devices of every backend.
func fetchDevices() tea.Msg {
	devices, err := listDevices()
	if err != nil {
		return errMsg{err}
	}
	return devicesMsg{devices}
}

type (
	devicesMsg struct{ devices []audio.Device }
	errMsg     struct{ err error }
)

type deviceKeyMap struct {
	Up, Down, Details, Back, Quit key.Binding
}

var deviceKeys = deviceKeyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k")),
	Down:    key.NewBinding(key.WithKeys("down", "j")),
	Details: key.NewBinding(key.WithKeys("enter")),
	Back:    key.NewBinding(key.WithKeys("esc", "backspace")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c")),
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if m.ready {
			m.viewport.Width, m.viewport.Height = msg.Width, msg.Height-4
			break
		}
		m.viewport = viewport.New(msg.Width, msg.Height-4)
		m.ready = true
		m.viewport.SetContent(m.content())

	case devicesMsg:
		m.devices = msg.devices
		if m.ready {
			m.viewport.SetContent(m.content())
		}

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if m.err != nil || key.Matches(msg, deviceKeys.Quit) {
			return m, tea.Quit
		}
		m = m.navigate(msg)
		m.viewport.SetContent(m.content())
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m DeviceListModel) navigate(msg tea.KeyMsg) DeviceListModel {
	if m.activeScreen == DetailScreen {
		if key.Matches(msg, deviceKeys.Back) {
			m.activeScreen = ListScreen
		}
		return m
	}
	switch {
	case key.Matches(msg, deviceKeys.Up):
		m.selectedIndex = max(m.selectedIndex-1, 0)
	case key.Matches(msg, deviceKeys.Down):
		m.selectedIndex = max(min(m.selectedIndex+1, len(m.devices)-1), 0)
	case key.Matches(msg, deviceKeys.Details):
		if len(m.devices) > 0 {
			m.activeScreen = DetailScreen
		}
	}
	return m
}

// View renders the UI
func (m DeviceListModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress any key to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}

	title, help := "Capture Devices", "↑/↓: Navigate • Enter: Details • q: Quit"
	if m.activeScreen == DetailScreen {
		title, help = "Device Details", "Esc: Back • q: Quit"
	}
	return titleStyle.Render(title) + "\n\n" + m.viewport.View() + "\n\n" + infoStyle.Render(help)
}

func (m DeviceListModel) content() string {
	if m.activeScreen == DetailScreen && len(m.devices) > 0 {
		return m.renderDetail()
	}
	return m.renderDevices()
}

// renderDevices formats the device list grouped by backend.
func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No audio devices found."
	}

	var sb strings.Builder
	backend := ""
	for i, device := range m.devices {
		if device.Backend != backend {
			backend = device.Backend
			sb.WriteString(dimStyle.Render(backend) + "\n")
		}

		line := fmt.Sprintf("[%d] %s (%s)", device.ID, device.Name, device.Direction())
		if device.Default {
			line += " *"
		}
		if i == m.selectedIndex {
			line = highlightStyle.Render("▶ " + line)
		} else {
			line = "  " + line
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

// renderDetail shows the selected device and how to capture from it.
func (m DeviceListModel) renderDetail() string {
	d := m.devices[m.selectedIndex]

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n", highlightStyle.Render(d.Name))
	fmt.Fprintf(&sb, "Backend:          %s\n", d.Backend)
	fmt.Fprintf(&sb, "Direction:        %s\n", d.Direction())
	fmt.Fprintf(&sb, "Input channels:   %d\n", d.MaxInputChannels)
	fmt.Fprintf(&sb, "Output channels:  %d\n", d.MaxOutputChannels)
	if d.DefaultSampleRate > 0 {
		fmt.Fprintf(&sb, "Sample rate:      %.0f Hz\n", d.DefaultSampleRate)
	}
	if d.Default {
		sb.WriteString("Default device\n")
	}
	fmt.Fprintf(&sb, "\nAnalyze it with:  tempokey --device %q\n", d.Name)
	return sb.String()
}

// NewDeviceListModel starts on the list screen.
func NewDeviceListModel() DeviceListModel {
	return DeviceListModel{activeScreen: ListScreen}
}

// StartDeviceListUI runs the device browser until the user quits.
func StartDeviceListUI() error {
	_, err := tea.NewProgram(NewDeviceListModel(), tea.WithAltScreen()).Run()
	return err
}
