// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"tempokey/internal/audio"
	"tempokey/internal/engine"
	musickey "tempokey/internal/key"
	"tempokey/internal/stabilizer"
)

type fakeController struct {
	taps   []time.Time
	resets int
	exits  int
	modes  []musickey.DisplayMode
}

func (f *fakeController) Tap(now time.Time) { f.taps = append(f.taps, now) }
func (f *fakeController) Reset() { f.resets++ }
func (f *fakeController) ExitManualMode() { f.exits++ }
func (f *fakeController) SetKeyDisplayMode(m musickey.DisplayMode) { f.modes = append(f.modes, m) }

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestMonitorKeysDriveController(t *testing.T) {
	ctl := &fakeController{}
	at := time.Unix(100, 0)
	m := NewMonitorModel(ctl, make(chan any), musickey.DisplayBoth)
	m.now = func() time.Time { return at }

	var model tea.Model = m
	for _, msg := range []tea.KeyMsg{
		{Type: tea.KeySpace},
		runes("r"),
		runes("m"),
		{Type: tea.KeyEsc},
		runes("d"),
		runes("d"),
		runes("x"),
	} {
		var cmd tea.Cmd
		model, cmd = model.Update(msg)
		if cmd != nil {
			t.Errorf("%q returned a command", msg.String())
		}
	}

	if len(ctl.taps) != 1 || !ctl.taps[0].Equal(at) {
		t.Errorf("taps = %v", ctl.taps)
	}
	if ctl.resets != 1 || ctl.exits != 2 {
		t.Errorf("resets %d exits %d", ctl.resets, ctl.exits)
	}
	want := []musickey.DisplayMode{musickey.DisplayName, musickey.DisplayCamelot}
	if len(ctl.modes) != 2 || ctl.modes[0] != want[0] || ctl.modes[1] != want[1] {
		t.Errorf("modes = %v, want %v", ctl.modes, want)
	}

	_, cmd := model.Update(runes("q"))
	if cmd == nil {
		t.Fatal("q did not quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not return tea.Quit")
	}
}

func TestMonitorRendersEvents(t *testing.T) {
	events := make(chan any, 4)
	m := NewMonitorModel(&fakeController{}, events, musickey.DisplayBoth)

	events <- engine.TempoEvent{Type: engine.TypeTempo, BPM: 128, HasBPM: true, Confidence: 0.8, State: stabilizer.Tracking, Band: stabilizer.BandHigh, Choice: "half"}
	events <- engine.KeyEvent{Type: engine.TypeKey, Key: "Am", Camelot: "8A", Display: "8A", Confidence: 0.6, State: stabilizer.Uncertain, Band: stabilizer.BandMedium, DisplayMode: musickey.DisplayCamelot}
	events <- engine.SilenceEvent{Type: engine.TypeSilence, Waiting: true}
	events <- engine.CaptureEvent{Type: engine.TypeCapture, Status: "running", Backend: "malgo-loopback"}

	var model tea.Model = m
	cmd := model.Init()
	for range 4 {
		msg := cmd()
		if _, ok := msg.(eventMsg); !ok {
			t.Fatalf("got %T, want an event", msg)
		}
		model, cmd = model.Update(msg)
	}

	mm := model.(MonitorModel)
	if mm.mode != musickey.DisplayCamelot {
		t.Errorf("mode = %v, display mode not followed", mm.mode)
	}
	view := mm.View()
	for _, want := range []string{"128.0 BPM", "half", "tracking", "8A", "uncertain", "waiting for audio", "running via malgo-loopback"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	close(events)
	if _, ok := cmd().(eventsClosedMsg); !ok {
		t.Error("closed channel not reported")
	}
}

func TestMonitorRendersManualAndEmpty(t *testing.T) {
	m := NewMonitorModel(&fakeController{}, nil, musickey.DisplayBoth)
	view := m.View()
	if !strings.Contains(view, "--") || !strings.Contains(view, "analyzing") {
		t.Errorf("empty view:\n%s", view)
	}

	m.apply(engine.TempoEvent{BPM: 120, HasBPM: true, Manual: true, Taps: 4, State: stabilizer.Tracking, Band: stabilizer.BandHigh})
	m.apply(engine.KeyEvent{State: stabilizer.Atonal})
	m.apply(engine.CaptureEvent{Status: "failed", Error: "no device"})
	view = m.View()
	for _, want := range []string{"120.0 BPM", "manual, 4 taps", "atonal", "capture failed: no device"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestDeviceList(t *testing.T) {
	orig := listDevices
	t.Cleanup(func() { listDevices = orig })
	listDevices = func() ([]audio.Device, error) {
		return []audio.Device{
			{ID: 0, Name: "Speakers", Backend: "malgo-loopback", MaxOutputChannels: 2, Default: true},
			{ID: 1, Name: "USB Mic", Backend: "portaudio", MaxInputChannels: 1, DefaultSampleRate: 44100},
		}, nil
	}

	var model tea.Model = NewDeviceListModel()
	model, _ = model.Update(model.Init()())
	model, _ = model.Update(tea.WindowSizeMsg{Width: 80, Height: 30})

	view := model.View()
	for _, want := range []string{"Capture Devices", "malgo-loopback", "[0] Speakers (Output) *", "portaudio", "[1] USB Mic (Input)"} {
		if !strings.Contains(view, want) {
			t.Errorf("list missing %q:\n%s", want, view)
		}
	}

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyDown})
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	view = model.View()
	for _, want := range []string{"Device Details", "USB Mic", "44100 Hz", `--device "USB Mic"`} {
		if !strings.Contains(view, want) {
			t.Errorf("detail missing %q:\n%s", want, view)
		}
	}

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if model.(DeviceListModel).activeScreen != ListScreen {
		t.Error("esc did not return to the list")
	}
}

func TestDeviceListError(t *testing.T) {
	orig := listDevices
	t.Cleanup(func() { listDevices = orig })
	listDevices = func() ([]audio.Device, error) { return nil, errors.New("no backends") }

	var model tea.Model = NewDeviceListModel()
	model, _ = model.Update(model.Init()())
	if !strings.Contains(model.View(), "no backends") {
		t.Errorf("view = %q", model.View())
	}
	_, cmd := model.Update(runes("x"))
	if cmd == nil {
		t.Error("any key should exit after an error")
	}
}
