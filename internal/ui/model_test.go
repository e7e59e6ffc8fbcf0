package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/audiolibrelab/antirec/internal/audio"
	"github.com/audiolibrelab/antirec/internal/engine"
	"github.com/audiolibrelab/antirec/internal/events"
	"github.com/audiolibrelab/antirec/internal/relay"
	"github.com/audiolibrelab/antirec/internal/sample"
)

func sampleInfo() *engine.SessionInfo {
	cfg := audio.StreamConfig{Format: sample.FormatF32, Channels: 2, SampleRate: 48000}
	return &engine.SessionInfo{
		ID:        "abc",
		State:     engine.StateStreaming,
		StartedAt: time.Now().Add(-65 * time.Second),
		Negotiation: &audio.Negotiation{
			Input:   audio.Endpoint{Device: audio.DeviceInfo{Name: "Microphone"}, Config: cfg},
			Output:  audio.Endpoint{Device: audio.DeviceInfo{Name: "CABLE Input"}, Config: cfg},
			Virtual: true,
		},
		Relay:          &relay.Stats{Buffered: 128, Capacity: 48000, Underruns: 3},
		CaptureBatches: 42,
	}
}

func TestNewModel(t *testing.T) {
	model := NewModel(nil, nil)

	if model.State() != engine.StateIdle {
		t.Errorf("expected idle state without session, got %s", model.State())
	}
	if model.showDebug {
		t.Error("expected showDebug to be false initially")
	}
	if model.View() != "Loading..." {
		t.Errorf("expected loading view before the first resize, got %q", model.View())
	}
}

func TestStatusMsg(t *testing.T) {
	model := NewModel(nil, nil)

	updated, _ := model.Update(StatusMsg{Info: sampleInfo()})
	model = updated.(Model)
	updated, _ = model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model = updated.(Model)

	if model.State() != engine.StateStreaming {
		t.Errorf("expected streaming state, got %s", model.State())
	}

	view := model.View()
	for _, want := range []string{"STREAMING", "Microphone", "CABLE Input (virtual)", "Batches: 42", "Under: 3", "00:01:05"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q:\n%s", want, view)
		}
	}
}

func TestLevelsDecay(t *testing.T) {
	model := NewModel(nil, nil)

	model.applyLevels(LevelMsg{Ori: 0.5, New: 1})
	if model.oriLevel != 0.5 || model.newLevel != 1 {
		t.Fatalf("expected levels to jump to peaks, got %v %v", model.oriLevel, model.newLevel)
	}

	model.applyLevels(LevelMsg{Ori: 0, New: 0.9})
	if model.oriLevel != 0.5*levelDecay {
		t.Errorf("expected ori level to decay to %v, got %v", 0.5*levelDecay, model.oriLevel)
	}
	if model.newLevel != 0.9 {
		t.Errorf("expected new level to follow the louder peak, got %v", model.newLevel)
	}
	if model.updates != 2 {
		t.Errorf("expected 2 updates, got %d", model.updates)
	}
}

func TestLevelMsgFromSubscription(t *testing.T) {
	hub := events.NewHub()
	sub := hub.Subscribe(4)
	hub.Publish(events.Update{Ori: []float32{0.1, -0.4}, New: []float32{0.2, 2}})

	msg := waitForUpdate(sub)()
	levels, ok := msg.(LevelMsg)
	if !ok {
		t.Fatalf("expected LevelMsg, got %T", msg)
	}
	if levels.Ori != 0.4 || levels.New != 1 {
		t.Errorf("unexpected levels %+v", levels)
	}

	hub.Unsubscribe(sub)
	if _, ok := waitForUpdate(sub)().(eventsClosedMsg); !ok {
		t.Error("expected closed subscription to end the listener")
	}
	if waitForUpdate(nil) != nil {
		t.Error("expected no listener without subscription")
	}
}

func TestQuitKeys(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'q'}},
		{Type: tea.KeyCtrlC},
		{Type: tea.KeyEsc},
	} {
		updated, cmd := NewModel(nil, nil).Update(key)
		if cmd == nil {
			t.Errorf("expected quit command for %s", key)
			continue
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("expected QuitMsg for %s", key)
		}
		if !updated.(Model).quitting {
			t.Errorf("expected quitting after %s", key)
		}
	}
}

func TestDebugToggle(t *testing.T) {
	updated, _ := NewModel(nil, nil).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'d'}})
	if !updated.(Model).showDebug {
		t.Error("expected debug view after pressing d")
	}
}

func TestMeterPosition(t *testing.T) {
	if meterPosition(0) != 0 {
		t.Error("expected silence at the bottom of the meter")
	}
	if meterPosition(1) != 1 {
		t.Error("expected full scale at the top of the meter")
	}
	if p := meterPosition(0.0005); p != 0 {
		t.Errorf("expected levels below -60 dB at the floor, got %v", p)
	}
	if p := meterPosition(0.1); p < 0.66 || p > 0.67 {
		t.Errorf("expected -20 dB at two thirds, got %v", p)
	}
}

func TestLinePadding(t *testing.T) {
	row := line("hello")
	if got := len([]rune(row)); got != boxWidth+3 {
		t.Errorf("expected row width %d, got %d", boxWidth+3, got)
	}
	long := line(strings.Repeat("x", 200))
	if len([]rune(long)) != boxWidth+3 {
		t.Errorf("expected long content truncated to the box, got %d", len([]rune(long)))
	}
}
