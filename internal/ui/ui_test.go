package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/tasks"
)

type fakeSource struct {
	mu     sync.Mutex
	events chan tasks.Update
	id     models.CloudIdentity
	pulls  int
	err    error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		events: make(chan tasks.Update, 4),
		id: models.CloudIdentity{
			UserID:          7,
			Name:            "Ada",
			DeviceID:        11,
			ConfigurationID: 30,
			Flags:           models.SyncFlags{Synchronize: true, SynchronizePlaylists: true},
			Links:           []models.Link{{ID: 3, Provider: "lastfm", Connected: true}},
		},
	}
}

func (f *fakeSource) Events() <-chan tasks.Update { return f.events }
func (f *fakeSource) Identity() models.CloudIdentity { return f.id.Clone() }
func (f *fakeSource) PullPlaylists(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	return 2, f.err
}

type fakeLibrary struct {
	playlists []models.PlaylistData
}

func (f *fakeLibrary) Playlists() []models.PlaylistData { return f.playlists }

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestModel(t *testing.T) (*Model, *fakeSource, *fakeLibrary) {
	t.Helper()
	src := newFakeSource()
	lib := &fakeLibrary{playlists: []models.PlaylistData{
		{Key: "a", Name: "Road Trip", Tracks: []models.Track{{Path: "/m/a.mp3", Length: 90}}},
		{Key: "b", ID: 5, Name: "Focus"},
	}}
	m := NewModel(context.Background(), src, lib)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m, src, lib
}

func TestModel(t *testing.T) {
	t.Run("starts on the status view", func(t *testing.T) {
		m, _, _ := newTestModel(t)
		if m.view != StatusView {
			t.Fatalf("view = %v, want %v", m.view, StatusView)
		}
		out := m.View()
		for _, want := range []string{"Ada (#7)", "Device:        #11", "Configuration: #30", "lastfm"} {
			if !strings.Contains(out, want) {
				t.Errorf("status view missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("tab cycles views", func(t *testing.T) {
		m, _, _ := newTestModel(t)
		m.Update(tea.KeyMsg{Type: tea.KeyTab})
		if m.view != PlaylistView {
			t.Fatalf("view = %v, want %v", m.view, PlaylistView)
		}
		m.Update(tea.KeyMsg{Type: tea.KeyTab})
		m.Update(tea.KeyMsg{Type: tea.KeyTab})
		if m.view != StatusView {
			t.Fatalf("view = %v, want wrap to %v", m.view, StatusView)
		}
		m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
		if m.view != EventView {
			t.Fatalf("view = %v, want %v", m.view, EventView)
		}
	})

	t.Run("lists library playlists", func(t *testing.T) {
		m, _, _ := newTestModel(t)
		if got := len(m.playlistList.Items()); got != 2 {
			t.Fatalf("items = %d, want 2", got)
		}
		item := m.playlistList.Items()[1].(playlistItem)
		if desc := item.Description(); !strings.Contains(desc, "cloud #5") {
			t.Errorf("description = %q", desc)
		}
	})

	t.Run("q quits", func(t *testing.T) {
		m, _, _ := newTestModel(t)
		_, cmd := m.Update(runes("q"))
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected tea.QuitMsg")
		}
	})
}

func TestModelEvents(t *testing.T) {
	t.Run("waits for engine updates", func(t *testing.T) {
		m, src, _ := newTestModel(t)
		src.events <- tasks.NewUpdate(tasks.KindFlush, "sent 2 operation(s)")

		msg := m.Init()()
		got, ok := msg.(Msg)
		if !ok || got.kind != MsgEvent {
			t.Fatalf("msg = %#v, want event", msg)
		}

		_, cmd := m.Update(got)
		if cmd == nil {
			t.Error("expected the model to keep listening")
		}
		if len(m.events) != 1 {
			t.Fatalf("events = %d, want 1", len(m.events))
		}

		m.view = EventView
		if out := m.View(); !strings.Contains(out, "[flush] sent 2 operation(s)") {
			t.Errorf("event view:\n%s", out)
		}
	})

	t.Run("closed channel stops listening", func(t *testing.T) {
		m, src, _ := newTestModel(t)
		close(src.events)

		msg := m.waitForEvent()()
		_, cmd := m.Update(msg)
		if cmd != nil {
			t.Error("expected no further command")
		}
		if !strings.Contains(m.View(), "Synchronizer stopped") {
			t.Error("expected stopped footer")
		}
	})

	t.Run("cancelled context stops listening", func(t *testing.T) {
		src := newFakeSource()
		ctx, cancel := context.WithCancel(context.Background())
		m := NewModel(ctx, src, nil)
		cancel()

		done := make(chan tea.Msg, 1)
		go func() { done <- m.waitForEvent()() }()
		select {
		case msg := <-done:
			if got := msg.(Msg); got.kind != MsgEventsClosed {
				t.Errorf("kind = %v, want %v", got.kind, MsgEventsClosed)
			}
		case <-time.After(time.Second):
			t.Fatal("waitForEvent did not return")
		}
	})

	t.Run("event log is bounded", func(t *testing.T) {
		m, _, _ := newTestModel(t)
		for i := range maxEvents + 5 {
			m.Update(eventMsg(tasks.NewUpdate(tasks.KindListen, "listen %d", i)))
		}
		if len(m.events) != maxEvents {
			t.Fatalf("events = %d, want %d", len(m.events), maxEvents)
		}
		if m.events[0].Message != "listen 5" {
			t.Errorf("oldest = %q, want listen 5", m.events[0].Message)
		}
	})

	t.Run("merge events refresh playlists", func(t *testing.T) {
		m, _, lib := newTestModel(t)
		lib.playlists = append(lib.playlists, models.PlaylistData{Key: "c", Name: "New"})
		m.Update(eventMsg(tasks.NewUpdate(tasks.KindMerge, "merged 1 playlist(s)")))
		if got := len(m.playlistList.Items()); got != 3 {
			t.Errorf("items = %d, want 3", got)
		}
	})
}

func TestModelPull(t *testing.T) {
	t.Run("pull reports merged count", func(t *testing.T) {
		m, src, _ := newTestModel(t)
		_, cmd := m.Update(runes("p"))
		if cmd == nil || !m.pulling {
			t.Fatal("expected pull to start")
		}

		_, again := m.Update(runes("p"))
		if again != nil {
			t.Error("second pull while pulling should be ignored")
		}

		m.Update(cmd())
		if m.pulling {
			t.Error("pulling should be cleared")
		}
		if src.pulls != 1 {
			t.Errorf("pulls = %d, want 1", src.pulls)
		}
		if !strings.Contains(m.View(), "Merged 2 playlist(s)") {
			t.Error("expected merged status")
		}
	})

	t.Run("pull failure is shown", func(t *testing.T) {
		m, src, _ := newTestModel(t)
		src.err = errors.New("boom")
		_, cmd := m.Update(runes("p"))
		m.Update(cmd())
		if !strings.Contains(m.View(), "Error: boom") {
			t.Error("expected error footer")
		}
	})
}
