package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/playsync/internal/formatter"
	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	StatusView ViewState = iota
	PlaylistView
	EventView
	viewCount
)

func (v ViewState) String() string {
	switch v {
	case StatusView:
		return "Status"
	case PlaylistView:
		return "Playlists"
	case EventView:
		return "Events"
	default:
		return ""
	}
}

// maxEvents bounds the event log kept in memory.
const maxEvents = 200

// Source is the engine the dashboard observes.
type Source interface {
	Events() <-chan tasks.Update
	Identity() models.CloudIdentity
	PullPlaylists(ctx context.Context) (int, error)
}

// Playlists provides the local library snapshot.
type Playlists interface {
	Playlists() []models.PlaylistData
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	source       Source
	library      Playlists
	width        int
	height       int
	playlistList list.Model
	events       []tasks.Update
	pulling      bool
	closed       bool
	status       string
	err          error
	now          func() time.Time
	help         help.Model
	keys         keyMap
}

// NewModel creates a dashboard over a running synchronizer and its library.
func NewModel(ctx context.Context, source Source, library Playlists) *Model {
	m := &Model{
		ctx:     ctx,
		view:    StatusView,
		source:  source,
		library: library,
		now:     time.Now,
		help:    help.New(),
		keys:    newKeyMap(),
	}
	m.playlistList = list.New(nil, list.NewDefaultDelegate(), 0, 0)
	m.playlistList.Title = "Playlists"
	m.playlistList.SetShowHelp(false)
	m.refreshPlaylists()
	return m
}

// Init starts listening for engine updates.
func (m *Model) Init() tea.Cmd {
	return m.waitForEvent()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.playlistList.SetSize(max(msg.Width-4, 0), max(msg.Height-8, 0))
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateList(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgEvent:
		u := msg.data.(tasks.Update)
		m.events = append(m.events, u)
		if over := len(m.events) - maxEvents; over > 0 {
			m.events = m.events[over:]
		}
		if u.Kind == tasks.KindMerge || u.Kind == tasks.KindRemote {
			m.refreshPlaylists()
		}
		return m, m.waitForEvent()

	case MsgEventsClosed:
		m.closed = true
		return m, nil

	case MsgPulled:
		res := msg.data.(pulled)
		m.pulling = false
		m.err = res.err
		if res.err == nil {
			m.status = fmt.Sprintf("Merged %d playlist(s)", res.count)
		}
		m.refreshPlaylists()
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.view == PlaylistView && m.playlistList.FilterState() == list.Filtering {
		return m.updateList(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.next):
		m.view = (m.view + 1) % viewCount
		return m, nil
	case key.Matches(msg, m.keys.prev):
		m.view = (m.view + viewCount - 1) % viewCount
		return m, nil
	case key.Matches(msg, m.keys.pull):
		if m.pulling {
			return m, nil
		}
		m.pulling = true
		m.status = "Pulling playlists..."
		m.err = nil
		return m, m.pullPlaylists()
	}

	if m.view == PlaylistView {
		return m.updateList(msg)
	}
	return m, nil
}

func (m *Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.view != PlaylistView {
		return m, nil
	}
	var cmd tea.Cmd
	m.playlistList, cmd = m.playlistList.Update(msg)
	return m, cmd
}

func (m *Model) refreshPlaylists() {
	if m.library == nil {
		return
	}
	m.playlistList.SetItems(playlistItems(m.library.Playlists()))
}

func (m *Model) waitForEvent() tea.Cmd {
	ch := m.source.Events()
	return func() tea.Msg {
		select {
		case u, ok := <-ch:
			if !ok {
				return eventsClosedMsg()
			}
			return eventMsg(u)
		case <-m.ctx.Done():
			return eventsClosedMsg()
		}
	}
}

func (m *Model) pullPlaylists() tea.Cmd {
	return func() tea.Msg {
		n, err := m.source.PullPlaylists(m.ctx)
		return pulledMsg(n, err)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	switch m.view {
	case StatusView:
		body = m.renderStatus()
	case PlaylistView:
		body = m.playlistList.View()
	case EventView:
		body = m.renderEvents()
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s\n%s", m.renderTabs(), body, m.renderFooter(), m.help.View(m.keys))
}

func (m *Model) renderTabs() string {
	tabs := make([]string, 0, viewCount)
	for v := StatusView; v < viewCount; v++ {
		if v == m.view {
			tabs = append(tabs, styles.focus.Render(v.String()))
		} else {
			tabs = append(tabs, styles.tab.Render(v.String()))
		}
	}
	return strings.Join(tabs, " ")
}

func (m *Model) renderStatus() string {
	id := m.source.Identity()
	title := styles.title.Render("Linked account")
	return fmt.Sprintf("%s\n%s\n%s", title, formatter.IdentitySummary(id), formatter.LinkTable(id.Links))
}

func (m *Model) renderEvents() string {
	if len(m.events) == 0 {
		return styles.help.Render("No events yet")
	}

	rows := len(m.events)
	if m.height > 8 {
		rows = min(rows, m.height-8)
	}

	now := m.now()
	lines := make([]string, 0, rows)
	for _, u := range m.events[len(m.events)-rows:] {
		line := formatter.Event(u, now)
		if u.Err != nil {
			line = styles.err.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderFooter() string {
	switch {
	case m.err != nil:
		return styles.err.Render(fmt.Sprintf("Error: %v", m.err))
	case m.closed:
		return styles.warn.Render("Synchronizer stopped")
	case m.status != "":
		return styles.ok.Render(m.status)
	default:
		return ""
	}
}
