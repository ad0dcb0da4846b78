package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/playsync/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgEvent MsgKind = iota
	MsgEventsClosed
	MsgPulled
)

// eventMsg is the constructor for [MsgEvent]
func eventMsg(u tasks.Update) Msg {
	return Msg{kind: MsgEvent, data: u}
}

// eventsClosedMsg is the constructor for [MsgEventsClosed]
func eventsClosedMsg() Msg {
	return Msg{kind: MsgEventsClosed}
}

type pulled struct {
	count int
	err   error
}

// pulledMsg is the constructor for [MsgPulled]
func pulledMsg(count int, err error) Msg {
	return Msg{kind: MsgPulled, data: pulled{count, err}}
}
