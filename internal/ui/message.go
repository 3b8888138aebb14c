package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/spotenv/internal/bootstrap"
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
	MsgProgressUpdate MsgKind = iota
	MsgBootstrapComplete
)

type completion struct {
	result *bootstrap.Result
	err    error
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update bootstrap.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// bootstrapCompleteMsg is the constructor for [MsgBootstrapComplete]
func bootstrapCompleteMsg(result *bootstrap.Result, err error) Msg {
	return Msg{kind: MsgBootstrapComplete, data: completion{result, err}}
}
