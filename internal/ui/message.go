package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/moodmix/internal/models"
	"github.com/desertthunder/moodmix/internal/tasks"
	"golang.org/x/oauth2"
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
	MsgPlaylistGenerated
	MsgPlaylistCreated
)

type generatedData struct {
	playlist *models.GeneratedPlaylist
	token    *oauth2.Token
	err      error
}

type createdData struct {
	created *models.CreatedPlaylist
	token   *oauth2.Token
	err     error
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// playlistGeneratedMsg is the constructor for [MsgPlaylistGenerated]
func playlistGeneratedMsg(playlist *models.GeneratedPlaylist, token *oauth2.Token, err error) Msg {
	return Msg{kind: MsgPlaylistGenerated, data: generatedData{playlist, token, err}}
}

// playlistCreatedMsg is the constructor for [MsgPlaylistCreated]
func playlistCreatedMsg(created *models.CreatedPlaylist, token *oauth2.Token, err error) Msg {
	return Msg{kind: MsgPlaylistCreated, data: createdData{created, token, err}}
}
