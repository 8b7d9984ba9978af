package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/moodmix/internal/models"
	"github.com/desertthunder/moodmix/internal/tasks"
	"golang.org/x/oauth2"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PromptView ViewState = iota
	GenerateView
	ResultView
	CreateView
	CreatedView
)

// maxLogLines bounds the progress log shown while a job runs.
const maxLogLines = 8

// TokenFunc is called whenever a job returns a refreshed token.
type TokenFunc func(*oauth2.Token)

// job is a running generator call. Progress is best-effort; done receives exactly one message.
type job struct {
	progress chan tasks.ProgressUpdate
	done     chan Msg
}

func newJob() *job {
	return &job{
		progress: make(chan tasks.ProgressUpdate, 50),
		done:     make(chan Msg, 1),
	}
}

// Model represents the TUI application state.
type Model struct {
	ctx       context.Context
	view      ViewState
	engine    tasks.Generator
	token     *oauth2.Token
	onToken   TokenFunc
	width     int
	height    int
	input     textinput.Model
	spinner   spinner.Model
	trackList list.Model
	job       *job
	log       []string
	playlist  *models.GeneratedPlaylist
	created   *models.CreatedPlaylist
	err       error
	help      help.Model
	keys      keyMap
}

// NewModel creates a new TUI model. onToken may be nil.
func NewModel(ctx context.Context, engine tasks.Generator, token *oauth2.Token, onToken TokenFunc) *Model {
	input := textinput.New()
	input.Placeholder = "rainy sunday morning, slow and warm"
	input.CharLimit = 2000
	input.Width = 60
	input.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.ok

	return &Model{
		ctx:     ctx,
		view:    PromptView,
		engine:  engine,
		token:   token,
		onToken: onToken,
		input:   input,
		spinner: s,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init starts the cursor blink.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.playlist != nil {
			m.trackList.SetSize(msg.Width-4, m.listHeight())
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case PromptView:
			return m.handlePromptKeys(msg)
		case GenerateView, CreateView:
			if key.Matches(msg, m.keys.abort) {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		case CreatedView:
			return m.handleCreatedKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != GenerateView && m.view != CreateView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateComponents(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgProgressUpdate:
		update := msg.data.(tasks.ProgressUpdate)
		m.appendLog(update.Message)
		return m, m.waitForJob()

	case MsgPlaylistGenerated:
		data := msg.data.(generatedData)
		m.job = nil
		m.keepToken(data.token)
		m.err = data.err
		m.playlist = data.playlist
		if data.playlist != nil {
			m.trackList = list.New(trackItems(data.playlist.Tracks), list.NewDefaultDelegate(), m.width-4, m.listHeight())
			m.trackList.Title = data.playlist.Title
			m.trackList.SetShowHelp(false)
		}
		m.view = ResultView
		return m, nil

	case MsgPlaylistCreated:
		data := msg.data.(createdData)
		m.job = nil
		m.keepToken(data.token)
		m.err = data.err
		m.created = data.created
		m.view = CreatedView
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case PromptView:
		return m.renderPrompt()
	case GenerateView:
		return m.renderProgress("Generating playlist")
	case ResultView:
		return m.renderResult()
	case CreateView:
		return m.renderProgress("Creating playlist on Spotify")
	case CreatedView:
		return m.renderCreated()
	default:
		return ""
	}
}

func (m *Model) handlePromptKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.abort), key.Matches(msg, m.keys.back):
		return m, tea.Quit
	case key.Matches(msg, m.keys.submit):
		prompt := strings.TrimSpace(m.input.Value())
		if prompt == "" {
			return m, nil
		}
		m.view = GenerateView
		m.err = nil
		m.log = nil
		return m, tea.Batch(m.spinner.Tick, m.startGenerate(prompt))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.playlist != nil && m.trackList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.trackList, cmd = m.trackList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart), key.Matches(msg, m.keys.back):
		return m, m.restart()
	case key.Matches(msg, m.keys.create):
		if m.playlist == nil || len(m.playlist.URIs) == 0 {
			return m, nil
		}
		m.view = CreateView
		m.log = nil
		return m, tea.Batch(m.spinner.Tick, m.startCreate())
	}

	if m.playlist == nil {
		return m, nil
	}
	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) handleCreatedKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		return m, m.restart()
	case key.Matches(msg, m.keys.back):
		if m.playlist != nil {
			m.err = nil
			m.view = ResultView
		}
	}
	return m, nil
}

func (m *Model) restart() tea.Cmd {
	m.view = PromptView
	m.playlist = nil
	m.created = nil
	m.err = nil
	m.log = nil
	m.input.Reset()
	return m.input.Focus()
}

func (m *Model) updateComponents(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case PromptView:
		m.input, cmd = m.input.Update(msg)
	case ResultView:
		if m.playlist != nil {
			m.trackList, cmd = m.trackList.Update(msg)
		}
	}
	return m, cmd
}

func (m *Model) keepToken(token *oauth2.Token) {
	if token == nil {
		return
	}
	m.token = token
	if m.onToken != nil {
		m.onToken(token)
	}
}

func (m *Model) appendLog(line string) {
	if line == "" {
		return
	}
	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

func (m *Model) listHeight() int {
	h := m.height - 10
	if h < 5 {
		h = 5
	}
	return h
}

func (m *Model) startGenerate(prompt string) tea.Cmd {
	j := newJob()
	m.job = j
	token := m.token

	go func() {
		playlist, fresh, err := m.engine.BuildPlaylist(m.ctx, token, prompt, j.progress)
		j.done <- playlistGeneratedMsg(playlist, fresh, err)
	}()

	return m.waitForJob()
}

func (m *Model) startCreate() tea.Cmd {
	j := newJob()
	m.job = j
	token := m.token
	req := tasks.PlaylistRequest{
		GenerationID: m.playlist.ID,
		Title:        m.playlist.Title,
		Description:  m.playlist.Description,
		URIs:         m.playlist.URIs,
	}

	go func() {
		created, fresh, err := m.engine.CreatePlaylist(m.ctx, token, req, j.progress)
		j.done <- playlistCreatedMsg(created, fresh, err)
	}()

	return m.waitForJob()
}

// waitForJob returns the next progress update or the job's final message.
func (m *Model) waitForJob() tea.Cmd {
	j := m.job
	if j == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case msg := <-j.done:
			return msg
		case update := <-j.progress:
			return progressUpdateMsg(update)
		}
	}
}

func (m *Model) renderPrompt() string {
	title := styles.title.Render("How are you feeling?")
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.submit, m.keys.back})
	return fmt.Sprintf("%s\n%s\n\n%s", title, m.input.View(), helpView)
}

func (m *Model) renderProgress(heading string) string {
	title := styles.title.Render(heading)

	var b strings.Builder
	for _, line := range m.log {
		b.WriteString("  " + line + "\n")
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.abort})
	return fmt.Sprintf("%s\n%s Working...\n\n%s\n%s", title, m.spinner.View(), b.String(), helpView)
}

func (m *Model) renderResult() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Generation failed: %v", m.err)) + "\n\n" +
			m.help.ShortHelpView([]key.Binding{m.keys.restart, m.keys.quit})
	}
	if m.playlist == nil {
		return styles.err.Render("No result available") + "\n\n" +
			m.help.ShortHelpView([]key.Binding{m.keys.restart, m.keys.quit})
	}

	var b strings.Builder
	if m.playlist.Description != "" {
		b.WriteString(styles.help.Render(m.playlist.Description) + "\n\n")
	}
	b.WriteString(m.trackList.View())

	if n := len(m.playlist.Failures); n > 0 {
		b.WriteString("\n" + styles.warn.Render(fmt.Sprintf("%d of %d songs not found:", n, len(m.playlist.Songs))))
		for _, f := range m.playlist.Failures {
			song := f.Song
			if f.Artist != "" {
				song += " - " + f.Artist
			}
			b.WriteString(fmt.Sprintf("\n  • %s (%s)", song, f.Reason))
		}
	}

	keys := []key.Binding{m.keys.up, m.keys.down, m.keys.restart, m.keys.quit}
	if len(m.playlist.URIs) > 0 {
		keys = append([]key.Binding{m.keys.create}, keys...)
	}
	return fmt.Sprintf("%s\n\n%s", b.String(), m.help.ShortHelpView(keys))
}

func (m *Model) renderCreated() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.restart, m.keys.quit})

	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Could not create playlist: %v", m.err)) + "\n\n" + helpView
	}
	if m.created == nil {
		return styles.err.Render("No playlist was created") + "\n\n" + helpView
	}

	title := styles.ok.Render("✓ Playlist created!")
	info := fmt.Sprintf("\nTitle: %s\nTracks: %d\nID: %s", m.playlist.Title, m.created.TrackCount, m.created.ID)
	if m.created.URL != "" {
		info += "\nURL: " + m.created.URL
	}
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, helpView)
}
