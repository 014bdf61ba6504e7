package internal

import (
	"os"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"roomshare/internal/wire"
)

// tui model for the room/file client. Network handles are set once the
// connect command succeeds.
type TUIModel struct {
	textInput       textinput.Model
	options         ClientOptions
	files           *FileClient
	presence        *PresenceClient
	username        string
	room            string
	roomFiles       []wire.FileInfo
	users           []string
	entries         []logEntry
	mode            appMode
	isConnected     bool
	connectionError error
	busy            bool
	quitting        bool
}

type appMode int

const (
	modeNamePrompt appMode = iota
	modeRoom
)

// logEntry is one line of the room log: chat, notification or local notice.
type logEntry struct {
	At     time.Time
	User   string
	Body   string
	System bool
}

// bubbletea messages produced by commands
type (
	connectedMsg struct {
		files    *FileClient
		presence *PresenceClient
	}
	connectFailedMsg struct{ err error }
	enteredMsg       struct {
		username string
		room     string
		files    []string
	}
	joinedMsg struct {
		room  string
		files []string
	}
	filesMsg   []wire.FileInfo
	roomsMsg   []string
	noticeMsg  string
	eventMsg   wire.Event
	listingMsg struct {
		path  string
		items []FileItem
	}
	heartbeatMsg struct{}
	errorMsg     error
	closedMsg    struct{}
)

const maxLogEntries = 200

func NewTUIModel(options ClientOptions) *TUIModel {
	input := textinput.New()
	input.CharLimit = 0
	input.Focus()

	username := options.Username
	if username == "" {
		username = defaultUsername()
	}
	if options.Room == "" {
		options.Room = DefaultRoom
	}

	model := &TUIModel{
		textInput: input,
		options:   options,
		username:  username,
		entries:   make([]logEntry, 0, 64),
	}
	model.textInput.SetValue(username)
	model.textInput.Prompt = "name> "
	model.textInput.Placeholder = "Enter display name…"
	model.mode = modeNamePrompt
	return model
}

func defaultUsername() string {
	if user := os.Getenv("ROOMSHARE_USER"); user != "" {
		return user
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return AnonymousUser
}

func (model *TUIModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, model.connectCmd())
}

func (model *TUIModel) notice(body string) {
	model.appendEntry(logEntry{At: time.Now(), Body: body, System: true})
}

func (model *TUIModel) appendEntry(entry logEntry) {
	model.entries = append(model.entries, entry)
	if overflow := len(model.entries) - maxLogEntries; overflow > 0 {
		model.entries = model.entries[overflow:]
	}
}
