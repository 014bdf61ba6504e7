package internal

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"roomshare/internal/wire"
)

// Update reacts to key presses and command results.
func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		if typedMessage.Type == tea.KeyCtrlC {
			model.quitting = true
			return model, model.quitCmd()
		}
		if typedMessage.Type == tea.KeyEnter {
			return model.submit()
		}

	case connectedMsg:
		model.files = typedMessage.files
		model.presence = typedMessage.presence
		model.isConnected = true
		model.connectionError = nil
		return model, nil

	case connectFailedMsg:
		model.connectionError = typedMessage.err
		return model, nil

	case enteredMsg:
		model.busy = false
		model.username = typedMessage.username
		model.mode = modeRoom
		model.textInput.SetValue("")
		model.textInput.Prompt = "> "
		model.textInput.Placeholder = "Message or /command…"
		model.enterRoom(typedMessage.room, typedMessage.files)
		return model, tea.Batch(model.readEventCmd(), heartbeatTick(), listFilesCmd(model.files))

	case joinedMsg:
		model.enterRoom(typedMessage.room, typedMessage.files)
		return model, listFilesCmd(model.files)

	case filesMsg:
		model.roomFiles = typedMessage
		model.notice(fmt.Sprintf("%d file(s) in %s", len(typedMessage), model.room))
		return model, nil

	case roomsMsg:
		model.notice("Rooms: " + strings.Join(typedMessage, ", "))
		return model, nil

	case noticeMsg:
		model.notice(string(typedMessage))
		return model, nil

	case listingMsg:
		model.notice("Contents of " + typedMessage.path)
		for _, item := range typedMessage.items {
			model.notice("  " + item.Label())
		}
		return model, nil

	case eventMsg:
		refresh := model.applyEvent(wire.Event(typedMessage))
		cmds := []tea.Cmd{model.readEventCmd()}
		if refresh {
			cmds = append(cmds, listFilesCmd(model.files))
		}
		return model, tea.Batch(cmds...)

	case heartbeatMsg:
		if model.quitting || model.presence == nil {
			return model, nil
		}
		return model, tea.Batch(model.heartbeatCmd(), heartbeatTick())

	case closedMsg:
		return model, nil

	case errorMsg:
		model.busy = false
		model.notice("Error: " + error(typedMessage).Error())
		return model, nil
	}

	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(message)
	return model, cmd
}

func (model *TUIModel) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(model.textInput.Value())
	if line == "" {
		return model, nil
	}
	if !model.isConnected {
		model.notice("Not connected yet.")
		return model, nil
	}

	switch model.mode {
	case modeNamePrompt:
		if model.busy {
			return model, nil
		}
		model.busy = true
		return model, model.enterCmd(line, model.options.Room)
	default:
		model.textInput.SetValue("")
		if line == "/quit" {
			model.quitting = true
		}
		return model, model.runCommand(line)
	}
}

func (model *TUIModel) enterRoom(room string, names []string) {
	model.room = room
	model.roomFiles = nil
	if len(names) == 0 {
		model.notice(fmt.Sprintf("Joined %s. No files shared yet.", room))
		return
	}
	model.notice(fmt.Sprintf("Joined %s. Files: %s", room, strings.Join(names, ", ")))
}

// applyEvent records a presence datagram and reports whether the file list
// is probably stale.
func (model *TUIModel) applyEvent(event wire.Event) bool {
	at := parseEventTime(event.Timestamp)
	switch event.Type {
	case wire.TypeRoomInfo:
		if event.Room == model.room {
			model.users = event.Users
		}
	case wire.TypeNotification:
		if event.Room == model.room && event.Users != nil {
			model.users = event.Users
		}
		model.appendEntry(logEntry{At: at, Body: event.Message, System: true})
		return strings.Contains(event.Message, "uploaded ")
	case wire.TypeChat:
		model.appendEntry(logEntry{At: at, User: event.Username, Body: event.Message})
	}
	return false
}

func parseEventTime(raw string) time.Time {
	if at, err := time.ParseInLocation(wire.TimestampLayout, raw, time.Local); err == nil {
		return at
	}
	return time.Now()
}

func describeFile(info wire.FileInfo) string {
	return fmt.Sprintf("%s  %s  by %s", info.Name, humanize.IBytes(uint64(info.Size)), info.UploadedBy)
}
