package internal

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// pre styled colors, all from lipgloss
var (
	appTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	subtitleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).MarginTop(1)
	menuHintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	headerStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).MarginTop(1)
	connectedStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	errorStyle         = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	panelStyle         = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(0, 1).MarginTop(1)
	panelTitleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).Bold(true)
	inputBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	timestampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	usernameStyle      = lipgloss.NewStyle().Bold(true)
	activeUserStyle    = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	messageBodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	userColorPalette   = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

const visibleLogLines = 18

func (model *TUIModel) View() string {
	if model.mode == modeNamePrompt {
		return model.renderNamePrompt()
	}
	return model.renderRoomView()
}

func (model *TUIModel) renderStatus() string {
	switch {
	case model.connectionError != nil:
		return errorStyle.Render("Connection error: " + model.connectionError.Error())
	case model.isConnected:
		return connectedStyle.Render("Connected")
	default:
		return connectingStyle.Render("Connecting…")
	}
}

func (model *TUIModel) renderNamePrompt() string {
	sections := []string{
		appTitleStyle.Render("RoomShare " + Version),
		subtitleStyle.Render(fmt.Sprintf("Files %s  •  Presence %s", model.options.TCPAddr, model.options.UDPAddr)),
		model.renderStatus(),
		menuHintStyle.Render(fmt.Sprintf("Choose a display name, then press Enter to join %s.", model.options.Room)),
	}
	if model.busy {
		sections = append(sections, connectingStyle.Render("Joining…"))
	}
	if log := model.renderLog(); log != "" {
		sections = append(sections, log)
	}
	sections = append(sections, inputBoxStyle.Render(model.textInput.View()))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model *TUIModel) renderRoomView() string {
	header := headerStyle.Render(strings.Join([]string{
		"RoomShare",
		"Room " + model.room,
		"User " + model.username,
	}, dividerStyle))

	var fileLines []string
	for _, info := range model.roomFiles {
		fileLines = append(fileLines, messageBodyStyle.Render(describeFile(info)))
	}
	if len(fileLines) == 0 {
		fileLines = append(fileLines, menuHintStyle.Render("No files yet."))
	}
	filesPanel := panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		append([]string{panelTitleStyle.Render("Files")}, fileLines...)...))

	userLines := []string{panelTitleStyle.Render(fmt.Sprintf("Online (%d)", len(model.users)))}
	for _, user := range model.users {
		userLines = append(userLines, usernameStyle.Copy().Foreground(colorForUser(user)).Render(user))
	}
	usersPanel := panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, userLines...))

	log := model.renderLog()
	if log == "" {
		log = systemMessageStyle.Render("Nothing here yet. Type to chat or /upload a file.")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		model.renderStatus(),
		lipgloss.JoinHorizontal(lipgloss.Top, filesPanel, " ", usersPanel),
		panelStyle.Render(log),
		inputBoxStyle.Render(model.textInput.View()),
		menuHintStyle.Render(commandHelp),
	)
}

func (model *TUIModel) renderLog() string {
	entries := model.entries
	if len(entries) > visibleLogLines {
		entries = entries[len(entries)-visibleLogLines:]
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, model.renderEntry(entry))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderEntry stamps the time and colors the sender; system lines are italic.
func (model *TUIModel) renderEntry(entry logEntry) string {
	timestamp := timestampStyle.Render(fmt.Sprintf("[%s]", entry.At.Format("15:04:05")))
	if entry.System {
		return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", systemMessageStyle.Render(entry.Body))
	}
	nameStyle := usernameStyle.Copy().Foreground(colorForUser(entry.User))
	if entry.User == model.username {
		nameStyle = activeUserStyle
	}
	body := messageBodyStyle.Render(strings.ReplaceAll(entry.Body, "\n", "\n   "))
	return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", nameStyle.Render(entry.User), ": ", body)
}

// color for users
func colorForUser(name string) lipgloss.Color {
	if name == "" {
		return userColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}
