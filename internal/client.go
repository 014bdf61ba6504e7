package internal

import (
	tea "github.com/charmbracelet/bubbletea"
)

// ClientOptions configures the terminal client.
type ClientOptions struct {
	TCPAddr     string
	UDPAddr     string
	Username    string
	Room        string
	DownloadDir string
}

// entry for bubbletea
func RunClient(options ClientOptions) error {
	program := tea.NewProgram(NewTUIModel(options), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
