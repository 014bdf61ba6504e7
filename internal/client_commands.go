package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"roomshare/internal/filestore"
)

const (
	heartbeatPeriod = 10 * time.Second
	dialTimeout     = 5 * time.Second
)

const commandHelp = "/rooms • /create <room> • /join <room> • /files • /upload <path> • /download <name> • /ls [dir] • /quit"

// dials both servers
func (model *TUIModel) connectCmd() tea.Cmd {
	options := model.options
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		files, err := DialFileClient(ctx, options.TCPAddr)
		if err != nil {
			return connectFailedMsg{err: err}
		}
		presence, err := DialPresence(options.UDPAddr)
		if err != nil {
			_ = files.Close()
			return connectFailedMsg{err: err}
		}
		return connectedMsg{files: files, presence: presence}
	}
}

// enterCmd names the session, joins the first room on both servers.
func (model *TUIModel) enterCmd(username, room string) tea.Cmd {
	files, presence := model.files, model.presence
	return func() tea.Msg {
		if err := files.SetUsername(username); err != nil {
			return errorMsg(err)
		}
		names, err := files.JoinRoom(room)
		if err != nil {
			return errorMsg(err)
		}
		if err := presence.Register(username, room); err != nil {
			return errorMsg(err)
		}
		return enteredMsg{username: username, room: room, files: names}
	}
}

func (model *TUIModel) readEventCmd() tea.Cmd {
	presence := model.presence
	return func() tea.Msg {
		event, err := presence.ReadEvent(0)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return closedMsg{}
			}
			return errorMsg(err)
		}
		return eventMsg(event)
	}
}

func heartbeatTick() tea.Cmd {
	return tea.Tick(heartbeatPeriod, func(time.Time) tea.Msg {
		return heartbeatMsg{}
	})
}

func (model *TUIModel) heartbeatCmd() tea.Cmd {
	presence := model.presence
	return func() tea.Msg {
		if err := presence.Heartbeat(); err != nil {
			return errorMsg(err)
		}
		return nil
	}
}

// runCommand maps one line of input to a command.
func (model *TUIModel) runCommand(line string) tea.Cmd {
	if !strings.HasPrefix(line, "/") {
		presence := model.presence
		return func() tea.Msg {
			if err := presence.Chat(line); err != nil {
				return errorMsg(err)
			}
			return nil
		}
	}

	verb, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	files, presence := model.files, model.presence

	switch verb {
	case "/rooms":
		return func() tea.Msg {
			rooms, err := files.ListRooms()
			if err != nil {
				return errorMsg(err)
			}
			return roomsMsg(rooms)
		}
	case "/create":
		if arg == "" {
			return noticeCmd("usage: /create <room>")
		}
		return func() tea.Msg {
			if err := files.CreateRoom(arg); err != nil {
				return errorMsg(err)
			}
			return noticeMsg(fmt.Sprintf("Room %s created. /join %s to enter it.", arg, arg))
		}
	case "/join":
		if arg == "" {
			return noticeCmd("usage: /join <room>")
		}
		return func() tea.Msg {
			names, err := files.JoinRoom(arg)
			if err != nil {
				return errorMsg(err)
			}
			if err := presence.JoinRoom(arg); err != nil {
				return errorMsg(err)
			}
			return joinedMsg{room: arg, files: names}
		}
	case "/files":
		return listFilesCmd(files)
	case "/upload":
		if arg == "" {
			return noticeCmd("usage: /upload <path>")
		}
		return func() tea.Msg {
			name, size, err := files.UploadPath(expandHome(arg))
			if err != nil {
				return errorMsg(err)
			}
			_ = presence.FileNotification("upload", name)
			return noticeMsg(fmt.Sprintf("Uploaded %s (%s)", name, humanize.IBytes(uint64(size))))
		}
	case "/download":
		if arg == "" {
			return noticeCmd("usage: /download <name>")
		}
		dir := model.options.DownloadDir
		return func() tea.Msg {
			path, size, err := downloadTo(files, dir, arg)
			if err != nil {
				return errorMsg(err)
			}
			_ = presence.FileNotification("download", arg)
			return noticeMsg(fmt.Sprintf("Saved %s (%s)", path, humanize.IBytes(uint64(size))))
		}
	case "/ls":
		path := arg
		if path == "" {
			path = defaultBrowsePath()
		}
		path = expandHome(path)
		return func() tea.Msg {
			items, err := browseDirectory(path)
			if err != nil {
				return errorMsg(err)
			}
			return listingMsg{path: path, items: items}
		}
	case "/quit":
		return model.quitCmd()
	default:
		return noticeCmd(commandHelp)
	}
}

func listFilesCmd(files *FileClient) tea.Cmd {
	return func() tea.Msg {
		infos, err := files.ListFiles()
		if err != nil {
			return errorMsg(err)
		}
		return filesMsg(infos)
	}
}

func noticeCmd(text string) tea.Cmd {
	return func() tea.Msg { return noticeMsg(text) }
}

// quitCmd unregisters from presence and closes both connections.
func (model *TUIModel) quitCmd() tea.Cmd {
	files, presence := model.files, model.presence
	return func() tea.Msg {
		if presence != nil {
			_ = presence.Unregister()
			_ = presence.Close()
		}
		if files != nil {
			_ = files.Close()
		}
		return tea.Quit()
	}
}

// downloadTo saves a room file into dir. The server-supplied name is checked
// against the same policy uploads go through.
func downloadTo(files *FileClient, dir, name string) (string, int64, error) {
	if err := filestore.ValidateFilename(name); err != nil {
		return "", 0, err
	}
	data, err := files.Download(name)
	if err != nil {
		return "", 0, err
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", 0, err
	}
	return path, int64(len(data)), nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
