package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomshare/internal/filestore"
	"roomshare/internal/wire"
)

func TestApplyEventTracksRoomUsers(t *testing.T) {
	model := NewTUIModel(ClientOptions{Username: "alice"})
	model.enterRoom("design", nil)

	model.applyEvent(wire.Event{Type: wire.TypeRoomInfo, Room: "design", Users: []string{"alice"}})
	assert.Equal(t, []string{"alice"}, model.users)

	model.applyEvent(wire.Event{Type: wire.TypeRoomInfo, Room: DefaultRoom, Users: []string{"zed"}})
	assert.Equal(t, []string{"alice"}, model.users, "room_info for another room is ignored")

	refresh := model.applyEvent(wire.Event{
		Type:      wire.TypeNotification,
		Room:      "design",
		Message:   "bob uploaded notes.txt",
		Users:     []string{"alice", "bob"},
		Timestamp: wire.Timestamp(time.Now()),
	})
	assert.True(t, refresh)
	assert.Equal(t, []string{"alice", "bob"}, model.users)

	refresh = model.applyEvent(wire.Event{Type: wire.TypeChat, Room: "design", Username: "bob", Message: "hi"})
	assert.False(t, refresh)
	last := model.entries[len(model.entries)-1]
	assert.Equal(t, "bob", last.User)
	assert.Equal(t, "hi", last.Body)
	assert.False(t, last.System)
}

func TestLogIsBounded(t *testing.T) {
	model := NewTUIModel(ClientOptions{Username: "alice"})
	for i := 0; i < maxLogEntries+25; i++ {
		model.notice("line")
	}
	assert.Len(t, model.entries, maxLogEntries)
}

func TestNewTUIModelDefaults(t *testing.T) {
	t.Setenv("ROOMSHARE_USER", "dana")
	model := NewTUIModel(ClientOptions{})
	assert.Equal(t, "dana", model.username)
	assert.Equal(t, DefaultRoom, model.options.Room)
	assert.Equal(t, modeNamePrompt, model.mode)
}

func TestBrowseDirectoryFlagsRejectedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tool.exe"), []byte("MZ"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.txt"), []byte("x"), 0o600))

	items, err := browseDirectory(dir)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "sub/", items[0].Label())
	assert.Equal(t, "notes.txt", items[1].Name)
	assert.Empty(t, items[1].Reason)
	assert.Equal(t, "notes.txt  5 B", items[1].Label())
	assert.Equal(t, "tool.exe", items[2].Name)
	assert.NotEmpty(t, items[2].Reason)
}

func TestDownloadToRejectsUnsafeNames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"../escape.txt", "", "payload.exe"} {
		_, _, err := downloadTo(nil, dir, name)
		require.Error(t, err, name)
		assert.ErrorIs(t, err, filestore.ErrInvalidFilename, name)
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
