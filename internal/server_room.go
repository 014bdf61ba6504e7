package internal

import (
	"sort"
	"time"

	"roomshare/internal/wire"
)

// FileEntry is the registry record of one uploaded file. Entries are replaced
// wholesale on re-upload, never edited.
type FileEntry struct {
	Filename    string
	SizeBytes   int64
	UploadedBy  string
	UploadedAt  time.Time
	StoragePath string
	SHA256      string
}

func (f FileEntry) info() wire.FileInfo {
	return wire.FileInfo{
		Name:       f.Filename,
		Size:       f.SizeBytes,
		UploadedBy: f.UploadedBy,
		UploadedAt: wire.Timestamp(f.UploadedAt),
	}
}

// Room is a named sharing space. Its fields are guarded by the owning Hub.
type Room struct {
	name     string
	created  time.Time
	files    map[string]FileEntry
	sessions map[string]struct{}
}

func newRoom(name string) *Room {
	return &Room{
		name:     name,
		created:  time.Now(),
		files:    make(map[string]FileEntry),
		sessions: make(map[string]struct{}),
	}
}

func (room *Room) fileNames() []string {
	names := make([]string, 0, len(room.files))
	for name := range room.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (room *Room) fileInfos() []wire.FileInfo {
	infos := make([]wire.FileInfo, 0, len(room.files))
	for _, name := range room.fileNames() {
		infos = append(infos, room.files[name].info())
	}
	return infos
}

// RoomSummary is a read-only snapshot used by the admin surface.
type RoomSummary struct {
	Name      string    `json:"name"`
	Members   int       `json:"members"`
	Files     int       `json:"files"`
	CreatedAt time.Time `json:"created_at"`
}
