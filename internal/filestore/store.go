// Package filestore keeps uploaded room files on disk, one directory per room.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotStored is returned by Get when the file is missing on disk.
var ErrNotStored = errors.New("file not stored")

// Object describes one stored file.
type Object struct {
	Path   string
	Size   int64
	SHA256 string
}

// Store writes files under root/<room>/<filename>. Writes to the same
// room/filename pair are serialized; writes to different files run in parallel.
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates root if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Store{root: root, locks: make(map[string]*sync.Mutex)}, nil
}

// Root returns the storage root directory.
func (s *Store) Root() string {
	return s.root
}

// RoomDir returns the directory holding a room's files.
func (s *Store) RoomDir(room string) string {
	return filepath.Join(s.root, roomDirName(room))
}

// Lock takes the per-file lock for room/filename and returns its release.
// Callers that pair a file with other state, such as a registry entry, hold it
// across both steps and use PutLocked and GetLocked inside.
func (s *Store) Lock(room, filename string) func() {
	key := strings.ToLower(filepath.Join(s.RoomDir(room), filename))
	s.mu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Put validates filename and atomically replaces root/<room>/<filename> with data.
func (s *Store) Put(room, filename string, data []byte) (Object, error) {
	if err := ValidateFilename(filename); err != nil {
		return Object{}, err
	}
	unlock := s.Lock(room, filename)
	defer unlock()
	return s.PutLocked(room, filename, data)
}

// PutLocked is Put for callers already holding Lock(room, filename).
func (s *Store) PutLocked(room, filename string, data []byte) (Object, error) {
	if err := ValidateFilename(filename); err != nil {
		return Object{}, err
	}
	dir := s.RoomDir(room)
	path := filepath.Join(dir, filename)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Object{}, fmt.Errorf("create room directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return Object{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return Object{}, fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return Object{}, fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return Object{}, fmt.Errorf("replace file: %w", err)
	}
	sum := sha256.Sum256(data)
	return Object{Path: path, Size: int64(len(data)), SHA256: hex.EncodeToString(sum[:])}, nil
}

// Get reads a stored file back.
func (s *Store) Get(room, filename string) ([]byte, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}
	unlock := s.Lock(room, filename)
	defer unlock()
	return s.GetLocked(room, filename)
}

// GetLocked is Get for callers already holding Lock(room, filename).
func (s *Store) GetLocked(room, filename string) ([]byte, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.RoomDir(room), filename))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotStored, filename)
		}
		return nil, err
	}
	return data, nil
}

// hashedPrefix marks directories named by digest. Verbatim names never carry
// it, so the two forms cannot meet.
const hashedPrefix = "room-"

// roomDirName maps a room name onto a single path component. Safe lowercase
// names are used verbatim; everything else, including any name that differs
// from another only by case, becomes hashedPrefix plus a digest.
func roomDirName(room string) string {
	if isSafeComponent(room) && !strings.HasPrefix(room, hashedPrefix) && strings.ToLower(room) == room {
		return room
	}
	sum := sha256.Sum256([]byte(room))
	return hashedPrefix + hex.EncodeToString(sum[:16])
}

func isSafeComponent(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") || len(name) > 128 {
		return false
	}
	if strings.TrimSpace(name) != name {
		return false
	}
	return !strings.ContainsAny(name, "\\/:*?\"<>|\x00")
}
