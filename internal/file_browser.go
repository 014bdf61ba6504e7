package internal

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"

	"roomshare/internal/filestore"
)

// FileItem is one local directory entry offered for upload.
type FileItem struct {
	Name  string
	Path  string
	IsDir bool
	Size  int64
	// Reason is set when the server would reject the name.
	Reason string
}

func (item FileItem) Label() string {
	switch {
	case item.IsDir:
		return item.Name + "/"
	case item.Reason != "":
		return item.Name + "  (" + item.Reason + ")"
	default:
		return item.Name + "  " + humanize.IBytes(uint64(item.Size))
	}
}

// browseDirectory lists path with directories first. Files carry the reason
// the upload policy would refuse them, if any.
func browseDirectory(path string) ([]FileItem, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	items := make([]FileItem, 0, len(entries))
	for _, entry := range entries {
		if len(entry.Name()) > 0 && entry.Name()[0] == '.' {
			continue
		}
		item := FileItem{
			Name:  entry.Name(),
			Path:  filepath.Join(path, entry.Name()),
			IsDir: entry.IsDir(),
		}
		if !entry.IsDir() {
			if info, err := entry.Info(); err == nil {
				item.Size = info.Size()
			}
			if err := filestore.ValidateFilename(item.Name); err != nil {
				item.Reason = err.Error()
			}
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].IsDir != items[j].IsDir {
			return items[i].IsDir
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

func defaultBrowsePath() string {
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}
