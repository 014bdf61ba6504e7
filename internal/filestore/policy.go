package filestore

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxFilenameLength is counted in characters, not bytes.
const MaxFilenameLength = 255

// ErrInvalidFilename is wrapped by every filename policy violation.
var ErrInvalidFilename = errors.New("invalid filename")

// blockedPatterns are rejected anywhere in a filename.
var blockedPatterns = []string{"..", "\\", "/", ":", "*", "?", "\"", "<", ">", "|"}

// AllowedExtensions lists the lowercase extensions accepted for upload.
var AllowedExtensions = map[string]struct{}{
	".txt": {}, ".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".bmp": {}, ".svg": {},
	".mp4": {}, ".avi": {}, ".mov": {}, ".mp3": {}, ".wav": {},
	".zip": {}, ".rar": {}, ".7z": {}, ".tar": {}, ".gz": {},
	".py": {}, ".js": {}, ".html": {}, ".css": {}, ".json": {}, ".xml": {},
}

// PolicyError explains why a filename was refused. It matches
// ErrInvalidFilename under errors.Is.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string { return e.Reason }

func (e *PolicyError) Is(target error) bool { return target == ErrInvalidFilename }

// ValidateFilename applies the upload filename policy. A nil result means the
// name can be used verbatim as a path component inside a room directory.
func ValidateFilename(name string) error {
	if name == "" || strings.TrimSpace(name) != name {
		return &PolicyError{Reason: "Invalid filename"}
	}
	if strings.ContainsRune(name, 0) {
		return &PolicyError{Reason: "Filename contains invalid character: NUL"}
	}
	for _, pattern := range blockedPatterns {
		if strings.Contains(name, pattern) {
			return &PolicyError{Reason: fmt.Sprintf("Filename contains invalid character: %s", pattern)}
		}
	}
	// leading dots mark hidden files, not extensions
	ext := strings.ToLower(filepath.Ext(strings.TrimLeft(name, ".")))
	if _, ok := AllowedExtensions[ext]; !ok {
		return &PolicyError{Reason: fmt.Sprintf("File type %s not allowed", ext)}
	}
	if utf8.RuneCountInString(name) > MaxFilenameLength {
		return &PolicyError{Reason: fmt.Sprintf("Filename too long (max %d characters)", MaxFilenameLength)}
	}
	return nil
}
