package internal

import "errors"

// Failures reported to TCP peers as error replies. The text of each is what
// the peer sees.
var (
	ErrInvalidUsername    = errors.New("Invalid username")
	ErrRoomExists         = errors.New("Room already exists or invalid name")
	ErrRoomNotFound       = errors.New("Room not found")
	ErrNotInRoom          = errors.New("Not in a room")
	ErrFileNotFound       = errors.New("File not found")
	ErrFilenameRequired   = errors.New("Filename required")
	ErrMissingFileInfo    = errors.New("Missing file information")
	ErrFileTooLarge       = errors.New("File too large")
	ErrSizeMismatch       = errors.New("File size mismatch")
	ErrInvalidFileData    = errors.New("Invalid file data")
	ErrUnknownMessageType = errors.New("Unknown message type")
	ErrInvalidJSON        = errors.New("Invalid JSON format")
)
