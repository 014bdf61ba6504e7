package internal

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"roomshare/internal/filestore"
	"roomshare/internal/storage"
	"roomshare/internal/wire"
)

// uploadFile runs the validation pipeline; each step short-circuits. The
// registry is only touched once the bytes are safely on disk, and both happen
// under the file's lock so the entry always describes the stored bytes.
func (s *FileServer) uploadFile(sess *Session, req wire.Request) any {
	if sess.room == "" {
		return wire.Failure(ErrNotInRoom.Error())
	}
	declared, exact, ok := req.DeclaredSize()
	if req.Filename == "" || !ok || req.Data == nil || *req.Data == "" {
		return wire.Failure(ErrMissingFileInfo.Error())
	}
	if declared > s.maxFileSize {
		return wire.Failure(fmt.Sprintf("%s (max %s)", ErrFileTooLarge, humanize.IBytes(uint64(s.maxFileSize))))
	}
	if err := filestore.ValidateFilename(req.Filename); err != nil {
		return wire.Failure(err.Error())
	}
	content, err := base64.StdEncoding.DecodeString(*req.Data)
	if err != nil {
		return wire.Failure(fmt.Sprintf("%s: %v", ErrInvalidFileData, err))
	}
	if !exact || int64(len(content)) != declared {
		return wire.Failure(ErrSizeMismatch.Error())
	}

	room := sess.room
	entry, obj, err := s.storeUpload(room, req.Filename, sess.displayName(), content)
	if err != nil {
		s.logger.Printf("tcp: upload %q to %q failed: %v", req.Filename, room, err)
		return wire.Failure(fmt.Sprintf("Upload failed: %v", err))
	}

	s.metrics.AddUpload(declared)
	s.logger.Printf("tcp: %s uploaded %q to %q (%s, sha256 %s)",
		entry.UploadedBy, entry.Filename, room, humanize.IBytes(uint64(declared)), obj.SHA256)
	s.record(storage.Activity{
		Room:     room,
		Username: entry.UploadedBy,
		Action:   storage.ActionUpload,
		Filename: entry.Filename,
		Size:     declared,
		SHA256:   obj.SHA256,
	})
	return wire.Success(fmt.Sprintf("File %s uploaded successfully", req.Filename))
}

func (s *FileServer) storeUpload(room, filename, uploader string, content []byte) (FileEntry, filestore.Object, error) {
	unlock := s.files.Lock(room, filename)
	defer unlock()
	obj, err := s.files.PutLocked(room, filename, content)
	if err != nil {
		return FileEntry{}, obj, err
	}
	entry := FileEntry{
		Filename:    filename,
		SizeBytes:   obj.Size,
		UploadedBy:  uploader,
		UploadedAt:  time.Now(),
		StoragePath: obj.Path,
		SHA256:      obj.SHA256,
	}
	if err := s.hub.PutFile(room, entry); err != nil {
		return FileEntry{}, obj, err
	}
	return entry, obj, nil
}

// loadDownload reads the registry entry and its bytes as one step.
func (s *FileServer) loadDownload(room, filename string) (FileEntry, []byte, error) {
	unlock := s.files.Lock(room, filename)
	defer unlock()
	entry, err := s.hub.File(room, filename)
	if err != nil {
		return FileEntry{}, nil, err
	}
	content, err := s.files.GetLocked(room, filename)
	if err != nil {
		return entry, nil, err
	}
	return entry, content, nil
}

func (s *FileServer) downloadFile(sess *Session, req wire.Request) any {
	if sess.room == "" {
		return wire.Failure(ErrNotInRoom.Error())
	}
	if req.Filename == "" {
		return wire.Failure(ErrFilenameRequired.Error())
	}
	room := sess.room
	entry, content, err := s.loadDownload(room, req.Filename)
	if errors.Is(err, ErrFileNotFound) || errors.Is(err, ErrRoomNotFound) {
		return wire.Failure(ErrFileNotFound.Error())
	}
	if err != nil {
		s.logger.Printf("tcp: download %q from %q failed: %v", req.Filename, room, err)
		return wire.Failure(fmt.Sprintf("Download failed: %v", err))
	}

	s.metrics.IncDownload()
	s.record(storage.Activity{
		Room:     room,
		Username: sess.displayName(),
		Action:   storage.ActionDownload,
		Filename: entry.Filename,
		Size:     entry.SizeBytes,
		SHA256:   entry.SHA256,
	})
	return wire.DownloadResponse{
		Response: wire.Success(""),
		Filename: entry.Filename,
		Size:     entry.SizeBytes,
		Data:     base64.StdEncoding.EncodeToString(content),
	}
}
