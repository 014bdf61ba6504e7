package internal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	"roomshare/internal/storage"
	"roomshare/internal/wire"
)

// SessionState is derived from what a session has set so far.
type SessionState int

const (
	StateConnected SessionState = iota
	StateNamed
	StateInRoom
)

func (st SessionState) String() string {
	switch st {
	case StateNamed:
		return "named"
	case StateInRoom:
		return "in_room"
	default:
		return "connected"
	}
}

// Session is one TCP connection's state. Its fields are only touched by the
// goroutine serving the connection.
type Session struct {
	id       string
	conn     net.Conn
	addr     string
	username string
	room     string
}

func newSession(conn net.Conn) *Session {
	return &Session{
		id:   uuid.NewString(),
		conn: conn,
		addr: conn.RemoteAddr().String(),
	}
}

func (sess *Session) State() SessionState {
	switch {
	case sess.room != "":
		return StateInRoom
	case sess.username != "":
		return StateNamed
	default:
		return StateConnected
	}
}

// displayName falls back to the session id until the peer names itself.
func (sess *Session) displayName() string {
	if sess.username != "" {
		return sess.username
	}
	return sess.id
}

// serveSession reads frames strictly in order and writes one reply per frame.
func (s *FileServer) serveSession(sess *Session) {
	reader := bufio.NewReader(sess.conn)
	for {
		if s.idleTimeout > 0 {
			_ = sess.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}
		payload, err := wire.ReadFrame(reader, s.frameLimit)
		if err != nil {
			if errors.Is(err, wire.ErrFrameTooLarge) {
				s.metrics.IncProtocolError()
				s.logger.Printf("tcp: session %s: %v", sess.id, err)
				if !s.reply(sess, wire.Failure("Frame too large")) {
					return
				}
				continue
			}
			if !errors.Is(err, io.EOF) {
				s.logger.Printf("tcp: session %s read: %v", sess.id, err)
			}
			return
		}
		s.metrics.IncFrame()

		var req wire.Request
		if err := wire.Decode(payload, &req); err != nil {
			s.metrics.IncProtocolError()
			s.logger.Printf("tcp: session %s: %v", sess.id, err)
			if !s.reply(sess, wire.Failure(ErrInvalidJSON.Error())) {
				return
			}
			continue
		}
		if !s.reply(sess, s.dispatch(sess, req)) {
			return
		}
	}
}

func (s *FileServer) reply(sess *Session, resp any) bool {
	if s.idleTimeout > 0 {
		_ = sess.conn.SetWriteDeadline(time.Now().Add(s.idleTimeout))
	}
	if err := wire.WriteFrame(sess.conn, resp); err != nil {
		s.logger.Printf("tcp: session %s write: %v", sess.id, err)
		return false
	}
	return true
}

func (s *FileServer) dispatch(sess *Session, req wire.Request) any {
	switch req.Type {
	case wire.TypeSetUsername:
		return s.setUsername(sess, req.Username)
	case wire.TypeCreateRoom:
		return s.createRoom(sess, req.Room)
	case wire.TypeJoinRoom:
		return s.joinRoom(sess, req.Room)
	case wire.TypeListRooms:
		return wire.ListRoomsResponse{Response: wire.Success(""), Rooms: s.hub.RoomNames()}
	case wire.TypeListFiles:
		return s.listFiles(sess)
	case wire.TypeUploadFile:
		return s.uploadFile(sess, req)
	case wire.TypeDownloadFile:
		return s.downloadFile(sess, req)
	default:
		return wire.Failure(ErrUnknownMessageType.Error())
	}
}

func (s *FileServer) setUsername(sess *Session, username string) any {
	if username == "" {
		return wire.Failure(ErrInvalidUsername.Error())
	}
	sess.username = username
	return wire.Success("Username set")
}

func (s *FileServer) createRoom(sess *Session, name string) any {
	if err := s.hub.CreateRoom(name); err != nil {
		return wire.Failure(err.Error())
	}
	s.logger.Printf("tcp: %s created room %q", sess.displayName(), name)
	s.record(storage.Activity{Room: name, Username: sess.displayName(), Action: storage.ActionCreateRoom})
	return wire.Success(fmt.Sprintf("Room %s created", name))
}

func (s *FileServer) joinRoom(sess *Session, name string) any {
	if name == "" {
		return wire.Failure(ErrRoomNotFound.Error())
	}
	files, err := s.hub.Join(sess.id, sess.room, name)
	if err != nil {
		return wire.Failure(err.Error())
	}
	sess.room = name
	s.record(storage.Activity{Room: name, Username: sess.displayName(), Action: storage.ActionJoinRoom})
	return wire.JoinRoomResponse{
		Response:  wire.Success(fmt.Sprintf("Joined room %s", name)),
		RoomFiles: files,
	}
}

func (s *FileServer) listFiles(sess *Session) any {
	if sess.room == "" {
		return wire.Failure(ErrNotInRoom.Error())
	}
	files, err := s.hub.Files(sess.room)
	if err != nil {
		return wire.Failure(ErrNotInRoom.Error())
	}
	return wire.ListFilesResponse{Response: wire.Success(""), Files: files}
}
