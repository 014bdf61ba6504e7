package wire

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// TCP request types.
const (
	TypeSetUsername  = "set_username"
	TypeCreateRoom   = "create_room"
	TypeJoinRoom     = "join_room"
	TypeListRooms    = "list_rooms"
	TypeListFiles    = "list_files"
	TypeUploadFile   = "upload_file"
	TypeDownloadFile = "download_file"
)

// UDP datagram types, client to server.
const (
	TypeRegister         = "register"
	TypeUnregister       = "unregister"
	TypeHeartbeat        = "heartbeat"
	TypeFileNotification = "file_notification"
	TypeChatMessage      = "chat_message"
	// TypeJoinRoom is shared with the TCP request of the same name.
)

// UDP datagram types, server to client.
const (
	TypeNotification = "notification"
	TypeRoomInfo     = "room_info"
	TypeChat         = "chat"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// TimestampLayout is the local ISO-8601 form used in datagrams and file lists.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Timestamp formats t the way every envelope carries it.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Request is any client frame on the TCP stream. Size and Data are pointers so
// that an absent field can be told apart from a zero value. Size is kept as a
// number literal so that 5.0 is read the same as 5.
type Request struct {
	Type     string       `json:"type"`
	Username string       `json:"username,omitempty"`
	Room     string       `json:"room,omitempty"`
	Filename string       `json:"filename,omitempty"`
	Size     *json.Number `json:"size,omitempty"`
	Data     *string      `json:"data,omitempty"`
}

// Size builds the size field of an upload request.
func Size(n int64) *json.Number {
	size := json.Number(strconv.FormatInt(n, 10))
	return &size
}

// DeclaredSize reads the size field. ok is false when it is absent or not a
// finite number. exact is false when it has a fractional part; size is then
// rounded up, so it can still be checked against a limit but never matches a
// byte count.
func (r Request) DeclaredSize() (size int64, exact, ok bool) {
	if r.Size == nil {
		return 0, false, false
	}
	if n, err := r.Size.Int64(); err == nil {
		return n, true, true
	}
	f, err := r.Size.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, false
	}
	exact = f == math.Trunc(f)
	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64, exact, true
	case f <= math.MinInt64:
		return math.MinInt64, exact, true
	}
	return int64(math.Ceil(f)), exact, true
}

// Response is the envelope shared by every TCP reply.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Success builds a plain success reply.
func Success(message string) Response {
	return Response{Status: StatusSuccess, Message: message}
}

// Failure builds an error reply.
func Failure(message string) Response {
	return Response{Status: StatusError, Message: message}
}

// JoinRoomResponse always carries room_files, even when the room is empty.
type JoinRoomResponse struct {
	Response
	RoomFiles []string `json:"room_files"`
}

type ListRoomsResponse struct {
	Response
	Rooms []string `json:"rooms"`
}

// FileInfo is one row of a list_files reply.
type FileInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	UploadedBy string `json:"uploaded_by"`
	UploadedAt string `json:"uploaded_at"`
}

type ListFilesResponse struct {
	Response
	Files []FileInfo `json:"files"`
}

type DownloadResponse struct {
	Response
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Data     string `json:"data"`
}

// Reply is the client-side view of any TCP reply.
type Reply struct {
	Status    string     `json:"status"`
	Message   string     `json:"message"`
	RoomFiles []string   `json:"room_files"`
	Rooms     []string   `json:"rooms"`
	Files     []FileInfo `json:"files"`
	Filename  string     `json:"filename"`
	Size      int64      `json:"size"`
	Data      string     `json:"data"`
}

// OK reports whether the server accepted the request.
func (r Reply) OK() bool {
	return r.Status == StatusSuccess
}

// Datagram is any client to server UDP message.
type Datagram struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id,omitempty"`
	Username string `json:"username,omitempty"`
	Room     string `json:"room,omitempty"`
	UDPPort  int    `json:"udp_port,omitempty"`
	Action   string `json:"action,omitempty"`
	Filename string `json:"filename,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Notification announces membership changes and file activity to a room.
type Notification struct {
	Type      string   `json:"type"`
	Message   string   `json:"message"`
	Room      string   `json:"room"`
	Timestamp string   `json:"timestamp"`
	Users     []string `json:"users"`
}

// RoomInfo is the membership snapshot unicast to a client that entered a room.
type RoomInfo struct {
	Type      string   `json:"type"`
	Room      string   `json:"room"`
	Users     []string `json:"users"`
	Timestamp string   `json:"timestamp"`
	ClientID  string   `json:"client_id,omitempty"`
}

// Chat relays one chat line to a room.
type Chat struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Room      string `json:"room"`
	Timestamp string `json:"timestamp"`
}

// Event is the client-side view of any server to client datagram.
type Event struct {
	Type      string   `json:"type"`
	Message   string   `json:"message"`
	Room      string   `json:"room"`
	Username  string   `json:"username"`
	Users     []string `json:"users"`
	Timestamp string   `json:"timestamp"`
	ClientID  string   `json:"client_id"`
}
