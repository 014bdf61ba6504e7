package internal

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"roomshare/internal/wire"
)

// ReplyError is an error-status reply from the file server.
type ReplyError struct {
	Message string
}

func (e *ReplyError) Error() string { return e.Message }

// FileClient speaks the framed TCP protocol. Calls are serialized so replies
// always pair with their request.
type FileClient struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	limit  uint32
}

func DialFileClient(ctx context.Context, addr string) (*FileClient, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial file server: %w", err)
	}
	return &FileClient{
		conn:   conn,
		reader: bufio.NewReader(conn),
		limit:  wire.MaxFrameFor(DefaultMaxFileSize),
	}, nil
}

func (c *FileClient) Close() error {
	return c.conn.Close()
}

// Do sends one request and waits for its reply. An error-status reply is
// returned as a *ReplyError alongside the decoded reply.
func (c *FileClient) Do(req wire.Request) (wire.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := wire.WriteFrame(c.conn, req); err != nil {
		return wire.Reply{}, fmt.Errorf("send %s: %w", req.Type, err)
	}
	payload, err := wire.ReadFrame(c.reader, c.limit)
	if err != nil {
		return wire.Reply{}, fmt.Errorf("read %s reply: %w", req.Type, err)
	}
	var reply wire.Reply
	if err := wire.Decode(payload, &reply); err != nil {
		return wire.Reply{}, err
	}
	if !reply.OK() {
		return reply, &ReplyError{Message: reply.Message}
	}
	return reply, nil
}

func (c *FileClient) SetUsername(name string) error {
	_, err := c.Do(wire.Request{Type: wire.TypeSetUsername, Username: name})
	return err
}

func (c *FileClient) CreateRoom(name string) error {
	_, err := c.Do(wire.Request{Type: wire.TypeCreateRoom, Room: name})
	return err
}

// JoinRoom returns the names of the files already shared in the room.
func (c *FileClient) JoinRoom(name string) ([]string, error) {
	reply, err := c.Do(wire.Request{Type: wire.TypeJoinRoom, Room: name})
	return reply.RoomFiles, err
}

func (c *FileClient) ListRooms() ([]string, error) {
	reply, err := c.Do(wire.Request{Type: wire.TypeListRooms})
	return reply.Rooms, err
}

func (c *FileClient) ListFiles() ([]wire.FileInfo, error) {
	reply, err := c.Do(wire.Request{Type: wire.TypeListFiles})
	return reply.Files, err
}

// Upload shares data under filename in the current room.
func (c *FileClient) Upload(filename string, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	_, err := c.Do(wire.Request{
		Type:     wire.TypeUploadFile,
		Filename: filename,
		Size:     wire.Size(int64(len(data))),
		Data:     &encoded,
	})
	return err
}

// UploadPath reads a local file and uploads it under its base name.
func (c *FileClient) UploadPath(path string) (string, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	name := filepath.Base(path)
	if err := c.Upload(name, data); err != nil {
		return name, 0, err
	}
	return name, int64(len(data)), nil
}

// Download fetches a file and checks it against the size the server recorded.
func (c *FileClient) Download(filename string) ([]byte, error) {
	reply, err := c.Do(wire.Request{Type: wire.TypeDownloadFile, Filename: filename})
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(reply.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	if int64(len(data)) != reply.Size {
		return nil, fmt.Errorf("%s: got %d bytes, server recorded %d", filename, len(data), reply.Size)
	}
	return data, nil
}

// PresenceClient registers with the UDP authority and receives its
// notifications on the same ephemeral socket.
type PresenceClient struct {
	conn   *net.UDPConn
	server *net.UDPAddr

	mu       sync.Mutex
	clientID string
}

func DialPresence(serverAddr string) (*PresenceClient, error) {
	server, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve presence server: %w", err)
	}
	network := "udp"
	if server.IP != nil && server.IP.To4() != nil {
		network = "udp4"
	}
	conn, err := net.ListenUDP(network, &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("bind presence socket: %w", err)
	}
	return &PresenceClient{
		conn:     conn,
		server:   server,
		clientID: uuid.NewString(),
	}, nil
}

func (p *PresenceClient) Close() error {
	return p.conn.Close()
}

func (p *PresenceClient) ClientID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientID
}

// Port is the local receive port reported to the server.
func (p *PresenceClient) Port() int {
	return p.conn.LocalAddr().(*net.UDPAddr).Port
}

func (p *PresenceClient) send(dg wire.Datagram) error {
	dg.ClientID = p.ClientID()
	payload, err := wire.EncodeDatagram(dg)
	if err != nil {
		return err
	}
	if _, err := p.conn.WriteToUDP(payload, p.server); err != nil {
		return fmt.Errorf("send %s: %w", dg.Type, err)
	}
	return nil
}

func (p *PresenceClient) Register(username, room string) error {
	return p.send(wire.Datagram{Type: wire.TypeRegister, Username: username, Room: room, UDPPort: p.Port()})
}

func (p *PresenceClient) Unregister() error {
	return p.send(wire.Datagram{Type: wire.TypeUnregister})
}

func (p *PresenceClient) Heartbeat() error {
	return p.send(wire.Datagram{Type: wire.TypeHeartbeat})
}

func (p *PresenceClient) JoinRoom(room string) error {
	return p.send(wire.Datagram{Type: wire.TypeJoinRoom, Room: room})
}

// FileNotification announces "upload" or "download" of filename to the room.
func (p *PresenceClient) FileNotification(action, filename string) error {
	return p.send(wire.Datagram{Type: wire.TypeFileNotification, Action: action, Filename: filename})
}

func (p *PresenceClient) Chat(message string) error {
	return p.send(wire.Datagram{Type: wire.TypeChatMessage, Message: message})
}

// ReadEvent blocks for the next server datagram, or until timeout when it is
// positive. Undecodable datagrams are skipped. A client id assigned by the
// server replaces the local one.
func (p *PresenceClient) ReadEvent(timeout time.Duration) (wire.Event, error) {
	buf := make([]byte, maxDatagramSize)
	for {
		deadline := time.Time{}
		if timeout > 0 {
			deadline = time.Now().Add(timeout)
		}
		if err := p.conn.SetReadDeadline(deadline); err != nil {
			return wire.Event{}, err
		}
		n, _, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			return wire.Event{}, err
		}
		var event wire.Event
		if err := wire.Decode(buf[:n], &event); err != nil {
			if errors.Is(err, wire.ErrMalformedFrame) {
				continue
			}
			return wire.Event{}, err
		}
		if event.Type == wire.TypeRoomInfo && event.ClientID != "" {
			p.mu.Lock()
			p.clientID = event.ClientID
			p.mu.Unlock()
		}
		return event, nil
	}
}
