package internal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/google/uuid"

	"roomshare/internal/wire"
)

const (
	// AnonymousUser names clients that register without a username.
	AnonymousUser = "Anonymous"

	maxDatagramSize = 65535
)

// datagramWriter is the send half of a UDP socket.
type datagramWriter interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
}

type PresenceServerOptions struct {
	Registry *PresenceRegistry
	Metrics  *Metrics
	Logger   *log.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// PresenceServer is the UDP presence/notification authority. Datagrams are
// handled one at a time on the receive loop.
type PresenceServer struct {
	registry *PresenceRegistry
	metrics  *Metrics
	logger   *log.Logger
	now      func() time.Time
}

func NewPresenceServer(opts PresenceServerOptions) *PresenceServer {
	if opts.Registry == nil {
		opts.Registry = NewPresenceRegistry()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &PresenceServer{
		registry: opts.Registry,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

func (ps *PresenceServer) Registry() *PresenceRegistry {
	return ps.registry
}

// Serve receives datagrams until ctx is cancelled. Every presence entry is
// dropped on return; the socket is left to the caller.
func (ps *PresenceServer) Serve(ctx context.Context, conn *net.UDPConn) error {
	defer func() {
		if n := ps.registry.Clear(); n > 0 {
			ps.logger.Printf("udp: dropped %d presence entries on shutdown", n)
		}
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		if ctx.Err() != nil {
			return nil
		}
		_ = conn.SetReadDeadline(time.Now().Add(acceptWake))
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			ps.logger.Printf("udp: receive: %v", err)
			continue
		}
		ps.metrics.IncDatagram()

		var dg wire.Datagram
		if err := wire.Decode(buf[:n], &dg); err != nil {
			ps.metrics.IncDropped()
			ps.logger.Printf("udp: dropped datagram from %s: %v", src, err)
			continue
		}
		ps.handle(conn, dg, src)
	}
}

func (ps *PresenceServer) handle(out datagramWriter, dg wire.Datagram, src *net.UDPAddr) {
	now := ps.now()
	if dg.Type != wire.TypeRegister && dg.ClientID != "" {
		ps.registry.Touch(dg.ClientID, now)
	}

	switch dg.Type {
	case wire.TypeRegister:
		ps.register(out, dg, src, now)
	case wire.TypeUnregister:
		if entry, ok := ps.registry.Unregister(dg.ClientID); ok {
			ps.logger.Printf("udp: %s (%s) unregistered from %q", entry.ClientID, entry.Username, entry.Room)
		}
	case wire.TypeHeartbeat:
	case wire.TypeJoinRoom:
		ps.joinRoom(out, dg, now)
	case wire.TypeFileNotification:
		ps.fileNotification(out, dg, now)
	case wire.TypeChatMessage:
		ps.chat(out, dg, now)
	default:
		ps.metrics.IncDropped()
		ps.logger.Printf("udp: dropped datagram from %s: unknown type %q", src, dg.Type)
	}
}

func (ps *PresenceServer) register(out datagramWriter, dg wire.Datagram, src *net.UDPAddr, now time.Time) {
	entry := PresenceEntry{
		ClientID: dg.ClientID,
		Username: dg.Username,
		Room:     dg.Room,
		Addr:     returnAddr(src, dg.UDPPort),
		LastSeen: now,
	}
	generated := entry.ClientID == ""
	if generated {
		entry.ClientID = uuid.NewString()
	}
	if entry.Username == "" {
		entry.Username = AnonymousUser
	}
	if entry.Room == "" {
		entry.Room = DefaultRoom
	}
	ps.registry.Register(entry)
	ps.logger.Printf("udp: %s (%s) registered in %q at %s", entry.ClientID, entry.Username, entry.Room, entry.Addr)

	ps.announce(out, entry.Room, entry.Username+" joined the room", now)
	info := wire.RoomInfo{
		Type:      wire.TypeRoomInfo,
		Room:      entry.Room,
		Users:     ps.registry.Users(entry.Room),
		Timestamp: wire.Timestamp(now),
	}
	if generated {
		info.ClientID = entry.ClientID
	}
	ps.send(out, entry, info)
}

func (ps *PresenceServer) joinRoom(out datagramWriter, dg wire.Datagram, now time.Time) {
	if dg.Room == "" {
		return
	}
	oldRoom, ok := ps.registry.Move(dg.ClientID, dg.Room)
	if !ok {
		return
	}
	entry, ok := ps.registry.Lookup(dg.ClientID)
	if !ok {
		return
	}
	ps.announce(out, oldRoom, entry.Username+" left the room", now)
	ps.announce(out, dg.Room, entry.Username+" joined the room", now)
	ps.send(out, entry, wire.RoomInfo{
		Type:      wire.TypeRoomInfo,
		Room:      dg.Room,
		Users:     ps.registry.Users(dg.Room),
		Timestamp: wire.Timestamp(now),
	})
}

func (ps *PresenceServer) fileNotification(out datagramWriter, dg wire.Datagram, now time.Time) {
	entry, ok := ps.registry.Lookup(dg.ClientID)
	if !ok {
		return
	}
	ps.announce(out, entry.Room, fmt.Sprintf("%s %sed %s", entry.Username, dg.Action, dg.Filename), now)
}

func (ps *PresenceServer) chat(out datagramWriter, dg wire.Datagram, now time.Time) {
	entry, ok := ps.registry.Lookup(dg.ClientID)
	if !ok {
		return
	}
	ps.broadcast(out, entry.Room, wire.Chat{
		Type:      wire.TypeChat,
		Username:  entry.Username,
		Message:   dg.Message,
		Room:      entry.Room,
		Timestamp: wire.Timestamp(now),
	})
}

// announce broadcasts a notification carrying the room's current user list.
func (ps *PresenceServer) announce(out datagramWriter, room, message string, now time.Time) {
	ps.broadcast(out, room, wire.Notification{
		Type:      wire.TypeNotification,
		Message:   message,
		Room:      room,
		Timestamp: wire.Timestamp(now),
		Users:     ps.registry.Users(room),
	})
}

// broadcast sends to a snapshot of the room. A failed send removes only that
// member.
func (ps *PresenceServer) broadcast(out datagramWriter, room string, v any) {
	payload, err := wire.EncodeDatagram(v)
	if err != nil {
		ps.logger.Printf("udp: encode broadcast for %q: %v", room, err)
		return
	}
	for _, target := range ps.registry.Targets(room) {
		ps.deliver(out, target, payload)
	}
}

func (ps *PresenceServer) send(out datagramWriter, entry PresenceEntry, v any) {
	payload, err := wire.EncodeDatagram(v)
	if err != nil {
		ps.logger.Printf("udp: encode reply for %s: %v", entry.ClientID, err)
		return
	}
	ps.deliver(out, entry, payload)
}

func (ps *PresenceServer) deliver(out datagramWriter, target PresenceEntry, payload []byte) {
	if _, err := out.WriteToUDP(payload, target.Addr); err != nil {
		ps.metrics.IncSendFailure()
		ps.registry.Unregister(target.ClientID)
		ps.logger.Printf("udp: send to %s (%s) failed, removed: %v", target.ClientID, target.Addr, err)
		return
	}
	ps.metrics.IncSent()
}

// returnAddr pairs the source IP with the self-reported receive port. The port
// is not verified.
func returnAddr(src *net.UDPAddr, port int) *net.UDPAddr {
	addr := &net.UDPAddr{IP: src.IP, Port: src.Port, Zone: src.Zone}
	if port > 0 && port <= 65535 {
		addr.Port = port
	}
	return addr
}
