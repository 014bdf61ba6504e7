package internal

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ActivityEvent describes one thing that happened in a room on the TCP side.
type ActivityEvent struct {
	Room     string `json:"room"`
	User     string `json:"user"`
	Action   string `json:"action"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Ts       int64  `json:"ts"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMsgSize     = 512
	subscriberSend = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ActivityFeed fans activity events out to websocket subscribers. A slow
// subscriber is dropped instead of stalling publishers.
type ActivityFeed struct {
	subscribers map[*subscriber]bool
	register    chan *subscriber
	unregister  chan *subscriber
	broadcast   chan ActivityEvent
	done        chan struct{}
	logger      *log.Logger
}

type subscriber struct {
	conn *websocket.Conn
	room string
	send chan []byte
}

func NewActivityFeed(logger *log.Logger) *ActivityFeed {
	if logger == nil {
		logger = log.Default()
	}
	return &ActivityFeed{
		subscribers: make(map[*subscriber]bool),
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		broadcast:   make(chan ActivityEvent, 256),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Publish queues an event without blocking. Events are dropped when the feed
// is saturated or nil.
func (feed *ActivityFeed) Publish(event ActivityEvent) {
	if feed == nil {
		return
	}
	if event.Ts == 0 {
		event.Ts = time.Now().Unix()
	}
	select {
	case feed.broadcast <- event:
	default:
	}
}

// Run owns the subscriber set until ctx is cancelled.
func (feed *ActivityFeed) Run(ctx context.Context) {
	defer close(feed.done)
	for {
		select {
		case <-ctx.Done():
			for sub := range feed.subscribers {
				delete(feed.subscribers, sub)
				close(sub.send)
			}
			return
		case sub := <-feed.register:
			feed.subscribers[sub] = true
		case sub := <-feed.unregister:
			if _, exists := feed.subscribers[sub]; exists {
				delete(feed.subscribers, sub)
				close(sub.send)
			}
		case event := <-feed.broadcast:
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			for sub := range feed.subscribers {
				if sub.room != "" && sub.room != event.Room {
					continue
				}
				select {
				case sub.send <- payload:
				default:
					close(sub.send)
					delete(feed.subscribers, sub)
				}
			}
		}
	}
}

// ServeWS upgrades the request and streams events, optionally filtered by the
// "room" query parameter.
func (feed *ActivityFeed) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		feed.logger.Printf("activity feed upgrade error: %v", err)
		return
	}
	sub := &subscriber{
		conn: conn,
		room: r.URL.Query().Get("room"),
		send: make(chan []byte, subscriberSend),
	}
	select {
	case feed.register <- sub:
	case <-feed.done:
		_ = conn.Close()
		return
	}
	go sub.writePump()
	go sub.readPump(feed)
}

// readPump only exists to observe pongs and the peer closing the socket.
func (sub *subscriber) readPump(feed *ActivityFeed) {
	defer func() {
		select {
		case feed.unregister <- sub:
		case <-feed.done:
		}
		sub.conn.Close()
	}()
	sub.conn.SetReadLimit(maxMsgSize)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (sub *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()
	for {
		select {
		case message, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
