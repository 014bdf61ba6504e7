package internal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"roomshare/internal/filestore"
	"roomshare/internal/storage"
	"roomshare/internal/wire"
)

const (
	// DefaultMaxFileSize caps a single upload.
	DefaultMaxFileSize int64 = 100 * 1024 * 1024

	// acceptWake bounds how long Serve can miss a cancelled context.
	acceptWake = time.Second

	journalTimeout = 2 * time.Second
)

// Journal receives an audit record for every successful room or file action.
type Journal interface {
	RecordActivity(ctx context.Context, a storage.Activity) (int64, error)
}

// FileServerOptions wires a FileServer. Hub and Files are required.
type FileServerOptions struct {
	Hub         *Hub
	Files       *filestore.Store
	Journal     Journal
	Feed        *ActivityFeed
	Metrics     *Metrics
	Logger      *log.Logger
	MaxFileSize int64
	// IdleTimeout closes sessions that send nothing for this long. Zero keeps
	// a stalled peer's session open indefinitely.
	IdleTimeout time.Duration
}

// FileServer is the TCP room/file authority. It runs one goroutine per
// connection; all shared state lives in the Hub and the file store.
type FileServer struct {
	hub         *Hub
	files       *filestore.Store
	journal     Journal
	feed        *ActivityFeed
	metrics     *Metrics
	logger      *log.Logger
	maxFileSize int64
	frameLimit  uint32
	idleTimeout time.Duration

	mutex    sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

func NewFileServer(opts FileServerOptions) *FileServer {
	if opts.Hub == nil {
		opts.Hub = NewHub()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	return &FileServer{
		hub:         opts.Hub,
		files:       opts.Files,
		journal:     opts.Journal,
		feed:        opts.Feed,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		maxFileSize: opts.MaxFileSize,
		frameLimit:  wire.MaxFrameFor(opts.MaxFileSize),
		idleTimeout: opts.IdleTimeout,
		sessions:    make(map[string]*Session),
	}
}

// Hub exposes the registry the server mutates.
func (s *FileServer) Hub() *Hub {
	return s.hub
}

// Serve accepts connections until ctx is cancelled, then force-closes every
// live session and waits for their goroutines. The listener is closed on return.
func (s *FileServer) Serve(ctx context.Context, ln net.Listener) error {
	if s.files == nil {
		return errors.New("file store is required")
	}
	defer s.closeSessions()
	defer ln.Close()

	type deadliner interface{ SetDeadline(time.Time) error }
	for {
		if ctx.Err() != nil {
			return nil
		}
		if d, ok := ln.(deadliner); ok {
			_ = d.SetDeadline(time.Now().Add(acceptWake))
		}
		conn, err := ln.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.startSession(conn)
	}
}

func (s *FileServer) startSession(conn net.Conn) {
	sess := newSession(conn)
	s.mutex.Lock()
	s.sessions[sess.id] = sess
	s.mutex.Unlock()
	s.metrics.IncSession()
	s.logger.Printf("tcp: session %s connected from %s", sess.id, sess.addr)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.endSession(sess)
		s.serveSession(sess)
	}()
}

func (s *FileServer) endSession(sess *Session) {
	s.hub.Leave(sess.id, sess.room)
	_ = sess.conn.Close()
	s.mutex.Lock()
	delete(s.sessions, sess.id)
	s.mutex.Unlock()
	s.metrics.DecSession()
	s.logger.Printf("tcp: session %s (%s) disconnected while %s", sess.id, sess.displayName(), sess.State())
}

func (s *FileServer) closeSessions() {
	s.mutex.Lock()
	for _, sess := range s.sessions {
		_ = sess.conn.Close()
	}
	s.mutex.Unlock()
	s.wg.Wait()
}

// ActiveSessions reports how many connections are being served.
func (s *FileServer) ActiveSessions() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.sessions)
}

func (s *FileServer) record(a storage.Activity) {
	s.feed.Publish(ActivityEvent{
		Room:     a.Room,
		User:     a.Username,
		Action:   a.Action,
		Filename: a.Filename,
		Size:     a.Size,
	})
	if s.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if _, err := s.journal.RecordActivity(ctx, a); err != nil {
		s.logger.Printf("tcp: journal %s in %s: %v", a.Action, a.Room, err)
	}
}
