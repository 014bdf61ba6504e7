package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	intrnl "roomshare/internal"
	"roomshare/internal/filestore"
	"roomshare/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// ServerHandle represents a running set of authorities.
type ServerHandle struct {
	tcpAddr   string
	udpAddr   string
	adminAddr string
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
}

// TCPAddr returns the file server's actual listen address, or "" when disabled.
func (h *ServerHandle) TCPAddr() string {
	return h.tcpAddr
}

// UDPAddr returns the presence server's actual address, or "" when disabled.
func (h *ServerHandle) UDPAddr() string {
	return h.udpAddr
}

// AdminAddr returns the admin listener's address, or "" when disabled.
func (h *ServerHandle) AdminAddr() string {
	return h.adminAddr
}

// Stop cancels every authority and waits until they exit or ctx expires.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
	}
	h.cancel()
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the server exits.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer binds every enabled listener, opens the journal, and starts
// serving in the background. Bind failures are returned before anything runs.
// Call Stop/Wait, or cancel ctx, to manage its lifecycle.
func RunServer(ctx context.Context, cfg ServerConfig) (*ServerHandle, error) {
	if !cfg.EnableTCP && !cfg.EnableUDP {
		return nil, errors.New("at least one of the TCP and UDP authorities must be enabled")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var cleanup []func()
	fail := func(err error) (*ServerHandle, error) {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
		return nil, err
	}

	metrics := intrnl.NewMetrics()
	feed := intrnl.NewActivityFeed(logger)
	hub := intrnl.NewHub()
	registry := intrnl.NewPresenceRegistry()

	var journal *storage.Store
	if cfg.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
			return fail(fmt.Errorf("create db dir: %w", err))
		}
		store, err := storage.NewStore(cfg.DBPath)
		if err != nil {
			return fail(fmt.Errorf("open journal: %w", err))
		}
		cleanup = append(cleanup, func() { _ = store.Close() })
		if err := store.Migrate(ctx); err != nil {
			return fail(fmt.Errorf("migrate: %w", err))
		}
		journal = store
	}

	handle := &ServerHandle{done: make(chan struct{})}
	runCtx, cancel := context.WithCancel(ctx)
	handle.cancel = cancel
	cleanup = append(cleanup, cancel)
	group, groupCtx := errgroup.WithContext(runCtx)
	var starters []func()

	if cfg.EnableTCP {
		files, err := filestore.New(cfg.StorageDir)
		if err != nil {
			return fail(fmt.Errorf("open storage: %w", err))
		}
		opts := intrnl.FileServerOptions{
			Hub:         hub,
			Files:       files,
			Feed:        feed,
			Metrics:     metrics,
			Logger:      logger,
			MaxFileSize: cfg.MaxFileSize,
			IdleTimeout: cfg.IdleTimeout,
		}
		if journal != nil {
			opts.Journal = journal
		}
		fileServer := intrnl.NewFileServer(opts)
		listener, err := net.Listen("tcp", cfg.TCPAddr)
		if err != nil {
			return fail(fmt.Errorf("listen tcp: %w", err))
		}
		cleanup = append(cleanup, func() { _ = listener.Close() })
		handle.tcpAddr = listener.Addr().String()
		starters = append(starters, func() {
			group.Go(func() error { return fileServer.Serve(groupCtx, listener) })
		})
	}

	if cfg.EnableUDP {
		udpAddr, err := net.ResolveUDPAddr("udp", cfg.UDPAddr)
		if err != nil {
			return fail(fmt.Errorf("resolve udp: %w", err))
		}
		conn, err := net.ListenUDP("udp", udpAddr)
		if err != nil {
			return fail(fmt.Errorf("listen udp: %w", err))
		}
		cleanup = append(cleanup, func() { _ = conn.Close() })
		handle.udpAddr = conn.LocalAddr().String()
		presence := intrnl.NewPresenceServer(intrnl.PresenceServerOptions{
			Registry: registry,
			Metrics:  metrics,
			Logger:   logger,
		})
		starters = append(starters, func() {
			group.Go(func() error {
				defer conn.Close()
				return presence.Serve(groupCtx, conn)
			})
			group.Go(func() error {
				presence.RunSweeper(groupCtx, cfg.SweepInterval, cfg.LivenessWindow)
				return nil
			})
		})
	}

	if cfg.AdminAddr != "" {
		opts := intrnl.AdminOptions{
			Hub:      hub,
			Presence: registry,
			Feed:     feed,
			Metrics:  metrics,
		}
		if journal != nil {
			opts.Journal = journal
		}
		admin := intrnl.NewAdmin(opts)
		listener, err := net.Listen("tcp", cfg.AdminAddr)
		if err != nil {
			return fail(fmt.Errorf("listen admin: %w", err))
		}
		handle.adminAddr = listener.Addr().String()
		httpServer := &http.Server{Handler: admin.Handler(), ReadHeaderTimeout: 5 * time.Second}
		starters = append(starters, func() {
			group.Go(func() error {
				err := httpServer.Serve(listener)
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			})
			group.Go(func() error {
				<-groupCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					logger.Printf("admin shutdown error: %v", err)
				}
				return nil
			})
		})
	}

	group.Go(func() error {
		feed.Run(groupCtx)
		return nil
	})
	for _, start := range starters {
		start()
	}
	logger.Printf("roomshare %s: files %s, presence %s, admin %s, storage %s",
		intrnl.Version, orOff(handle.tcpAddr), orOff(handle.udpAddr), orOff(handle.adminAddr), cfg.StorageDir)

	go func() {
		defer close(handle.done)
		err := group.Wait()
		cancel()
		if journal != nil {
			if cerr := journal.Close(); cerr != nil {
				logger.Printf("journal close error: %v", cerr)
			}
		}
		logger.Printf("roomshare stopped")
		handle.err = err
	}()
	return handle, nil
}

func orOff(addr string) string {
	if addr == "" {
		return "off"
	}
	return addr
}
