package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"roomshare/internal/app"
)

const (
	modeServer = "server"
	modeClient = "client"
	modeLocal  = "local"
)

func main() {
	if err := app.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "roomshare: load .env: %v\n", err)
		os.Exit(1)
	}
	mode, args := parseMode(os.Args[1:])
	flagSet := flag.NewFlagSet("roomshare", flag.ExitOnError)
	buildServerConfig := app.ServerFlags(flagSet)
	username := flagSet.String("user", app.EnvOrDefault("ROOMSHARE_USER", ""), "display name (client and local modes)")
	downloads := flagSet.String("downloads", app.EnvOrDefault("ROOMSHARE_DOWNLOAD_DIR", "downloads"), "directory for downloaded files")
	_ = flagSet.Parse(args)

	room := ""
	if remaining := flagSet.Args(); len(remaining) > 0 {
		room = remaining[0]
	}

	serverCfg, err := buildServerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "roomshare: %v\n", err)
		os.Exit(2)
	}
	clientCfg := app.ClientConfig{
		TCPAddr:     serverCfg.TCPAddr,
		UDPAddr:     serverCfg.UDPAddr,
		Username:    *username,
		Room:        room,
		DownloadDir: *downloads,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case modeServer:
		err = runServerMode(ctx, serverCfg)
	case modeLocal:
		err = runLocalMode(ctx, serverCfg, clientCfg)
	default:
		err = app.RunClient(clientCfg)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "roomshare: %v\n", err)
		os.Exit(1)
	}
}

func runServerMode(ctx context.Context, cfg app.ServerConfig) error {
	handle, err := app.RunServer(ctx, cfg)
	if err != nil {
		return err
	}
	return handle.Wait()
}

// runLocalMode starts both authorities on ephemeral loopback ports and runs a
// client against them. Server logs are discarded so they do not draw over the
// TUI.
func runLocalMode(ctx context.Context, serverCfg app.ServerConfig, clientCfg app.ClientConfig) error {
	serverCfg.TCPAddr = "127.0.0.1:0"
	serverCfg.UDPAddr = "127.0.0.1:0"
	serverCfg.AdminAddr = ""
	serverCfg.EnableTCP, serverCfg.EnableUDP = true, true
	serverCfg.Logger = log.New(io.Discard, "", 0)

	handle, err := app.RunServer(ctx, serverCfg)
	if err != nil {
		return err
	}
	defer stopServer(handle)

	if err := waitForServer(handle.TCPAddr(), 5*time.Second); err != nil {
		return err
	}
	clientCfg.TCPAddr = handle.TCPAddr()
	clientCfg.UDPAddr = handle.UDPAddr()
	if err := app.RunClient(clientCfg); err != nil {
		return err
	}
	stopServer(handle)
	return handle.Wait()
}

func waitForServer(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server did not become ready: %w", err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func parseMode(args []string) (string, []string) {
	if len(args) == 0 {
		return modeClient, args
	}
	switch strings.ToLower(args[0]) {
	case modeServer, modeClient, modeLocal:
		return strings.ToLower(args[0]), args[1:]
	}
	return modeClient, args
}

func stopServer(handle *app.ServerHandle) {
	if handle == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = handle.Stop(shutdownCtx)
}
