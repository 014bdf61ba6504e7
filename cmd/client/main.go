package main

import (
	"flag"
	"fmt"
	"os"

	"roomshare/internal/app"
)

func main() {
	if err := app.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "error: load .env: %v\n", err)
		os.Exit(1)
	}

	tcpAddr := flag.String("tcp", app.EnvOrDefault("ROOMSHARE_TCP_ADDR", app.DefaultTCPAddr), "file server address")
	udpAddr := flag.String("udp", app.EnvOrDefault("ROOMSHARE_UDP_ADDR", app.DefaultUDPAddr), "presence server address")
	username := flag.String("user", app.EnvOrDefault("ROOMSHARE_USER", ""), "display name")
	downloads := flag.String("downloads", app.EnvOrDefault("ROOMSHARE_DOWNLOAD_DIR", "downloads"), "directory for downloaded files")
	flag.Parse()

	room := ""
	if args := flag.Args(); len(args) >= 1 {
		room = args[0]
	}

	cfg := app.ClientConfig{
		TCPAddr:     *tcpAddr,
		UDPAddr:     *udpAddr,
		Username:    *username,
		Room:        room,
		DownloadDir: *downloads,
	}
	if err := app.RunClient(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
