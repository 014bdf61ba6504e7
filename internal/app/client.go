package app

import (
	"errors"

	intrnl "roomshare/internal"
)

// RunClient launches the Bubble Tea TUI with the provided configuration.
func RunClient(cfg ClientConfig) error {
	if cfg.TCPAddr == "" || cfg.UDPAddr == "" {
		return errors.New("both server addresses are required")
	}
	return intrnl.RunClient(intrnl.ClientOptions{
		TCPAddr:     cfg.TCPAddr,
		UDPAddr:     cfg.UDPAddr,
		Username:    cfg.Username,
		Room:        cfg.Room,
		DownloadDir: cfg.DownloadDir,
	})
}
