package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	intrnl "roomshare/internal"
)

const (
	DefaultTCPAddr   = "127.0.0.1:65432"
	DefaultUDPAddr   = "127.0.0.1:65433"
	DefaultAdminAddr = "127.0.0.1:65434"
)

// ServerConfig defines which authorities run and where.
type ServerConfig struct {
	TCPAddr    string
	UDPAddr    string
	AdminAddr  string // empty disables the admin listener
	StorageDir string
	DBPath     string // empty disables the activity journal

	MaxFileSize    int64
	SweepInterval  time.Duration
	LivenessWindow time.Duration
	IdleTimeout    time.Duration

	EnableTCP bool
	EnableUDP bool

	Logger *log.Logger
}

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	TCPAddr     string
	UDPAddr     string
	Username    string
	Room        string
	DownloadDir string
}

// DefaultServerConfig runs both authorities on their reference ports.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		TCPAddr:        DefaultTCPAddr,
		UDPAddr:        DefaultUDPAddr,
		AdminAddr:      DefaultAdminAddr,
		StorageDir:     DefaultStorageDir(),
		DBPath:         DefaultDBPath(),
		MaxFileSize:    intrnl.DefaultMaxFileSize,
		SweepInterval:  intrnl.DefaultSweepInterval,
		LivenessWindow: intrnl.DefaultLivenessWindow,
		EnableTCP:      true,
		EnableUDP:      true,
	}
}

// DefaultStorageDir is where uploaded files land, one subdirectory per room.
func DefaultStorageDir() string {
	if env := os.Getenv("ROOMSHARE_STORAGE_DIR"); env != "" {
		return env
	}
	return "server_files"
}

// DefaultDBPath returns a per-user data path for the activity journal.
func DefaultDBPath() string {
	if env := os.Getenv("ROOMSHARE_DB_PATH"); env != "" {
		return env
	}
	if env := os.Getenv("ROOMSHARE_DATA_DIR"); env != "" {
		return filepath.Join(env, "roomshare.db")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "roomshare", "roomshare.db")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "RoomShare", "roomshare.db")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "RoomShare", "roomshare.db")
		}
		return filepath.Join(home, ".local", "share", "roomshare", "roomshare.db")
	}
	return filepath.Join(".", ".roomshare", "roomshare.db")
}

// LoadEnv reads .env style files into the process environment. Missing files
// are skipped; variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

func EnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// EnvDuration parses values such as "30s"; bad values fall back.
func EnvDuration(key string, fallback time.Duration) time.Duration {
	if parsed, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return parsed
	}
	return fallback
}

func EnvInt64(key string, fallback int64) int64 {
	if parsed, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return parsed
	}
	return fallback
}

func EnvBool(key string, fallback bool) bool {
	if parsed, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return parsed
	}
	return fallback
}

// ServerFlags registers the server flags on fs, each defaulting to its
// ROOMSHARE_* environment variable. The returned func builds the config after
// fs has been parsed.
func ServerFlags(fs *flag.FlagSet) func() (ServerConfig, error) {
	defaults := DefaultServerConfig()
	tcpAddr := fs.String("tcp", EnvOrDefault("ROOMSHARE_TCP_ADDR", defaults.TCPAddr), "file server listen address")
	udpAddr := fs.String("udp", EnvOrDefault("ROOMSHARE_UDP_ADDR", defaults.UDPAddr), "presence server listen address")
	adminAddr := fs.String("admin", EnvOrDefault("ROOMSHARE_ADMIN_ADDR", defaults.AdminAddr), "admin HTTP listen address (empty disables)")
	storageDir := fs.String("storage", defaults.StorageDir, "root directory for uploaded files")
	dbPath := fs.String("db", defaults.DBPath, "activity journal path (empty disables)")
	maxFileSize := fs.Int64("max-file-size", EnvInt64("ROOMSHARE_MAX_FILE_SIZE", defaults.MaxFileSize), "largest accepted upload in bytes")
	sweep := fs.Duration("sweep", EnvDuration("ROOMSHARE_SWEEP_INTERVAL", defaults.SweepInterval), "presence cleanup period")
	liveness := fs.Duration("liveness", EnvDuration("ROOMSHARE_LIVENESS_WINDOW", defaults.LivenessWindow), "silence before a presence entry is evicted")
	idle := fs.Duration("idle-timeout", EnvDuration("ROOMSHARE_IDLE_TIMEOUT", 0), "close TCP sessions idle this long (0 never)")
	mode := fs.String("mode", EnvOrDefault("ROOMSHARE_MODE", "all"), "authorities to run: all, tcp or udp")
	quiet := fs.Bool("quiet", EnvBool("ROOMSHARE_QUIET", false), "suppress informational logs")

	return func() (ServerConfig, error) {
		cfg := defaults
		cfg.TCPAddr = *tcpAddr
		cfg.UDPAddr = *udpAddr
		cfg.AdminAddr = *adminAddr
		cfg.StorageDir = *storageDir
		cfg.DBPath = *dbPath
		cfg.MaxFileSize = *maxFileSize
		cfg.SweepInterval = *sweep
		cfg.LivenessWindow = *liveness
		cfg.IdleTimeout = *idle
		switch *mode {
		case "all":
		case "tcp":
			cfg.EnableUDP = false
		case "udp":
			cfg.EnableTCP = false
		default:
			return cfg, fmt.Errorf("unknown mode %q (want all, tcp or udp)", *mode)
		}
		if *quiet {
			cfg.Logger = log.New(io.Discard, "", 0)
		}
		return cfg, nil
	}
}
