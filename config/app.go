package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	CacheDir    string
	DownloadDir string
	DB          *DBConfig

	// PeerDialTimeout bounds the TCP connect step of a peer session.
	PeerDialTimeout time.Duration
	// PeerReadTimeout is the per-frame read deadline once a session
	// reaches the Working state.
	PeerReadTimeout time.Duration
	// MaxPeersPerTorrent caps how many concurrent peer sessions a
	// single download runs. 0 means "no cap, use every known peer".
	MaxPeersPerTorrent int
	// BadHashDropThreshold is the failed-verify count at which a
	// piece's retries start logging at Warn instead of Debug. The piece
	// is always reset and requeued regardless. 0 means never escalate.
	BadHashDropThreshold int
}

func NewAppConfig() *AppConfig {
	cacheDir := os.Getenv("CACHE_DIR")
	if cacheDir == "" {
		cacheDir = "storage/cache"
	}

	downloadDir := os.Getenv("DOWNLOAD_DIR")
	if downloadDir == "" {
		downloadDir = "storage/downloads"
	}

	dbConf := NewDBConfig()

	return &AppConfig{
		CacheDir:             cacheDir,
		DownloadDir:          downloadDir,
		DB:                   dbConf,
		PeerDialTimeout:      envDuration("PEER_DIAL_TIMEOUT", 5*time.Second),
		PeerReadTimeout:      envDuration("PEER_READ_TIMEOUT", 5*time.Second),
		MaxPeersPerTorrent:   envInt("MAX_PEERS_PER_TORRENT", 0),
		BadHashDropThreshold: envInt("BAD_HASH_DROP_THRESHOLD", 0),
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

var Main *AppConfig

func init() {
	_ = godotenv.Load()
	Main = NewAppConfig()
}
