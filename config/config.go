package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	ListenAddr string

	// Storage
	DataDir  string // Base directory for all local state
	DBPath   string // Embedded relational store
	CacheDir string // Resolved-stream disk cache

	// Resolved-stream cache policy. CacheMaxBytes == 0 means unlimited.
	CacheMaxBytes int64

	// Catalog API
	CatalogBaseURL string
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// Stream resolution
	ChunkBytes   int64 // Byte-range size requested from the remote stream
	URLCacheSize int   // Capacity of the short-term resolved-URL ring buffer

	// Preferences file watched for live changes
	PrefsPath string

	// Local music directory. Empty disables the local library scanner.
	MusicDir string

	// Logging
	LogLevel string
	LogPath  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvInt64 gets an environment variable as int64 or returns a default value.
func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	dataDir := getEnv("DATA_DIR", "data")

	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		DataDir:  dataDir,
		DBPath:   getEnv("DB_PATH", filepath.Join(dataDir, "tunetube.db")),
		CacheDir: getEnv("CACHE_DIR", filepath.Join(dataDir, "streamcache")),

		CacheMaxBytes: getEnvInt64("CACHE_MAX_MB", 2048) * 1024 * 1024,

		CatalogBaseURL: getEnv("CATALOG_API_URL", "https://music.youtube.com/youtubei/v1"),
		UserAgent: getEnv("CATALOG_USER_AGENT",
			"Mozilla/5.0 (Windows NT 10.0; rv:91.0) Gecko/20100101 Firefox/91.0"),
		ConnectTimeout: time.Duration(getEnvInt("STREAM_CONNECT_TIMEOUT_MS", 16000)) * time.Millisecond,
		ReadTimeout:    time.Duration(getEnvInt("STREAM_READ_TIMEOUT_MS", 8000)) * time.Millisecond,

		ChunkBytes:   getEnvInt64("STREAM_CHUNK_BYTES", 512*1024),
		URLCacheSize: getEnvInt("STREAM_URL_CACHE_SIZE", 2),

		PrefsPath: getEnv("PREFS_PATH", filepath.Join(dataDir, "prefs.yaml")),

		MusicDir: getEnv("MUSIC_DIR", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", ""),
	}
}

// CacheUnlimited reports whether the disk cache size is unbounded.
func (c *Config) CacheUnlimited() bool {
	return c.CacheMaxBytes <= 0
}
