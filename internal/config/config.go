// Package config loads server configuration from the environment, with
// optional .env file support. Every knob has a default so a bare
// `server` invocation comes up on an in-memory store.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full server configuration tree.
type Config struct {
	Server   ServerConfig
	WebDAV   WebDAVConfig
	Auth     AuthConfig
	CORS     CORSConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig

	// CustomHeaders are injected verbatim into every response by the
	// host layer.
	CustomHeaders map[string]string
}

// ServerConfig is the HTTP listener configuration.
type ServerConfig struct {
	Host string
	Port string
	Mode string
}

// Address joins host and port.
func (s ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

// WebDAVConfig tunes the method engine.
type WebDAVConfig struct {
	Prefix             string
	RequestTimeout     time.Duration
	UploadTimeout      time.Duration
	MaxRequestBytes    int64
	DefaultLockTimeout int64

	// LockDBPath, when set, persists locks across restarts.
	LockDBPath string
}

// AuthConfig configures the host's authentication layer.
type AuthConfig struct {
	Enabled   bool
	Realm     string
	JWTSecret string

	// Users maps usernames to bcrypt password hashes, for deployments
	// that don't want a user database.
	Users map[string]string
}

// CORSConfig mirrors the Access-Control-* response headers.
type CORSConfig struct {
	Enabled     bool
	Origins     string
	Methods     string
	Headers     string
	Credentials bool
}

// StorageConfig selects and configures the VFS backend.
type StorageConfig struct {
	// Backend is "memory" or "minio".
	Backend string

	MinIO MinIOConfig

	// PropertiesDBPath backs dead properties for backends that cannot
	// store them natively.
	PropertiesDBPath string

	// QuotaBytes caps the namespace; zero disables the check.
	QuotaBytes int64
}

// MinIOConfig is the object storage connection.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// DatabaseConfig is the relational store for users.
type DatabaseConfig struct {
	PostgresDSN string
}

// RedisConfig is the optional cache connection.
type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
}

// LoggingConfig selects level and format.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads a .env file when present, then the environment.
func Load() (*Config, error) {
	// Missing .env is not an error; the environment alone is enough.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
			Mode: getEnv("SERVER_MODE", "debug"),
		},
		WebDAV: WebDAVConfig{
			Prefix:             getEnv("WEBDAV_PREFIX", "/webdav"),
			RequestTimeout:     time.Duration(getEnvInt64("REQUEST_TIMEOUT_MS", 30000)) * time.Millisecond,
			UploadTimeout:      time.Duration(getEnvInt64("UPLOAD_TIMEOUT_MS", 30000)) * time.Millisecond,
			MaxRequestBytes:    getEnvInt64("MAX_REQUEST_BYTES", 1<<20),
			DefaultLockTimeout: getEnvInt64("DEFAULT_LOCK_TIMEOUT_S", 3600),
			LockDBPath:         getEnv("LOCK_DB_PATH", ""),
		},
		Auth: AuthConfig{
			Enabled:   getEnvBool("AUTH_ENABLED", false),
			Realm:     getEnv("AUTH_REALM", "WebDAV"),
			JWTSecret: getEnv("JWT_SECRET", ""),
			Users:     parsePairs(getEnv("AUTH_USERS", ""), ":"),
		},
		CORS: CORSConfig{
			Enabled:     getEnvBool("CORS_ENABLED", false),
			Origins:     getEnv("CORS_ORIGINS", "*"),
			Methods:     getEnv("CORS_METHODS", "GET, POST, PUT, DELETE, OPTIONS, PROPFIND, PROPPATCH, MKCOL, COPY, MOVE, LOCK, UNLOCK"),
			Headers:     getEnv("CORS_HEADERS", "Content-Type, Authorization, Depth, Destination, Overwrite, Lock-Token, If, Timeout, Range, Content-Range"),
			Credentials: getEnvBool("CORS_CREDENTIALS", false),
		},
		Storage: StorageConfig{
			Backend: getEnv("STORAGE_BACKEND", "memory"),
			MinIO: MinIOConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
				Bucket:    getEnv("MINIO_BUCKET", "webdav"),
			},
			PropertiesDBPath: getEnv("PROPERTIES_DB_PATH", "./data/properties.db"),
			QuotaBytes:       getEnvInt64("STORAGE_QUOTA_BYTES", 0),
		},
		Database: DatabaseConfig{
			PostgresDSN: getEnv("POSTGRES_DSN", ""),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       int(getEnvInt64("REDIS_DB", 0)),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		CustomHeaders: parsePairs(getEnv("CUSTOM_RESPONSE_HEADERS", ""), "="),
	}

	return cfg, nil
}

// IsProduction reports whether the server runs in release mode.
func (c *Config) IsProduction() bool {
	return c.Server.Mode == "release" || c.Server.Mode == "production"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// parsePairs splits "a<sep>1,b<sep>2" into a map. Malformed entries
// are dropped.
func parsePairs(raw, sep string) map[string]string {
	out := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, value, found := strings.Cut(entry, sep)
		if !found || key == "" {
			continue
		}
		out[key] = value
	}
	return out
}
