package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Engine  EngineConfig
	Cache   CacheConfig
	Search  SearchConfig
	Storage StorageConfig
}

type ServerConfig struct {
	Port  int
	Token string
}

type LogConfig struct {
	Level string
}

type EngineConfig struct {
	Host       string
	Model      string
	EmbedModel string
}

type CacheConfig struct {
	Backend       string
	RedisAddr     string
	Coalesce      bool
	SweepInterval time.Duration
	SearchTTL     time.Duration
	TrendsTTL     time.Duration
	KeywordsTTL   time.Duration
}

type SearchConfig struct {
	Endpoint   string
	MaxResults int
	Rerank     bool
}

type StorageConfig struct {
	Path string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 8591,
		},
		Log: LogConfig{
			Level: "info",
		},
		Engine: EngineConfig{
			Host:       "http://localhost:11434",
			Model:      "llama3.2",
			EmbedModel: "nomic-embed-text",
		},
		Cache: CacheConfig{
			Backend:       "sqlite",
			RedisAddr:     "localhost:6379",
			Coalesce:      false,
			SweepInterval: 15 * time.Minute,
			SearchTTL:     24 * time.Hour,
			TrendsTTL:     168 * time.Hour,
			KeywordsTTL:   720 * time.Hour,
		},
		Search: SearchConfig{
			Endpoint:   "http://localhost:8080",
			MaxResults: 10,
			Rerank:     false,
		},
		Storage: StorageConfig{
			Path: dataDir,
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.pathlight.app) and the
// API token falls back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/pathlight/config.json
// and the token falls back to $XDG_DATA_HOME/pathlight/secrets.json.
//
// Environment variables (PATHLIGHT_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts the platform secret store for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try the platform secret store for the token if still empty.
	if cfg.Server.Token == "" {
		if tok, err := kc.Get("pathlight", "server_token"); err == nil && tok != "" {
			cfg.Server.Token = tok
		}
	}

	if cfg.Server.Token == "" {
		msg := "missing required config: API token. " +
			"Set it via environment variable PATHLIGHT_SERVER_TOKEN" +
			tokenHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	switch cfg.Cache.Backend {
	case "sqlite", "redis":
	default:
		return Config{}, fmt.Errorf("invalid cache.backend %q: must be sqlite or redis", cfg.Cache.Backend)
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
