package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingDatabaseDSN = errors.New("DB_DSN could not be resolved")
	ErrBadMasterKey       = errors.New("master key must be 32 bytes after base64 decode")
)

type Config struct {
	ListenAddr  string
	DataDir     string
	HealthPath  string
	MetricsPath string

	DB      DBConfig
	CORS    CORSConfig
	LLM     LLMConfig
	Secrets SecretsConfig
	Log     LogConfig
}

type DBConfig struct {
	Driver        string
	DSN           string
	AutoMigrate   bool
	MigrationsDir string
}

type CORSConfig struct {
	// Origins is either the single entry "*" (fully open) or a fixed list
	// of allowed local development origins.
	Origins []string
}

func (c CORSConfig) AllowAll() bool {
	return len(c.Origins) == 1 && c.Origins[0] == "*"
}

type LLMConfig struct {
	// ConnectTimeout bounds dialing and TLS setup for every upstream call.
	ConnectTimeout time.Duration
	// RequestTimeout bounds the whole non-streaming exchange. Streaming
	// reads are intentionally unbounded.
	RequestTimeout time.Duration
}

type SecretsConfig struct {
	CurrentKeyID string
	Keys         map[string][]byte
}

func (s SecretsConfig) Enabled() bool {
	return len(s.Keys) > 0
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	dataDir, err := resolveDataDir()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddr:  mustEnv("VIPER_LISTEN_ADDR", "127.0.0.1:8756"),
		DataDir:     dataDir,
		HealthPath:  mustEnv("HEALTH_PATH", "/healthz"),
		MetricsPath: mustEnv("METRICS_PATH", "/metrics"),
		DB: DBConfig{
			Driver:        strings.ToLower(mustEnv("DB_DRIVER", "sqlite")),
			DSN:           mustEnv("DB_DSN", ""),
			AutoMigrate:   mustBool("AUTO_MIGRATE", true),
			MigrationsDir: mustEnv("DB_MIGRATIONS_DIR", "migrations"),
		},
		CORS: CORSConfig{
			Origins: splitList(mustEnv("CORS_ORIGINS", "*")),
		},
		LLM: LLMConfig{
			ConnectTimeout: mustDuration("LLM_CONNECT_TIMEOUT", 60*time.Second),
			RequestTimeout: mustDuration("LLM_REQUEST_TIMEOUT", 120*time.Second),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
	}

	if cfg.DB.DSN == "" {
		if cfg.DB.Driver != "sqlite" && cfg.DB.Driver != "sqlite3" {
			return nil, ErrMissingDatabaseDSN
		}
		cfg.DB.DSN = filepath.Join(dataDir, "viper.db")
	}

	sc, err := loadSecretsConfig()
	if err != nil {
		return nil, err
	}
	cfg.Secrets = sc

	return cfg, nil
}

// resolveDataDir honors VIPER_DATA_DIR and otherwise places the database
// under the per-user config directory, creating it on first run.
func resolveDataDir() (string, error) {
	dir := mustEnv("VIPER_DATA_DIR", "")
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			base, err = os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("resolve data dir: %w", err)
			}
		}
		dir = filepath.Join(base, "Viper")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir %q: %w", dir, err)
	}
	return dir, nil
}

// loadSecretsConfig gathers optional master keys for at-rest API key
// sealing. With no keys configured, sealing is disabled and model API keys
// are stored verbatim.
func loadSecretsConfig() (SecretsConfig, error) {
	keysB64 := map[string]string{}

	for _, e := range os.Environ() {
		k, v, ok := strings.Cut(e, "=")
		if !ok || v == "" {
			continue
		}
		if !strings.HasPrefix(k, "VIPER_MASTER_KEY_") || !strings.HasSuffix(k, "_B64") {
			continue
		}
		if k == "VIPER_MASTER_KEY_B64" {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(k, "VIPER_MASTER_KEY_"), "_B64")
		if id == "" {
			continue
		}
		keysB64[id] = v
	}

	current := mustEnv("VIPER_MASTER_KEY_CURRENT_ID", "")
	if singleton := mustEnv("VIPER_MASTER_KEY_B64", ""); singleton != "" {
		if current == "" {
			current = "default"
		}
		keysB64[current] = singleton
	}

	if len(keysB64) == 0 {
		return SecretsConfig{}, nil
	}

	keys := make(map[string][]byte, len(keysB64))
	for id, b64 := range keysB64 {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return SecretsConfig{}, fmt.Errorf("decode master key %q: %w", id, err)
		}
		if len(raw) != 32 {
			return SecretsConfig{}, fmt.Errorf("master key %q: %w", id, ErrBadMasterKey)
		}
		keys[id] = raw
	}

	if current == "" {
		for id := range keys {
			current = id
			break
		}
	}
	if _, ok := keys[current]; !ok {
		return SecretsConfig{}, fmt.Errorf("VIPER_MASTER_KEY_CURRENT_ID=%q does not exist in provided keys", current)
	}

	return SecretsConfig{CurrentKeyID: current, Keys: keys}, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustBool(key string, def bool) bool {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
