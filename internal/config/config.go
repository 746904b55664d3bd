package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Ledger    LedgerConfig
	Speech    SpeechConfig
	Notify    NotifyConfig
	LiveKit   LiveKitConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type StorageConfig struct {
	DataDir     string
	Backend     string // json or sqlite
	SaveTimeout time.Duration
}

// LedgerPath is the JSON snapshot location.
func (s StorageConfig) LedgerPath() string {
	return filepath.Join(s.DataDir, "ledger.json")
}

// AudioDir holds synthesized caller audio.
func (s StorageConfig) AudioDir() string {
	return filepath.Join(s.DataDir, "audio")
}

type LedgerConfig struct {
	Expiry        time.Duration
	SweepInterval time.Duration
}

type SpeechConfig struct {
	Provider string // http, command or none
	BaseURL  string
	Lang     string
	Command  string
	Voice    string
}

type NotifyConfig struct {
	WebhookURL    string
	RedisAddr     string
	RedisChannel  string
	RedisPassword string
}

type LiveKitConfig struct {
	URL       string
	APIKey    string
	APISecret string
	TokenTTL  time.Duration
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		Storage: StorageConfig{
			DataDir:     defaultDataDir(),
			Backend:     "json",
			SaveTimeout: 2 * time.Second,
		},
		Ledger: LedgerConfig{
			Expiry:        5 * time.Minute,
			SweepInterval: 30 * time.Second,
		},
		Speech: SpeechConfig{
			Provider: "http",
			BaseURL:  "https://translate.google.com/translate_tts",
			Lang:     "en",
			Command:  "espeak-ng",
		},
		Notify: NotifyConfig{
			RedisChannel: "frontdesk:escalations",
		},
		LiveKit: LiveKitConfig{
			TokenTTL: 6 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			RPS:   5,
			Burst: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, a .env file in
// the working directory, environment variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.frontdesk.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/frontdesk/config.json
// and secrets fall back to $XDG_DATA_HOME/frontdesk/secrets.json.
//
// Environment variables (FRONTDESK_*) override backend values on all
// platforms. Variables from .env never replace ones already set.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return loadWith(newPlatformBackend(), keychainReader{})
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applySecrets fills secrets that are still empty from the keychain.
func applySecrets(cfg *Config, kc keychain) {
	for _, s := range specs {
		if !s.secret || s.account == "" {
			continue
		}
		if v, _ := s.extract(*cfg).(string); v != "" {
			continue
		}
		if v, err := kc.Get(keychainService, s.account); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Storage.Backend {
	case "json", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be json or sqlite, got %q", c.Storage.Backend))
	}
	switch c.Speech.Provider {
	case "http", "command", "none":
	default:
		errs = append(errs, fmt.Errorf("speech.provider must be http, command or none, got %q", c.Speech.Provider))
	}
	if c.Ledger.Expiry < 0 {
		errs = append(errs, fmt.Errorf("ledger.expiry must not be negative"))
	}
	if c.RateLimit.RPS < 0 {
		errs = append(errs, fmt.Errorf("ratelimit.rps must not be negative"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

const keychainService = "frontdesk"

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
