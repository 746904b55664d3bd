package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	account string // keychain account for secrets
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "FRONTDESK_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "FRONTDESK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "FRONTDESK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.backend", typ: kString, env: "FRONTDESK_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.save_timeout", typ: kDuration, env: "FRONTDESK_STORAGE_SAVE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Storage.SaveTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Storage.SaveTimeout },
	},
	{
		key: "ledger.expiry", typ: kDuration, env: "FRONTDESK_LEDGER_EXPIRY",
		apply:   func(cfg *Config, v any) { cfg.Ledger.Expiry = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Ledger.Expiry },
	},
	{
		key: "ledger.sweep_interval", typ: kDuration, env: "FRONTDESK_LEDGER_SWEEP_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Ledger.SweepInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Ledger.SweepInterval },
	},
	{
		key: "speech.provider", typ: kString, env: "FRONTDESK_SPEECH_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Speech.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Speech.Provider },
	},
	{
		key: "speech.base_url", typ: kString, env: "FRONTDESK_SPEECH_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Speech.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Speech.BaseURL },
	},
	{
		key: "speech.lang", typ: kString, env: "FRONTDESK_SPEECH_LANG",
		apply:   func(cfg *Config, v any) { cfg.Speech.Lang = v.(string) },
		extract: func(cfg Config) any { return cfg.Speech.Lang },
	},
	{
		key: "speech.command", typ: kString, env: "FRONTDESK_SPEECH_COMMAND",
		apply:   func(cfg *Config, v any) { cfg.Speech.Command = v.(string) },
		extract: func(cfg Config) any { return cfg.Speech.Command },
	},
	{
		key: "speech.voice", typ: kString, env: "FRONTDESK_SPEECH_VOICE",
		apply:   func(cfg *Config, v any) { cfg.Speech.Voice = v.(string) },
		extract: func(cfg Config) any { return cfg.Speech.Voice },
	},
	{
		key: "notify.webhook_url", typ: kString, env: "FRONTDESK_NOTIFY_WEBHOOK_URL",
		apply:   func(cfg *Config, v any) { cfg.Notify.WebhookURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.WebhookURL },
	},
	{
		key: "notify.redis_addr", typ: kString, env: "FRONTDESK_NOTIFY_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Notify.RedisAddr = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.RedisAddr },
	},
	{
		key: "notify.redis_channel", typ: kString, env: "FRONTDESK_NOTIFY_REDIS_CHANNEL",
		apply:   func(cfg *Config, v any) { cfg.Notify.RedisChannel = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.RedisChannel },
	},
	{
		key: "notify.redis_password", typ: kString, env: "FRONTDESK_NOTIFY_REDIS_PASSWORD",
		secret: true, account: "redis_password",
		apply:   func(cfg *Config, v any) { cfg.Notify.RedisPassword = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.RedisPassword },
	},
	{
		key: "livekit.url", typ: kString, env: "FRONTDESK_LIVEKIT_URL",
		apply:   func(cfg *Config, v any) { cfg.LiveKit.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.LiveKit.URL },
	},
	{
		key: "livekit.api_key", typ: kString, env: "FRONTDESK_LIVEKIT_API_KEY",
		apply:   func(cfg *Config, v any) { cfg.LiveKit.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LiveKit.APIKey },
	},
	{
		key: "livekit.api_secret", typ: kString, env: "FRONTDESK_LIVEKIT_API_SECRET",
		secret: true, account: "livekit_api_secret",
		apply:   func(cfg *Config, v any) { cfg.LiveKit.APISecret = v.(string) },
		extract: func(cfg Config) any { return cfg.LiveKit.APISecret },
	},
	{
		key: "livekit.token_ttl", typ: kDuration, env: "FRONTDESK_LIVEKIT_TOKEN_TTL",
		apply:   func(cfg *Config, v any) { cfg.LiveKit.TokenTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.LiveKit.TokenTTL },
	},
	{
		key: "ratelimit.rps", typ: kFloat, env: "FRONTDESK_RATELIMIT_RPS",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.RPS = v.(float64) },
		extract: func(cfg Config) any { return cfg.RateLimit.RPS },
	},
	{
		key: "ratelimit.burst", typ: kInt, env: "FRONTDESK_RATELIMIT_BURST",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.Burst = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.Burst },
	},
	{
		key: "log.level", typ: kString, env: "FRONTDESK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

// parseValue converts raw text for a non-int key type.
func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kString:
		return raw, nil
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	}
	return nil, fmt.Errorf("unsupported key type %d", typ)
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		default:
			raw, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if !ok || raw == "" {
				continue
			}
			if v, err := parseValue(s.typ, raw); err == nil {
				s.apply(cfg, v)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		if v, err := parseValue(s.typ, raw); err == nil {
			s.apply(cfg, v)
		} else {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
		}
	}
}
