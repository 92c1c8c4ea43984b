// Package config loads the gateway configuration from an optional YAML file
// and COURTSIDE_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Config is the full runtime configuration. Zero values are filled with
// defaults by Load; a missing config file yields pure defaults.
type Config struct {
	Listen     string `yaml:"listen"`
	RedisAddr  string `yaml:"redis_addr"` // empty selects the in-process bridge
	SQLitePath string `yaml:"sqlite_path"`

	Log     LogConfig     `yaml:"log"`
	Chat    ChatConfig    `yaml:"chat"`
	History HistoryConfig `yaml:"history"`
	Replay  int           `yaml:"replay"` // match events pushed on join
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type ChatConfig struct {
	RateLimit  int      `yaml:"rate_limit"`  // messages per window per user
	RateWindow Duration `yaml:"rate_window"` // window length
}

type HistoryConfig struct {
	ChatSize  int      `yaml:"chat_size"`
	EventSize int      `yaml:"event_size"`
	TTL       Duration `yaml:"ttl"`
}

// Duration decodes YAML strings like "10s" or "24h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration %q must be >= 0", raw)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func defaults() Config {
	return Config{
		Listen:     ":8080",
		SQLitePath: "courtside.db",
		Log:        LogConfig{Level: "info", Pretty: true},
		Chat: ChatConfig{
			RateLimit:  5,
			RateWindow: Duration(10 * time.Second),
		},
		History: HistoryConfig{
			ChatSize:  100,
			EventSize: 200,
			TTL:       Duration(24 * time.Hour),
		},
		Replay: 50,
	}
}

// Load reads path (when it exists), fills defaults for unset fields, and
// applies environment overrides. An unreadable or malformed file is an error;
// a missing file is not.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// run on defaults
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			dec := yaml.NewDecoder(strings.NewReader(string(data)))
			dec.KnownFields(true)
			if err := dec.Decode(&cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if cfg.Chat.RateLimit <= 0 {
		cfg.Chat.RateLimit = 5
	}
	if cfg.Chat.RateWindow <= 0 {
		cfg.Chat.RateWindow = Duration(10 * time.Second)
	}
	if cfg.History.ChatSize <= 0 {
		cfg.History.ChatSize = 100
	}
	if cfg.History.EventSize <= 0 {
		cfg.History.EventSize = 200
	}
	if cfg.History.TTL <= 0 {
		cfg.History.TTL = Duration(24 * time.Hour)
	}
	if cfg.Replay <= 0 {
		cfg.Replay = 50
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString("COURTSIDE_LISTEN", &cfg.Listen)
	setString("COURTSIDE_REDIS_ADDR", &cfg.RedisAddr)
	setString("COURTSIDE_SQLITE_PATH", &cfg.SQLitePath)
	setString("COURTSIDE_LOG_LEVEL", &cfg.Log.Level)
	setBool("COURTSIDE_LOG_PRETTY", &cfg.Log.Pretty)
	setInt("COURTSIDE_CHAT_RATE_LIMIT", &cfg.Chat.RateLimit)
	setDuration("COURTSIDE_CHAT_RATE_WINDOW", &cfg.Chat.RateWindow)
	setInt("COURTSIDE_HISTORY_CHAT_SIZE", &cfg.History.ChatSize)
	setInt("COURTSIDE_HISTORY_EVENT_SIZE", &cfg.History.EventSize)
	setDuration("COURTSIDE_HISTORY_TTL", &cfg.History.TTL)
	setInt("COURTSIDE_REPLAY", &cfg.Replay)
}

// Malformed or non-positive override values are ignored; the file value or
// default stays in effect.

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

func setDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d > 0 {
			*dst = Duration(d)
		}
	}
}
