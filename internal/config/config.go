package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const placeholderValue = "YOUR_SUPABASE"

type Config struct {
	Port           string
	DevMode        bool
	BackendURL     string
	BackendAnonKey string
	LocalStatePath string
	DefaultLocale  string
	ReplyDelay     time.Duration
	TitleLimit     int
	ListLimit      int
}

func Load() Config {
	devMode := os.Getenv("VANGO_DEV") == "1"
	defaultStatePath := "db/helper_chat.sqlite"
	if devMode {
		defaultStatePath = filepath.Join(os.TempDir(), "helper_chat.sqlite")
	}

	cfg := Config{
		Port:           getenv("PORT", "3000"),
		DevMode:        devMode,
		BackendURL:     getenv("SUPABASE_URL", ""),
		BackendAnonKey: getenv("SUPABASE_ANON_KEY", ""),
		LocalStatePath: getenv("LOCAL_STATE_PATH", defaultStatePath),
		DefaultLocale:  getenv("APP_LOCALE", "en"),
		ReplyDelay:     time.Duration(getenvInt("CHAT_REPLY_DELAY_MS", 500)) * time.Millisecond,
		TitleLimit:     getenvInt("CHAT_TITLE_LIMIT", 30),
		ListLimit:      getenvInt("CHAT_LIST_LIMIT", 200),
	}

	if cfg.ReplyDelay < 0 {
		cfg.ReplyDelay = 500 * time.Millisecond
	}
	if cfg.TitleLimit < 1 {
		cfg.TitleLimit = 30
	}
	if cfg.ListLimit < 1 {
		cfg.ListLimit = 200
	}

	return cfg
}

// Validate reports the fatal configuration error: missing or placeholder
// backend credentials. Nothing may proceed past it.
func (c Config) Validate() error {
	if c.BackendURL == "" || strings.Contains(c.BackendURL, placeholderValue) {
		return errors.New("SUPABASE_URL is not configured")
	}
	if c.BackendAnonKey == "" || strings.Contains(c.BackendAnonKey, placeholderValue) {
		return errors.New("SUPABASE_ANON_KEY is not configured")
	}
	return nil
}

func getenv(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func getenvInt(name string, fallback int) int {
	value := os.Getenv(name)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
