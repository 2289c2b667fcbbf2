// Package config loads client configuration from a YAML file and
// environment variables, and sets up logging.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the on-disk configuration shape (~/.config/datachat/config.yaml).
type File struct {
	ServerURL string `yaml:"server_url"`
	Token     string `yaml:"token"`
	ProjectID string `yaml:"project_id"`
	LogFile   string `yaml:"log_file"`
	LogLevel  string `yaml:"log_level"`

	// Tunables for the reconciliation heuristics. Both are heuristics,
	// not protocol guarantees; see the store documentation.
	VisualizationMinChars    int    `yaml:"visualization_min_chars"`
	RecentConversationWindow string `yaml:"recent_conversation_window"`
}

// Config holds all resolved configuration values.
type Config struct {
	ServerURL string
	Token     string
	ProjectID string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Reconciliation tunables
	VisualizationMinChars    int
	RecentConversationWindow time.Duration
}

// Path returns the config file location, honoring DATACHAT_CONFIG.
func Path() string {
	if p := os.Getenv("DATACHAT_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "datachat", "config.yaml")
}

// Load reads configuration from the YAML file (when present), with
// environment variables taking precedence.
func Load() Config {
	var file File
	if data, err := os.ReadFile(Path()); err == nil {
		// A malformed file falls back to env-only config.
		_ = yaml.Unmarshal(data, &file)
	}

	cfg := Config{
		ServerURL: getEnv("DATACHAT_SERVER_URL", file.ServerURL),
		Token:     getEnv("DATACHAT_TOKEN", file.Token),
		ProjectID: getEnv("DATACHAT_PROJECT", file.ProjectID),

		LogFile:  getEnv("DATACHAT_LOG_FILE", defaultStr(file.LogFile, "/tmp/datachat.log")),
		LogLevel: parseLogLevel(getEnv("DATACHAT_LOG_LEVEL", defaultStr(file.LogLevel, "INFO"))),

		VisualizationMinChars:    file.VisualizationMinChars,
		RecentConversationWindow: parseDurationOrZero(file.RecentConversationWindow),
	}

	if v := os.Getenv("DATACHAT_VIS_MIN_CHARS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.VisualizationMinChars)
	}
	if v := os.Getenv("DATACHAT_RECENT_CONVERSATION_WINDOW"); v != "" {
		cfg.RecentConversationWindow = parseDurationOrZero(v)
	}

	return cfg
}

// Save writes the config file, creating its directory as needed. Used by
// the login command.
func Save(file File) error {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	// The token lives here; keep the file private.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ReadFile loads the raw config file for editing by the login command.
func ReadFile() File {
	var file File
	if data, err := os.ReadFile(Path()); err == nil {
		_ = yaml.Unmarshal(data, &file)
	}
	return file
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func defaultStr(val, fallback string) string {
	if val != "" {
		return val
	}
	return fallback
}

func parseDurationOrZero(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
