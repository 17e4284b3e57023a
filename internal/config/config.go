package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Options are the recognized download options.
type Options struct {
	MaxAttempts    int    `toml:"max_attempts" validate:"min=1,max=10"`
	MaxConcurrent  int    `toml:"max_concurrent" validate:"min=1,max=20"`
	AllowPlaylists bool   `toml:"allow_playlists"`
	Format         string `toml:"format" validate:"oneof=audio mp4 best"`
	Quality        string `toml:"quality" validate:"oneof=480p 720p 1080p best"`
}

// Server configures the optional remote download server. When URL is empty
// the local yt-dlp executable is used instead.
type Server struct {
	URL          string   `toml:"url" validate:"omitempty,http_url"`
	PollInterval duration `toml:"poll_interval"`
}

// Config holds application configuration.
type Config struct {
	Port        int
	DBPath      string
	DownloadDir string
	LogLevel    string

	Downloads Options `toml:"downloads"`
	Server    Server  `toml:"server"`
}

// duration lets TOML carry values like "5s".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

// Duration returns the wrapped time.Duration.
func (d duration) Duration() time.Duration {
	return time.Duration(d)
}

// DefaultDBPath returns the default database path using XDG_CACHE_HOME.
func DefaultDBPath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "everyload", "jobs.db")
}

// DefaultDownloadDir returns the default artifact directory.
func DefaultDownloadDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Downloads", "Everyload")
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Port:        8080,
		DBPath:      DefaultDBPath(),
		DownloadDir: DefaultDownloadDir(),
		LogLevel:    "info",
		Downloads: Options{
			MaxAttempts:   3,
			MaxConcurrent: 3,
			Format:        "mp4",
			Quality:       "720p",
		},
		Server: Server{
			PollInterval: duration(5 * time.Second),
		},
	}
}

// Load parses flags, the optional TOML file and environment overrides, then
// validates the result.
func Load() (*Config, error) {
	cfg := Defaults()

	var configPath string
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flag.StringVar(&cfg.DownloadDir, "download-dir", cfg.DownloadDir, "Download directory")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&configPath, "config", "", "TOML config file path")
	flag.Parse()

	if configPath != "" {
		if err := cfg.applyFile(configPath); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile loads defaults plus the given TOML file.
func FromFile(path string) (*Config, error) {
	cfg := Defaults()
	if err := cfg.applyFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if port := os.Getenv("EVERYLOAD_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Port = p
		}
	}
	if db := os.Getenv("EVERYLOAD_DB"); db != "" {
		c.DBPath = db
	}
	if dir := os.Getenv("EVERYLOAD_DOWNLOAD_DIR"); dir != "" {
		c.DownloadDir = dir
	}
	if server := os.Getenv("EVERYLOAD_SERVER_URL"); server != "" {
		c.Server.URL = server
	}
}

// Validate checks option ranges and enums.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
