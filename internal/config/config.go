package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/satindergrewal/lyricast/internal/project"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port int

	// External tools
	FFmpegPath  string
	FFprobePath string

	// Storage
	OutputDir string
	HistoryDB string

	// Session behavior
	AssetTimeout         time.Duration // per-asset preload bound
	TrackTimeout         time.Duration // bound on decoding a track's primary audio
	TrailingDelay        time.Duration // tail kept before the encoder stops
	FinalizeOnTrackError bool          // keep what was encoded when a track fails
	Monitor              bool          // fan the mixing bus out to live listeners

	// Render defaults, used when a project leaves them unset
	Resolution  int    // vertical tier: 480, 720, 1080, 1440, 2160
	AspectRatio string // 16:9, 9:16, 1:1, 4:5
	FrameRate   int
	Codec       string // h264, vp9, vp8, av1, mpeg4
	Quality     string // low, medium, high

	// Logging
	LogLevel  string
	LogFormat string // text or json
}

// Load reads configuration from environment variables with sane defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port: envInt("LYRICAST_PORT", 8090),

		FFmpegPath:  envStr("LYRICAST_FFMPEG_PATH", "ffmpeg"),
		FFprobePath: envStr("LYRICAST_FFPROBE_PATH", "ffprobe"),

		OutputDir: envStr("LYRICAST_OUTPUT_DIR", "./exports"),
		HistoryDB: envStr("LYRICAST_HISTORY_DB", "./data/history.db"),

		AssetTimeout:         time.Duration(envFloat("LYRICAST_ASSET_TIMEOUT", 5) * float64(time.Second)),
		TrackTimeout:         time.Duration(envFloat("LYRICAST_TRACK_TIMEOUT", 60) * float64(time.Second)),
		TrailingDelay:        time.Duration(envInt("LYRICAST_TRAILING_DELAY", 500)) * time.Millisecond,
		FinalizeOnTrackError: envBool("LYRICAST_FINALIZE_ON_TRACK_ERROR", false),
		Monitor:              envBool("LYRICAST_MONITOR", true),

		Resolution:  envInt("LYRICAST_RESOLUTION", 1080),
		AspectRatio: envStr("LYRICAST_ASPECT_RATIO", "16:9"),
		FrameRate:   envInt("LYRICAST_FPS", 30),
		Codec:       envStr("LYRICAST_CODEC", "h264"),
		Quality:     envStr("LYRICAST_QUALITY", "high"),

		LogLevel:  strings.ToLower(envStr("LYRICAST_LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(envStr("LYRICAST_LOG_FORMAT", "text")),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("LYRICAST_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.FFmpegPath == "" {
		return fmt.Errorf("LYRICAST_FFMPEG_PATH must not be empty")
	}
	if c.AssetTimeout <= 0 {
		return fmt.Errorf("LYRICAST_ASSET_TIMEOUT must be positive, got %v", c.AssetTimeout)
	}
	if c.TrackTimeout <= 0 {
		return fmt.Errorf("LYRICAST_TRACK_TIMEOUT must be positive, got %v", c.TrackTimeout)
	}
	if c.TrailingDelay < 0 {
		return fmt.Errorf("LYRICAST_TRAILING_DELAY must not be negative, got %v", c.TrailingDelay)
	}
	if c.FrameRate < 1 || c.FrameRate > 120 {
		return fmt.Errorf("LYRICAST_FPS must be between 1 and 120, got %d", c.FrameRate)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LYRICAST_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// RenderDefaults overlays the env render settings on the built-in defaults.
func (c *Config) RenderDefaults() project.RenderConfig {
	rc := project.DefaultRenderConfig()
	rc.Resolution = c.Resolution
	rc.AspectRatio = c.AspectRatio
	rc.FrameRate = c.FrameRate
	rc.Codec = strings.ToLower(c.Codec)
	rc.Quality = strings.ToLower(c.Quality)
	return rc
}

// NewLogger builds the text or JSON handler named by LogFormat at LogLevel.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
