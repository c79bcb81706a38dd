package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server   ServerConfig   `toml:"server"`   // HTTP server settings
	Logging  LoggingConfig  `toml:"logging"`  // Application logging settings
	Storage  StorageConfig  `toml:"storage"`  // Data persistence settings
	Gemini   GeminiConfig   `toml:"gemini"`   // Gemini API settings
	Audio    AudioConfig    `toml:"audio"`    // Capture and playback device settings
	Session  SessionConfig  `toml:"session"`  // Conversation session settings
	Usage    UsageConfig    `toml:"usage"`    // Daily quota settings
	Feedback FeedbackConfig `toml:"feedback"` // Grammar feedback settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // Primary HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, recommended for streaming)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	AdditionalPorts    []int    `toml:"additional_ports"`      // Additional HTTP ports to listen on (useful for multiple interfaces)
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	SQLiteBasePath string `toml:"sqlite_base_path"` // Directory holding the SQLite database file
	DatabaseFile   string `toml:"database_file"`    // Database file name (e.g., "tutorvoice.db")
}

// GeminiConfig contains Gemini API settings
type GeminiConfig struct {
	APIKey        string  `toml:"api_key"`        // Gemini API key (or set GEMINI_API_KEY)
	RealtimeModel string  `toml:"realtime_model"` // Live API model for spoken conversation
	ChatModel     string  `toml:"chat_model"`     // generateContent model for feedback
	Voice         string  `toml:"voice"`          // Prebuilt voice name (e.g., "Puck")
	Temperature   float64 `toml:"temperature"`    // Sampling temperature for feedback requests
	MaxTokens     int     `toml:"max_tokens"`     // Response token cap for feedback requests
}

// AudioConfig contains capture and playback device settings
type AudioConfig struct {
	FFmpegPath  string `toml:"ffmpeg_path"`  // Path to the ffmpeg binary
	FFplayPath  string `toml:"ffplay_path"`  // Path to the ffplay binary
	InputFormat string `toml:"input_format"` // ffmpeg input format: "alsa", "pulse", "avfoundation", "dshow"
	InputDevice string `toml:"input_device"` // Capture device name (e.g., "default")
	Volume      int    `toml:"volume"`       // Playback volume, 0-100
}

// SessionConfig contains conversation session settings
type SessionConfig struct {
	TemplatePath        string `toml:"template_path"`         // Tutor prompt template file ("" = built-in)
	MaxSessionAgeMins   int    `toml:"max_session_age_mins"`  // Sessions older than this are expired
	CleanupIntervalSecs int    `toml:"cleanup_interval_secs"` // How often to scan for stale sessions
}

// UsageConfig contains daily quota settings
type UsageConfig struct {
	Enabled      bool `toml:"enabled"`       // Enforce the daily conversation allowance
	DailyMinutes int  `toml:"daily_minutes"` // Allowance per calendar day
}

// FeedbackConfig contains grammar feedback settings
type FeedbackConfig struct {
	Enabled    bool `toml:"enabled"`     // Generate corrections for user turns
	MaxRetries int  `toml:"max_retries"` // Attempts per correction request
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Storage.DatabaseFile == "" {
		c.Storage.DatabaseFile = "tutorvoice.db"
	}
	if c.Gemini.APIKey == "" {
		c.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Gemini.RealtimeModel == "" {
		c.Gemini.RealtimeModel = "gemini-2.0-flash-live-001"
	}
	if c.Gemini.ChatModel == "" {
		c.Gemini.ChatModel = "gemini-2.0-flash"
	}
	if c.Audio.FFmpegPath == "" {
		c.Audio.FFmpegPath = "ffmpeg"
	}
	if c.Audio.FFplayPath == "" {
		c.Audio.FFplayPath = "ffplay"
	}
	if c.Audio.InputDevice == "" {
		c.Audio.InputDevice = "default"
	}
	if c.Session.MaxSessionAgeMins == 0 {
		c.Session.MaxSessionAgeMins = 30
	}
	if c.Session.CleanupIntervalSecs == 0 {
		c.Session.CleanupIntervalSecs = 60
	}
	if c.Usage.DailyMinutes == 0 {
		c.Usage.DailyMinutes = 30
	}
	if c.Feedback.MaxRetries == 0 {
		c.Feedback.MaxRetries = 3
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	portsSeen := make(map[int]bool)
	portsSeen[c.Server.Port] = true
	for _, p := range c.Server.AdditionalPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid additional server port: %d", p)
		}
		if portsSeen[p] {
			return fmt.Errorf("duplicate port configured: %d (primary or additional)", p)
		}
		portsSeen[p] = true
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini api_key is required (config or GEMINI_API_KEY)")
	}

	switch c.Audio.InputFormat {
	case "alsa", "pulse", "avfoundation", "dshow", "":
	default:
		return fmt.Errorf("invalid audio input_format: %s", c.Audio.InputFormat)
	}

	if c.Audio.Volume < 0 || c.Audio.Volume > 100 {
		return fmt.Errorf("invalid audio volume: %d (must be 0-100)", c.Audio.Volume)
	}

	if c.Usage.Enabled && c.Usage.DailyMinutes <= 0 {
		return fmt.Errorf("invalid daily_minutes: %d (must be > 0)", c.Usage.DailyMinutes)
	}

	return nil
}
