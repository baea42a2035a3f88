package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all server configuration
type Config struct {
	Port int

	// Provider
	GeminiAPIKey  string
	Model         string
	Voice         string
	GreetingDelay time.Duration

	// Scheduling backend (Microsoft Graph)
	MSTenantID     string
	MSClientID     string
	MSClientSecret string
	MSUserEmail    string

	BusinessName     string
	BusinessAddress  string
	BusinessTimezone string
	BusinessLocation string
	Greeting         string
	NotifyEmail      string
	ToolTimeout      time.Duration

	StaticDir       string
	AllowedOrigins  []string
	RedisURL        string
	RedisPassword   string
	MaxSessions     int
	SessionTimeout  time.Duration
	KeepAlivePeriod time.Duration
	LogLevel        slog.Level
}

// Load loads configuration from environment variables with defaults.
// Missing credentials are not an error; see Warnings.
func Load() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		Port:             8080,
		Model:            "models/gemini-2.0-flash-exp",
		Voice:            "Puck",
		GreetingDelay:    300 * time.Millisecond,
		BusinessName:     "GC Pro West",
		BusinessAddress:  "5746 Woodmere Lake Cir, Naples, FL 34112",
		BusinessTimezone: "America/New_York",
		BusinessLocation: "Naples, FL",
		ToolTimeout:      9 * time.Second,
		StaticDir:        "frontend",
		AllowedOrigins:   []string{"*"},
		MaxSessions:      100,
		SessionTimeout:   30 * time.Minute,
		KeepAlivePeriod:  30 * time.Second,
		LogLevel:         slog.LevelInfo,
	}

	config.GeminiAPIKey = os.Getenv("GOOGLE_API_KEY")
	if config.GeminiAPIKey == "" {
		config.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}

	config.MSTenantID = os.Getenv("MS_TENANT_ID")
	config.MSClientID = os.Getenv("MS_CLIENT_ID")
	config.MSClientSecret = os.Getenv("MS_CLIENT_SECRET")
	config.MSUserEmail = os.Getenv("MS_USER_EMAIL")
	config.RedisURL = os.Getenv("REDIS_URL")
	config.RedisPassword = os.Getenv("REDIS_PASSWORD")

	setString(&config.Model, "GEMINI_MODEL")
	setString(&config.Voice, "GEMINI_VOICE")
	setString(&config.BusinessLocation, "BUSINESS_LOCATION")
	setString(&config.BusinessName, "BUSINESS_NAME")
	setString(&config.BusinessAddress, "BUSINESS_ADDRESS")
	setString(&config.StaticDir, "STATIC_DIR")

	config.Greeting = fmt.Sprintf("Welcome to %s Renovation Center. I am a virtual assistant. How can I help you today?", config.BusinessName)
	setString(&config.Greeting, "GREETING")

	config.NotifyEmail = config.MSUserEmail
	setString(&config.NotifyEmail, "NOTIFY_EMAIL")

	if tz := os.Getenv("BUSINESS_TIMEZONE"); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("invalid BUSINESS_TIMEZONE: %w", err)
		}
		config.BusinessTimezone = tz
	}

	if err := setInt(&config.Port, "PORT"); err != nil {
		return nil, err
	}
	if err := setInt(&config.MaxSessions, "MAX_SESSIONS"); err != nil {
		return nil, err
	}
	if err := setDuration(&config.ToolTimeout, "TOOL_TIMEOUT", time.Second); err != nil {
		return nil, err
	}
	if err := setDuration(&config.GreetingDelay, "GREETING_DELAY", time.Millisecond); err != nil {
		return nil, err
	}
	if err := setDuration(&config.SessionTimeout, "SESSION_TIMEOUT", time.Minute); err != nil {
		return nil, err
	}
	if err := setDuration(&config.KeepAlivePeriod, "KEEPALIVE_PERIOD", time.Second); err != nil {
		return nil, err
	}

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = strings.Split(origins, ",")
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		if err := config.LogLevel.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
	}

	return config, nil
}

// GraphConfigured reports whether every Microsoft Graph setting is present.
func (c *Config) GraphConfigured() bool {
	return len(c.missingGraph()) == 0
}

func (c *Config) missingGraph() []string {
	var missing []string
	if c.MSTenantID == "" {
		missing = append(missing, "MS_TENANT_ID")
	}
	if c.MSClientID == "" {
		missing = append(missing, "MS_CLIENT_ID")
	}
	if c.MSClientSecret == "" {
		missing = append(missing, "MS_CLIENT_SECRET")
	}
	if c.MSUserEmail == "" {
		missing = append(missing, "MS_USER_EMAIL")
	}
	return missing
}

// MissingGraph lists the unset Microsoft Graph variables.
func (c *Config) MissingGraph() []string {
	return c.missingGraph()
}

// Warnings describes configuration gaps that degrade features without
// stopping the process.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.GeminiAPIKey == "" {
		warnings = append(warnings, "GOOGLE_API_KEY is not set: voice sessions will fail to connect")
	}
	if missing := c.missingGraph(); len(missing) > 0 {
		warnings = append(warnings, fmt.Sprintf("%s missing: calendar tools will fail", strings.Join(missing, ", ")))
	}
	return warnings
}

// Location resolves BusinessTimezone. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string, unit time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = time.Duration(n) * unit
	return nil
}
