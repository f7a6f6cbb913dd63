package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverSQLite   = "sqlite3"
	StoreDriverPostgres = "postgres"
)

type Config struct {
	Port string

	// whatsmeow credential storage
	SessionsDir string
	StoreDriver string
	DatabaseURL string

	// bot records
	AppDatabaseURL string

	DeviceName        string
	DefaultCountry    string
	LogLevel          string
	WhatsmeowLogLevel string
	LogPretty         bool
	QRTerminal        bool

	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	PresenceInterval time.Duration

	// auto reply
	RepliesFile          string
	AutoReplyMinInterval time.Duration

	// AI Configuration
	AIEnabled      bool
	GeminiAPIKey   string
	GeminiModel    string
	AISystemPrompt string
	AITemperature  float64
	AIMaxTokens    int

	// feature flags (WEBHOOK & WEBSOCKET)
	EnableWebhook   bool
	EnableWebsocket bool

	JWTSecret         string
	JWTExpiry         time.Duration
	AdminUsername     string
	AdminPasswordHash string

	CORSAllowOrigins []string
	RateLimit        int
	RateBurst        int
	RateWindow       time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port:              getEnv("PORT", "3000"),
		SessionsDir:       getEnv("SESSIONS_DIR", "./sessions"),
		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", StoreDriverSQLite)),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		AppDatabaseURL:    getEnv("APP_DATABASE_URL", "file:data/app.db?_foreign_keys=on"),
		DeviceName:        getEnv("DEVICE_NAME", "Multi WhatsApp Bot"),
		DefaultCountry:    getEnv("DEFAULT_COUNTRY_CODE", "62"),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		WhatsmeowLogLevel: strings.ToLower(getEnv("WHATSMEOW_LOG_LEVEL", "warn")),
		LogPretty:         GetEnvAsBool("LOG_PRETTY", true),
		QRTerminal:        GetEnvAsBool("QR_TERMINAL", false),

		ReconnectInitial: GetEnvAsDuration("RECONNECT_INITIAL_INTERVAL", 2*time.Second),
		ReconnectMax:     GetEnvAsDuration("RECONNECT_MAX_INTERVAL", 2*time.Minute),
		PresenceInterval: GetEnvAsDuration("PRESENCE_INTERVAL", 5*time.Minute),

		RepliesFile:          getEnv("REPLIES_FILE", ""),
		AutoReplyMinInterval: GetEnvAsDuration("AUTO_REPLY_MIN_INTERVAL", 0),

		AIEnabled:      GetEnvAsBool("AI_ENABLED", false),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_DEFAULT_MODEL", "gemini-1.5-flash"),
		AISystemPrompt: getEnv("AI_SYSTEM_PROMPT", ""),
		AITemperature:  GetEnvAsFloat("AI_DEFAULT_TEMPERATURE", 0.7),
		AIMaxTokens:    GetEnvAsInt("AI_DEFAULT_MAX_TOKENS", 150),

		EnableWebhook:   GetEnvAsBool("ENABLE_WEBHOOK", false),
		EnableWebsocket: GetEnvAsBool("ENABLE_WEBSOCKET", true),

		JWTSecret:         getEnv("JWT_SECRET", ""),
		JWTExpiry:         GetEnvAsDuration("JWT_ACCESS_TOKEN_EXPIRY", time.Hour),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		CORSAllowOrigins: splitList(getEnv("CORS_ALLOW_ORIGINS", "*")),
		RateLimit:        GetEnvAsInt("RATE_LIMIT_PER_SECOND", 10),
		RateBurst:        GetEnvAsInt("RATE_LIMIT_BURST", 10),
		RateWindow:       time.Duration(GetEnvAsInt("RATE_LIMIT_WINDOW_MINUTES", 3)) * time.Minute,
	}

	if cfg.StoreDriver != StoreDriverPostgres {
		cfg.StoreDriver = StoreDriverSQLite
	}
	if cfg.AITemperature < 0 || cfg.AITemperature > 1 {
		cfg.AITemperature = 0.7
	}
	if cfg.ReconnectMax < cfg.ReconnectInitial {
		cfg.ReconnectMax = cfg.ReconnectInitial
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// GetEnvAsInt returns fallback when the variable is unset, malformed or not positive.
func GetEnvAsInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func GetEnvAsFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func GetEnvAsBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return fallback
	}
	return b
}

// GetEnvAsDuration accepts Go durations ("90s", "5m") and a bare number of seconds.
// "0" is a valid value and disables whatever the duration drives.
func GetEnvAsDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
