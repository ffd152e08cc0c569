package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultToolCandidates is the probe order for the MuseScore executable.
var DefaultToolCandidates = []string{
	"mscore",
	"musescore",
	"musescore3",
	"musescore4",
	"mscore4portable",
	"/usr/bin/musescore3",
	"/usr/local/bin/musescore3",
}

// Config holds all server settings in correct types
type Config struct {
	Port string

	ScratchDir     string
	MaxUploadBytes int64
	ConvertTimeout time.Duration

	ToolCandidates    []string
	HeadlessDisplay   string
	HeadlessOffscreen bool

	MaxConcurrentJobs int
	QueueWait         time.Duration

	JanitorInterval time.Duration
	FileRetention   time.Duration

	AllowedOrigins     []string
	RateLimitPerMinute int
	RateLimitBurst     int
	DebugEndpoint      bool

	LogLevel  string
	LogFormat string
}

// Load: The only way to get config in the app
func Load() *Config {
	cfg := &Config{
		Port:               normalizePort(getEnv("PORT", "3000")),
		ScratchDir:         getEnv("SCRATCH_DIR", "uploads"),
		MaxUploadBytes:     int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10<<20)),
		ConvertTimeout:     getEnvAsDuration("CONVERT_TIMEOUT", 30*time.Second),
		ToolCandidates:     getEnvAsList("MUSESCORE_CANDIDATES", DefaultToolCandidates),
		HeadlessDisplay:    getEnv("HEADLESS_DISPLAY", ":99"),
		HeadlessOffscreen:  getEnvAsBool("HEADLESS_OFFSCREEN", false),
		MaxConcurrentJobs:  getEnvAsInt("MAX_CONCURRENT_JOBS", 4),
		QueueWait:          getEnvAsDuration("QUEUE_WAIT", 10*time.Second),
		JanitorInterval:    getEnvAsDuration("JANITOR_INTERVAL", 10*time.Minute),
		FileRetention:      getEnvAsDuration("FILE_RETENTION", 10*time.Minute),
		AllowedOrigins:     getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 0),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 10),
		DebugEndpoint:      getEnvAsBool("DEBUG_ENDPOINT", true),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}

	validate(cfg)

	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	str := getEnv(key, "")
	if val, err := strconv.Atoi(str); err == nil {
		return val
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	str := getEnv(key, "")
	if val, err := strconv.ParseBool(str); err == nil {
		return val
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("45s") or a bare number of seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	str := strings.TrimSpace(getEnv(key, ""))
	if str == "" {
		return fallback
	}
	if d, err := time.ParseDuration(str); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(str); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func normalizePort(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return ":3000"
	}
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

// validate ensures the server won't crash due to misconfiguration
func validate(cfg *Config) {
	if cfg.MaxConcurrentJobs < 1 {
		slog.Warn("MAX_CONCURRENT_JOBS must be at least 1, resetting", "value", cfg.MaxConcurrentJobs, "default", 4)
		cfg.MaxConcurrentJobs = 4
	}
	if cfg.MaxUploadBytes <= 0 {
		slog.Warn("MAX_UPLOAD_BYTES must be positive, resetting", "value", cfg.MaxUploadBytes)
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.ConvertTimeout <= 0 {
		slog.Warn("CONVERT_TIMEOUT must be positive, resetting", "value", cfg.ConvertTimeout)
		cfg.ConvertTimeout = 30 * time.Second
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = 10 * time.Minute
	}
	if cfg.FileRetention <= 0 {
		cfg.FileRetention = 10 * time.Minute
	}
	if cfg.QueueWait < 0 {
		cfg.QueueWait = 0
	}
	if cfg.RateLimitPerMinute < 0 {
		cfg.RateLimitPerMinute = 0
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = "uploads"
	}
}
