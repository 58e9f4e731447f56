package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/efreitasn/minibroker/internal/engine"
)

// Config holds all runtime configuration for the broker.
type Config struct {
	Port               int
	LogLevel           string
	TopUpAmount        int64
	SelfTradePolicy    engine.SelfTradePolicy
	BookDepthDefault   int
	FeedBuffer         int
	CORSAllowedOrigins []string
	VWAPWindow         time.Duration
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	ShutdownTimeout    time.Duration
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. Variables from a .env file (or the file named by
// ENV_FILE) fill in anything the environment does not set. It returns an
// error for any invalid value.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	port, err := getInt("PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d out of range", port)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	topUp, err := getInt("TOP_UP_AMOUNT", 100)
	if err != nil {
		return nil, fmt.Errorf("invalid TOP_UP_AMOUNT: %w", err)
	}
	if topUp <= 0 {
		return nil, fmt.Errorf("invalid TOP_UP_AMOUNT: %d, must be positive", topUp)
	}

	policy, err := engine.ParseSelfTradePolicy(getStr("SELF_TRADE_POLICY", string(engine.SelfTradeAllow)))
	if err != nil {
		return nil, fmt.Errorf("invalid SELF_TRADE_POLICY: %w", err)
	}

	depth, err := getInt("BOOK_DEPTH_DEFAULT", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid BOOK_DEPTH_DEFAULT: %w", err)
	}
	if depth < 1 || depth > 50 {
		return nil, fmt.Errorf("invalid BOOK_DEPTH_DEFAULT: %d, must be between 1 and 50", depth)
	}

	feedBuffer, err := getInt("FEED_BUFFER", 256)
	if err != nil {
		return nil, fmt.Errorf("invalid FEED_BUFFER: %w", err)
	}
	if feedBuffer < 1 {
		return nil, fmt.Errorf("invalid FEED_BUFFER: %d, must be positive", feedBuffer)
	}

	vwapWindow, err := getDuration("VWAP_WINDOW", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid VWAP_WINDOW: %w", err)
	}
	if vwapWindow <= 0 {
		return nil, fmt.Errorf("invalid VWAP_WINDOW: %v, must be positive", vwapWindow)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:               port,
		LogLevel:           logLevel,
		TopUpAmount:        int64(topUp),
		SelfTradePolicy:    policy,
		BookDepthDefault:   depth,
		FeedBuffer:         feedBuffer,
		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		VWAPWindow:         vwapWindow,
		ReadTimeout:        readTimeout,
		WriteTimeout:       writeTimeout,
		IdleTimeout:        idleTimeout,
		ShutdownTimeout:    shutdownTimeout,
	}, nil
}

// loadDotEnv seeds the environment from ENV_FILE when set, otherwise from
// ./.env if present. Variables already set are left alone.
func loadDotEnv() error {
	if path := os.Getenv("ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load ENV_FILE %q: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

// getList splits a comma-separated value, dropping empty entries.
func getList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
