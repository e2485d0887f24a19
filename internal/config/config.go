package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the realtime API service.
type Config struct {
	AppName           string
	AppEnv            string
	AppPort           string
	DatabaseURL       string
	RedisURL          string
	NATSURL           string
	JWTSecret         string
	RealtimeChannel   string
	OperationTimeout  time.Duration
	WriteBuffer       int
	PingInterval      time.Duration
	MessageMaxLength  int
	CallDedupeWindow  time.Duration
	MessagesPerMinute int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Realtime API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("realtime.channel", "gema")
	v.SetDefault("realtime.operation_timeout", "5s")
	v.SetDefault("realtime.write_buffer", 32)
	v.SetDefault("realtime.ping_interval", "30s")
	v.SetDefault("message.max_length", 4000)
	v.SetDefault("call.dedupe_window", "5s")
	v.SetDefault("ratelimit.messages_per_minute", 120)

	operationTimeout, err := parseDuration(v, "realtime.operation_timeout", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	pingInterval, err := parseDuration(v, "realtime.ping_interval", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	dedupeWindow, err := parseDuration(v, "call.dedupe_window", 5*time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:           v.GetString("app.name"),
		AppEnv:            v.GetString("app.env"),
		AppPort:           v.GetString("app.port"),
		DatabaseURL:       v.GetString("database.url"),
		RedisURL:          v.GetString("redis.url"),
		NATSURL:           v.GetString("nats.url"),
		JWTSecret:         v.GetString("jwt.secret"),
		RealtimeChannel:   strings.TrimSpace(v.GetString("realtime.channel")),
		OperationTimeout:  operationTimeout,
		WriteBuffer:       v.GetInt("realtime.write_buffer"),
		PingInterval:      pingInterval,
		MessageMaxLength:  v.GetInt("message.max_length"),
		CallDedupeWindow:  dedupeWindow,
		MessagesPerMinute: v.GetInt("ratelimit.messages_per_minute"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.WriteBuffer <= 0 {
		cfg.WriteBuffer = 32
	}

	if cfg.MessageMaxLength <= 0 {
		cfg.MessageMaxLength = 4000
	}

	if cfg.MessagesPerMinute <= 0 {
		cfg.MessagesPerMinute = 120
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return fallback, nil
	}
	return parsed, nil
}
