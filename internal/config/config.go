package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the sync engine configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Feed      FeedConfig
	Presence  PresenceConfig
	Hub       HubConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// FeedConfig bounds the change feed reconnect backoff.
type FeedConfig struct {
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// PresenceConfig controls liveness reaping and heartbeat cadence.
type PresenceConfig struct {
	LivenessTimeout   time.Duration
	HeartbeatInterval time.Duration
}

type HubConfig struct {
	ConnectTimeout time.Duration
}

type AuthConfig struct {
	OIDCIssuer   string
	OIDCClientID string
	JWTSecret    string
	// InsecureTokens enables the signature-skipping verifier. Dev only.
	InsecureTokens bool
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5002")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("FEED_BACKOFF_INITIAL_MS", 1000)
	viper.SetDefault("FEED_BACKOFF_MAX_MS", 30000)
	viper.SetDefault("PRESENCE_LIVENESS_TIMEOUT_S", 45)
	viper.SetDefault("PRESENCE_HEARTBEAT_INTERVAL_S", 15)
	viper.SetDefault("HUB_CONNECT_TIMEOUT_S", 10)
	viper.SetDefault("RATE_LIMIT_ENABLED", false)
	viper.SetDefault("RATE_LIMIT_RPS", 20.0)
	viper.SetDefault("RATE_LIMIT_BURST", 40)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      os.Getenv("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		Feed: FeedConfig{
			BackoffInitial: time.Duration(viper.GetInt("FEED_BACKOFF_INITIAL_MS")) * time.Millisecond,
			BackoffMax:     time.Duration(viper.GetInt("FEED_BACKOFF_MAX_MS")) * time.Millisecond,
		},
		Presence: PresenceConfig{
			LivenessTimeout:   time.Duration(viper.GetInt("PRESENCE_LIVENESS_TIMEOUT_S")) * time.Second,
			HeartbeatInterval: time.Duration(viper.GetInt("PRESENCE_HEARTBEAT_INTERVAL_S")) * time.Second,
		},
		Hub: HubConfig{
			ConnectTimeout: time.Duration(viper.GetInt("HUB_CONNECT_TIMEOUT_S")) * time.Second,
		},
		Auth: AuthConfig{
			OIDCIssuer:     viper.GetString("OIDC_ISSUER"),
			OIDCClientID:   viper.GetString("OIDC_CLIENT_ID"),
			JWTSecret:      os.Getenv("JWT_SECRET"),
			InsecureTokens: viper.GetBool("AUTH_INSECURE_TOKENS"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	// Basic validation
	if cfg.Auth.JWTSecret == "" && cfg.Auth.OIDCIssuer == "" && !cfg.Auth.InsecureTokens {
		log.Println("WARNING: no token verifier configured; the HTTP surface will reject all requests")
	}
	if cfg.Presence.HeartbeatInterval >= cfg.Presence.LivenessTimeout {
		log.Println("WARNING: PRESENCE_HEARTBEAT_INTERVAL_S should be well below PRESENCE_LIVENESS_TIMEOUT_S")
	}

	return cfg, nil
}
