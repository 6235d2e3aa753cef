package app

import (
	"os"
	"time"
)

// Config holds runtime configuration loaded from the environment.
type Config struct {
	HTTPAddr    string
	DatabaseURL string

	DeepgramAPIKey   string
	OpenAIAPIKey     string
	ElevenLabsAPIKey string

	JWTSecret string
	JWTExpiry time.Duration

	AdminUsername string
	AdminPassword string

	SentryDSN         string
	DiscordWebhookURL string

	APNsKeyPath    string
	APNsKeyID      string
	APNsTeamID     string
	APNsBundleID   string
	APNsProduction bool
}

// LoadConfigFromEnv reads configuration from environment variables,
// applying defaults where a value is not set.
func LoadConfigFromEnv() Config {
	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		DeepgramAPIKey:   os.Getenv("DEEPGRAM_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		ElevenLabsAPIKey: os.Getenv("ELEVENLABS_API_KEY"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTExpiry: getenvDuration("JWT_EXPIRY", 24*time.Hour),

		AdminUsername: os.Getenv("ADMIN_USERNAME"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		SentryDSN:         os.Getenv("SENTRY_DSN"),
		DiscordWebhookURL: os.Getenv("DISCORD_WEBHOOK_URL"),

		APNsKeyPath:    os.Getenv("APNS_KEY_PATH"),
		APNsKeyID:      os.Getenv("APNS_KEY_ID"),
		APNsTeamID:     os.Getenv("APNS_TEAM_ID"),
		APNsBundleID:   getenv("APNS_BUNDLE_ID", "com.medscreen.coordinator"),
		APNsProduction: os.Getenv("APNS_PRODUCTION") == "true",
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
