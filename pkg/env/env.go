package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	RoomStrategyRandom = "random"
	RoomStrategyCaller = "caller"
)

type Config struct {
	AppEnv  string
	AppPort string

	// Public base URL the carrier uses to reach our webhooks
	APIBaseURL string

	LiveKitURL           string
	LiveKitAPIKey        string
	LiveKitAPISecret     string
	LiveKitAgentName     string
	LiveKitSIPEndpoint   string
	LiveKitSIPTrunkPhone string // SIP user part when the room name is left to the dispatch rule

	TwilioAccountSID       string
	TwilioAuthToken        string
	TwilioPhoneNumber      string
	TwilioValidateWebhooks bool

	RoomNameStrategy  string
	RoomPrecreate     bool
	RoomListTimeoutMs int
	GatewayTimeoutMs  int

	RedisURL            string
	APIRateLimitRPM     int
	WebhookDedupeTTLMin int

	LogLevel           string
	CORSAllowedOrigins string

	OTELEndpoint string
	OTELEnabled  bool
}

func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// Missing .env is fine; production reads the process environment
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg := &Config{
		AppEnv:     getEnv("APP_ENV", "development"),
		AppPort:    getEnv("APP_PORT", "8081"),
		APIBaseURL: getEnv("API_BASE_URL", ""),

		LiveKitURL:           getEnv("LIVEKIT_URL", ""),
		LiveKitAPIKey:        getEnv("LIVEKIT_API_KEY", ""),
		LiveKitAPISecret:     getEnv("LIVEKIT_API_SECRET", ""),
		LiveKitAgentName:     getEnv("LIVEKIT_AGENT_NAME", "callcenter-agent"),
		LiveKitSIPEndpoint:   getEnv("LIVEKIT_SIP_ENDPOINT", ""),
		LiveKitSIPTrunkPhone: getEnv("LIVEKIT_SIP_TRUNK_NUMBER", ""),

		TwilioAccountSID:       getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:        getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber:      getEnv("TWILIO_PHONE_NUMBER", ""),
		TwilioValidateWebhooks: getEnvBool("TWILIO_VALIDATE_WEBHOOKS", false),

		RoomNameStrategy:  getEnv("ROOM_NAME_STRATEGY", RoomStrategyRandom),
		RoomPrecreate:     getEnvBool("ROOM_PRECREATE", true),
		RoomListTimeoutMs: getEnvInt("ROOM_LIST_TIMEOUT_MS", 3000),
		GatewayTimeoutMs:  getEnvInt("GATEWAY_TIMEOUT_MS", 10000),

		RedisURL:            getEnv("REDIS_URL", ""),
		APIRateLimitRPM:     getEnvInt("API_RATE_LIMIT_RPM", 120),
		WebhookDedupeTTLMin: getEnvInt("WEBHOOK_DEDUPE_TTL_MIN", 24*60),

		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		OTELEndpoint: getEnv("OTEL_ENDPOINT", ""),
		OTELEnabled:  getEnvBool("OTEL_ENABLED", false),
	}

	switch cfg.RoomNameStrategy {
	case RoomStrategyRandom, RoomStrategyCaller:
	default:
		return nil, fmt.Errorf("invalid ROOM_NAME_STRATEGY %q (want %q or %q)",
			cfg.RoomNameStrategy, RoomStrategyRandom, RoomStrategyCaller)
	}

	return cfg, nil
}

// LiveKitConfigured reports whether room gateway credentials are present.
func (c *Config) LiveKitConfigured() bool {
	return c.LiveKitURL != "" && c.LiveKitAPIKey != "" && c.LiveKitAPISecret != ""
}

// TwilioConfigured reports whether carrier credentials are present.
// The caller-id number is checked separately at dial time.
func (c *Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != ""
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	strValue := strings.TrimSpace(os.Getenv(key))
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	strValue := strings.TrimSpace(os.Getenv(key))
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}
