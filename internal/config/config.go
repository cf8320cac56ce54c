package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config configures a client of the snapbook backend.
type Config struct {
	APIURL    string
	SocketURL string

	Email    string
	Password string
	Token    string

	HTTPTimeout      time.Duration
	ReconnectTimeout time.Duration
	PingInterval     time.Duration
}

// BackendConfig configures the in-memory fake backend.
type BackendConfig struct {
	Port string
	Env  string

	JWTSecret       string
	JWTAccessExpiry time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	apiURL := strings.TrimRight(getEnv("SNAPBOOK_API_URL", "http://localhost:8080"), "/")

	socketURL := getEnv("SNAPBOOK_SOCKET_URL", "")
	if socketURL == "" {
		derived, err := SocketURLFor(apiURL)
		if err != nil {
			return nil, err
		}
		socketURL = derived
	}

	return &Config{
		APIURL:    apiURL,
		SocketURL: socketURL,

		Email:    getEnv("SNAPBOOK_EMAIL", ""),
		Password: getEnv("SNAPBOOK_PASSWORD", ""),
		Token:    getEnv("SNAPBOOK_TOKEN", ""),

		HTTPTimeout:      getDuration("SNAPBOOK_HTTP_TIMEOUT", 60*time.Second),
		ReconnectTimeout: getDuration("SNAPBOOK_RECONNECT_TIMEOUT", 2*time.Second),
		PingInterval:     getDuration("SNAPBOOK_PING_INTERVAL", 30*time.Second),
	}, nil
}

func LoadBackend() (*BackendConfig, error) {
	_ = godotenv.Load()

	return &BackendConfig{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		JWTSecret:       getEnvOrPanic("JWT_SECRET"),
		JWTAccessExpiry: getDuration("JWT_ACCESS_EXPIRY", 24*time.Hour),
	}, nil
}

func (c *BackendConfig) IsProduction() bool {
	return c.Env == "production"
}

// SocketURLFor derives the live channel endpoint from the REST base URL.
func SocketURLFor(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, fallback.String()))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvOrPanic(key string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		panic("required environment variable not set: " + key)
	}
	return value
}
