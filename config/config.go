package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendReal = "real"
	BackendMock = "mock"

	StoreMemory   = "memory"
	StoreDynamoDB = "dynamodb"
)

type Config struct {
	GraphQLURL   string
	GraphQLWSURL string
	AuthURL      string
	Role         string
	Backend      string
	TokenFile    string

	FallbackDelay time.Duration
	MockDelay     time.Duration

	DevServerAddr  string
	DevServerStore string
	DynamoEndpoint string
	DynamoRegion   string
	OpenAIKey      string
	OpenAIModel    string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		GraphQLURL:     getEnv("CHAT_GRAPHQL_URL", "http://localhost:8080/v1/graphql"),
		GraphQLWSURL:   os.Getenv("CHAT_GRAPHQL_WS_URL"),
		AuthURL:        getEnv("CHAT_AUTH_URL", "http://localhost:8080/v1"),
		Role:           getEnv("CHAT_ROLE", "user"),
		Backend:        strings.ToLower(getEnv("CHAT_BACKEND", BackendReal)),
		TokenFile:      os.Getenv("CHAT_TOKEN_FILE"),
		DevServerAddr:  getEnv("DEVSERVER_ADDR", ":8080"),
		DevServerStore: strings.ToLower(getEnv("DEVSERVER_STORE", StoreMemory)),
		DynamoEndpoint: getEnv("DYNAMODB_ENDPOINT", "http://localhost:8000"),
		DynamoRegion:   getEnv("DYNAMODB_REGION", "us-east-1"),
		OpenAIKey:      GetOpenAIKey(),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
	}

	var err error
	if cfg.FallbackDelay, err = getDuration("CHAT_FALLBACK_DELAY", time.Second); err != nil {
		return nil, err
	}
	if cfg.MockDelay, err = getDuration("CHAT_MOCK_DELAY", 1500*time.Millisecond); err != nil {
		return nil, err
	}

	if cfg.GraphQLWSURL == "" {
		cfg.GraphQLWSURL = WebSocketURL(cfg.GraphQLURL)
	}
	if cfg.TokenFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = os.TempDir()
		}
		cfg.TokenFile = filepath.Join(dir, "chatclient", "session.json")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendReal, BackendMock:
	default:
		return fmt.Errorf("invalid CHAT_BACKEND %q: want %q or %q", c.Backend, BackendReal, BackendMock)
	}
	switch c.DevServerStore {
	case StoreMemory, StoreDynamoDB:
	default:
		return fmt.Errorf("invalid DEVSERVER_STORE %q: want %q or %q", c.DevServerStore, StoreMemory, StoreDynamoDB)
	}
	if c.Backend == BackendReal && c.GraphQLURL == "" {
		return fmt.Errorf("CHAT_GRAPHQL_URL is not set")
	}
	return nil
}

// WebSocketURL derives the subscription endpoint from the HTTP endpoint.
func WebSocketURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	}
	return httpURL
}

func GetOpenAIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
