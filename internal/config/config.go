package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Mocks   MocksConfig
	LLM     LLMConfig
	Consent ConsentConfig
	Audit   AuditConfig
	Auth    AuthConfig

	// CORS
	AllowedOrigins     []string
	AllowedCredentials bool

	// Logging
	LogLevel string
}

type ServerConfig struct {
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// GetAddr returns the server address in format ":port"
func (s ServerConfig) GetAddr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// MocksConfig holds the commands used to spawn the JSON-RPC stdio mock
// collaborators. Each call dials a fresh subprocess, so the commands must be
// runnable from the service working directory.
type MocksConfig struct {
	EMRCommand       string
	DirectoryCommand string
	BillingCommand   string
	CallTimeout      time.Duration
}

type LLMConfig struct {
	Provider string // "mock" or "openai"
	Model    string
	APIKey   string
	BaseURL  string
}

type ConsentConfig struct {
	// PolicyPath points at the consent policy document. The loader also
	// probes ScenarioPath when the primary file is absent.
	PolicyPath   string
	ScenarioPath string

	// DemoParity enables the numeric-parity demo shortcut in front of the
	// policy-document evaluation.
	DemoParity bool

	// ScopeFallback selects behavior when no policy scope matches the
	// subject exactly: "strict" fails closed, "first" picks the first scope.
	ScopeFallback string
}

type AuditConfig struct {
	// DatabaseURL enables the Postgres audit sink when non-empty.
	DatabaseURL string
	MemorySize  int
}

type AuthConfig struct {
	Enabled   bool
	JWTSecret string
}

func Load() *Config {
	// Best-effort .env load; real environment wins.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("SERVER_PORT", 8084),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Mocks: MocksConfig{
			EMRCommand:       getEnv("EMR_MOCK_CMD", "go run ./cmd/emr-mock"),
			DirectoryCommand: getEnv("DIRECTORY_MOCK_CMD", "go run ./cmd/directory-mock"),
			BillingCommand:   getEnv("BILLING_MOCK_CMD", "go run ./cmd/billing-mock"),
			CallTimeout:      getEnvAsDuration("MOCK_CALL_TIMEOUT", 15*time.Second),
		},
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", "mock"),
			Model:    getEnv("LLM_MODEL", "mock-small"),
			APIKey:   getEnv("LLM_API_KEY", ""),
			BaseURL:  getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		},
		Consent: ConsentConfig{
			PolicyPath:    getEnv("CONSENT_POLICY_PATH", "data/fixtures/consent_policy_snippets.json"),
			ScenarioPath:  getEnv("CONSENT_SCENARIO_PATH", "data/fixtures/consent_scenarios.json"),
			DemoParity:    getEnvAsBool("CONSENT_DEMO_PARITY", false),
			ScopeFallback: getEnv("CONSENT_SCOPE_FALLBACK", "strict"),
		},
		Audit: AuditConfig{
			DatabaseURL: getEnv("AUDIT_DATABASE_URL", ""),
			MemorySize:  getEnvAsInt("AUDIT_MEMORY_SIZE", 512),
		},
		Auth: AuthConfig{
			Enabled:   getEnvAsBool("AUTH_ENABLED", false),
			JWTSecret: getEnv("JWT_SECRET", ""),
		},

		// CORS
		AllowedOrigins:     getEnvAsSlice("ALLOWED_ORIGINS", []string{"*"}),
		AllowedCredentials: getEnvAsBool("ALLOW_CREDENTIALS", true),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, item := range parts {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultValue
}
