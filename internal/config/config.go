// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the service.
type Config struct {
	ListenAddr  string
	Environment string

	// LLM providers
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultProvider string

	// Solidity toolchain
	SolcPath        string
	SolcVersion     string
	OpenZeppelinTag string

	// Sandboxed test execution
	DockerHost      string
	HardhatImage    string
	TestRunTimeout  time.Duration
	SandboxRootDir  string
	SandboxMemoryMB int64

	// Persistence
	DatabaseURL string
	RedisURL    string

	// Auth
	JWTSecret string

	// Publishing
	GitHubToken   string
	HostingAPIURL string
	HostingToken  string
	ChainRPCURL   string
}

// Load reads configuration from .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			// Fall through to plain environment variables.
		}
	}

	cfg := &Config{
		ListenAddr:      getEnv("LISTEN_ADDR", ":8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		DefaultProvider: getEnv("DEFAULT_AI_PROVIDER", "claude"),
		SolcPath:        getEnv("SOLC_PATH", "solc"),
		SolcVersion:     getEnv("SOLC_VERSION", "0.8.24"),
		OpenZeppelinTag: getEnv("OPENZEPPELIN_TAG", "v5.0.2"),
		DockerHost:      getEnv("DOCKER_HOST", "unix:///var/run/docker.sock"),
		HardhatImage:    getEnv("HARDHAT_IMAGE", "dappforge/hardhat-runner:latest"),
		TestRunTimeout:  getDuration("TEST_RUN_TIMEOUT", 2*time.Minute),
		SandboxRootDir:  getEnv("SANDBOX_ROOT_DIR", os.TempDir()),
		SandboxMemoryMB: getInt64("SANDBOX_MEMORY_MB", 512),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		GitHubToken:     os.Getenv("GITHUB_TOKEN"),
		HostingAPIURL:   os.Getenv("HOSTING_API_URL"),
		HostingToken:    os.Getenv("HOSTING_TOKEN"),
		ChainRPCURL:     getEnv("CHAIN_RPC_URL", "http://localhost:8545"),
	}

	if cfg.AnthropicAPIKey == "" && cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("no AI provider configured: set ANTHROPIC_API_KEY or OPENAI_API_KEY")
	}
	if cfg.Environment == "production" && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required in production")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
