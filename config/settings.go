// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Settings holds all application configuration.
type Settings struct {
	LLM   LLMConfig
	Match MatchConfig
	API   APIConfig
	DB    DBConfig
}

// LLMConfig holds completion request configuration.
type LLMConfig struct {
	MaxTokens   uint32
	Temperature float32
}

// MatchConfig holds the per-item retry policy around the agent loop.
type MatchConfig struct {
	RetryCount int
	RetryDelay time.Duration
}

// APIConfig holds the HTTP control surface configuration.
type APIConfig struct {
	Bind string
}

// DBConfig holds persistence configuration.
type DBConfig struct {
	Path string
}

// New loads settings from environment variables.
// Returns an error if any variable contains an invalid value.
func New() (Settings, error) {
	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", 8192)
	if err != nil {
		return Settings{}, err
	}

	temperature, err := getEnvFloat32("LLM_TEMPERATURE", 0.2)
	if err != nil {
		return Settings{}, err
	}

	retryCount, err := getEnvInt("MATCH_RETRY_COUNT", 3)
	if err != nil {
		return Settings{}, err
	}

	retryDelaySecs, err := getEnvInt("MATCH_RETRY_DELAY", 10)
	if err != nil {
		return Settings{}, err
	}

	bind := os.Getenv("API_BIND")
	if bind == "" {
		bind = ":8080"
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "animatch.db"
	}

	return Settings{
		LLM: LLMConfig{
			MaxTokens:   maxTokens,
			Temperature: temperature,
		},
		Match: MatchConfig{
			RetryCount: retryCount,
			RetryDelay: time.Duration(retryDelaySecs) * time.Second,
		},
		API: APIConfig{
			Bind: bind,
		},
		DB: DBConfig{
			Path: dbPath,
		},
	}, nil
}

// Environment variable helpers with proper error handling

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat32(key string, defaultVal float32) (float32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return float32(f), nil
}
