package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Port        string
	MongoURI    string
	Environment string

	// MaxProjectDepth bounds the depth of the project tree; every create,
	// move and merge is validated against it.
	MaxProjectDepth int
}

// DefaultMaxProjectDepth is used when neither the environment nor the
// tunables file overrides it.
const DefaultMaxProjectDepth = 10

// Tunables is the optional YAML overrides file (TREELINE_TUNABLES).
type Tunables struct {
	MaxProjectDepth int `yaml:"max_project_depth"`
}

// Load loads configuration from environment variables with defaults.
// A tunables file, when present, takes precedence over the environment.
func Load() *Config {
	cfg := &Config{
		Port:            getEnv("PORT", "3001"),
		MongoURI:        getEnv("MONGODB_URI", "mongodb://localhost:27017/treeline"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		MaxProjectDepth: getIntEnv("MAX_PROJECT_DEPTH", DefaultMaxProjectDepth),
	}

	if path := os.Getenv("TREELINE_TUNABLES"); path != "" {
		tunables, err := LoadTunables(path)
		if err == nil && tunables.MaxProjectDepth > 0 {
			cfg.MaxProjectDepth = tunables.MaxProjectDepth
		}
	}

	return cfg
}

// LoadTunables reads the YAML tunables file.
func LoadTunables(filePath string) (*Tunables, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tunables file: %w", err)
	}

	var tunables Tunables
	if err := yaml.Unmarshal(data, &tunables); err != nil {
		return nil, fmt.Errorf("failed to parse tunables YAML: %w", err)
	}

	return &tunables, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
