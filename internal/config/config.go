package config

import (
	"os"
)

type Config struct {
	Environment string
	DatabaseURL string
	TablePrefix string
	// Agent configuration
	AgentsConfigPath string
	BrowserHeadless  bool
	// Logging: when LogDir is set, logs are mirrored to a timestamped
	// file in that directory
	LogDir string
	// Debug flags
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")
	tablePrefix := getTablePrefix(env)

	return &Config{
		Environment:      env,
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		TablePrefix:      tablePrefix,
		AgentsConfigPath: getEnv("AGENTS_CONFIG_PATH", ""),
		BrowserHeadless:  getEnv("BROWSER_HEADLESS", "true") == "true",
		LogDir:           getEnv("LOG_DIR", ""),
		// Debug defaults to true outside prod
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
