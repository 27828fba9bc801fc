package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigWithDefaults(t *testing.T) {
	// Set only required env vars
	setTestEnv(t, map[string]string{
		"WHOOP_CLIENT_ID":     "test_client_id",
		"WHOOP_CLIENT_SECRET": "test_client_secret",
		"WHOOP_REDIRECT_URI":  "http://localhost:4201/oauth-callback",
		"INTERNAL_API_KEY":    "test_api_key",
	})

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Check defaults
	if config.Host != "localhost" {
		t.Errorf("Expected default host 'localhost', got %s", config.Host)
	}
	if config.Port != 4201 {
		t.Errorf("Expected default port 4201, got %d", config.Port)
	}
	if config.DatabasePath != "./data.db" {
		t.Errorf("Expected default database path './data.db', got %s", config.DatabasePath)
	}
	if config.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %s", config.LogLevel)
	}
	if config.WhoopRequestTimeout != 30*time.Second {
		t.Errorf("Expected default request timeout 30s, got %s", config.WhoopRequestTimeout)
	}
	if config.MetricsEnabled {
		t.Error("Expected metrics disabled by default")
	}

	// Check required values
	if config.WhoopClientID != "test_client_id" {
		t.Errorf("Expected WHOOP_CLIENT_ID 'test_client_id', got %s", config.WhoopClientID)
	}
	if config.WhoopClientSecret != "test_client_secret" {
		t.Errorf("Expected WHOOP_CLIENT_SECRET 'test_client_secret', got %s", config.WhoopClientSecret)
	}
	if config.InternalAPIKey != "test_api_key" {
		t.Errorf("Expected INTERNAL_API_KEY 'test_api_key', got %s", config.InternalAPIKey)
	}
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	setTestEnv(t, map[string]string{
		"HOST":                          "0.0.0.0",
		"PORT":                          "8080",
		"DATABASE_PATH":                 "/tmp/test.db",
		"WHOOP_CLIENT_ID":               "custom_client_id",
		"WHOOP_CLIENT_SECRET":           "custom_client_secret",
		"WHOOP_REDIRECT_URI":            "https://example.com/oauth-callback",
		"WHOOP_REQUEST_TIMEOUT_SECONDS": "10",
		"INTERNAL_API_KEY":              "custom_api_key",
		"METRICS_ENABLED":               "true",
		"METRICS_PORT":                  "9090",
		"LOG_LEVEL":                     "debug",
	})

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Host != "0.0.0.0" {
		t.Errorf("Expected host '0.0.0.0', got %s", config.Host)
	}
	if config.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", config.Port)
	}
	if config.DatabasePath != "/tmp/test.db" {
		t.Errorf("Expected database path '/tmp/test.db', got %s", config.DatabasePath)
	}
	if config.WhoopRedirectURI != "https://example.com/oauth-callback" {
		t.Errorf("Expected redirect URI 'https://example.com/oauth-callback', got %s", config.WhoopRedirectURI)
	}
	if config.WhoopRequestTimeout != 10*time.Second {
		t.Errorf("Expected request timeout 10s, got %s", config.WhoopRequestTimeout)
	}
	if !config.MetricsEnabled {
		t.Error("Expected metrics enabled")
	}
	if config.MetricsPort != 9090 {
		t.Errorf("Expected metrics port 9090, got %d", config.MetricsPort)
	}
	if config.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got %s", config.LogLevel)
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	setTestEnv(t, map[string]string{
		"WHOOP_CLIENT_ID": "test_client_id",
	})

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error for missing required env vars")
	}

	if !strings.Contains(err.Error(), "WHOOP_CLIENT_SECRET") {
		t.Errorf("Expected error to name WHOOP_CLIENT_SECRET, got: %v", err)
	}
	if !strings.Contains(err.Error(), "INTERNAL_API_KEY") {
		t.Errorf("Expected error to name INTERNAL_API_KEY, got: %v", err)
	}
}

func TestLoadConfigInvalidInt(t *testing.T) {
	setTestEnv(t, map[string]string{
		"PORT":                "not_a_number",
		"WHOOP_CLIENT_ID":     "test_client_id",
		"WHOOP_CLIENT_SECRET": "test_client_secret",
		"WHOOP_REDIRECT_URI":  "http://localhost:4201/oauth-callback",
		"INTERNAL_API_KEY":    "test_api_key",
	})

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Invalid integers fall back to the default
	if config.Port != 4201 {
		t.Errorf("Expected fallback port 4201, got %d", config.Port)
	}
}

// setTestEnv clears all config-related env vars, then sets the provided ones
func setTestEnv(t *testing.T, vars map[string]string) {
	t.Helper()

	envVars := []string{
		"HOST", "PORT", "DATABASE_PATH",
		"WHOOP_CLIENT_ID", "WHOOP_CLIENT_SECRET", "WHOOP_REDIRECT_URI",
		"WHOOP_REQUEST_TIMEOUT_SECONDS", "INTERNAL_API_KEY",
		"METRICS_ENABLED", "METRICS_HOST", "METRICS_PORT", "LOG_LEVEL",
	}
	for _, key := range envVars {
		os.Unsetenv(key)
	}

	for key, value := range vars {
		t.Setenv(key, value)
	}
}
