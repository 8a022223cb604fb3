package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"calendar_bot/pkg/apperr"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"env"`
	LogLevel    string `yaml:"log_level"`

	// Calendar
	Timezone              string `yaml:"timezone"`
	CalendarID            string `yaml:"calendar_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`
	GoogleTokenFile       string `yaml:"google_token_file"`

	// WhatsApp Cloud API
	WhatsAppToken         string `yaml:"whatsapp_token"`
	WhatsAppPhoneNumberID string `yaml:"whatsapp_phone_number_id"`
	WhatsAppVerifyToken   string `yaml:"whatsapp_verify_token"`
	WhatsAppAppSecret     string `yaml:"whatsapp_app_secret"`
	WhatsAppAPIBase       string `yaml:"whatsapp_api_base"`
	WhatsAppAPIVersion    string `yaml:"whatsapp_api_version"`

	// OpenAI
	OpenAIAPIKey   string  `yaml:"openai_api_key"`
	LLMModel       string  `yaml:"llm_model"`
	LLMTemperature float64 `yaml:"llm_temperature"`
	LLMMaxTokens   int     `yaml:"llm_max_tokens"`
	LLMTimeoutSec  int     `yaml:"llm_timeout_sec"`

	// External calls
	ExternalTimeoutSec int `yaml:"external_timeout_sec"`
	ExternalMaxRetries int `yaml:"external_max_retries"`

	// Webhook dedup (Redis)
	RedisURL    string `yaml:"redis_url"`
	DedupTTLMin int    `yaml:"dedup_ttl_min"`

	// Audit log (Postgres)
	DatabaseURL string `yaml:"database_url"`

	location *time.Location
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Port:                  "8080",
		Environment:           "development",
		Timezone:              "Europe/Brussels",
		CalendarID:            "primary",
		GoogleCredentialsFile: "credentials.json",
		GoogleTokenFile:       "token.json",
		WhatsAppAPIBase:       "https://graph.facebook.com",
		WhatsAppAPIVersion:    "v18.0",
		LLMModel:              "gpt-4.1-nano",
		LLMTemperature:        0.5,
		LLMMaxTokens:          512,
		LLMTimeoutSec:         30,
		ExternalTimeoutSec:    15,
		ExternalMaxRetries:    2,
		DedupTTLMin:           60,
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by CONFIG_FILE, and environment variables, in increasing precedence.
func Load() (*Config, error) {
	base := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, base); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", base.Port),
		Environment: getEnv("ENV", base.Environment),
		LogLevel:    getEnv("LOG_LEVEL", base.LogLevel),

		// Calendar
		Timezone:              getEnv("TIMEZONE", base.Timezone),
		CalendarID:            getEnv("CALENDAR_ID", base.CalendarID),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", base.GoogleCredentialsFile),
		GoogleTokenFile:       getEnv("GOOGLE_TOKEN_FILE", base.GoogleTokenFile),

		// WhatsApp
		WhatsAppToken:         getEnv("WHATSAPP_TOKEN", base.WhatsAppToken),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", base.WhatsAppPhoneNumberID),
		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", base.WhatsAppVerifyToken),
		WhatsAppAppSecret:     getEnv("WHATSAPP_APP_SECRET", base.WhatsAppAppSecret),
		WhatsAppAPIBase:       getEnv("WHATSAPP_API_BASE", base.WhatsAppAPIBase),
		WhatsAppAPIVersion:    getEnv("WHATSAPP_API_VERSION", base.WhatsAppAPIVersion),

		// OpenAI
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", base.OpenAIAPIKey),
		LLMModel:       getEnv("LLM_MODEL", base.LLMModel),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", base.LLMTemperature),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", base.LLMMaxTokens),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SEC", base.LLMTimeoutSec),

		// External calls
		ExternalTimeoutSec: getEnvInt("EXTERNAL_TIMEOUT_SEC", base.ExternalTimeoutSec),
		ExternalMaxRetries: getEnvInt("EXTERNAL_MAX_RETRIES", base.ExternalMaxRetries),

		// Dedup
		RedisURL:    getEnv("REDIS_URL", base.RedisURL),
		DedupTTLMin: getEnvInt("DEDUP_TTL_MIN", base.DedupTTLMin),

		// Audit
		DatabaseURL: getEnv("DATABASE_URL", base.DatabaseURL),
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
		if cfg.IsDevelopment() {
			cfg.LogLevel = "debug"
		}
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, apperr.ConfigError(fmt.Sprintf("unknown timezone %q", cfg.Timezone)).WithError(err)
	}
	cfg.location = loc

	return cfg, nil
}

func loadFile(path string, into *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperr.ConfigError(fmt.Sprintf("read config file %s", path)).WithError(err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return apperr.ConfigError(fmt.Sprintf("parse config file %s", path)).WithError(err)
	}
	return nil
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var missing []string
	required := []struct {
		key   string
		value string
	}{
		{"WHATSAPP_TOKEN", c.WhatsAppToken},
		{"WHATSAPP_PHONE_NUMBER_ID", c.WhatsAppPhoneNumberID},
		{"WHATSAPP_VERIFY_TOKEN", c.WhatsAppVerifyToken},
		{"OPENAI_API_KEY", c.OpenAIAPIKey},
		{"CALENDAR_ID", c.CalendarID},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return apperr.ConfigError("missing required settings: " + strings.Join(missing, ", "))
	}
	if c.ExternalTimeoutSec <= 0 || c.LLMTimeoutSec <= 0 {
		return apperr.ConfigError("timeouts must be positive")
	}
	return nil
}

// Location returns the configured timezone, UTC if Load was bypassed.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c *Config) ExternalTimeout() time.Duration {
	return time.Duration(c.ExternalTimeoutSec) * time.Second
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSec) * time.Second
}

func (c *Config) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLMin) * time.Minute
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
