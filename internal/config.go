package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Store         StoreConfig         `mapstructure:"store"`
	Backend       BackendConfig       `mapstructure:"backend"`
	Checkout      CheckoutConfig      `mapstructure:"checkout"`
	Card          CardConfig          `mapstructure:"card"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

// StoreConfig points at the sqlite file backing the session slot of every profile.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type BackendConfig struct {
	BaseURL           string        `mapstructure:"base_url" validate:"required,url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	SettlementWorkers int           `mapstructure:"settlement_workers"`
	SettlementQueue   int           `mapstructure:"settlement_queue"`
}

type CheckoutConfig struct {
	Profile              string        `mapstructure:"profile"`
	MinAmount            int64         `mapstructure:"min_amount"`
	SessionTTL           time.Duration `mapstructure:"session_ttl"`
	CardProvider         string        `mapstructure:"card_provider"`
	DashboardURL         string        `mapstructure:"dashboard_url"`
	RetryURL             string        `mapstructure:"retry_url"`
	SuccessRedirectDelay time.Duration `mapstructure:"success_redirect_delay"`
}

type CardConfig struct {
	APIURL           string        `mapstructure:"api_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	ChallengeTimeout time.Duration `mapstructure:"challenge_timeout"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Env    string `mapstructure:"env"`
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// Defaults mirrors config.example.yml so a missing key never yields a zero timeout or amount.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"http_server.port":                60006,
		"http_server.read_header_timeout": 5 * time.Second,
		"http_server.read_timeout":        15 * time.Second,
		"http_server.write_timeout":       15 * time.Second,
		"http_server.idle_timeout":        60 * time.Second,
		"store.path":                      "checkout.db",
		"backend.base_url":                "http://localhost:8080/api/payment/payments",
		"backend.timeout":                 30 * time.Second,
		"backend.settlement_workers":      2,
		"backend.settlement_queue":        100,
		"checkout.profile":                "default",
		"checkout.min_amount":             10000,
		"checkout.session_ttl":            30 * time.Minute,
		"checkout.card_provider":          "STRIPE",
		"checkout.dashboard_url":          "http://localhost:5173/dashboard",
		"checkout.retry_url":              "http://localhost:5173/payment",
		"checkout.success_redirect_delay": 3 * time.Second,
		"card.api_url":                    "https://api.stripe.com",
		"card.timeout":                    30 * time.Second,
		"card.poll_interval":              2 * time.Second,
		"card.challenge_timeout":          5 * time.Minute,
		"observability.metrics.enabled":   true,
		"observability.metrics.path":      "/metrics",
		"observability.logging.env":       "development",
		"observability.logging.level":     "info",
		"observability.logging.format":    "text",
	}
}

// LoadConfigFromEnv builds the configuration for container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_SERVER_PORT", 60006),
			BaseURL:           getEnv("HTTP_SERVER_BASE_URL", ""),
			AllowedOrigins:    getEnv("HTTP_SERVER_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_SERVER_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Store: StoreConfig{
			Path: getEnv("STORE_PATH", "checkout.db"),
		},
		Backend: BackendConfig{
			BaseURL:           getEnv("BACKEND_BASE_URL", ""),
			Timeout:           getEnvAsDuration("BACKEND_TIMEOUT", 30*time.Second),
			SettlementWorkers: getEnvAsInt("BACKEND_SETTLEMENT_WORKERS", 2),
			SettlementQueue:   getEnvAsInt("BACKEND_SETTLEMENT_QUEUE", 100),
		},
		Checkout: CheckoutConfig{
			Profile:              getEnv("CHECKOUT_PROFILE", "default"),
			MinAmount:            int64(getEnvAsInt("CHECKOUT_MIN_AMOUNT", 10000)),
			SessionTTL:           getEnvAsDuration("CHECKOUT_SESSION_TTL", 30*time.Minute),
			CardProvider:         getEnv("CHECKOUT_CARD_PROVIDER", "STRIPE"),
			DashboardURL:         getEnv("CHECKOUT_DASHBOARD_URL", ""),
			RetryURL:             getEnv("CHECKOUT_RETRY_URL", ""),
			SuccessRedirectDelay: getEnvAsDuration("CHECKOUT_SUCCESS_REDIRECT_DELAY", 3*time.Second),
		},
		Card: CardConfig{
			APIURL:           getEnv("CARD_API_URL", "https://api.stripe.com"),
			Timeout:          getEnvAsDuration("CARD_TIMEOUT", 30*time.Second),
			PollInterval:     getEnvAsDuration("CARD_POLL_INTERVAL", 2*time.Second),
			ChallengeTimeout: getEnvAsDuration("CARD_CHALLENGE_TIMEOUT", 5*time.Minute),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: getEnv("METRICS_ENABLED", "true") == "true",
				Path:    getEnv("METRICS_PATH", "/metrics"),
			},
			Logging: LoggingConfig{
				Env:    getEnv("APP_ENV", "production"),
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Store.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("store config: %v", err))
	}

	if err := c.Backend.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("backend config: %v", err))
	}

	if err := c.Checkout.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("checkout config: %v", err))
	}

	if err := c.Card.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("card config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *StoreConfig) Validate() error {
	if c.Path == "" {
		return errors.New("path is required")
	}
	return nil
}

func (c *BackendConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url %q is not an absolute URL", c.BaseURL)
	}
	if c.SettlementWorkers < 0 || c.SettlementQueue < 0 {
		return errors.New("settlement_workers and settlement_queue cannot be negative")
	}
	return nil
}

func (c *CheckoutConfig) Validate() error {
	if c.Profile == "" {
		return errors.New("profile is required")
	}
	if c.MinAmount <= 0 {
		return errors.New("min_amount must be positive")
	}
	if c.SessionTTL <= 0 {
		return errors.New("session_ttl must be positive")
	}
	if c.CardProvider == "" {
		return errors.New("card_provider is required")
	}
	return nil
}

func (c *CardConfig) Validate() error {
	if c.APIURL == "" {
		return errors.New("api_url is required")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	return nil
}
