package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const PROD_STRING = "prod"

// Config holds all application configuration loaded from environment.
type Config struct {
	IsProduction bool
	ProdOrigins  string
	HTTPAddr     string
	DBDSN        string

	HoldTTL time.Duration

	PlatformWebhookSecret string
	WompiCheckoutURL      string
	WompiAPIURL           string
	PayUCheckoutURL       string
	PayUAPIURL            string

	CalendarAPIURL string

	SMTPAddr     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	WebhookRetryAttempts int
	WebhookRetryDelay    time.Duration
	TaskTimeout          time.Duration
	DrainTimeout         time.Duration
	ShutdownTimeout      time.Duration
}

// Load loads configuration from .env (optional) and environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		log.Printf("failed to load .env file: %v", err)
	}

	cfg := &Config{}

	// Production origin (default: empty)
	cfg.ProdOrigins = getEnv("PROD_ORIGINS", "")

	// Application environment (default: dev)
	appEnvStr := getEnv("APP_ENV", "dev")
	cfg.IsProduction = appEnvStr == PROD_STRING

	// HTTP listen address (default: :8080)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	// Database DSN is required
	cfg.DBDSN = os.Getenv("DB_DSN")
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required")
	}

	// Slot hold lifetime, parse as time.Duration (e.g. "10m").
	cfg.HoldTTL, err = getEnvAsDuration("HOLD_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	// Secret for authenticating subscription billing webhooks is required.
	cfg.PlatformWebhookSecret = os.Getenv("PLATFORM_WEBHOOK_SECRET")
	if cfg.PlatformWebhookSecret == "" {
		return nil, fmt.Errorf("PLATFORM_WEBHOOK_SECRET is required")
	}

	cfg.WompiCheckoutURL = getEnv("WOMPI_CHECKOUT_URL", "https://checkout.wompi.co/p/")
	cfg.WompiAPIURL = getEnv("WOMPI_API_URL", "https://production.wompi.co/v1")
	cfg.PayUCheckoutURL = getEnv("PAYU_CHECKOUT_URL", "https://checkout.payulatam.com/ppp-web-gateway-payu/")
	cfg.PayUAPIURL = getEnv("PAYU_API_URL", "https://api.payulatam.com/payments-api/4.0/service.cgi")

	cfg.CalendarAPIURL = getEnv("CALENDAR_API_URL", "https://www.googleapis.com/calendar/v3")

	// SMTP relay for customer notifications (optional; empty addr disables).
	cfg.SMTPAddr = getEnv("SMTP_ADDR", "")
	cfg.SMTPFrom = getEnv("SMTP_FROM", "")
	cfg.SMTPUsername = getEnv("SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnv("SMTP_PASSWORD", "")

	cfg.WebhookRetryAttempts, err = getEnvAsInt("WEBHOOK_RETRY_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	cfg.WebhookRetryDelay, err = getEnvAsDuration("WEBHOOK_RETRY_DELAY", 2*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.TaskTimeout, err = getEnvAsDuration("TASK_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.DrainTimeout, err = getEnvAsDuration("DRAIN_TIMEOUT", 20*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.ShutdownTimeout, err = getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// getEnv returns the value of the environment variable if set,
// otherwise returns the provided default value.
func getEnv(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer.
// It returns the default value if the variable is not set.
// It returns an error if the variable is set but is not a valid integer.
func getEnvAsInt(key string, defaultValue int) (int, error) {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(valStr)
	if err != nil {
		// Return 0 and a wrapped error to provide context
		return 0, fmt.Errorf("env %s value %q is not a valid integer: %w", key, valStr, err)
	}

	return val, nil
}

// getEnvAsDuration retrieves an environment variable as a time.Duration
// ("10m", "2s"). It returns the default value if the variable is not set.
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(valStr)
	if err != nil {
		return 0, fmt.Errorf("env %s value %q is not a valid duration: %w", key, valStr, err)
	}

	return val, nil
}
