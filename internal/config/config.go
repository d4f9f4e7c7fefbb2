package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config is the process-wide configuration. It is built once at startup and
// handed to every component; nothing mutates it afterwards.
type Config struct {
	Environment string
	ServiceName string
	Version     string
	HTTPAddr    string
	SiteURL     string

	CORSAllowedOrigins []string
	DesktopRateLimit   int

	Log      LogConfig
	Database DatabaseConfig
	Metering MeteringConfig
	Stripe   StripeConfig
	Identity IdentityConfig
	Tracing  TracingConfig
	Sweep    SweepConfig

	Bootstrap BootstrapConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

type MeteringConfig struct {
	BaseURL   string
	MasterKey string
	Timeout   time.Duration
}

type StripeConfig struct {
	SecretKey      string
	WebhookSecret  string
	MonthlyPriceID string
	YearlyPriceID  string
	Timeout        time.Duration
}

type IdentityConfig struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	JWTSecret      string
	Timeout        time.Duration
}

type TracingConfig struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	SamplingRatio    float64
}

type SweepConfig struct {
	Enabled   bool
	Interval  time.Duration
	Grace     time.Duration
	BatchSize int
}

type BootstrapConfig struct {
	AdminUserID string
}

func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:        getEnv("APP_ENV", EnvDevelopment),
		ServiceName:        getEnv("APP_SERVICE_NAME", "natiweb"),
		Version:            getEnv("APP_VERSION", "dev"),
		HTTPAddr:           normalizeAddr(getEnv("PORT", "8080")),
		SiteURL:            strings.TrimRight(getEnv("SITE_URL", "http://localhost:3000"), "/"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
		DesktopRateLimit:   getInt("DESKTOP_RATE_LIMIT", 60),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", ""),
		},
		Database: DatabaseConfig{
			URL:          getEnv("DATABASE_URL", ""),
			MaxOpenConns: getInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns: getInt("DB_MAX_IDLE_CONNS", 5),
		},
		Metering: MeteringConfig{
			BaseURL:   strings.TrimRight(getEnv("LITELLM_BASE_URL", ""), "/"),
			MasterKey: getEnv("LITELLM_MASTER_KEY", ""),
			Timeout:   getDuration("LITELLM_TIMEOUT", 15*time.Second),
		},
		Stripe: StripeConfig{
			SecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
			MonthlyPriceID: getEnv("STRIPE_PRICE_MONTHLY", ""),
			YearlyPriceID:  getEnv("STRIPE_PRICE_YEARLY", ""),
			Timeout:        getDuration("STRIPE_TIMEOUT", 20*time.Second),
		},
		Identity: IdentityConfig{
			URL:            strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
			AnonKey:        getEnv("SUPABASE_ANON_KEY", ""),
			ServiceRoleKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
			JWTSecret:      getEnv("SUPABASE_JWT_SECRET", ""),
			Timeout:        getDuration("SUPABASE_TIMEOUT", 10*time.Second),
		},
		Tracing: TracingConfig{
			Enabled:          getBool("OTEL_ENABLED", false),
			ExporterEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ExporterProtocol: getEnv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
			SamplingRatio:    getFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		Sweep: SweepConfig{
			Enabled:   getBool("SWEEP_ENABLED", true),
			Interval:  getDuration("SWEEP_INTERVAL", 10*time.Minute),
			Grace:     getDuration("SWEEP_GRACE", 15*time.Minute),
			BatchSize: getInt("SWEEP_BATCH_SIZE", 50),
		},
		Bootstrap: BootstrapConfig{
			AdminUserID: getEnv("BOOTSTRAP_ADMIN_USER_ID", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports missing settings that make the service unusable. Price
// ids are checked lazily by checkout so a misconfigured plan only breaks
// that endpoint.
func (c Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Metering.BaseURL == "" {
		errs = append(errs, errors.New("LITELLM_BASE_URL is required"))
	}
	if c.Metering.MasterKey == "" {
		errs = append(errs, errors.New("LITELLM_MASTER_KEY is required"))
	}
	if c.Identity.URL == "" {
		errs = append(errs, errors.New("SUPABASE_URL is required"))
	}
	if c.Identity.ServiceRoleKey == "" {
		errs = append(errs, errors.New("SUPABASE_SERVICE_ROLE_KEY is required"))
	}
	if c.IsProduction() {
		if c.Stripe.SecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY is required in production"))
		}
		if c.Stripe.WebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required in production"))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getFloat(key string, fallback float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func getBool(key string, fallback bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeAddr(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}
