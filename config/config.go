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
	ProviderJWT      = "jwt"
	ProviderSession  = "session"
	ProviderFirebase = "firebase"
)

type Config struct {
	Env         string
	Port        string
	DatabaseURL string
	DBMaxConns  int32
	RedisURL    string

	AuthProvider string
	JWTSecret    string
	JWTTTL       time.Duration
	SessionTTL   time.Duration
	CookieSecure bool

	FirebaseProjectID       string
	FirebaseCredentialsFile string

	SendGridAPIKey string
	MailFrom       string

	LogLevel  string
	LogFormat string
	LogFile   string

	CORSOrigin string
	UndoWindow time.Duration
	StaticDir  string
}

// Production reports whether APP_ENV is production.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// LocalCredentials reports whether the server itself stores passwords.
func (c *Config) LocalCredentials() bool {
	return c.AuthProvider != ProviderFirebase
}

// Load reads the configuration from the environment. Outside production a
// .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		// a missing .env is fine, the environment may already be populated
		_ = godotenv.Load()
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables without touching .env files.
func FromEnv() (*Config, error) {
	var errs []error

	cfg := &Config{
		Env:                     getenv("APP_ENV", "development"),
		Port:                    getenv("PORT", "8080"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisURL:                os.Getenv("REDIS_URL"),
		AuthProvider:            strings.ToLower(getenv("AUTH_PROVIDER", ProviderJWT)),
		JWTSecret:               os.Getenv("JWT_SECRET"),
		FirebaseProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
		FirebaseCredentialsFile: os.Getenv("FIREBASE_CREDENTIALS_FILE"),
		SendGridAPIKey:          os.Getenv("SENDGRID_API_KEY"),
		MailFrom:                getenv("MAIL_FROM", "donotreply@taskboard.local"),
		LogLevel:                getenv("LOG_LEVEL", "info"),
		LogFormat:               getenv("LOG_FORMAT", "text"),
		LogFile:                 os.Getenv("LOG_FILE"),
		CORSOrigin:              getenv("CORS_ORIGIN", "*"),
		StaticDir:               getenv("STATIC_DIR", "./ui/static"),
	}

	cfg.JWTTTL = duration("JWT_TTL", 24*time.Hour, &errs)
	cfg.SessionTTL = duration("SESSION_TTL", 24*time.Hour, &errs)
	cfg.UndoWindow = duration("UNDO_WINDOW", 30*time.Second, &errs)

	cfg.CookieSecure = cfg.Production()
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("COOKIE_SECURE: %w", err))
		}
		cfg.CookieSecure = b
	}

	cfg.DBMaxConns = 20
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("DB_MAX_CONNS must be a positive integer, got %q", v))
		} else {
			cfg.DBMaxConns = int32(n)
		}
	}

	if err := cfg.validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	switch c.AuthProvider {
	case ProviderJWT:
		if len(c.JWTSecret) < 32 {
			errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes when AUTH_PROVIDER=jwt"))
		}
	case ProviderSession:
	case ProviderFirebase:
		if c.FirebaseProjectID == "" && c.FirebaseCredentialsFile == "" {
			errs = append(errs, errors.New("FIREBASE_PROJECT_ID or FIREBASE_CREDENTIALS_FILE is required when AUTH_PROVIDER=firebase"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_PROVIDER %q", c.AuthProvider))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}
	if c.UndoWindow < 0 {
		errs = append(errs, errors.New("UNDO_WINDOW must not be negative"))
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func duration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}
