package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port    string `mapstructure:"PORT"`
	Env     string `mapstructure:"ENV"`
	AppName string `mapstructure:"APP_NAME"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// DBDSN vacío = store en memoria (solo dev).
	DBDSN         string `mapstructure:"DB_DSN"`
	DBAutoMigrate bool   `mapstructure:"DB_AUTO_MIGRATE"`

	// RedisURL vacío = limitador en memoria.
	RedisURL string `mapstructure:"REDIS_URL"`

	// JWTSecret vacío = modo debug con X-Debug-User-ID (solo dev).
	JWTSecret string `mapstructure:"JWT_SECRET"`
	JWTIssuer string `mapstructure:"JWT_ISSUER"`

	ProfileServiceURL    string `mapstructure:"PROFILE_SERVICE_URL"`
	ProfileServiceAPIKey string `mapstructure:"PROFILE_SERVICE_API_KEY"`

	EmergencyTokenTTL   time.Duration `mapstructure:"EMERGENCY_TOKEN_TTL"`
	EmergencySessionTTL time.Duration `mapstructure:"EMERGENCY_SESSION_TTL"`
	RedeemMaxPerHour    int           `mapstructure:"REDEEM_MAX_PER_HOUR"`
	SweepInterval       time.Duration `mapstructure:"SWEEP_INTERVAL"`
	StoreTimeout        time.Duration `mapstructure:"STORE_TIMEOUT"`
}

var keys = []string{
	"PORT", "ENV", "APP_NAME",
	"LOG_LEVEL", "LOG_FORMAT",
	"DB_DSN", "DB_AUTO_MIGRATE",
	"REDIS_URL",
	"JWT_SECRET", "JWT_ISSUER",
	"PROFILE_SERVICE_URL", "PROFILE_SERVICE_API_KEY",
	"EMERGENCY_TOKEN_TTL", "EMERGENCY_SESSION_TTL", "REDEEM_MAX_PER_HOUR",
	"SWEEP_INTERVAL", "STORE_TIMEOUT",
}

// Load lee envFile (si existe) y luego el entorno. Las variables del
// entorno ganan sobre el archivo.
func Load(envFile string) (*Config, error) {
	if strings.TrimSpace(envFile) != "" {
		_ = godotenv.Load(envFile)
	}

	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("APP_NAME", "patient-records-access")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("DB_AUTO_MIGRATE", false)
	v.SetDefault("EMERGENCY_TOKEN_TTL", "15m")
	v.SetDefault("EMERGENCY_SESSION_TTL", "1h")
	v.SetDefault("REDEEM_MAX_PER_HOUR", 10)
	v.SetDefault("SWEEP_INTERVAL", "1m")
	v.SetDefault("STORE_TIMEOUT", "5s")

	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}
	if c.EmergencyTokenTTL <= 0 {
		errs = append(errs, errors.New("EMERGENCY_TOKEN_TTL must be positive"))
	}
	if c.EmergencySessionTTL <= 0 {
		errs = append(errs, errors.New("EMERGENCY_SESSION_TTL must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if c.RedeemMaxPerHour < 0 {
		errs = append(errs, errors.New("REDEEM_MAX_PER_HOUR must not be negative"))
	}
	if c.IsProduction() {
		if c.DBDSN == "" {
			errs = append(errs, errors.New("DB_DSN is required in production"))
		}
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}
