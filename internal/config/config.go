package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	AuthMode            string        `mapstructure:"AUTH_MODE"`
	AuthSecret          string        `mapstructure:"AUTH_SECRET"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant       string        `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	TenantMigrationsDir string        `mapstructure:"TENANT_MIGRATIONS_DIR"`
	SharedMigrationsDir string        `mapstructure:"SHARED_MIGRATIONS_DIR"`
	RegistrySeedFile    string        `mapstructure:"REGISTRY_SEED_FILE"`
	LifecycleTimeout    time.Duration `mapstructure:"LIFECYCLE_TIMEOUT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // auto-detect: "" -> inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("TENANT_MIGRATIONS_DIR", "migrations/tenant")
	v.SetDefault("SHARED_MIGRATIONS_DIR", "migrations/shared")
	v.SetDefault("REGISTRY_SEED_FILE", "registry.yaml")
	v.SetDefault("LIFECYCLE_TIMEOUT", "5m")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("AUTH_MODE")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("DEFAULT_TENANT")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("TENANT_MIGRATIONS_DIR")
	v.BindEnv("SHARED_MIGRATIONS_DIR")
	v.BindEnv("REGISTRY_SEED_FILE")
	v.BindEnv("LIFECYCLE_TIMEOUT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Dev auth is active; all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure AUTH_SECRET for production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise, the mode is inferred:
//   - ENV=development → "development" (no auth, all requests get admin)
//   - Otherwise       → "token" (signed bearer tokens via AUTH_SECRET)
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "token"
}

// Validate checks that the configuration is safe to run. In non-development
// modes AUTH_SECRET must be set so that real bearer-token authentication is
// enforced, and the lifecycle timeout must leave room for a full restore.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "token" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"token\", got %q", mode)
	}
	if mode == "token" && c.AuthSecret == "" {
		return fmt.Errorf(
			"AUTH_SECRET must be set when AUTH_MODE is \"token\" (current ENV=%q). "+
				"Refusing to start without authentication configuration", c.Env)
	}
	if c.LifecycleTimeout < time.Second {
		return fmt.Errorf("LIFECYCLE_TIMEOUT must be at least 1s, got %s", c.LifecycleTimeout)
	}
	return nil
}
