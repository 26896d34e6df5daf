package config // package config loads application configuration from environment variables

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env        string        // application environment (dev, staging, production)
	Port       string        // HTTP port to listen on
	DBUser     string        // database username
	DBPass     string        // database password (optional)
	DBHost     string        // database host address
	DBPort     string        // database port number
	DBName     string        // database name
	DBTimeout  time.Duration // upper bound for every database call
	JWTSecret  string        // secret used to sign access tokens, required
	BcryptCost int           // bcrypt cost for password hashing
	LogLevel   string        // logrus level name

	BootstrapAdminEmail    string // demo admin identifier; empty disables the bootstrap path
	BootstrapAdminPassword string // demo admin password; empty disables the bootstrap path
	BootstrapRoleID        uint64 // role given to the bootstrap admin

	RabbitURL   string // AMQP url for the activity stream; empty disables publishing
	AutoMigrate bool   // run schema migrations on startup
}

// IsProduction reports whether the service runs in production.  The
// development-only endpoints refuse to run when it returns true.
func (c Config) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "production", "prod":
		return true
	}
	return false
}

// BootstrapEnabled reports whether both demo admin credentials are set.
func (c Config) BootstrapEnabled() bool {
	return c.BootstrapAdminEmail != "" && c.BootstrapAdminPassword != ""
}

var required = []string{"APP_ENV", "APP_PORT", "DB_USER", "DB_HOST", "DB_PORT", "DB_NAME", "JWT_SECRET"}

// LoadFromEnv reads configuration values from environment variables.  It
// returns an error naming every missing required variable.  There is no
// default signing secret.
func LoadFromEnv() (Config, error) {
	var missing []string
	for _, k := range required {
		if strings.TrimSpace(os.Getenv(k)) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	cfg := Config{
		Env:                    os.Getenv("APP_ENV"),
		Port:                   os.Getenv("APP_PORT"),
		DBUser:                 os.Getenv("DB_USER"),
		DBPass:                 os.Getenv("DB_PASS"),
		DBHost:                 os.Getenv("DB_HOST"),
		DBPort:                 os.Getenv("DB_PORT"),
		DBName:                 os.Getenv("DB_NAME"),
		DBTimeout:              envDur("DB_TIMEOUT", 5*time.Second),
		JWTSecret:              os.Getenv("JWT_SECRET"),
		BcryptCost:             envInt("BCRYPT_COST", 10),
		LogLevel:               envStr("LOG_LEVEL", "info"),
		BootstrapAdminEmail:    strings.ToLower(strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_EMAIL"))),
		BootstrapAdminPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
		BootstrapRoleID:        uint64(envInt("BOOTSTRAP_ROLE_ID", 1)),
		RabbitURL:              envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
		AutoMigrate:            envBool("AUTO_MIGRATE", false),
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return Config{}, fmt.Errorf("invalid BCRYPT_COST %d", cfg.BcryptCost)
	}
	return cfg, nil
}

// Load is LoadFromEnv for main packages: a configuration error halts the
// process.
func Load() Config {
	cfg, err := LoadFromEnv()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	return cfg
}
