// Package config reads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
)

// Config captures runtime configuration values used by the service. The
// Stripe keys deliberately do not appear here: they are admin-settable and
// live in the database.
type Config struct {
	// ServerAddress is the host:port pair the HTTP server listens on.
	// Defaults to ":18211".
	ServerAddress string

	// DatabaseURL is the Postgres DSN used by database/sql.
	DatabaseURL string

	// DashboardURL is where successful payments redirect to. Defaults to
	// "/mydashboard".
	DashboardURL string
}

const (
	defaultServerAddress = ":18211"
	defaultDashboardURL  = "/mydashboard"
	envServerAddress     = "BACKEND_ADDR"
	envDatabaseURL       = "DATABASE_URL"
	envDashboardURL      = "DASHBOARD_URL"
)

// Load reads configuration from environment variables, applies defaults,
// and returns a Config structure. Required values return an error when
// missing.
func Load() (Config, error) {
	cfg := Config{
		ServerAddress: firstNonEmpty(os.Getenv(envServerAddress), defaultServerAddress),
		DatabaseURL:   os.Getenv(envDatabaseURL),
		DashboardURL:  firstNonEmpty(os.Getenv(envDashboardURL), defaultDashboardURL),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("%s is required", envDatabaseURL)
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
