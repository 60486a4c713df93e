package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// applyEnvOverrides overrides config values with environment variables if
// set. Invalid values return an error so that startup fails fast instead of
// running with a half-applied environment.
func applyEnvOverrides(cfg *Config) error {
	// Server
	if host := os.Getenv("TM_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("TM_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid TM_PORT %q: %w", port, err)
		}
		cfg.Server.Port = p
	}

	// Database
	if host := os.Getenv("TM_DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("TM_DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid TM_DB_PORT %q: %w", port, err)
		}
		cfg.Database.Port = p
	}
	if user := os.Getenv("TM_DB_USER"); user != "" {
		cfg.Database.User = user
	}
	if password := os.Getenv("TM_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if name := os.Getenv("TM_DB_NAME"); name != "" {
		cfg.Database.Name = name
	}
	if poolSize := os.Getenv("TM_DB_POOL_SIZE"); poolSize != "" {
		n, err := strconv.Atoi(poolSize)
		if err != nil {
			return fmt.Errorf("invalid TM_DB_POOL_SIZE %q: %w", poolSize, err)
		}
		cfg.Database.MaxOpenConns = n
	}

	// Auth
	if secret := os.Getenv("TM_SECRET_KEY"); secret != "" {
		cfg.Auth.SecretKey = secret
	}
	if expiration := os.Getenv("TM_JWT_EXPIRATION"); expiration != "" {
		d, err := time.ParseDuration(expiration)
		if err != nil {
			return fmt.Errorf("invalid TM_JWT_EXPIRATION %q: %w", expiration, err)
		}
		cfg.Auth.JWTExpiration = Duration(d)
	}

	// Storage
	if home := os.Getenv("TM_STORAGE_HOME"); home != "" {
		cfg.Storage.Home = home
	}

	// Logging
	if verbosity := os.Getenv("TM_VERBOSITY"); verbosity != "" {
		v, err := strconv.Atoi(verbosity)
		if err != nil {
			return fmt.Errorf("invalid TM_VERBOSITY %q: %w", verbosity, err)
		}
		cfg.Logging.Verbosity = v
	}

	return nil
}
