package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for values that would make startup
// impossible. It does not warn about weak secrets; that is the application
// factory's job, since a default secret is acceptable for development.
func Validate(cfg Config) error {
	var errs []error

	if cfg.Server.Host == "" {
		errs = append(errs, errors.New("server.host must be set"))
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in range 1-65535, got %d", cfg.Server.Port))
	}

	if cfg.Database.Host == "" {
		errs = append(errs, errors.New("database.host must be set"))
	}
	if cfg.Database.Name == "" {
		errs = append(errs, errors.New("database.name must be set"))
	}
	if cfg.Database.User == "" {
		errs = append(errs, errors.New("database.user must be set"))
	}
	if cfg.Database.MaxOpenConns < 1 {
		errs = append(errs, fmt.Errorf("database.max_open_conns must be positive, got %d", cfg.Database.MaxOpenConns))
	}
	if cfg.Database.MaxIdleConns > cfg.Database.MaxOpenConns {
		errs = append(errs, fmt.Errorf(
			"database.max_idle_conns (%d) must not exceed database.max_open_conns (%d)",
			cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns,
		))
	}

	if cfg.Auth.SecretKey == "" {
		errs = append(errs, errors.New("auth.secret_key must be set"))
	}
	if cfg.Auth.JWTExpiration <= 0 {
		errs = append(errs, errors.New("auth.jwt_expiration must be positive"))
	}

	if cfg.Storage.Home == "" {
		errs = append(errs, errors.New("storage.home must be set"))
	}

	return errors.Join(errs...)
}
