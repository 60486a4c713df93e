// Package config provides configuration management for tmserver.
//
// Configuration is resolved in four layers, later layers winning:
// built-in defaults, a YAML configuration file, TM_* environment
// variables, and command-line flags applied by the launcher.
package config

import (
	"fmt"
	"net/url"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSecretKey is the placeholder secret shipped with a fresh install.
// The application factory warns when it is still in use.
const DefaultSecretKey = "default_secret_key"

// Duration wraps time.Duration so that YAML values can use Go duration
// syntax ("30s", "72h").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerSection contains the HTTP listener configuration.
type ServerSection struct {
	Host              string   `yaml:"host"`
	Port              int      `yaml:"port"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
	ReadTimeout       Duration `yaml:"read_timeout"`
	// WriteTimeout bounds response writes. It must accommodate the
	// streamed CSV export of feature values, which can run for minutes
	// on large experiments.
	WriteTimeout Duration `yaml:"write_timeout"`
	IdleTimeout  Duration `yaml:"idle_timeout"`
}

// Addr returns the host:port address to bind.
func (s ServerSection) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseSection contains PostgreSQL connection settings.
type DatabaseSection struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`

	// MaxOpenConns is the connection pool size, fixed once at startup.
	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
}

// DSN assembles a postgres connection URI from the individual settings.
func (d DatabaseSection) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.Name,
	}
	q := u.Query()
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String()
}

// AuthSection contains token signing settings.
type AuthSection struct {
	SecretKey string `yaml:"secret_key"`
	// JWTExpiration is the interval until an issued token expires.
	JWTExpiration Duration `yaml:"jwt_expiration"`
}

// StorageSection contains filesystem layout settings for experiment data.
type StorageSection struct {
	// Home is the root directory under which microscope files are stored,
	// laid out as experiment_<id>/plates/plate_<id>/acquisitions/...
	Home string `yaml:"home"`
}

// LoggingSection contains logging settings.
type LoggingSection struct {
	// Verbosity is additive: 0 error, 1 warn, 2 info, 3+ debug.
	Verbosity int `yaml:"verbosity"`
}

// Config represents the full tmserver configuration.
type Config struct {
	Server   ServerSection   `yaml:"server"`
	Database DatabaseSection `yaml:"database"`
	Auth     AuthSection     `yaml:"auth"`
	Storage  StorageSection  `yaml:"storage"`
	Logging  LoggingSection  `yaml:"logging"`
}

// Default returns the built-in configuration defaults.
func Default() Config {
	return Config{
		Server: ServerSection{
			Host:              "0.0.0.0",
			Port:              5002,
			ReadHeaderTimeout: Duration(10 * time.Second),
			ReadTimeout:       Duration(30 * time.Second),
			WriteTimeout:      Duration(5 * time.Minute),
			IdleTimeout:       Duration(120 * time.Second),
		},
		Database: DatabaseSection{
			Host:         "localhost",
			Port:         5432,
			User:         "tissuemaps",
			Name:         "tissuemaps",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Auth: AuthSection{
			SecretKey:     DefaultSecretKey,
			JWTExpiration: Duration(72 * time.Hour),
		},
		Storage: StorageSection{
			Home: "/var/lib/tissuemaps",
		},
		Logging: LoggingSection{
			Verbosity: 2,
		},
	}
}
