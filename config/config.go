// Package config holds the client's configuration surface and a
// file-backed, hot-reloadable variant of it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// SSLMode selects how the client negotiates TLS with the backend.
type SSLMode string

const (
	SSLDisable SSLMode = "disable"
	SSLPrefer  SSLMode = "prefer"
	SSLRequire SSLMode = "require"
)

// Config collects the dial target, credentials, pool tunables, and
// protocol-level options a client needs to connect.
type Config struct {
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`

	ApplicationName      string            `yaml:"application_name"`
	AdditionalStartupParams map[string]string `yaml:"additional_startup_params"`

	PoolSize                               int           `yaml:"pool_size"`
	PoolConnectEagerly                     bool          `yaml:"pool_connect_eagerly"`
	PoolValidationQuery                    string        `yaml:"pool_validation_query"`
	PoolBorrowTimeout                      time.Duration `yaml:"pool_borrow_timeout"`
	PoolCloseReturnedConnectionOnClosedPool bool         `yaml:"pool_close_returned_connection_on_closed_pool"`

	IOTimeout time.Duration `yaml:"io_timeout"`
	SSL       SSLMode       `yaml:"ssl"`
}

// Default returns a Config with the same defaults a bare `Config{}` would
// produce once Normalize runs, for callers that want to start from a known
// baseline before overriding fields.
func Default() Config {
	c := Config{}
	c.Normalize()

	return c
}

// Normalize fills in the documented defaults for zero-valued fields:
// database defaults to username, pool size defaults to 1, borrow/IO
// timeouts default to 30s / 10s respectively, port defaults to 5432 and SSL
// to prefer. PoolCloseReturnedConnectionOnClosedPool is left as given, so
// its zero value false stands.
func (c *Config) Normalize() {
	if c.Database == "" {
		c.Database = c.Username
	}

	if c.PoolSize <= 0 {
		c.PoolSize = 1
	}

	if c.PoolBorrowTimeout <= 0 {
		c.PoolBorrowTimeout = 30 * time.Second
	}

	if c.IOTimeout <= 0 {
		c.IOTimeout = 10 * time.Second
	}

	if c.Port == 0 {
		c.Port = 5432
	}

	if c.SSL == "" {
		c.SSL = SSLPrefer
	}
}

// Address returns the "host:port" dial target.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.Port)
}

// StartupParameters assembles the StartupMessage parameter pairs: user and
// database are mandatory, client_encoding/DateStyle are always sent as
// UTF8/ISO, application_name is sent only when ApplicationName is set, plus
// whatever the caller added.
func (c Config) StartupParameters() map[string]string {
	params := map[string]string{
		"user":           c.Username,
		"database":       c.Database,
		"client_encoding": "UTF8",
		"DateStyle":      "ISO",
	}

	if c.ApplicationName != "" {
		params["application_name"] = c.ApplicationName
	}

	for k, v := range c.AdditionalStartupParams {
		params[k] = v
	}

	return params
}

// ConfigFromEnv builds a Config from PGHOST/PGPORT/PGUSER/PGPASSWORD/PGDATABASE
// and the PGWIRE_POOL_* variables, following libpq's environment variable
// naming convention where it overlaps.
func ConfigFromEnv() (Config, error) {
	var c Config

	c.Hostname = envOr("PGHOST", "localhost")
	c.Username = os.Getenv("PGUSER")
	c.Password = os.Getenv("PGPASSWORD")
	c.Database = os.Getenv("PGDATABASE")
	c.ApplicationName = os.Getenv("PGAPPNAME")

	if port := os.Getenv("PGPORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return Config{}, fmt.Errorf("config: parsing PGPORT: %w", err)
		}

		c.Port = n
	}

	if size := os.Getenv("PGWIRE_POOL_SIZE"); size != "" {
		n, err := strconv.Atoi(size)
		if err != nil {
			return Config{}, fmt.Errorf("config: parsing PGWIRE_POOL_SIZE: %w", err)
		}

		c.PoolSize = n
	}

	c.PoolValidationQuery = os.Getenv("PGWIRE_POOL_VALIDATION_QUERY")

	c.Normalize()

	return c, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

// ConfigFromFile loads a Config from a YAML file at path.
func ConfigFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	c.Normalize()

	return c, nil
}
