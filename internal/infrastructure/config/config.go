package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Conductor     ConductorConfig
	Applet        AppletConfig
	Neighbourhood NeighbourhoodConfig
	Server        ServerConfig
	Logging       LogConfig
	RateLimit     RateLimitConfig
}

// ConductorConfig locates the local runtime. Two agents can run side by
// side; AGENT selects which pair of ports this process uses.
type ConductorConfig struct {
	Agent          int           `envconfig:"AGENT" default:"1"`
	Host           string        `envconfig:"HC_HOST" default:"localhost"`
	AppPort        int           `envconfig:"HC_PORT" default:"8888"`
	AppPort2       int           `envconfig:"HC_PORT_2" default:"8889"`
	AdminPort      int           `envconfig:"ADMIN_PORT" default:"9000"`
	AdminPort2     int           `envconfig:"ADMIN_PORT_2" default:"9001"`
	RequestTimeout time.Duration `envconfig:"HC_REQUEST_TIMEOUT" default:"30s"`
}

// AppletConfig identifies the installed app and its required role.
type AppletConfig struct {
	InstalledAppID string `envconfig:"INSTALLED_APP_ID" default:"forum"`
	PrimaryRole    string `envconfig:"PRIMARY_ROLE" default:"forum"`
	ConfigPath     string `envconfig:"APPLET_CONFIG" default:""`
}

// NeighbourhoodConfig drives sensemaker provisioning.
type NeighbourhoodConfig struct {
	SensemakerRole string        `envconfig:"SENSEMAKER_ROLE" default:"sensemaker"`
	Name           string        `envconfig:"NH_NAME" default:"todo test"`
	WizardVersion  string        `envconfig:"NH_WIZARD_VERSION" default:"v0.1"`
	JoinGrace      time.Duration `envconfig:"NH_JOIN_GRACE" default:"2s"`
	AuthPolicy     string        `envconfig:"AUTH_POLICY" default:"abort"`
	AuthWorkers    int           `envconfig:"AUTH_WORKERS" default:"4"`
}

// ServerConfig holds the harness HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"127.0.0.1"`
	AllowOrigins    []string      `envconfig:"CORS_ORIGINS" default:"*"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// ActionTimeout bounds create and join once accepted; the pipeline
	// does not follow the client connection.
	ActionTimeout time.Duration `envconfig:"ACTION_TIMEOUT" default:"2m"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"40"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`

	// Global caps all clients together; zero disables the cap.
	GlobalRequestsPerSecond int `envconfig:"RATE_LIMIT_GLOBAL_RPS" default:"100"`
	GlobalBurst             int `envconfig:"RATE_LIMIT_GLOBAL_BURST" default:"200"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Conductor: ConductorConfig{
			Agent:          1,
			Host:           "localhost",
			AppPort:        8888,
			AppPort2:       8889,
			AdminPort:      9000,
			AdminPort2:     9001,
			RequestTimeout: 30 * time.Second,
		},
		Applet: AppletConfig{
			InstalledAppID: "forum",
			PrimaryRole:    "forum",
		},
		Neighbourhood: NeighbourhoodConfig{
			SensemakerRole: "sensemaker",
			Name:           "todo test",
			WizardVersion:  "v0.1",
			JoinGrace:      2 * time.Second,
			AuthPolicy:     "abort",
			AuthWorkers:    4,
		},
		Server: ServerConfig{
			Port:            "8000",
			Host:            "127.0.0.1",
			AllowOrigins:    []string{"*"},
			ShutdownTimeout: 10 * time.Second,
			ActionTimeout:   2 * time.Minute,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond:       20,
			Burst:                   40,
			Enabled:                 true,
			GlobalRequestsPerSecond: 100,
			GlobalBurst:             200,
		},
	}
}

// Validate checks values envconfig cannot express as types.
func (c *Config) Validate() error {
	if _, _, err := c.Conductor.Ports(); err != nil {
		return err
	}
	switch c.Neighbourhood.AuthPolicy {
	case "abort", "skip":
	default:
		return fmt.Errorf("invalid AUTH_POLICY %q: want abort or skip", c.Neighbourhood.AuthPolicy)
	}
	if c.Neighbourhood.JoinGrace < 0 {
		return fmt.Errorf("invalid NH_JOIN_GRACE %s: must not be negative", c.Neighbourhood.JoinGrace)
	}
	return nil
}

// Ports resolves the (admin, app) port pair for the configured agent.
func (c ConductorConfig) Ports() (admin int, app int, err error) {
	switch c.Agent {
	case 1:
		return c.AdminPort, c.AppPort, nil
	case 2:
		return c.AdminPort2, c.AppPort2, nil
	default:
		return 0, 0, fmt.Errorf("invalid AGENT %d: want 1 or 2", c.Agent)
	}
}

// AdminURL returns the websocket URL of the admin endpoint.
func (c ConductorConfig) AdminURL() (string, error) {
	admin, _, err := c.Ports()
	if err != nil {
		return "", err
	}
	return wsURL(c.Host, admin), nil
}

// AppURL returns the websocket URL of the app endpoint.
func (c ConductorConfig) AppURL() (string, error) {
	_, app, err := c.Ports()
	if err != nil {
		return "", err
	}
	return wsURL(c.Host, app), nil
}

func wsURL(host string, port int) string {
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// Addr returns the harness listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}
