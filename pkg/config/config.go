// Package config loads the client configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultConnectTimeoutMs  = 10000
	defaultRequestTimeoutMs  = 35000
	defaultMonitorIntervalMs = 5000
	defaultAPIPort           = 8090
	defaultRateLimit         = 100
	defaultOutboxTTLHours    = 7 * 24
)

// Account is the local identity
type Account struct {
	// Name is the account announced at registration
	Name string
	// KeyFile holds the hex secp256k1 private key
	KeyFile string
}

// Transport configures the websocket transport
type Transport struct {
	// Nodes lists transport nodes as multiaddrs, ws:// URLs or host:port
	Nodes             []string
	Path              string
	ConnectTimeoutMs  int
	RequestTimeoutMs  int
	MonitorIntervalMs int
	// Reconnect keeps the session alive across node failures
	Reconnect bool
}

// ConnectTimeout returns the registration timeout
func (t *Transport) ConnectTimeout() time.Duration {
	return time.Duration(t.ConnectTimeoutMs) * time.Millisecond
}

// RequestTimeout returns the pending request reclamation window
func (t *Transport) RequestTimeout() time.Duration {
	return time.Duration(t.RequestTimeoutMs) * time.Millisecond
}

// MonitorInterval returns the liveness check period
func (t *Transport) MonitorInterval() time.Duration {
	return time.Duration(t.MonitorIntervalMs) * time.Millisecond
}

// API configures the HTTP control API
type API struct {
	Enabled    bool
	Host       string
	Port       int
	EnableCORS bool
	// RateLimit is the number of requests per minute per client IP
	RateLimit int
}

// Logging configures the logger
type Logging struct {
	Disable bool
	File    string
	Level   string
}

// Storage configures the local database
type Storage struct {
	DatabasePath   string
	OutboxTTLHours int
}

// OutboxTTL returns how long undelivered messages are kept
func (s *Storage) OutboxTTL() time.Duration {
	return time.Duration(s.OutboxTTLHours) * time.Hour
}

// Config is the top level configuration
type Config struct {
	Account   *Account
	Transport *Transport
	API       *API
	Logging   *Logging
	Storage   *Storage
}

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Account == nil {
		c.Account = &Account{}
	}
	if c.Transport == nil {
		c.Transport = &Transport{Reconnect: true}
	}
	if c.Transport.Path == "" {
		c.Transport.Path = "/"
	}
	if c.Transport.ConnectTimeoutMs == 0 {
		c.Transport.ConnectTimeoutMs = defaultConnectTimeoutMs
	}
	if c.Transport.RequestTimeoutMs == 0 {
		c.Transport.RequestTimeoutMs = defaultRequestTimeoutMs
	}
	if c.Transport.MonitorIntervalMs == 0 {
		c.Transport.MonitorIntervalMs = defaultMonitorIntervalMs
	}
	if c.API == nil {
		c.API = &API{EnableCORS: true}
	}
	if c.API.Host == "" {
		c.API.Host = "127.0.0.1"
	}
	if c.API.Port == 0 {
		c.API.Port = defaultAPIPort
	}
	if c.API.RateLimit == 0 {
		c.API.RateLimit = defaultRateLimit
	}
	if c.Logging == nil {
		c.Logging = &Logging{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Storage == nil {
		c.Storage = &Storage{}
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "wsnet.db"
	}
	if c.Storage.OutboxTTLHours == 0 {
		c.Storage.OutboxTTLHours = defaultOutboxTTLHours
	}
}

// Validate checks the configuration. Defaults must already be applied.
func (c *Config) Validate() error {
	if c.Account == nil || c.Transport == nil || c.API == nil || c.Logging == nil || c.Storage == nil {
		return errors.New("config: missing section")
	}
	if strings.TrimSpace(c.Account.Name) == "" {
		return errors.New("config: Account.Name is required")
	}
	if c.Account.KeyFile == "" {
		return errors.New("config: Account.KeyFile is required")
	}
	if len(c.Transport.Nodes) == 0 {
		return errors.New("config: Transport.Nodes must list at least one node")
	}
	for _, n := range c.Transport.Nodes {
		if strings.TrimSpace(n) == "" {
			return errors.New("config: Transport.Nodes contains an empty entry")
		}
	}
	if c.Transport.ConnectTimeoutMs < 0 || c.Transport.RequestTimeoutMs < 0 || c.Transport.MonitorIntervalMs < 0 {
		return errors.New("config: Transport timeouts must be positive")
	}
	if c.Transport.MonitorIntervalMs > c.Transport.RequestTimeoutMs {
		return fmt.Errorf("config: Transport.MonitorIntervalMs (%d) exceeds RequestTimeoutMs (%d)",
			c.Transport.MonitorIntervalMs, c.Transport.RequestTimeoutMs)
	}
	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("config: API.Port %d out of range", c.API.Port)
	}
	if c.API.RateLimit < 0 {
		return errors.New("config: API.RateLimit must not be negative")
	}
	if c.Storage.OutboxTTLHours < 0 {
		return errors.New("config: Storage.OutboxTTLHours must not be negative")
	}
	return nil
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	if b == nil {
		return nil, errors.New("no nil buffer as config file")
	}

	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown keys %v", undecoded)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
