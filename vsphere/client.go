// Package vsphere provides high-level convenience operations (power,
// snapshots, reconfiguration, datastore browsing, guest commands) on top
// of the vim25 core client. It holds no protocol state of its own beyond
// an optional name-to-reference cache.
package vsphere

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/smnsjas/go-vsphere/vim25"
	"github.com/smnsjas/go-vsphere/vim25/transport"
)

// Config holds configuration for a vsphere client.
type Config struct {
	// Host is the vCenter or ESXi hostname.
	Host string

	// Port is the HTTPS port (default: 443).
	Port int

	// Username for authentication.
	Username string

	// Password for authentication.
	Password string

	// InsecureSkipVerify skips TLS certificate verification.
	// Only use against lab servers with self-signed certificates.
	InsecureSkipVerify bool

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// Proxy overrides the environment-configured HTTP proxy.
	Proxy *url.URL

	// DisableCache turns off the name-to-reference cache; every lookup
	// then hits the server.
	DisableCache bool

	// Cache substitutes a custom cache implementation. Ignored when
	// DisableCache is set.
	Cache Cache

	// Logger receives structured logs. Nil disables logging.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:    443,
		Timeout: 60 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.Username == "" {
		return errors.New("username is required")
	}
	if c.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// Client wraps a core vim25 client with name-based convenience
// operations. Like the core client, it is not safe for concurrent calls;
// use one Client per goroutine.
type Client struct {
	core  *vim25.Client
	cache Cache
	log   *slog.Logger
}

// New creates a client from the configuration. No network traffic happens
// until the first operation.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	port := cfg.Port
	if port == 0 {
		port = 443
	}
	endpoint := fmt.Sprintf("https://%s:%d%s", cfg.Host, port, vim25.EndpointPath)

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	trOpts := []transport.HTTPTransportOption{
		transport.WithInsecureSkipVerify(cfg.InsecureSkipVerify),
		transport.WithLogger(log),
	}
	if cfg.Timeout > 0 {
		trOpts = append(trOpts, transport.WithTimeout(cfg.Timeout))
	}
	if cfg.Proxy != nil {
		trOpts = append(trOpts, transport.WithProxy(cfg.Proxy))
	}
	tr := transport.NewHTTPTransport(trOpts...)

	cache := cfg.Cache
	if cfg.DisableCache {
		cache = NopCache{}
	} else if cache == nil {
		cache = NewMapCache()
	}

	return &Client{
		core:  vim25.NewClient(endpoint, cfg.Username, cfg.Password, tr, vim25.WithLogger(log)),
		cache: cache,
		log:   log,
	}, nil
}

// Core exposes the underlying vim25 client for operations this package
// does not wrap.
func (c *Client) Core() *vim25.Client { return c.core }

// ClearCache invalidates the name-to-reference cache. The cache is a pure
// performance optimization; clearing it is always safe.
func (c *Client) ClearCache() { c.cache.Clear() }

// Close logs out and releases connections. Safe to call on teardown
// paths; failures are swallowed.
func (c *Client) Close(ctx context.Context) {
	c.core.Close(ctx)
}

// NotFoundError means a named object does not exist in the inventory.
type NotFoundError struct {
	Type string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("vsphere: no %s named %q", e.Type, e.Name)
}

// AmbiguousError means more than one object matched a name lookup.
type AmbiguousError struct {
	Type  string
	Name  string
	Count int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("vsphere: %d objects of type %s named %q", e.Count, e.Type, e.Name)
}
