package client

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultDomain is the public ComfyOne endpoint.
	DefaultDomain = "pandora-server-cf.onethingai.com"

	DefaultMaxRetries     = 3
	DefaultTimeout        = 5000 * time.Millisecond
	DefaultReconnectDelay = 5 * time.Second
	DefaultBackoffBase    = time.Second
	DefaultDownloadDir    = "downloads"

	// Version is sent in the User-Agent header.
	Version = "0.3.0"
)

// Config holds the settings consumed by Client.
// Zero values are replaced by the defaults above.
type Config struct {
	// APIKey is the bearer token. Required.
	APIKey string
	// Domain is the service host, without scheme.
	Domain string
	// BaseURL overrides the https://<Domain> URL derived from Domain.
	BaseURL string
	// WebsocketURL overrides the wss://<Domain>/v1/ws URL derived from Domain.
	WebsocketURL string
	// MaxRetries is the number of attempts per call. Nil selects
	// DefaultMaxRetries; values below 1 mean a single attempt. Use Int to set it.
	MaxRetries *int
	// Timeout bounds each HTTP attempt.
	Timeout time.Duration
	// ReconnectDelay is the fixed wait before a WebSocket reconnection.
	ReconnectDelay time.Duration
	// BackoffBase is multiplied by 2^attempt between retries.
	BackoffBase time.Duration
	// DownloadDir is where Download writes files when no path is given.
	DownloadDir string
	// PingInterval enables WebSocket keepalive pings. Zero disables them.
	PingInterval time.Duration
	Logger       Logger
}

func (c Config) withDefaults() Config {
	if c.Domain == "" {
		c.Domain = DefaultDomain
	}
	c.Domain = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(c.Domain, "https://"), "http://"), "/")
	if c.BaseURL == "" {
		c.BaseURL = "https://" + c.Domain
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.WebsocketURL == "" {
		c.WebsocketURL = "wss://" + c.Domain + "/v1/ws"
	}
	c.WebsocketURL = strings.TrimRight(c.WebsocketURL, "/")
	if c.MaxRetries == nil {
		c.MaxRetries = Int(DefaultMaxRetries)
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.DownloadDir == "" {
		c.DownloadDir = DefaultDownloadDir
	}
	if c.Logger == nil {
		c.Logger = DefaultLogger()
	}
	return c
}

// Int returns a pointer to n, for Config.MaxRetries.
func Int(n int) *int {
	return &n
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. Its Timeout is left untouched.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger overrides Config.Logger.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSessionLogger sets the logger for WebSocket sessions created by the
// client. Without it sessions log to the client logger.
func WithSessionLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.sessionLogger = l
		}
	}
}

// WithRateLimit throttles outgoing attempts to rps requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithDialer sets the WebSocket dialer used by sessions created from this client.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}
