package client

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// Client talks to the ComfyOne REST API and owns at most one WebSocket session.
// It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	headers    http.Header
	limiter    *rate.Limiter
	logger     Logger
	dialer     Dialer

	// sessionLogger is used by sessions; nil means logger.
	sessionLogger Logger

	mu      sync.Mutex
	session *Session
}

// ErrMissingAPIKey is returned by New when Config.APIKey is empty.
var ErrMissingAPIKey = errors.New("API key is required")

// New creates a client from cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	cfg = cfg.withDefaults()

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: cfg.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Built once; every attempt gets a clone.
	c.headers = http.Header{}
	c.headers.Set("Authorization", "Bearer "+cfg.APIKey)
	c.headers.Set("Accept", "application/json")
	c.headers.Set("User-Agent", "comfyone-go/"+Version)
	return c, nil
}

// APIKey returns the credential the client was built with.
func (c *Client) APIKey() string {
	return c.cfg.APIKey
}

// BaseURL returns the REST base URL.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// WebsocketURL returns the event stream URL.
func (c *Client) WebsocketURL() string {
	return c.cfg.WebsocketURL
}

// ConnectWebsocket returns the client's session, creating and starting it on
// the first call. Later calls return the same session while it runs; once it
// has stopped (Close, or ctx cancelled) a new one is started.
func (c *Client) ConnectWebsocket(ctx context.Context) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || !c.session.Running() {
		c.session = c.NewSession()
		c.session.Start(ctx)
	}
	return c.session
}

// NewSession returns an idle session configured from the client. The caller
// owns it: register handlers, then Start, and Close when done. Client.Close
// does not stop it.
func (c *Client) NewSession() *Session {
	logger := c.sessionLogger
	if logger == nil {
		logger = c.logger
	}
	return NewSession(SessionConfig{
		URL:            c.cfg.WebsocketURL,
		Token:          c.cfg.APIKey,
		ReconnectDelay: c.cfg.ReconnectDelay,
		PingInterval:   c.cfg.PingInterval,
		Logger:         logger,
		Dialer:         c.dialer,
	})
}

// Close stops the WebSocket session, if any. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.Close()
}
