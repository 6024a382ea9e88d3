package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/venuelink/venuelink/internal/auth"
	"github.com/venuelink/venuelink/internal/model"
)

// Client provides access to the venue REST API.
type Client struct {
	baseURL    string
	venue      model.Venue
	creds      *auth.Credentials
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration

	mu          sync.RWMutex
	instruments map[string]model.Instrument
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client for one venue.
func NewClient(baseURL string, venue model.Venue, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		venue:   venue,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
		instruments:  make(map[string]model.Instrument),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithCredentials enables request signing.
func WithCredentials(creds *auth.Credentials) ClientOption {
	return func(c *Client) {
		c.creds = creds
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// SetInstruments replaces the instrument cache.
func (c *Client) SetInstruments(instruments []model.Instrument) {
	cache := make(map[string]model.Instrument, len(instruments))
	for _, inst := range instruments {
		cache[inst.RawSymbol] = inst
	}

	c.mu.Lock()
	c.instruments = cache
	c.mu.Unlock()
}

// Instrument returns the cached definition for a venue symbol.
func (c *Client) Instrument(symbol string) (model.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instruments[symbol]
	return inst, ok
}
