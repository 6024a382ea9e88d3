package config

// Default values for optional configuration fields.
const (
	DefaultRestURL        = "https://www.bitmex.com"
	DefaultWSURL          = "wss://ws.bitmex.com/realtime"
	DefaultTestnetRestURL = "https://testnet.bitmex.com"
	DefaultTestnetWSURL   = "wss://ws.testnet.bitmex.com/realtime"

	DefaultVenueName      = "BITMEX"
	DefaultTimeoutSecs    = 30
	DefaultMaxRetries     = 3
	DefaultRetryBackoffMs = 1000

	DefaultReconnectTimeoutMs = 10000
	DefaultDelayInitialMs     = 2000
	DefaultDelayMaxMs         = 30000
	DefaultBackoffFactor      = 1.5
	DefaultJitterMs           = 100

	DefaultInflightMax = 100

	DefaultMetricsPort = 9090
	DefaultMetricsPath = "/metrics"
)

func (c *PlatformConfig) applyDefaults() {
	// Venue defaults
	if c.Venue.Name == "" {
		c.Venue.Name = DefaultVenueName
	}
	if c.Venue.RestURL == "" {
		if c.Venue.Testnet {
			c.Venue.RestURL = DefaultTestnetRestURL
		} else {
			c.Venue.RestURL = DefaultRestURL
		}
	}
	if c.Venue.WSURL == "" {
		if c.Venue.Testnet {
			c.Venue.WSURL = DefaultTestnetWSURL
		} else {
			c.Venue.WSURL = DefaultWSURL
		}
	}
	if c.Venue.TimeoutSecs == 0 {
		c.Venue.TimeoutSecs = DefaultTimeoutSecs
	}
	if c.Venue.MaxRetries == 0 {
		c.Venue.MaxRetries = DefaultMaxRetries
	}
	if c.Venue.RetryBackoffMs == 0 {
		c.Venue.RetryBackoffMs = DefaultRetryBackoffMs
	}

	// Reconnect defaults
	if c.Reconnect.TimeoutMs == 0 {
		c.Reconnect.TimeoutMs = DefaultReconnectTimeoutMs
	}
	if c.Reconnect.DelayInitialMs == 0 {
		c.Reconnect.DelayInitialMs = DefaultDelayInitialMs
	}
	if c.Reconnect.DelayMaxMs == 0 {
		c.Reconnect.DelayMaxMs = DefaultDelayMaxMs
	}
	if c.Reconnect.BackoffFactor == 0 {
		c.Reconnect.BackoffFactor = DefaultBackoffFactor
	}
	if c.Reconnect.JitterMs == 0 {
		c.Reconnect.JitterMs = DefaultJitterMs
	}

	// Post defaults
	if c.Post.InflightMax == 0 {
		c.Post.InflightMax = DefaultInflightMax
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
