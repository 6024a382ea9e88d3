// Package config defines the platform configuration file format and its
// loading, defaulting and validation.
package config

import (
	"time"

	"github.com/venuelink/venuelink/internal/connection"
	"github.com/venuelink/venuelink/internal/post"
)

// PlatformConfig is the root of the YAML configuration.
type PlatformConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Venue     VenueConfig     `yaml:"venue"`
	Socket    SocketConfig    `yaml:"socket"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Post      PostConfig      `yaml:"post"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstanceConfig identifies this deployment.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// VenueConfig configures the venue adapter's HTTP and WebSocket surfaces.
type VenueConfig struct {
	Name    string `yaml:"name"`
	RestURL string `yaml:"rest_url"`
	WSURL   string `yaml:"ws_url"`

	// Credentials; the secret accepts "@path" to read from a file.
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`

	// Testnet selects the venue's test environment for defaulted URLs.
	Testnet bool `yaml:"testnet"`

	ActiveOnly                    bool `yaml:"active_only"`
	UpdateInstrumentsIntervalMins int  `yaml:"update_instruments_interval_mins"`

	// Heartbeat keeps the market data WebSocket alive; an empty payload
	// means protocol-level pings.
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	TimeoutSecs    int `yaml:"timeout_secs"`
	MaxRetries     int `yaml:"max_retries"`
	RetryBackoffMs int `yaml:"retry_backoff_ms"`
}

// SocketConfig configures the raw line-framed TCP client.
type SocketConfig struct {
	URL         string          `yaml:"url"`
	Suffix      string          `yaml:"suffix"`
	TLSCertsDir string          `yaml:"tls_certs_dir"`
	Heartbeat   HeartbeatConfig `yaml:"heartbeat"`
}

// HeartbeatConfig configures periodic keepalives; a zero interval
// disables them.
type HeartbeatConfig struct {
	IntervalSecs int    `yaml:"interval_secs"`
	Payload      string `yaml:"payload"`
}

// ToConnection converts to the connection package's form; nil when
// disabled.
func (h HeartbeatConfig) ToConnection() *connection.HeartbeatConfig {
	if h.IntervalSecs <= 0 {
		return nil
	}
	return &connection.HeartbeatConfig{
		Interval: time.Duration(h.IntervalSecs) * time.Second,
		Payload:  []byte(h.Payload),
	}
}

// ReconnectConfig holds the reconnection parameters.
type ReconnectConfig struct {
	TimeoutMs      int     `yaml:"timeout_ms"`
	DelayInitialMs int     `yaml:"delay_initial_ms"`
	DelayMaxMs     int     `yaml:"delay_max_ms"`
	BackoffFactor  float64 `yaml:"backoff_factor"`
	JitterMs       int     `yaml:"jitter_ms"`
	MaxTries       int     `yaml:"max_tries"`
}

// ToConnection converts to the connection package's form.
func (r ReconnectConfig) ToConnection() connection.ReconnectConfig {
	return connection.ReconnectConfig{
		Timeout:       time.Duration(r.TimeoutMs) * time.Millisecond,
		DelayInitial:  time.Duration(r.DelayInitialMs) * time.Millisecond,
		DelayMax:      time.Duration(r.DelayMaxMs) * time.Millisecond,
		BackoffFactor: r.BackoffFactor,
		Jitter:        time.Duration(r.JitterMs) * time.Millisecond,
		MaxTries:      r.MaxTries,
	}
}

// RateLimitConfig holds the default send quota and keyed quotas.
type RateLimitConfig struct {
	Default *connection.Quota           `yaml:"default"`
	Keyed   map[string]connection.Quota `yaml:"keyed"`
}

// PostConfig configures the post router and batcher.
type PostConfig struct {
	InflightMax  int64 `yaml:"inflight_max"`
	AloTickMs    int   `yaml:"alo_tick_ms"`
	NormalTickMs int   `yaml:"normal_tick_ms"`
	AloBuffer    int   `yaml:"alo_buffer"`
	NormalBuffer int   `yaml:"normal_buffer"`
}

// ToBatcher converts to the post package's form.
func (p PostConfig) ToBatcher() post.BatcherConfig {
	return post.BatcherConfig{
		AloTick:      time.Duration(p.AloTickMs) * time.Millisecond,
		NormalTick:   time.Duration(p.NormalTickMs) * time.Millisecond,
		AloBuffer:    p.AloBuffer,
		NormalBuffer: p.NormalBuffer,
	}
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
