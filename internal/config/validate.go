package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *PlatformConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Reconnect.BackoffFactor < 1 {
		return fmt.Errorf("reconnect.backoff_factor must be >= 1, got %g", c.Reconnect.BackoffFactor)
	}
	if c.Reconnect.MaxTries < 0 {
		return errors.New("reconnect.max_tries must be >= 0")
	}

	if c.RateLimit.Default != nil && c.RateLimit.Default.Rate <= 0 {
		return errors.New("rate_limit.default.rate must be > 0")
	}
	for key, quota := range c.RateLimit.Keyed {
		if quota.Rate <= 0 {
			return fmt.Errorf("rate_limit.keyed.%s.rate must be > 0", key)
		}
	}

	if c.Post.InflightMax < 1 {
		return errors.New("post.inflight_max must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	if c.Socket.URL != "" && c.Socket.Suffix == "" {
		return errors.New("socket.suffix is required when socket.url is set")
	}

	return nil
}
