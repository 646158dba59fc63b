package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Gateway.Token == "" {
		return errors.New("gateway.token is required")
	}

	if c.Gateway.JitterMin < 0 || c.Gateway.JitterMin > 1 {
		return fmt.Errorf("gateway.jitter_min must be in [0, 1], got %v", c.Gateway.JitterMin)
	}
	if c.Gateway.JitterMax <= 0 || c.Gateway.JitterMax > 1 {
		return fmt.Errorf("gateway.jitter_max must be in (0, 1], got %v", c.Gateway.JitterMax)
	}
	if c.Gateway.JitterMin > c.Gateway.JitterMax {
		return fmt.Errorf("gateway.jitter_min (%v) cannot exceed jitter_max (%v)",
			c.Gateway.JitterMin, c.Gateway.JitterMax)
	}

	if c.Gateway.ResumeRetryCeiling < 1 {
		return errors.New("gateway.resume_retry_ceiling must be >= 1")
	}
	if c.Gateway.MaxReconnectAttempts < 1 {
		return errors.New("gateway.max_reconnect_attempts must be >= 1")
	}
	if c.Gateway.SendRatePerMinute < 1 {
		return errors.New("gateway.send_rate_per_minute must be >= 1")
	}
	if c.Gateway.ReconnectBaseDelay > c.Gateway.ReconnectMaxDelay {
		return fmt.Errorf("gateway.reconnect_base_delay (%v) cannot exceed reconnect_max_delay (%v)",
			c.Gateway.ReconnectBaseDelay, c.Gateway.ReconnectMaxDelay)
	}

	if c.Shards.Count < 0 {
		return errors.New("shards.count must be >= 0")
	}
	if c.Shards.IdentifySpacing <= 0 {
		return errors.New("shards.identify_spacing must be positive")
	}
	if c.Shards.MaxConcurrentIdentifies < 0 {
		return errors.New("shards.max_concurrent_identifies must be >= 0")
	}

	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	return nil
}
