package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL              = "https://discord.com/api/v10"
	DefaultAPITimeout           = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultHelloTimeout         = 15 * time.Second
	DefaultResumeRetryCeiling   = 3
	DefaultMaxReconnectAttempts = 10
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 60 * time.Second
	DefaultSendRatePerMinute    = 120
	DefaultBufferSize           = 256
	DefaultWriteTimeout         = 10 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultJitterMax            = 1.0
	DefaultIdentifySpacing      = 5 * time.Second
	DefaultRestartWait          = 10 * time.Second
)

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Gateway defaults
	if c.Gateway.HelloTimeout == 0 {
		c.Gateway.HelloTimeout = DefaultHelloTimeout
	}
	if c.Gateway.ResumeRetryCeiling == 0 {
		c.Gateway.ResumeRetryCeiling = DefaultResumeRetryCeiling
	}
	if c.Gateway.MaxReconnectAttempts == 0 {
		c.Gateway.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Gateway.ReconnectBaseDelay == 0 {
		c.Gateway.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Gateway.ReconnectMaxDelay == 0 {
		c.Gateway.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Gateway.SendRatePerMinute == 0 {
		c.Gateway.SendRatePerMinute = DefaultSendRatePerMinute
	}
	if c.Gateway.BufferSize == 0 {
		c.Gateway.BufferSize = DefaultBufferSize
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = DefaultWriteTimeout
	}
	if c.Gateway.HandshakeTimeout == 0 {
		c.Gateway.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Gateway.JitterMax == 0 {
		c.Gateway.JitterMax = DefaultJitterMax
	}

	// Shards defaults
	if c.Shards.IdentifySpacing == 0 {
		c.Shards.IdentifySpacing = DefaultIdentifySpacing
	}
	if c.Shards.RestartWait == 0 {
		c.Shards.RestartWait = DefaultRestartWait
	}
}
