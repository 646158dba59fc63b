package config

import "time"

// Config is the root configuration for a pulsegate instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Shards   ShardsConfig   `yaml:"shards"`
	API      APIConfig      `yaml:"api"`
}

// InstanceConfig identifies this process in logs.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// GatewayConfig holds per-connection gateway settings.
type GatewayConfig struct {
	URL     string `yaml:"url"` // discovered via the API when empty
	Token   string `yaml:"token"`
	Intents int    `yaml:"intents"`

	// Strict turns unknown dispatch event names into reported decode
	// errors instead of wildcard-only deliveries.
	Strict bool `yaml:"strict"`

	HelloTimeout         time.Duration `yaml:"hello_timeout"`
	ResumeRetryCeiling   int           `yaml:"resume_retry_ceiling"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`

	SendRatePerMinute int           `yaml:"send_rate_per_minute"`
	BufferSize        int           `yaml:"buffer_size"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`

	// First-heartbeat jitter bounds, fractions of the advertised
	// interval.
	JitterMin float64 `yaml:"jitter_min"`
	JitterMax float64 `yaml:"jitter_max"`
}

// ShardsConfig holds fleet settings.
type ShardsConfig struct {
	Count                   int           `yaml:"count"` // 0 uses the recommended count
	IdentifySpacing         time.Duration `yaml:"identify_spacing"`
	MaxConcurrentIdentifies int           `yaml:"max_concurrent_identifies"`
	RestartWait             time.Duration `yaml:"restart_wait"`
}

// APIConfig holds REST API settings.
type APIConfig struct {
	RestURL    string        `yaml:"rest_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}
