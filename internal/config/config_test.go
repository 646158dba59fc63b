package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-pulsegate
gateway:
  token: tok-123
  intents: 513
  strict: true
shards:
  count: 4
  identify_spacing: 6s
api:
  rest_url: https://api.example.test/v10
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-pulsegate" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-pulsegate")
	}
	if cfg.Gateway.Token != "tok-123" {
		t.Errorf("Gateway.Token = %q, want %q", cfg.Gateway.Token, "tok-123")
	}
	if cfg.Gateway.Intents != 513 {
		t.Errorf("Gateway.Intents = %d, want 513", cfg.Gateway.Intents)
	}
	if !cfg.Gateway.Strict {
		t.Error("Gateway.Strict = false, want true")
	}
	if cfg.Shards.Count != 4 {
		t.Errorf("Shards.Count = %d, want 4", cfg.Shards.Count)
	}
	if cfg.Shards.IdentifySpacing != 6*time.Second {
		t.Errorf("Shards.IdentifySpacing = %v, want 6s", cfg.Shards.IdentifySpacing)
	}
	if cfg.API.RestURL != "https://api.example.test/v10" {
		t.Errorf("API.RestURL = %q", cfg.API.RestURL)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_GATEWAY_TOKEN", "secret123")

	yaml := `
gateway:
  token: ${TEST_GATEWAY_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Gateway.Token != "secret123" {
		t.Errorf("Gateway.Token = %q, want %q", cfg.Gateway.Token, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-pulsegate
gateway:
  token: tok-123
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.API.RestURL != DefaultRestURL {
		t.Errorf("API.RestURL = %q, want default %q", cfg.API.RestURL, DefaultRestURL)
	}
	if cfg.API.Timeout != DefaultAPITimeout {
		t.Errorf("API.Timeout = %v, want default %v", cfg.API.Timeout, DefaultAPITimeout)
	}
	if cfg.Gateway.HelloTimeout != DefaultHelloTimeout {
		t.Errorf("Gateway.HelloTimeout = %v, want default %v", cfg.Gateway.HelloTimeout, DefaultHelloTimeout)
	}
	if cfg.Gateway.SendRatePerMinute != DefaultSendRatePerMinute {
		t.Errorf("Gateway.SendRatePerMinute = %d, want default %d", cfg.Gateway.SendRatePerMinute, DefaultSendRatePerMinute)
	}
	if cfg.Gateway.JitterMax != DefaultJitterMax {
		t.Errorf("Gateway.JitterMax = %v, want default %v", cfg.Gateway.JitterMax, DefaultJitterMax)
	}
	if cfg.Shards.IdentifySpacing != DefaultIdentifySpacing {
		t.Errorf("Shards.IdentifySpacing = %v, want default %v", cfg.Shards.IdentifySpacing, DefaultIdentifySpacing)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		var cfg Config
		cfg.Gateway.Token = "tok"
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing token",
			mutate:  func(c *Config) { c.Gateway.Token = "" },
			wantErr: "gateway.token is required",
		},
		{
			name:    "jitter min above max",
			mutate:  func(c *Config) { c.Gateway.JitterMin = 0.9; c.Gateway.JitterMax = 0.5 },
			wantErr: "gateway.jitter_min (0.9) cannot exceed jitter_max (0.5)",
		},
		{
			name:    "jitter max out of range",
			mutate:  func(c *Config) { c.Gateway.JitterMax = 1.5 },
			wantErr: "gateway.jitter_max must be in (0, 1], got 1.5",
		},
		{
			name:    "zero resume ceiling",
			mutate:  func(c *Config) { c.Gateway.ResumeRetryCeiling = -1 },
			wantErr: "gateway.resume_retry_ceiling must be >= 1",
		},
		{
			name:    "negative shard count",
			mutate:  func(c *Config) { c.Shards.Count = -1 },
			wantErr: "shards.count must be >= 0",
		},
		{
			name: "base delay above max",
			mutate: func(c *Config) {
				c.Gateway.ReconnectBaseDelay = 2 * time.Minute
			},
			wantErr: "gateway.reconnect_base_delay (2m0s) cannot exceed reconnect_max_delay (1m0s)",
		},
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
