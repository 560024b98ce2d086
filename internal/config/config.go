package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level client configuration.
type Config struct {
	Endpoint  EndpointConfig  `yaml:"endpoint"`
	Polling   PollingConfig   `yaml:"polling"`
	Upload    UploadConfig    `yaml:"upload"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// EndpointConfig locates the remote protection service.
type EndpointConfig struct {
	// BaseURL is the root of the protection service API.
	BaseURL string `yaml:"base_url"`

	// Token is an optional bearer token sent with every request.
	Token string `yaml:"token,omitempty"`

	// RequestTimeout bounds individual HTTP requests. The upload request is
	// exempt; large files legitimately take longer.
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
}

// PollingConfig bounds the status poll loop.
type PollingConfig struct {
	// InitialDelay is the wait before the first status fetch.
	InitialDelay time.Duration `yaml:"initial_delay,omitempty"`

	// Interval is the steady-state base delay between fetches.
	Interval time.Duration `yaml:"interval,omitempty"`

	// MaxAttempts is how many non-terminal fetches before giving up.
	MaxAttempts int `yaml:"max_attempts,omitempty"`

	// Multiplier grows the delay between attempts.
	Multiplier float64 `yaml:"multiplier,omitempty"`

	// MaxDelay is the upper bound for the backoff.
	MaxDelay time.Duration `yaml:"max_delay,omitempty"`
}

// UploadConfig constrains artwork submissions before any network call.
type UploadConfig struct {
	// MaxFileSizeBytes rejects files larger than this.
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes,omitempty"`

	// AcceptedMIMETypes is the allow-list for sniffed content types.
	AcceptedMIMETypes []string `yaml:"accepted_mime_types,omitempty"`
}

// RateLimitConfig caps the request rate against the protection service.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps,omitempty"`
	Burst int     `yaml:"burst,omitempty"`
}

// UnmarshalYAML parses duration fields from strings like "500ms" or "2s";
// plain YAML decoding would reject them.
func (e *EndpointConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		BaseURL        string `yaml:"base_url"`
		Token          string `yaml:"token"`
		RequestTimeout string `yaml:"request_timeout"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	e.BaseURL = raw.BaseURL
	e.Token = raw.Token
	return setDuration(&e.RequestTimeout, "endpoint.request_timeout", raw.RequestTimeout)
}

// UnmarshalYAML parses duration fields from strings like "500ms" or "2s".
func (p *PollingConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		InitialDelay string  `yaml:"initial_delay"`
		Interval     string  `yaml:"interval"`
		MaxAttempts  int     `yaml:"max_attempts"`
		Multiplier   float64 `yaml:"multiplier"`
		MaxDelay     string  `yaml:"max_delay"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	p.MaxAttempts = raw.MaxAttempts
	p.Multiplier = raw.Multiplier
	if err := setDuration(&p.InitialDelay, "polling.initial_delay", raw.InitialDelay); err != nil {
		return err
	}
	if err := setDuration(&p.Interval, "polling.interval", raw.Interval); err != nil {
		return err
	}
	return setDuration(&p.MaxDelay, "polling.max_delay", raw.MaxDelay)
}

func setDuration(dst *time.Duration, field, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}
	*dst = d
	return nil
}

// Default returns a Config with production defaults. BaseURL has no default;
// it must come from a file or the environment.
func Default() Config {
	return Config{
		Endpoint: EndpointConfig{
			RequestTimeout: 30 * time.Second,
		},
		Polling: PollingConfig{
			InitialDelay: 2 * time.Second,
			Interval:     2 * time.Second,
			MaxAttempts:  150,
			Multiplier:   1.2,
			MaxDelay:     10 * time.Second,
		},
		Upload: UploadConfig{
			MaxFileSizeBytes:  50 << 20,
			AcceptedMIMETypes: []string{"image/jpeg", "image/png", "image/webp", "image/tiff"},
		},
		RateLimit: RateLimitConfig{
			RPS:   5,
			Burst: 10,
		},
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.Endpoint.BaseURL == "" {
		return fmt.Errorf("endpoint.base_url is required")
	}
	if c.Polling.MaxAttempts <= 0 {
		return fmt.Errorf("polling.max_attempts must be positive")
	}
	if c.Polling.InitialDelay <= 0 && c.Polling.Interval <= 0 {
		return fmt.Errorf("polling needs an initial_delay or interval")
	}
	if c.Upload.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("upload.max_file_size_bytes must be positive")
	}
	if len(c.Upload.AcceptedMIMETypes) == 0 {
		return fmt.Errorf("upload.accepted_mime_types must not be empty")
	}
	return nil
}

// Merge overlays non-zero fields of other onto c and returns the result.
// Used to apply a config file on top of defaults.
func (c Config) Merge(other Config) Config {
	if other.Endpoint.BaseURL != "" {
		c.Endpoint.BaseURL = other.Endpoint.BaseURL
	}
	if other.Endpoint.Token != "" {
		c.Endpoint.Token = other.Endpoint.Token
	}
	if other.Endpoint.RequestTimeout > 0 {
		c.Endpoint.RequestTimeout = other.Endpoint.RequestTimeout
	}
	if other.Polling.InitialDelay > 0 {
		c.Polling.InitialDelay = other.Polling.InitialDelay
	}
	if other.Polling.Interval > 0 {
		c.Polling.Interval = other.Polling.Interval
	}
	if other.Polling.MaxAttempts > 0 {
		c.Polling.MaxAttempts = other.Polling.MaxAttempts
	}
	if other.Polling.Multiplier > 0 {
		c.Polling.Multiplier = other.Polling.Multiplier
	}
	if other.Polling.MaxDelay > 0 {
		c.Polling.MaxDelay = other.Polling.MaxDelay
	}
	if other.Upload.MaxFileSizeBytes > 0 {
		c.Upload.MaxFileSizeBytes = other.Upload.MaxFileSizeBytes
	}
	if len(other.Upload.AcceptedMIMETypes) > 0 {
		c.Upload.AcceptedMIMETypes = other.Upload.AcceptedMIMETypes
	}
	if other.RateLimit.RPS > 0 {
		c.RateLimit.RPS = other.RateLimit.RPS
	}
	if other.RateLimit.Burst > 0 {
		c.RateLimit.Burst = other.RateLimit.Burst
	}
	return c
}
