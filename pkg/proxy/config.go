package proxy

import (
	"fmt"

	"github.com/spf13/viper"
)

const (
	// AuthKeyHeader carries a per-sandbox auth key. Always stripped
	// before forwarding upstream.
	AuthKeyHeader = "X-Daytona-Preview-Key"

	// AuthKeyQueryParam carries a per-sandbox auth key in the query
	// string. Removed from the forwarded URL once validated.
	AuthKeyQueryParam = "DAYTONA_SANDBOX_AUTH_KEY"

	// AuthCookiePrefix prefixes the per-sandbox auth cookie name
	AuthCookiePrefix = "daytona-sandbox-auth-"

	// AuthCookieMaxAge is the auth cookie lifetime in seconds
	AuthCookieMaxAge = 3600

	// minHashKeyLength is the minimum accepted HMAC key length in bytes
	minHashKeyLength = 32
)

// Config holds the preview proxy configuration, populated from environment
// variables.
type Config struct {
	ProxyPort     string
	DaytonaAPIURL string
	DaytonaAPIKey string

	// CookieHashKey authenticates cookie values (HMAC), 32 bytes or more
	CookieHashKey []byte

	// CookieBlockKey optionally encrypts cookie values (AES-128/192/256)
	CookieBlockKey []byte

	// EnableTLS marks the listener as TLS-terminated; issued cookies are
	// Secure when set
	EnableTLS bool

	TLSCertFile string
	TLSKeyFile  string
}

// LoadConfig reads the proxy configuration from the environment.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for _, key := range []string{
		"PROXY_PORT",
		"DAYTONA_API_URL",
		"DAYTONA_API_KEY",
		"PROXY_COOKIE_HASH_KEY",
		"PROXY_COOKIE_BLOCK_KEY",
		"PROXY_ENABLE_TLS",
		"PROXY_TLS_CERT_FILE",
		"PROXY_TLS_KEY_FILE",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable %s: %w", key, err)
		}
	}

	cfg := &Config{
		ProxyPort:     v.GetString("PROXY_PORT"),
		DaytonaAPIURL: v.GetString("DAYTONA_API_URL"),
		DaytonaAPIKey: v.GetString("DAYTONA_API_KEY"),
		EnableTLS:     v.GetBool("PROXY_ENABLE_TLS"),
		TLSCertFile:   v.GetString("PROXY_TLS_CERT_FILE"),
		TLSKeyFile:    v.GetString("PROXY_TLS_KEY_FILE"),
	}

	if cfg.ProxyPort == "" {
		return nil, fmt.Errorf("environment variable PROXY_PORT not set")
	}
	if cfg.DaytonaAPIURL == "" {
		return nil, fmt.Errorf("environment variable DAYTONA_API_URL not set")
	}
	if cfg.DaytonaAPIKey == "" {
		return nil, fmt.Errorf("environment variable DAYTONA_API_KEY not set")
	}

	hashKey := v.GetString("PROXY_COOKIE_HASH_KEY")
	if hashKey == "" {
		return nil, fmt.Errorf("environment variable PROXY_COOKIE_HASH_KEY not set")
	}
	cfg.CookieHashKey = []byte(hashKey)

	if blockKey := v.GetString("PROXY_COOKIE_BLOCK_KEY"); blockKey != "" {
		cfg.CookieBlockKey = []byte(blockKey)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cookie key lengths and TLS file settings.
func (c *Config) Validate() error {
	if len(c.CookieHashKey) < minHashKeyLength {
		return fmt.Errorf("PROXY_COOKIE_HASH_KEY must be at least %d bytes, got %d", minHashKeyLength, len(c.CookieHashKey))
	}
	switch len(c.CookieBlockKey) {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("PROXY_COOKIE_BLOCK_KEY must be 16, 24 or 32 bytes, got %d", len(c.CookieBlockKey))
	}
	if c.EnableTLS && (c.TLSCertFile == "" || c.TLSKeyFile == "") {
		return fmt.Errorf("PROXY_TLS_CERT_FILE and PROXY_TLS_KEY_FILE are required when PROXY_ENABLE_TLS is set")
	}
	return nil
}
