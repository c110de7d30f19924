package proxy

import (
	"fmt"

	"github.com/gorilla/securecookie"
)

// Codec encodes and decodes the per-sandbox auth cookie. Values are HMAC
// authenticated and bound to the cookie name, so a cookie minted for one
// sandbox never decodes under another sandbox's name. With a block key set,
// values are additionally encrypted.
type Codec struct {
	sc *securecookie.SecureCookie
}

// NewCodec creates a cookie codec from the configured key material.
func NewCodec(hashKey, blockKey []byte) (*Codec, error) {
	if len(hashKey) < minHashKeyLength {
		return nil, fmt.Errorf("cookie hash key must be at least %d bytes, got %d", minHashKeyLength, len(hashKey))
	}
	switch len(blockKey) {
	case 0:
		blockKey = nil
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("cookie block key must be 16, 24 or 32 bytes, got %d", len(blockKey))
	}

	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(AuthCookieMaxAge)

	return &Codec{sc: sc}, nil
}

// Encode seals a value under the given cookie name.
func (c *Codec) Encode(name, value string) (string, error) {
	encoded, err := c.sc.Encode(name, value)
	if err != nil {
		return "", fmt.Errorf("failed to encode cookie %s: %w", name, err)
	}
	return encoded, nil
}

// Decode opens a sealed value. Fails on tampering, expiry, or a name
// mismatch.
func (c *Codec) Decode(name, encoded string) (string, error) {
	var value string
	if err := c.sc.Decode(name, encoded, &value); err != nil {
		return "", fmt.Errorf("failed to decode cookie %s: %w", name, err)
	}
	return value, nil
}
