package identity

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/V4T54L/leadhook/internal/domain"
)

// Codec derives advertiser ownership keys and converts them to and from the
// URL-safe token embedded in webhook URLs. Encoding is deterministic so that a
// webhook URL handed to the ad platform stays valid across calls.
type Codec struct{}

// NewCodec creates a new Codec.
func NewCodec() *Codec {
	return &Codec{}
}

// DeriveKey builds the ownership key for a principal identifier.
func (c *Codec) DeriveKey(principalID string) domain.AdvertiserKey {
	return domain.AdvertiserKey{Kind: domain.AdvertiserKind, Name: principalID}
}

// Encode returns the webhook token for a principal identifier.
func (c *Codec) Encode(principalID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(c.DeriveKey(principalID).String()))
}

// Decode is the inverse of Encode. Any malformed token yields an error
// wrapping domain.ErrInvalidToken.
func (c *Codec) Decode(token string) (domain.AdvertiserKey, error) {
	token = strings.TrimRight(strings.TrimSpace(token), "=")
	if token == "" {
		return domain.AdvertiserKey{}, fmt.Errorf("%w: empty token", domain.ErrInvalidToken)
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return domain.AdvertiserKey{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if !utf8.Valid(raw) {
		return domain.AdvertiserKey{}, fmt.Errorf("%w: not utf-8", domain.ErrInvalidToken)
	}

	kind, name, ok := strings.Cut(string(raw), "/")
	if !ok || kind != domain.AdvertiserKind {
		return domain.AdvertiserKey{}, fmt.Errorf("%w: unexpected key kind", domain.ErrInvalidToken)
	}
	if strings.TrimSpace(name) == "" {
		return domain.AdvertiserKey{}, fmt.Errorf("%w: empty key name", domain.ErrInvalidToken)
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return domain.AdvertiserKey{}, fmt.Errorf("%w: control characters in key name", domain.ErrInvalidToken)
	}

	return domain.AdvertiserKey{Kind: kind, Name: name}, nil
}
