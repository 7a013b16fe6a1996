package domain

import (
	"strings"
	"unicode"
)

// AdvertiserKind is the storage kind shared by every advertiser ownership key.
const AdvertiserKind = "Advertiser"

// Principal is the authenticated caller as reported by the auth provider.
type Principal struct {
	ID    string
	Email string
}

// Authenticated reports whether the principal carries a stable identifier.
// Identifiers with control characters are refused: their webhook tokens would
// not decode.
func (p Principal) Authenticated() bool {
	return strings.TrimSpace(p.ID) != "" && strings.IndexFunc(p.ID, unicode.IsControl) < 0
}

// AdvertiserKey is the ownership scope under which forms and leads are stored.
type AdvertiserKey struct {
	Kind string
	Name string
}

// String returns the canonical storage form, e.g. "Advertiser/1234".
func (k AdvertiserKey) String() string {
	return k.Kind + "/" + k.Name
}
