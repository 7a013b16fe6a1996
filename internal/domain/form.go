package domain

import (
	"time"

	"github.com/google/uuid"
)

// Form is one ad-platform lead form claimed by an advertiser.
// Credential is only ever returned by the claim that generated it.
type Form struct {
	ID         uuid.UUID `json:"-"`
	FormID     int64     `json:"form_id"`
	FormName   string    `json:"form_name"`
	OwnerKey   string    `json:"-"`
	Credential string    `json:"-"`
	Verified   bool      `json:"verified"`
	ClaimedAt  time.Time `json:"claimed_at"`
}
