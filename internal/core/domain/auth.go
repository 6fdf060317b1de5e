package domain

import (
	"errors"
	"time"
)

var ErrUnauthorized = errors.New("unauthorized")

// APIKey maps a hashed bearer token to the tenant it acts for. Only the
// SHA-256 hash of the token is stored.
type APIKey struct {
	TokenHash string
	TenantID  string
	Name      string
	Active    bool
	CreatedAt time.Time
}
