// Package identity wraps the hosted identity provider: bearer token
// verification for callers and the admin user API used by operators.
package identity

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrInvalidToken = errors.New("invalid_token")
	ErrUserNotFound = errors.New("user_not_found")
	ErrInvalidUser  = errors.New("invalid_user")
)

// Principal is the verified caller behind a bearer token.
type Principal struct {
	UserID string
	Email  string
}

// User is the identity provider's view of an account. Raw is the provider
// object as returned, so admin screens see every field.
type User struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	BannedUntil *string         `json:"banned_until,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

func (u *User) MarshalJSON() ([]byte, error) {
	if len(u.Raw) > 0 {
		return u.Raw, nil
	}
	type plain User
	return json.Marshal((*plain)(u))
}

type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

type Admin interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	// SetBanDuration applies a provider ban duration ("none" lifts it).
	SetBanDuration(ctx context.Context, userID string, duration string) (*User, error)
}
