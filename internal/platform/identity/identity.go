// Package identity describes the external identity provider boundary.
package identity

import (
	"context"
	"errors"
)

// ErrInvalidToken covers malformed, expired and revoked ID tokens.
var ErrInvalidToken = errors.New("invalid identity token")

// ErrUserNotFound is returned by GetUser for unknown uids.
var ErrUserNotFound = errors.New("identity user not found")

// Claims are the verified facts of an ID token.
type Claims struct {
	UID           string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

type UserRecord struct {
	UID           string
	Email         string
	EmailVerified bool
	DisplayName   string
	Disabled      bool
}

type UserParams struct {
	Email         string
	Password      string
	DisplayName   string
	EmailVerified *bool
	Disabled      *bool
}

// Provider is injected once at process start.
type Provider interface {
	VerifyIDToken(ctx context.Context, token string) (*Claims, error)
	GetUser(ctx context.Context, uid string) (*UserRecord, error)
	CreateUser(ctx context.Context, p UserParams) (*UserRecord, error)
	UpdateUser(ctx context.Context, uid string, p UserParams) (*UserRecord, error)
}
