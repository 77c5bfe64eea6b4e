package firebase

import (
	"context"
	"fmt"
	"time"

	"firebase.google.com/go/v4/auth"

	"github.com/oggyb/amora/internal/platform/identity"
)

const providerTimeout = 10 * time.Second

// IdentityProvider implements identity.Provider on Firebase Auth.
type IdentityProvider struct {
	client *auth.Client
}

func NewIdentityProvider(client *auth.Client) *IdentityProvider {
	return &IdentityProvider{client: client}
}

func (p *IdentityProvider) VerifyIDToken(ctx context.Context, token string) (*identity.Claims, error) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	tok, err := p.client.VerifyIDToken(ctx, token)
	if err != nil {
		if auth.IsIDTokenInvalid(err) || auth.IsIDTokenExpired(err) || auth.IsIDTokenRevoked(err) {
			return nil, fmt.Errorf("%w: %v", identity.ErrInvalidToken, err)
		}
		return nil, fmt.Errorf("verify id token: %w", err)
	}

	claims := &identity.Claims{UID: tok.UID}
	if v, ok := tok.Claims["email"].(string); ok {
		claims.Email = v
	}
	if v, ok := tok.Claims["email_verified"].(bool); ok {
		claims.EmailVerified = v
	}
	if v, ok := tok.Claims["name"].(string); ok {
		claims.Name = v
	}
	if v, ok := tok.Claims["picture"].(string); ok {
		claims.Picture = v
	}
	return claims, nil
}

func (p *IdentityProvider) GetUser(ctx context.Context, uid string) (*identity.UserRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	u, err := p.client.GetUser(ctx, uid)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("get firebase user: %w", err)
	}
	return toRecord(u), nil
}

func (p *IdentityProvider) CreateUser(ctx context.Context, params identity.UserParams) (*identity.UserRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	in := (&auth.UserToCreate{}).Email(params.Email)
	if params.Password != "" {
		in = in.Password(params.Password)
	}
	if params.DisplayName != "" {
		in = in.DisplayName(params.DisplayName)
	}
	if params.EmailVerified != nil {
		in = in.EmailVerified(*params.EmailVerified)
	}
	if params.Disabled != nil {
		in = in.Disabled(*params.Disabled)
	}

	u, err := p.client.CreateUser(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create firebase user: %w", err)
	}
	return toRecord(u), nil
}

func (p *IdentityProvider) UpdateUser(ctx context.Context, uid string, params identity.UserParams) (*identity.UserRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	in := &auth.UserToUpdate{}
	if params.Email != "" {
		in = in.Email(params.Email)
	}
	if params.Password != "" {
		in = in.Password(params.Password)
	}
	if params.DisplayName != "" {
		in = in.DisplayName(params.DisplayName)
	}
	if params.EmailVerified != nil {
		in = in.EmailVerified(*params.EmailVerified)
	}
	if params.Disabled != nil {
		in = in.Disabled(*params.Disabled)
	}

	u, err := p.client.UpdateUser(ctx, uid, in)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("update firebase user: %w", err)
	}
	return toRecord(u), nil
}

func toRecord(u *auth.UserRecord) *identity.UserRecord {
	rec := &identity.UserRecord{EmailVerified: u.EmailVerified, Disabled: u.Disabled}
	if u.UserInfo != nil {
		rec.UID = u.UID
		rec.Email = u.Email
		rec.DisplayName = u.DisplayName
	}
	return rec
}
