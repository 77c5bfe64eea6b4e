package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/oggyb/amora/internal/platform/identity"
	"github.com/oggyb/amora/internal/platform/push"
)

// PushCall is one recorded SendMulticast.
type PushCall struct {
	Tokens  []string
	Message push.Message
}

// FakePusher records calls. Tokens listed in Dead come back unregistered,
// tokens listed in Flaky fail transiently, and Err fails the whole call.
type FakePusher struct {
	mu    sync.Mutex
	calls []PushCall
	Dead  map[string]bool
	Flaky map[string]bool
	Err   error
}

func (f *FakePusher) SendMulticast(_ context.Context, tokens []string, msg push.Message) ([]push.TokenResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, PushCall{Tokens: append([]string(nil), tokens...), Message: msg})
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]push.TokenResult, len(tokens))
	for i, tok := range tokens {
		if f.Dead[tok] {
			out[i] = push.TokenResult{Token: tok, Unregistered: true, Err: fmt.Errorf("unregistered")}
			continue
		}
		if f.Flaky[tok] {
			out[i] = push.TokenResult{Token: tok, Retryable: true, Err: fmt.Errorf("unavailable")}
			continue
		}
		out[i] = push.TokenResult{Token: tok, OK: true}
	}
	return out, nil
}

func (f *FakePusher) Calls() []PushCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PushCall(nil), f.calls...)
}

// FakeIdentity maps ID tokens to claims and keeps an in-memory user table.
type FakeIdentity struct {
	mu     sync.Mutex
	tokens map[string]identity.Claims
	users  map[string]*identity.UserRecord
	seq    int
}

func NewFakeIdentity() *FakeIdentity {
	return &FakeIdentity{
		tokens: map[string]identity.Claims{},
		users:  map[string]*identity.UserRecord{},
	}
}

// AddToken makes token verify to claims.
func (f *FakeIdentity) AddToken(token string, c identity.Claims) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token] = c
}

func (f *FakeIdentity) VerifyIDToken(_ context.Context, token string) (*identity.Claims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.tokens[token]
	if !ok {
		return nil, identity.ErrInvalidToken
	}
	return &c, nil
}

func (f *FakeIdentity) GetUser(_ context.Context, uid string) (*identity.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[uid]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *FakeIdentity) CreateUser(_ context.Context, p identity.UserParams) (*identity.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	u := &identity.UserRecord{
		UID:         fmt.Sprintf("fb-%d", f.seq),
		Email:       p.Email,
		DisplayName: p.DisplayName,
	}
	if p.EmailVerified != nil {
		u.EmailVerified = *p.EmailVerified
	}
	f.users[u.UID] = u
	cp := *u
	return &cp, nil
}

func (f *FakeIdentity) UpdateUser(_ context.Context, uid string, p identity.UserParams) (*identity.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[uid]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	if p.Email != "" {
		u.Email = p.Email
	}
	if p.DisplayName != "" {
		u.DisplayName = p.DisplayName
	}
	if p.EmailVerified != nil {
		u.EmailVerified = *p.EmailVerified
	}
	if p.Disabled != nil {
		u.Disabled = *p.Disabled
	}
	cp := *u
	return &cp, nil
}

// Users returns a snapshot of created provider users.
func (f *FakeIdentity) Users() []identity.UserRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]identity.UserRecord, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out
}
