package httpx

import (
	"context"
	"net/http"

	svcErr "github.com/oggyb/amora/internal/errors"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID  uint64
	IsStaff bool
	// Via is "jwt" or "firebase".
	Via string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID != 0
}

// UserID returns the caller id or writes 401 and returns false.
func UserID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		Error(w, r, svcErr.ErrUnauthenticated)
		return 0, false
	}
	return p.UserID, true
}

// RequireStaff rejects non-staff callers with 403.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			Error(w, r, svcErr.ErrUnauthenticated)
			return
		}
		if !p.IsStaff {
			Error(w, r, svcErr.Forbidden("staff only"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
