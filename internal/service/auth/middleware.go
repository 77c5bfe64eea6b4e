package auth

import (
	"net/http"
	"strings"

	svcErr "github.com/oggyb/amora/internal/errors"
	"github.com/oggyb/amora/internal/logger"
	"github.com/oggyb/amora/internal/server/httpx"
)

// Middleware rejects requests without a valid bearer token and stores the
// principal plus a user-scoped logger on the request context.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.Error(w, r, svcErr.Unauthenticated("missing bearer token"))
				return
			}

			p, err := svc.Authenticate(r.Context(), token)
			if err != nil {
				httpx.Error(w, r, err)
				return
			}

			ctx := httpx.WithPrincipal(r.Context(), p)
			ctx = logger.WithContext(ctx, logger.FromContext(ctx, svc.appCtx.Logger).With("user_id", p.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(value string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
