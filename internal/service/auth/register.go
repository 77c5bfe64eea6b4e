package auth

import (
	"github.com/go-chi/chi/v5"

	"github.com/oggyb/amora/internal/app"
)

// Registrar ties the auth routes into the HTTP router.
type Registrar struct {
	svc *Service
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{svc: NewService(appCtx)}
}

// Service exposes the shared instance so the router can build the bearer middleware.
func (r *Registrar) Service() *Service { return r.svc }

func (r *Registrar) Register(public, _ chi.Router) {
	h := NewHandler(r.svc)
	public.Route("/auth", func(ar chi.Router) {
		ar.Post("/register", h.Register)
		ar.Post("/login", h.Login)
		ar.Post("/firebase-login", h.FirebaseLogin)
		ar.Get("/verify-email", h.VerifyEmail)
	})
}
