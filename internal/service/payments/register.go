package payments

import (
	"github.com/go-chi/chi/v5"

	"github.com/oggyb/amora/internal/app"
)

// Registrar exposes the provider webhook on the public router; the request
// authenticates itself through its signature.
type Registrar struct {
	svc *Service
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{svc: NewService(appCtx)}
}

func (r *Registrar) Register(public, _ chi.Router) {
	h := NewHandler(r.svc)
	public.Post("/payments/webhook", h.Webhook)
}
