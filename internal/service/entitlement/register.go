package entitlement

import (
	"github.com/go-chi/chi/v5"

	"github.com/oggyb/amora/internal/app"
)

// Registrar ties the subscription routes into the HTTP router.
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

func (r *Registrar) Register(_, private chi.Router) {
	h := NewHandler(NewGate(r.appCtx))
	private.Get("/subscription", h.Subscription)
}
