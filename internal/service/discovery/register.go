package discovery

import (
	"github.com/go-chi/chi/v5"

	"github.com/oggyb/amora/internal/app"
	"github.com/oggyb/amora/internal/service/entitlement"
)

// Registrar ties the discovery routes into the HTTP router.
type Registrar struct {
	svc *Service
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{svc: NewService(appCtx, entitlement.NewGate(appCtx))}
}

func (r *Registrar) Register(_, private chi.Router) {
	h := NewHandler(r.svc)
	private.Route("/discovery", func(dr chi.Router) {
		dr.Get("/profiles", h.Profiles)
		dr.Post("/interactions/{action}", h.Interact)
		dr.Get("/likes", h.Likes)
		dr.Get("/likes/new", h.NewLikes)
		dr.Get("/likes/count", h.LikeCount)
	})
}
