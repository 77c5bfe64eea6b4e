package matches

import (
	"github.com/go-chi/chi/v5"

	"github.com/oggyb/amora/internal/app"
)

// Registrar ties the match and block routes into the HTTP router.
type Registrar struct {
	svc *Service
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{svc: NewService(appCtx)}
}

func (r *Registrar) Register(_, private chi.Router) {
	h := NewHandler(r.svc)
	private.Route("/matches", func(mr chi.Router) {
		mr.Get("/", h.List)
		mr.Post("/{id}/unmatch", h.Unmatch)
	})
	private.Route("/blocks", func(br chi.Router) {
		br.Get("/", h.Blocked)
		br.Post("/", h.Block)
		br.Delete("/{userID}", h.Unblock)
	})
}
