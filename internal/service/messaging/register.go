package messaging

import (
	"github.com/go-chi/chi/v5"

	"github.com/oggyb/amora/internal/app"
)

// Registrar ties the conversation and call routes into the HTTP router.
type Registrar struct {
	svc *Service
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{svc: NewService(appCtx)}
}

func (r *Registrar) Register(_, private chi.Router) {
	h := NewHandler(r.svc)
	private.Route("/conversations", func(cr chi.Router) {
		cr.Get("/", h.Conversations)
		cr.Get("/{id}/messages", h.Messages)
		cr.Post("/{id}/messages", h.Send)
		cr.Delete("/{id}/messages/{messageID}", h.Delete)
	})
	private.Post("/calls/initiate", h.InitiateCall)
}
