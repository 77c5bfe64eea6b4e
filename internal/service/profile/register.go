package profile

import (
	"github.com/go-chi/chi/v5"

	"github.com/oggyb/amora/internal/app"
)

// Registrar ties the /me routes into the HTTP router.
type Registrar struct {
	svc *Service
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{svc: NewService(appCtx)}
}

func (r *Registrar) Register(_, private chi.Router) {
	h := NewHandler(r.svc)
	private.Route("/me", func(mr chi.Router) {
		mr.Get("/", h.Get)
		mr.Delete("/", h.Delete)
		mr.Put("/profile", h.Update)
		mr.Put("/notification-settings", h.Notifications)
		mr.Post("/devices", h.RegisterDevice)
		mr.Delete("/devices/{token}", h.RemoveDevice)
		mr.Post("/photos", h.AddPhoto)
		mr.Delete("/photos/{id}", h.DeletePhoto)
		mr.Post("/verification-document", h.UploadDocument)
		mr.Get("/verification-document", h.DocumentURL)
	})
}
