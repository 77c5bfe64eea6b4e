package content

import (
	"github.com/go-chi/chi/v5"

	"github.com/oggyb/amora/internal/app"
	"github.com/oggyb/amora/internal/server/httpx"
)

// Registrar ties the catalog, feed and moderation routes into the HTTP router.
type Registrar struct {
	svc *Service
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{svc: NewService(appCtx)}
}

func (r *Registrar) Register(_, private chi.Router) {
	h := NewHandler(r.svc)
	private.Route("/content", func(cr chi.Router) {
		cr.Get("/resources", h.Resources)
		cr.Get("/resources/{id}", h.Resource)
		cr.Post("/resources/{id}/favorite", h.AddFavorite)
		cr.Delete("/resources/{id}/favorite", h.RemoveFavorite)
		cr.Get("/favorites", h.Favorites)
	})
	private.Route("/feed", func(fr chi.Router) {
		fr.Get("/posts", h.Feed)
		fr.Post("/posts", h.CreatePost)
		fr.Get("/posts/{id}/comments", h.Comments)
		fr.Post("/posts/{id}/comments", h.AddComment)
		fr.Post("/posts/{id}/like", h.Like)
	})
	private.Route("/admin", func(ar chi.Router) {
		ar.Use(httpx.RequireStaff)
		ar.Get("/feed/pending", h.Pending)
		ar.Post("/feed/posts/{id}/moderate", h.Moderate)
	})
}
