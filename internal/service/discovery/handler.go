package discovery

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oggyb/amora/internal/db"
	svcErr "github.com/oggyb/amora/internal/errors"
	"github.com/oggyb/amora/internal/server/httpx"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Profiles handles GET /v1/discovery/profiles?order=&offset=&limit=.
func (h *Handler) Profiles(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	offset, err := httpx.QueryInt(r, "offset", 0)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit", 0)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	page, err := h.svc.Candidates(r.Context(), userID, r.URL.Query().Get("order"), offset, limit)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

// actionKinds maps the URL action onto a stored interaction kind.
var actionKinds = map[string]string{
	"like":       db.KindLike,
	"superlike":  db.KindSuperLike,
	"super_like": db.KindSuperLike,
	"dislike":    db.KindPass,
	"pass":       db.KindPass,
}

type interactionRequest struct {
	TargetID uint64 `json:"target_id"`
}

// Interact handles POST /v1/discovery/interactions/{action}.
func (h *Handler) Interact(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	kind, ok := actionKinds[chi.URLParam(r, "action")]
	if !ok {
		httpx.Error(w, r, svcErr.InvalidArgument("action must be like, superlike or dislike"))
		return
	}
	var req interactionRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	out, err := h.svc.RecordInteraction(r.Context(), userID, req.TargetID, kind)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) likes(w http.ResponseWriter, r *http.Request, onlyNew bool) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	page, err := h.svc.Likes(r.Context(), userID, r.URL.Query().Get("cursor"), onlyNew)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

// Likes handles GET /v1/discovery/likes.
func (h *Handler) Likes(w http.ResponseWriter, r *http.Request) { h.likes(w, r, false) }

// NewLikes handles GET /v1/discovery/likes/new.
func (h *Handler) NewLikes(w http.ResponseWriter, r *http.Request) { h.likes(w, r, true) }

// LikeCount handles GET /v1/discovery/likes/count.
func (h *Handler) LikeCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	n, err := h.svc.LikeCount(r.Context(), userID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"count": n})
}
