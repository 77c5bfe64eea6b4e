package content

import (
	"context"
	"net/http"

	"github.com/oggyb/amora/internal/server/httpx"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func pageParams(r *http.Request) (offset, limit int, err error) {
	if offset, err = httpx.QueryInt(r, "offset", 0); err != nil {
		return 0, 0, err
	}
	if limit, err = httpx.QueryInt(r, "limit", defaultPageSize); err != nil {
		return 0, 0, err
	}
	return offset, limit, nil
}

// Resources handles GET /v1/content/resources.
func (h *Handler) Resources(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pageParams(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	list, err := h.svc.Resources(r.Context(), r.URL.Query().Get("category"), offset, limit)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"resources": list})
}

// Resource handles GET /v1/content/resources/{id}.
func (h *Handler) Resource(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	res, err := h.svc.Resource(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	h.favorite(w, r, h.svc.AddFavorite)
}

func (h *Handler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	h.favorite(w, r, h.svc.RemoveFavorite)
}

func (h *Handler) favorite(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID, resourceID uint64) error) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := op(r.Context(), userID, id); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.NoContent(w)
}

// Favorites handles GET /v1/content/favorites.
func (h *Handler) Favorites(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	list, err := h.svc.Favorites(r.Context(), userID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"resources": list})
}

// Feed handles GET /v1/feed/posts.
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	offset, limit, err := pageParams(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	posts, err := h.svc.Feed(r.Context(), userID, offset, limit)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"posts": posts})
}

type bodyRequest struct {
	Body string `json:"body"`
}

// CreatePost handles POST /v1/feed/posts.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	var req bodyRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	post, err := h.svc.CreatePost(r.Context(), userID, req.Body)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, post)
}

// Comments handles GET /v1/feed/posts/{id}/comments.
func (h *Handler) Comments(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	postID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	offset, limit, err := pageParams(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	list, err := h.svc.Comments(r.Context(), userID, postID, offset, limit)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"comments": list})
}

// AddComment handles POST /v1/feed/posts/{id}/comments.
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	postID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req bodyRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	c, err := h.svc.AddComment(r.Context(), userID, postID, req.Body)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

// Like handles POST /v1/feed/posts/{id}/like.
func (h *Handler) Like(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	postID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	state, err := h.svc.ToggleLike(r.Context(), userID, postID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, state)
}

// Pending handles GET /v1/admin/feed/pending.
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	limit, err := httpx.QueryInt(r, "limit", defaultPageSize)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	posts, err := h.svc.PendingPosts(r.Context(), limit)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"posts": posts})
}

type moderateRequest struct {
	Decision string `json:"decision"`
}

// Moderate handles POST /v1/admin/feed/posts/{id}/moderate.
func (h *Handler) Moderate(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	postID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req moderateRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	post, err := h.svc.Moderate(r.Context(), userID, postID, req.Decision)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, post)
}
