package matches

import (
	"net/http"

	"github.com/oggyb/amora/internal/server/httpx"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List handles GET /v1/matches.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	list, err := h.svc.List(r.Context(), userID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"matches": list})
}

// Unmatch handles POST /v1/matches/{id}/unmatch.
func (h *Handler) Unmatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	matchID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.svc.Unmatch(r.Context(), userID, matchID); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.NoContent(w)
}

type blockRequest struct {
	UserID uint64 `json:"user_id"`
}

// Block handles POST /v1/blocks.
func (h *Handler) Block(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	var req blockRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.svc.Block(r.Context(), userID, req.UserID); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]uint64{"blocked_user_id": req.UserID})
}

// Unblock handles DELETE /v1/blocks/{userID}.
func (h *Handler) Unblock(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	blockedID, err := httpx.PathID(r, "userID")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.svc.Unblock(r.Context(), userID, blockedID); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.NoContent(w)
}

// Blocked handles GET /v1/blocks.
func (h *Handler) Blocked(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	list, err := h.svc.Blocked(r.Context(), userID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"blocks": list})
}
