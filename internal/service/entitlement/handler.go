package entitlement

import (
	"net/http"

	"github.com/oggyb/amora/internal/server/httpx"
)

type Handler struct {
	gate *Gate
}

func NewHandler(gate *Gate) *Handler {
	return &Handler{gate: gate}
}

// Subscription handles GET /v1/subscription.
func (h *Handler) Subscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	st, err := h.gate.Status(r.Context(), userID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}
