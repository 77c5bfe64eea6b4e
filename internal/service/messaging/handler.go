package messaging

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

// Conversations handles GET /v1/conversations.
func (h *Handler) Conversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	list, err := h.svc.Conversations(r.Context(), userID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"conversations": list})
}

// Messages handles GET /v1/conversations/{id}/messages?cursor=&limit=.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	convID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit", 0)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	page, err := h.svc.Messages(r.Context(), userID, convID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

type sendRequest struct {
	Body string `json:"body"`
}

// Send handles POST /v1/conversations/{id}/messages.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	convID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req sendRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	msg, err := h.svc.Send(r.Context(), userID, convID, req.Body)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, msg)
}

// Delete handles DELETE /v1/conversations/{id}/messages/{messageID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	convID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	msgID, err := httpx.PathID(r, "messageID")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.svc.DeleteMessage(r.Context(), userID, convID, msgID); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.NoContent(w)
}

type callRequest struct {
	ConversationID uint64 `json:"conversation_id"`
	CallType       string `json:"call_type"`
}

// InitiateCall handles POST /v1/calls/initiate.
func (h *Handler) InitiateCall(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	var req callRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	ticket, err := h.svc.InitiateCall(r.Context(), userID, req.ConversationID, req.CallType)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, ticket)
}
