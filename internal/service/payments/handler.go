package payments

import (
	"io"
	"net/http"

	svcErr "github.com/oggyb/amora/internal/errors"
	"github.com/oggyb/amora/internal/server/httpx"
)

const maxWebhookBytes = 64 << 10

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Webhook handles POST /v1/payments/webhook. The body is read raw because
// the signature covers the exact bytes sent.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes+1))
	if err != nil {
		httpx.Error(w, r, svcErr.InvalidArgument("unreadable body"))
		return
	}
	if len(payload) > maxWebhookBytes {
		httpx.Error(w, r, svcErr.InvalidArgument("payload too large"))
		return
	}
	res, err := h.svc.HandleWebhook(r.Context(), r.Header.Get(SignatureHeader), payload)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
