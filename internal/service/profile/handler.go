package profile

import (
	"bufio"
	"errors"
	"net/http"
	"time"

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

// Get handles GET /v1/me.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	me, err := h.svc.Get(r.Context(), userID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, me)
}

// Update handles PUT /v1/me/profile.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	var in UpdateInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	me, err := h.svc.Update(r.Context(), userID, in)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, me)
}

// Notifications handles PUT /v1/me/notification-settings.
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	var in db.NotificationSettings
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	out, err := h.svc.UpdateNotifications(r.Context(), userID, in)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

// RegisterDevice handles POST /v1/me/devices.
func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	var in DeviceInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.svc.RegisterDevice(r.Context(), userID, in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"token": in.Token})
}

// RemoveDevice handles DELETE /v1/me/devices/{token}.
func (h *Handler) RemoveDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	if err := h.svc.RemoveDevice(r.Context(), userID, chi.URLParam(r, "token")); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.NoContent(w)
}

// AddPhoto handles POST /v1/me/photos (multipart field "file").
func (h *Handler) AddPhoto(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	up, closeFn, err := readUpload(w, r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	defer closeFn()
	photo, err := h.svc.AddPhoto(r.Context(), userID, up)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, photo)
}

// DeletePhoto handles DELETE /v1/me/photos/{id}.
func (h *Handler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	photoID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.svc.DeletePhoto(r.Context(), userID, photoID); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.NoContent(w)
}

// UploadDocument handles POST /v1/me/verification-document.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	up, closeFn, err := readUpload(w, r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	defer closeFn()
	if err := h.svc.UploadVerificationDocument(r.Context(), userID, up); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"status": "uploaded"})
}

// DocumentURL handles GET /v1/me/verification-document.
func (h *Handler) DocumentURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	url, expires, err := h.svc.VerificationDocumentURL(r.Context(), userID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, struct {
		URL       string    `json:"url"`
		ExpiresAt time.Time `json:"expires_at"`
	}{url, expires})
}

// Delete handles DELETE /v1/me.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteAccount(r.Context(), userID); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.NoContent(w)
}

// readUpload pulls the "file" part and sniffs its content type from the
// first bytes rather than trusting the client header.
func readUpload(w http.ResponseWriter, r *http.Request) (Upload, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return Upload{}, nil, svcErr.InvalidArgument("upload is too large")
		}
		return Upload{}, nil, svcErr.InvalidArgument("expected multipart form with a file field")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return Upload{}, nil, svcErr.InvalidArgument("file field is required")
	}
	br := bufio.NewReaderSize(file, 512)
	head, _ := br.Peek(512)
	return Upload{
		Reader:      br,
		Size:        header.Size,
		ContentType: http.DetectContentType(head),
	}, func() { _ = file.Close() }, nil
}
