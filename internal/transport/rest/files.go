package rest

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"debtster-kpi/internal/transport/auth"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request) {
	path, original, err := h.files.Resolve(chi.URLParam(r, "file"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		h.log.WithError(err).Warn("failed to access file")
		http.Error(w, "failed to access file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", original))
	http.ServeFile(w, r, path)
}

func (h *Handler) websocket(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}
	h.log.WithField("user_id", userID).Debug("websocket connected")
	h.ws.HandleWebSocket(w, r, userID)
}
