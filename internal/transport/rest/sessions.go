package rest

import (
	"errors"
	"io"
	"net/http"

	"debtster-kpi/internal/transport/auth"

	"github.com/go-chi/chi/v5"
)

// uploadFile reads the multipart "file" part and hands it to fn.
func (h *Handler) uploadFile(w http.ResponseWriter, r *http.Request, fn func(name string, file io.Reader) error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.uploadLimit)
	if err := r.ParseMultipartForm(h.uploadLimit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorTooLarge(w, "file is too large")
			return
		}
		ErrorValidation(w, &ValidationError{Field: "file", Message: "multipart form with a file is required"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		ErrorValidation(w, &ValidationError{Field: "file", Message: "file is required"})
		return
	}
	defer file.Close()

	if err := fn(header.Filename, file); err != nil {
		h.fail(w, r, err, "failed to load file")
	}
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	h.uploadFile(w, r, func(name string, file io.Reader) error {
		sess, err := h.sessions.Create(r.Context(), userID, name, file)
		if err != nil {
			return err
		}
		SuccessCreated(w, "Archivo cargado", sess)
		return nil
	})
}

func (h *Handler) replaceSessionFile(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}
	id := chi.URLParam(r, "id")

	h.uploadFile(w, r, func(name string, file io.Reader) error {
		sess, err := h.sessions.Replace(r.Context(), userID, id, name, file)
		if err != nil {
			return err
		}
		Success(w, "Archivo reemplazado", sess)
		return nil
	})
}

func (h *Handler) importSession(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	req, err := ParseFilterBody(r, h.loc)
	if err != nil {
		h.fail(w, r, err, "invalid filter")
		return
	}

	sess, err := h.sessions.CreateFromDatabase(r.Context(), userID, req.ToRecordsFilter())
	if err != nil {
		h.fail(w, r, err, "failed to import records")
		return
	}
	SuccessCreated(w, "Registros importados", sess)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	sess, err := h.sessions.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "failed to get session")
		return
	}
	Success(w, "", sess)
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	if err := h.sessions.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err, "failed to delete session")
		return
	}
	Success(w, "Sesión eliminada", nil)
}

func (h *Handler) sessionFilters(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	opts, err := h.sessions.Filters(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "failed to get filters")
		return
	}
	Success(w, "", opts)
}
