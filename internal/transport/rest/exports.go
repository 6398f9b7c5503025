package rest

import (
	"net/http"

	"debtster-kpi/internal/transport/auth"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) exportReport(w http.ResponseWriter, r *http.Request) {
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

	exportID, err := h.reports.Start(r.Context(), userID, chi.URLParam(r, "id"), req.ToKPIFilter(), req.KPI)
	if err != nil {
		h.fail(w, r, err, "failed to start export")
		return
	}

	SuccessAccepted(w, "Exportación en cola", map[string]any{
		"export_id": exportID,
	})
}

func (h *Handler) listExports(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	exports, err := h.exportList.GetExports(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err, "failed to get exports")
		return
	}

	Success(w, "", exports)
}

func (h *Handler) getExport(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	exportIDParam := chi.URLParam(r, "export_id")
	if exportIDParam == "" {
		ErrorBadRequest(w, "export_id is required")
		return
	}
	exportID := "exports:" + exportIDParam

	export, err := h.exportList.GetExport(r.Context(), exportID, userID)
	if err != nil {
		h.fail(w, r, err, "failed to get export")
		return
	}

	Success(w, "", export)
}
