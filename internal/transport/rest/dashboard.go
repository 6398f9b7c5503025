package rest

import (
	"net/http"

	"debtster-kpi/internal/report"
	"debtster-kpi/internal/transport/auth"

	"github.com/go-chi/chi/v5"
)

type kpiInfo struct {
	Key   string       `json:"key"`
	Title string       `json:"title"`
	Chart report.Chart `json:"chart"`
}

func (h *Handler) listKPIs(w http.ResponseWriter, r *http.Request) {
	catalog := report.Catalog()
	out := make([]kpiInfo, 0, len(catalog))
	for _, def := range catalog {
		out = append(out, kpiInfo{Key: def.Key, Title: def.Title, Chart: def.Chart})
	}
	Success(w, "", out)
}

func (h *Handler) getDashboard(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	req, err := ParseFilterQuery(r, h.loc)
	if err != nil {
		h.fail(w, r, err, "invalid filter")
		return
	}

	sections, err := h.dashboard.Dashboard(r.Context(), userID, chi.URLParam(r, "id"), req.ToKPIFilter(), req.KPI...)
	if err != nil {
		h.fail(w, r, err, "failed to build dashboard")
		return
	}
	Success(w, "", sections)
}

func (h *Handler) getSection(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	req, err := ParseFilterQuery(r, h.loc)
	if err != nil {
		h.fail(w, r, err, "invalid filter")
		return
	}

	section, err := h.dashboard.Section(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "key"), req.ToKPIFilter())
	if err != nil {
		h.fail(w, r, err, "failed to build section")
		return
	}
	Success(w, "", section)
}
