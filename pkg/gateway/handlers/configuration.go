package handlers

import (
	"net/http"
	"strings"

	"github.com/spbui00/mockr/pkg/dialog"
)

// ConfigurationHandler serves the trial setup catalogs. The dialog client
// degrades to static defaults when the provider is unreachable, so these
// endpoints never fail.
type ConfigurationHandler struct {
	Dialog *dialog.Client
}

func (h *ConfigurationHandler) Jurisdictions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Dialog.Jurisdictions(r.Context()))
}

func (h *ConfigurationHandler) LegalAreas(w http.ResponseWriter, r *http.Request) {
	jurisdiction := r.PathValue("jurisdiction")
	if strings.TrimSpace(jurisdiction) == "" {
		writeError(w, r, http.StatusBadRequest, "jurisdiction is required")
		return
	}
	writeJSON(w, http.StatusOK, h.Dialog.LegalAreas(r.Context(), jurisdiction))
}

func (h *ConfigurationHandler) Articles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	jurisdiction := strings.TrimSpace(q.Get("jurisdiction"))
	legalArea := strings.TrimSpace(q.Get("legal_area"))
	if jurisdiction == "" || legalArea == "" {
		writeError(w, r, http.StatusBadRequest, "jurisdiction and legal_area are required")
		return
	}
	writeJSON(w, http.StatusOK, h.Dialog.SearchArticles(r.Context(), jurisdiction, legalArea, q.Get("query")))
}
