package httpapi

import (
	"net/http"
	"strings"
)

type linksReq struct {
	// Text is decoded as-is; anything but a JSON string yields no links.
	Text any `json:"text"`
}

func (a *API) handleExtractLinks(w http.ResponseWriter, r *http.Request) {
	var req linksReq
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": a.extractor().Extract(req.Text)})
}

func (a *API) handleConvertLinks(w http.ResponseWriter, r *http.Request) {
	if a.Conv == nil {
		writeErr(w, http.StatusServiceUnavailable, "converter unavailable")
		return
	}
	var req linksReq
	if !decode(w, r, &req) {
		return
	}
	text, ok := req.Text.(string)
	if !ok || strings.TrimSpace(text) == "" {
		writeErr(w, http.StatusBadRequest, "text required")
		return
	}
	writeJSON(w, http.StatusOK, a.Conv.ConvertText(r.Context(), text))
}
