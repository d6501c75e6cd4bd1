package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"promolink/internal/linkx"
	"promolink/internal/tmpl"
)

type templateReq struct {
	Name    string `json:"name"`
	Body    string `json:"body"`
	Enabled *bool  `json:"enabled"`
}

func (req templateReq) check() string {
	if strings.TrimSpace(req.Name) == "" {
		return "name required"
	}
	if err := tmpl.Validate(req.Body); err != nil {
		return err.Error()
	}
	return ""
}

func (a *API) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := a.Store.ListTemplates()
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateReq
	if !decode(w, r, &req) {
		return
	}
	if msg := req.check(); msg != "" {
		writeErr(w, http.StatusBadRequest, msg)
		return
	}
	id, err := a.Store.CreateTemplate(req.Name, req.Body, req.Enabled == nil || *req.Enabled)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (a *API) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateReq
	if !decode(w, r, &req) {
		return
	}
	if msg := req.check(); msg != "" {
		writeErr(w, http.StatusBadRequest, msg)
		return
	}
	if err := a.Store.UpdateTemplate(chi.URLParam(r, "id"), req.Name, req.Body, req.Enabled == nil || *req.Enabled); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": 1})
}

func (a *API) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := a.Store.DeleteTemplate(chi.URLParam(r, "id")); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": 1})
}

func (a *API) handleSetDefaultTemplate(w http.ResponseWriter, r *http.Request) {
	if err := a.Store.SetDefaultTemplate(chi.URLParam(r, "id")); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"default": chi.URLParam(r, "id")})
}

type previewReq struct {
	Body      string `json:"body"`
	Message   string `json:"message"`
	GroupName string `json:"group_name"`
}

// handlePreviewTemplate renders body against a sample message. Links are
// shown unconverted so previews never hit the affiliate backend.
func (a *API) handlePreviewTemplate(w http.ResponseWriter, r *http.Request) {
	var req previewReq
	if !decode(w, r, &req) {
		return
	}
	if err := tmpl.Validate(req.Body); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	links := a.extractor().Extract(req.Message)
	text := tmpl.Render(req.Body, tmpl.Data{
		Message:   req.Message,
		Links:     links,
		Originals: links,
		GroupName: req.GroupName,
	})
	writeJSON(w, http.StatusOK, map[string]any{"text": text})
}

func (a *API) extractor() *linkx.Extractor {
	if a.Conv != nil {
		return a.Conv.Extractor()
	}
	return linkx.New()
}
