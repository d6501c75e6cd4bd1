package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

type instanceReq struct {
	Label      string `json:"label"`
	Msisdn     string `json:"msisdn"`
	DailyLimit int    `json:"daily_limit"`
	Enabled    *bool  `json:"enabled"`
}

func (req instanceReq) enabled() bool {
	return req.Enabled == nil || *req.Enabled
}

func (a *API) handleListInstances(w http.ResponseWriter, r *http.Request) {
	list, err := a.Store.ListInstances()
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	var req instanceReq
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Label) == "" {
		writeErr(w, http.StatusBadRequest, "label required")
		return
	}
	if req.DailyLimit < 0 {
		writeErr(w, http.StatusBadRequest, "daily_limit must not be negative")
		return
	}
	id, err := a.Store.CreateInstance(req.Label, req.Msisdn, req.enabled(), req.DailyLimit)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (a *API) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := a.Store.GetInstance(chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (a *API) handleUpdateInstance(w http.ResponseWriter, r *http.Request) {
	var req instanceReq
	if !decode(w, r, &req) {
		return
	}
	if req.DailyLimit < 0 {
		writeErr(w, http.StatusBadRequest, "daily_limit must not be negative")
		return
	}
	if err := a.Store.UpdateInstance(chi.URLParam(r, "id"), req.Label, req.Msisdn, req.enabled(), req.DailyLimit); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": 1})
}

func (a *API) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := a.instance(w, r)
	if !ok {
		return
	}
	if a.WA != nil {
		// Unlink the device too so the phone does not keep a stale session.
		_ = a.WA.Logout(r.Context(), id)
		a.WA.DropInstance(id)
	}
	if err := a.Store.DeleteInstance(id); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": 1})
}

func (a *API) handlePairQR(w http.ResponseWriter, r *http.Request) {
	id, ok := a.whatsappInstance(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 90*time.Second)
	defer cancel()
	png, _, err := a.WA.StartPairing(ctx, id)
	if err != nil {
		a.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

type pairByNumberReq struct {
	Msisdn string `json:"msisdn"`
}

func (a *API) handlePairByNumber(w http.ResponseWriter, r *http.Request) {
	id, ok := a.whatsappInstance(w, r)
	if !ok {
		return
	}
	var req pairByNumberReq
	if !decode(w, r, &req) {
		return
	}
	msisdn := strings.TrimPrefix(strings.TrimSpace(req.Msisdn), "+")
	if msisdn == "" {
		writeErr(w, http.StatusBadRequest, "msisdn required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 90*time.Second)
	defer cancel()
	code, err := a.WA.RequestPairingCode(ctx, id, msisdn)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": code})
}

func (a *API) handleConnect(w http.ResponseWriter, r *http.Request) {
	id, ok := a.whatsappInstance(w, r)
	if !ok {
		return
	}
	if err := a.WA.ConnectIfPaired(r.Context(), id); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "connecting"})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, ok := a.whatsappInstance(w, r)
	if !ok {
		return
	}
	if err := a.WA.Logout(r.Context(), id); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

// instance resolves {id} and answers 404 for unknown instances.
func (a *API) instance(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	exists, err := a.Store.InstanceExists(id)
	if err != nil {
		a.fail(w, err)
		return "", false
	}
	if !exists {
		writeErr(w, http.StatusNotFound, "instance not found")
		return "", false
	}
	return id, true
}

func (a *API) whatsappInstance(w http.ResponseWriter, r *http.Request) (string, bool) {
	if a.WA == nil {
		writeErr(w, http.StatusServiceUnavailable, "whatsapp unavailable")
		return "", false
	}
	return a.instance(w, r)
}
