package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (a *API) handleListGroups(w http.ResponseWriter, r *http.Request) {
	id, ok := a.instance(w, r)
	if !ok {
		return
	}
	list, err := a.Store.ListGroups(id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleRefreshGroups(w http.ResponseWriter, r *http.Request) {
	id, ok := a.whatsappInstance(w, r)
	if !ok {
		return
	}
	n, err := a.WA.FetchAndSyncGroups(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refreshed": n})
}

type groupFlagsReq struct {
	Monitored   *bool `json:"monitored"`
	Destination *bool `json:"destination"`
}

func (a *API) handleSetGroupFlags(w http.ResponseWriter, r *http.Request) {
	id, ok := a.instance(w, r)
	if !ok {
		return
	}
	var req groupFlagsReq
	if !decode(w, r, &req) {
		return
	}
	if req.Monitored == nil && req.Destination == nil {
		writeErr(w, http.StatusBadRequest, "monitored or destination required")
		return
	}
	gid := chi.URLParam(r, "gid")
	if err := a.Store.SetGroupFlags(id, gid, req.Monitored, req.Destination); err != nil {
		a.fail(w, err)
		return
	}
	g, err := a.Store.GetGroup(id, gid)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

type relayReq struct {
	GroupID string `json:"group_id"`
	Text    string `json:"text"`
}

// handleRelayText feeds text through the relay as if it was posted in a
// monitored group, which is how the pipeline is checked without a phone.
func (a *API) handleRelayText(w http.ResponseWriter, r *http.Request) {
	if a.Relay == nil {
		writeErr(w, http.StatusServiceUnavailable, "relay unavailable")
		return
	}
	id, ok := a.instance(w, r)
	if !ok {
		return
	}
	var req relayReq
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.GroupID) == "" {
		writeErr(w, http.StatusBadRequest, "group_id required")
		return
	}
	out, err := a.Relay.HandleText(r.Context(), id, req.GroupID, req.Text)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
