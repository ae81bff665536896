package handlers

import "net/http"

type metadataRequest struct {
	URL string `json:"url"`
}

// Metadata describes a URL without creating a job.
func (a *App) Metadata(w http.ResponseWriter, r *http.Request) {
	var req metadataRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	meta, err := a.Dispatcher.Metadata(r.Context(), req.URL)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, meta)
}
