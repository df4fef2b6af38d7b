package server

import (
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleDownloadFile serves GET /api/files/{collection}/{id}/{filename}.
// Visibility follows the collection's view rule against the owning
// record.
func (a *App) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")
	filename := chi.URLParam(r, "filename")

	principal, err := a.Auth.Resolve(r.Context(), r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	snap, err := a.Registry.GetCollection(r.Context(), collection)
	if err != nil {
		a.writeError(w, err)
		return
	}

	record, err := a.Records.Get(r.Context(), collection, id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.checkRule(snap, "view", record, principal); err != nil {
		a.writeError(w, err)
		return
	}

	f, contentType, err := a.Files.Open(collection, id, filename)
	if err != nil {
		a.writeError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		log.Printf("WARNING: stream file %s/%s/%s: %v", collection, id, filename, err)
	}
}
