package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/bunbase/bunbase/internal/apperrors"
	"github.com/bunbase/bunbase/internal/db/models"
	"github.com/bunbase/bunbase/internal/files"
	"github.com/bunbase/bunbase/internal/query"
	"github.com/bunbase/bunbase/internal/records"
	"github.com/go-chi/chi/v5"
)

// maxMultipartMemory bounds the in-memory part of multipart parsing;
// larger files spill to temp files.
const maxMultipartMemory = 32 << 20

// handleListRecords serves GET /api/collections/{name}/records.
func (a *App) handleListRecords(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	principal, err := a.Auth.Resolve(r.Context(), r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	snap, err := a.Registry.GetCollection(r.Context(), name)
	if err != nil {
		a.writeError(w, err)
		return
	}

	opts, err := query.ParseURL(r.URL.RawQuery)
	if err != nil {
		a.writeError(w, err)
		return
	}
	clause, err := a.listClause(snap, principal)
	if err != nil {
		a.writeError(w, err)
		return
	}

	result, err := a.Records.List(r.Context(), name, opts, clause)
	if err != nil {
		a.writeError(w, err)
		return
	}
	for i, item := range result.Items {
		result.Items[i] = a.publicRecord(item)
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetRecord serves GET /api/collections/{name}/records/{id}.
func (a *App) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id := chi.URLParam(r, "id")

	principal, err := a.Auth.Resolve(r.Context(), r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	snap, err := a.Registry.GetCollection(r.Context(), name)
	if err != nil {
		a.writeError(w, err)
		return
	}

	record, err := a.Records.Get(r.Context(), name, id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.checkRule(snap, "view", record, principal); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.publicRecord(record))
}

// handleCreateRecord serves POST /api/collections/{name}/records. The
// body is either JSON or a multipart form carrying file uploads; file
// bytes are written after the row is committed.
func (a *App) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	principal, err := a.Auth.Resolve(r.Context(), r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	snap, err := a.Registry.GetCollection(r.Context(), name)
	if err != nil {
		a.writeError(w, err)
		return
	}

	data, uploads, err := a.readRecordBody(r, name)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.checkRule(snap, "create", data, principal); err != nil {
		a.writeError(w, err)
		return
	}

	record, err := a.Records.CreateWithHooks(r.Context(), name, data, r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.saveUploads(name, record[models.ColumnID].(string), uploads)

	writeJSON(w, http.StatusCreated, a.publicRecord(record))
}

// handleUpdateRecord serves PATCH /api/collections/{name}/records/{id}.
func (a *App) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id := chi.URLParam(r, "id")

	principal, err := a.Auth.Resolve(r.Context(), r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	snap, err := a.Registry.GetCollection(r.Context(), name)
	if err != nil {
		a.writeError(w, err)
		return
	}

	existing, err := a.Records.Get(r.Context(), name, id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.checkRule(snap, "update", existing, principal); err != nil {
		a.writeError(w, err)
		return
	}

	patch, uploads, err := a.readRecordBody(r, name)
	if err != nil {
		a.writeError(w, err)
		return
	}

	record, err := a.Records.UpdateWithHooks(r.Context(), name, id, patch, r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.saveUploads(name, id, uploads)

	writeJSON(w, http.StatusOK, a.publicRecord(record))
}

// handleDeleteRecord serves DELETE /api/collections/{name}/records/{id}.
func (a *App) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id := chi.URLParam(r, "id")

	principal, err := a.Auth.Resolve(r.Context(), r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	snap, err := a.Registry.GetCollection(r.Context(), name)
	if err != nil {
		a.writeError(w, err)
		return
	}

	existing, err := a.Records.Get(r.Context(), name, id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.checkRule(snap, "delete", existing, principal); err != nil {
		a.writeError(w, err)
		return
	}

	if err := a.Records.DeleteWithHooks(r.Context(), name, id, r); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readRecordBody decodes the record payload from JSON or a multipart
// form. Multipart forms also return the validated file uploads, pending
// persistence after the row commits.
func (a *App) readRecordBody(r *http.Request, collection string) (records.Record, []files.Upload, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/") {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, nil, apperrors.Validation("invalid multipart form: %s", err)
		}
		snap, err := a.Registry.GetCollection(r.Context(), collection)
		if err != nil {
			return nil, nil, err
		}
		return files.ParseForm(r.MultipartForm, snap)
	}

	var data records.Record
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		return nil, nil, apperrors.Validation("invalid JSON body: %s", err)
	}
	return data, nil, nil
}

// saveUploads writes validated multipart files into the record's
// directory. The row is already committed; write failures are logged and
// do not fail the request.
func (a *App) saveUploads(collection, recordID string, uploads []files.Upload) {
	for _, upload := range uploads {
		src, err := upload.Header.Open()
		if err != nil {
			log.Printf("WARNING: open upload %q for %s/%s: %v", upload.SanitizedName, collection, recordID, err)
			continue
		}
		if err := a.Files.Save(collection, recordID, upload.SanitizedName, src); err != nil {
			log.Printf("WARNING: save upload %q for %s/%s: %v", upload.SanitizedName, collection, recordID, err)
		}
		_ = src.Close()
	}
}
