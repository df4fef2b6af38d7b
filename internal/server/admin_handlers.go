package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/bunbase/bunbase/internal/apperrors"
	"github.com/bunbase/bunbase/internal/auth"
	"github.com/bunbase/bunbase/internal/db/models"
	"github.com/bunbase/bunbase/internal/query"
	"github.com/bunbase/bunbase/internal/schema"
	"github.com/go-chi/chi/v5"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleAdminLogin serves POST /admin/auth/login.
func (a *App) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, apperrors.Validation("invalid JSON body: %s", err))
		return
	}
	if req.Email == "" || req.Password == "" {
		a.writeError(w, apperrors.Validation("email and password are required"))
		return
	}

	admin, err := a.Admins.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			a.writeError(w, apperrors.Unauthorized("invalid credentials"))
			return
		}
		a.writeError(w, err)
		return
	}
	if !auth.VerifyPassword(admin.PasswordHash, req.Password) {
		a.writeError(w, apperrors.Unauthorized("invalid credentials"))
		return
	}

	token, err := a.Auth.Issuer().Issue(admin.ID, auth.TokenKindAdmin, "")
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "admin": admin})
}

// handleAdminMe serves GET /admin/auth/me.
func (a *App) handleAdminMe(w http.ResponseWriter, r *http.Request) {
	principal, err := a.Auth.RequireAdmin(r.Context(), r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, principal.Admin)
}

type passwordChangeRequest struct {
	OldPassword string `json:"oldPassword"`
	Password    string `json:"password"`
}

// handleAdminPassword serves POST /admin/auth/password.
func (a *App) handleAdminPassword(w http.ResponseWriter, r *http.Request) {
	principal, err := a.Auth.RequireAdmin(r.Context(), r)
	if err != nil {
		a.writeError(w, err)
		return
	}

	var req passwordChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, apperrors.Validation("invalid JSON body: %s", err))
		return
	}
	if len(req.Password) < 8 {
		a.writeError(w, apperrors.Validation("password must be at least 8 characters"))
		return
	}
	if !auth.VerifyPassword(principal.Admin.PasswordHash, req.OldPassword) {
		a.writeError(w, apperrors.Unauthorized("invalid credentials"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.Admins.SetPasswordHash(r.Context(), principal.Admin.ID, hash); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// collectionResponse is the admin-facing collection shape: the metadata
// row plus its field definitions.
type collectionResponse struct {
	*models.Collection
	Fields []*models.Field `json:"fields"`
}

func snapshotResponse(snap *schema.Snapshot) collectionResponse {
	return collectionResponse{Collection: snap.Collection, Fields: snap.Fields}
}

// handleListCollections serves GET /admin/collections.
func (a *App) handleListCollections(w http.ResponseWriter, r *http.Request) {
	if _, err := a.Auth.RequireAdmin(r.Context(), r); err != nil {
		a.writeError(w, err)
		return
	}
	cols, err := a.Registry.ListCollections(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": cols})
}

// handleGetCollection serves GET /admin/collections/{name}.
func (a *App) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	if _, err := a.Auth.RequireAdmin(r.Context(), r); err != nil {
		a.writeError(w, err)
		return
	}
	snap, err := a.Registry.GetCollection(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse(snap))
}

type createCollectionRequest struct {
	Name   string                `json:"name"`
	Type   models.CollectionType `json:"type"`
	Fields []schema.FieldSpec    `json:"fields"`
	schema.RuleSet
}

// handleCreateCollection serves POST /admin/collections.
func (a *App) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	if _, err := a.Auth.RequireAdmin(r.Context(), r); err != nil {
		a.writeError(w, err)
		return
	}

	var req createCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, apperrors.Validation("invalid JSON body: %s", err))
		return
	}

	snap, err := a.Registry.CreateCollection(r.Context(), req.Name, req.Type, req.Fields, req.RuleSet)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snapshotResponse(snap))
}

type updateCollectionRequest struct {
	Name string `json:"name"`
	schema.RuleSet
}

// handleUpdateCollection serves PATCH /admin/collections/{name}. Only
// rules may change; renames are refused because realtime subscriptions
// are keyed by collection name.
func (a *App) handleUpdateCollection(w http.ResponseWriter, r *http.Request) {
	if _, err := a.Auth.RequireAdmin(r.Context(), r); err != nil {
		a.writeError(w, err)
		return
	}
	name := chi.URLParam(r, "name")

	var req updateCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, apperrors.Validation("invalid JSON body: %s", err))
		return
	}
	if req.Name != "" && req.Name != name {
		a.writeError(w, apperrors.Validation("collection rename is not supported"))
		return
	}

	snap, err := a.Registry.UpdateRules(r.Context(), name, req.RuleSet)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse(snap))
}

// handleDeleteCollection serves DELETE /admin/collections/{name}. The
// stored files of the collection are removed best-effort after the
// table and metadata are gone.
func (a *App) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	if _, err := a.Auth.RequireAdmin(r.Context(), r); err != nil {
		a.writeError(w, err)
		return
	}
	name := chi.URLParam(r, "name")

	if err := a.Registry.DeleteCollection(r.Context(), name); err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.Files.DeleteCollection(name); err != nil {
		log.Printf("WARNING: cleanup files for collection %s: %v", name, err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAddField serves POST /admin/collections/{name}/fields.
func (a *App) handleAddField(w http.ResponseWriter, r *http.Request) {
	if _, err := a.Auth.RequireAdmin(r.Context(), r); err != nil {
		a.writeError(w, err)
		return
	}

	var spec schema.FieldSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		a.writeError(w, apperrors.Validation("invalid JSON body: %s", err))
		return
	}

	snap, err := a.Registry.AddField(r.Context(), chi.URLParam(r, "name"), spec)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snapshotResponse(snap))
}

// handleUpdateField serves PATCH /admin/collections/{name}/fields/{field}.
func (a *App) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	if _, err := a.Auth.RequireAdmin(r.Context(), r); err != nil {
		a.writeError(w, err)
		return
	}

	var spec schema.FieldSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		a.writeError(w, apperrors.Validation("invalid JSON body: %s", err))
		return
	}

	snap, err := a.Registry.UpdateField(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "field"), spec)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse(snap))
}

// handleRemoveField serves DELETE /admin/collections/{name}/fields/{field}.
func (a *App) handleRemoveField(w http.ResponseWriter, r *http.Request) {
	if _, err := a.Auth.RequireAdmin(r.Context(), r); err != nil {
		a.writeError(w, err)
		return
	}
	if _, err := a.Registry.RemoveField(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "field")); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type authWithPasswordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleAuthWithPassword serves POST /api/collections/{name}/auth-with-password
// for auth collections: it verifies the credentials against the stored
// hash and issues a user token bound to the collection.
func (a *App) handleAuthWithPassword(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	snap, err := a.Registry.GetCollection(r.Context(), name)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if !snap.Collection.IsAuth() {
		a.writeError(w, apperrors.Validation("collection %q does not support authentication", name))
		return
	}

	var req authWithPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, apperrors.Validation("invalid JSON body: %s", err))
		return
	}
	if req.Email == "" || req.Password == "" {
		a.writeError(w, apperrors.Validation("email and password are required"))
		return
	}

	result, err := a.Records.List(r.Context(), name, query.Options{
		Filter:  []query.Condition{{Field: schema.AuthFieldEmail, Op: query.OpEqual, Value: strings.ToLower(req.Email)}},
		PerPage: 1,
	}, nil)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if len(result.Items) == 0 {
		a.writeError(w, apperrors.Unauthorized("invalid credentials"))
		return
	}

	record := result.Items[0]
	hash, _ := record[schema.AuthFieldPasswordHash].(string)
	if !auth.VerifyPassword(hash, req.Password) {
		a.writeError(w, apperrors.Unauthorized("invalid credentials"))
		return
	}

	token, err := a.Auth.Issuer().Issue(record[models.ColumnID].(string), auth.TokenKindUser, name)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "record": a.publicRecord(record)})
}
