// Copyright 2026 The Doghouse Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/doghouse-io/doghouse/internal/apperr"
	"github.com/doghouse-io/doghouse/internal/authn"
	"github.com/doghouse-io/doghouse/internal/credentials"
)

type createBackendRequest struct {
	BackendID string `json:"backendId,omitempty"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
}

type backendResponse struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId,omitempty"`
}

// ListBackends lists all tenants. Superdog only.
func (h *Handler) ListBackends(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := requireLevel(id, credentials.LevelSuperdog); err != nil {
		respondError(w, r, err)
		return
	}

	limit, offset := 100, 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}

	backends, err := h.tenantService.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]backendResponse, 0, len(backends))
	for _, t := range backends {
		out = append(out, backendResponse{ID: t.ID, OwnerID: t.OwnerID})
	}
	respondJSON(w, http.StatusOK, out)
}

// CreateBackend signs up a new backend with its first superadmin. Open
// to anonymous callers: creating a backend is how a project starts.
func (h *Handler) CreateBackend(w http.ResponseWriter, r *http.Request) {
	var req createBackendRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	h.createBackend(w, r, req.BackendID, req)
}

// CreateBackendWithID is CreateBackend with the id in the path.
func (h *Handler) CreateBackendWithID(w http.ResponseWriter, r *http.Request) {
	var req createBackendRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	h.createBackend(w, r, chi.URLParam(r, "id"), req)
}

func (h *Handler) createBackend(w http.ResponseWriter, r *http.Request, backendID string, req createBackendRequest) {
	if backendID == "" {
		respondError(w, r, apperr.New(apperr.EInvalidParameter, "backend id is required"))
		return
	}
	// Validate before touching the credentials store so a clash with
	// an existing backend never reaches its records.
	if err := h.tenantService.CheckAvailable(r.Context(), backendID); err != nil {
		respondError(w, r, err)
		return
	}

	owner, err := h.credService.CreateWithRoles(r.Context(), backendID, credentials.CreateRequest{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
	}, []string{credentials.RoleSuperAdmin})
	if err != nil {
		respondError(w, r, err)
		return
	}

	t, err := h.tenantService.Create(r.Context(), backendID, owner.ID)
	if err != nil {
		// The availability check above means any records under this id
		// are the ones just created; sweep them.
		_ = h.credService.DeleteTenant(r.Context(), backendID)
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, backendResponse{ID: t.ID, OwnerID: t.OwnerID})
}

// GetBackend returns one tenant. Its superadmins and superdogs only.
func (h *Handler) GetBackend(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	backendID := chi.URLParam(r, "id")
	if err := requireBackendAdmin(id, backendID); err != nil {
		respondError(w, r, err)
		return
	}

	t, err := h.tenantService.Get(r.Context(), backendID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, backendResponse{ID: t.ID, OwnerID: t.OwnerID})
}

// DeleteBackend removes a tenant and everything in it. Its superadmins
// and superdogs only; the root backend is never deletable.
func (h *Handler) DeleteBackend(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	backendID := chi.URLParam(r, "id")
	if err := requireBackendAdmin(id, backendID); err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.tenantService.Delete(r.Context(), backendID, id.Credentials.ID); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

// requireBackendAdmin admits superdogs and superadmins whose own
// record lives in the target backend.
func requireBackendAdmin(id *authn.Identity, backendID string) error {
	if err := requireLevel(id, credentials.LevelSuperAdmin); err != nil {
		return err
	}
	if id.Credentials.IsSuperdog() {
		return nil
	}
	if id.Credentials.TenantID != backendID {
		return apperr.New(apperr.EForbidden, "insufficient rights on backend [%s]", backendID)
	}
	return nil
}
