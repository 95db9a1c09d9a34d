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

	"github.com/go-chi/chi/v5"

	"github.com/doghouse-io/doghouse/internal/acl"
	"github.com/doghouse-io/doghouse/internal/apperr"
	"github.com/doghouse-io/doghouse/internal/credentials"
)

// GetCredentialsSettings returns the tenant's credentials policy.
// Superadmin and above only.
func (h *Handler) GetCredentialsSettings(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := requireLevel(id, credentials.LevelSuperAdmin); err != nil {
		respondError(w, r, err)
		return
	}
	cs, err := h.settingsService.CredentialsSettings(r.Context(), id.TenantID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cs)
}

// SetCredentialsSettings replaces the tenant's credentials policy.
// Superadmin and above only.
func (h *Handler) SetCredentialsSettings(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := requireLevel(id, credentials.LevelSuperAdmin); err != nil {
		respondError(w, r, err)
		return
	}
	var cs credentials.Settings
	if err := decodeJSON(r, &cs); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.settingsService.SaveCredentialsSettings(r.Context(), id.TenantID, cs); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cs.WithDefaults())
}

// DeleteCredentialsSettings reverts the tenant to the default policy.
// Superadmin and above only.
func (h *Handler) DeleteCredentialsSettings(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := requireLevel(id, credentials.LevelSuperAdmin); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.settingsService.DeleteCredentialsSettings(r.Context(), id.TenantID); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

// GetACL returns the role→permission table of a resource type.
// Superadmin and above only.
func (h *Handler) GetACL(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := requireLevel(id, credentials.LevelSuperAdmin); err != nil {
		respondError(w, r, err)
		return
	}
	resourceType := chi.URLParam(r, "type")

	table, ok, err := h.settingsService.RolePermissions(r.Context(), id.TenantID, resourceType)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !ok {
		respondError(w, r, apperr.New(apperr.ENotFound, "no acl for type [%s]", resourceType))
		return
	}
	respondJSON(w, http.StatusOK, table)
}

// SetACL replaces the role→permission table of a resource type.
// Superadmin and above only.
func (h *Handler) SetACL(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := requireLevel(id, credentials.LevelSuperAdmin); err != nil {
		respondError(w, r, err)
		return
	}
	resourceType := chi.URLParam(r, "type")

	var table acl.RolePermissions
	if err := decodeJSON(r, &table); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.settingsService.SaveRolePermissions(r.Context(), id.TenantID, resourceType, table); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, table)
}

// DeleteACL removes the table; only superadmins may then act on the
// type. Called when a resource type's schema is deleted.
func (h *Handler) DeleteACL(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := requireLevel(id, credentials.LevelSuperAdmin); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.settingsService.DeleteRolePermissions(r.Context(), id.TenantID, chi.URLParam(r, "type")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}
