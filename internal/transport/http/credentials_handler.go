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
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/doghouse-io/doghouse/internal/apperr"
	"github.com/doghouse-io/doghouse/internal/credentials"
)

// targetID resolves the {id} route parameter, mapping "me" to the
// caller. Access requires being the target or ranking admin or above.
func targetID(r *http.Request) (string, error) {
	id := identity(r)
	raw := chi.URLParam(r, "id")

	if raw == "me" {
		if id.IsAnonymous() {
			return "", apperr.New(apperr.EUnauthorized, "authentication required")
		}
		return id.Credentials.ID, nil
	}
	if id.IsAnonymous() {
		return "", apperr.New(apperr.EUnauthorized, "authentication required")
	}
	if id.Credentials.ID != raw && !id.Credentials.Level().HasAtLeast(credentials.LevelAdmin) {
		return "", apperr.New(apperr.EForbidden, "insufficient rights")
	}
	return raw, nil
}

type createCredentialsResponse struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	PasswordResetCode string `json:"passwordResetCode,omitempty"`
}

// CreateCredentials handles sign-up and admin creation. Guest sign-up
// is allowed unless the tenant disables it.
func (h *Handler) CreateCredentials(w http.ResponseWriter, r *http.Request) {
	id := identity(r)

	var req credentials.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	c, resetCode, err := h.credService.Create(r.Context(), id.TenantID, req, id.Credentials)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, createCredentialsResponse{
		ID:                c.ID,
		Username:          c.Username,
		PasswordResetCode: resetCode,
	})
}

type searchResponse struct {
	Total   int                `json:"total"`
	Results []credentials.View `json:"results"`
}

// SearchCredentials lists tenant records. Admin and above only.
func (h *Handler) SearchCredentials(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := requireLevel(id, credentials.LevelAdmin); err != nil {
		respondError(w, r, err)
		return
	}

	f := credentials.Filter{
		Username: r.URL.Query().Get("username"),
		Email:    r.URL.Query().Get("email"),
		Role:     r.URL.Query().Get("role"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondError(w, r, apperr.New(apperr.EInvalidParameter, "invalid limit [%s]", raw))
			return
		}
		f.Limit = limit
	}

	results, err := h.credService.Search(r.Context(), id.TenantID, f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	views := make([]credentials.View, 0, len(results))
	for _, c := range results {
		views = append(views, c.View())
	}
	respondJSON(w, http.StatusOK, searchResponse{Total: len(views), Results: views})
}

// DeleteAllCredentials wipes every non-superadmin record of the
// tenant. Superadmin and above only.
func (h *Handler) DeleteAllCredentials(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := requireLevel(id, credentials.LevelSuperAdmin); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.credService.DeleteAllButSuperAdmins(r.Context(), id.TenantID); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

// GetCredentials returns one record's view.
func (h *Handler) GetCredentials(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	target, err := targetID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	c, err := h.credService.Get(r.Context(), id.TenantID, target)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c.View())
}

// UpdateCredentials mutates profile fields through the allow-list.
func (h *Handler) UpdateCredentials(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	target, err := targetID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req credentials.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	// Only admins may move records between groups or shift enable
	// windows; profile owners are limited to username and email.
	if !id.Credentials.Level().HasAtLeast(credentials.LevelAdmin) &&
		(req.GroupID != nil || req.EnableAfter != nil || req.DisableAfter != nil) {
		respondError(w, r, apperr.New(apperr.EForbidden, "insufficient rights"))
		return
	}

	c, err := h.credService.Update(r.Context(), id.TenantID, target, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c.View())
}

// DeleteCredentials removes a record.
func (h *Handler) DeleteCredentials(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	target, err := targetID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.credService.Delete(r.Context(), id.Credentials, id.TenantID, target); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

// GetRoles returns a record's role set.
func (h *Handler) GetRoles(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	target, err := targetID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	c, err := h.credService.Get(r.Context(), id.TenantID, target)
	if err != nil {
		respondError(w, r, err)
		return
	}
	roles := c.Roles
	if roles == nil {
		roles = []string{}
	}
	respondJSON(w, http.StatusOK, roles)
}

// GrantRole adds a role to a record. Admin and above only.
func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, h.credService.GrantRole)
}

// RevokeRole removes a role from a record. Admin and above only.
func (h *Handler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, h.credService.RevokeRole)
}

type roleChange func(ctx context.Context, actor *credentials.Credentials, tenantID, id, role string) (*credentials.Credentials, error)

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request, change roleChange) {
	id := identity(r)
	if err := requireLevel(id, credentials.LevelAdmin); err != nil {
		respondError(w, r, err)
		return
	}
	target, err := targetID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	role := chi.URLParam(r, "role")

	c, err := change(r.Context(), id.Credentials, id.TenantID, target, role)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c.View())
}

// GetEnabled reports the stored enabled flag.
func (h *Handler) GetEnabled(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	target, err := targetID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	c, err := h.credService.Get(r.Context(), id.TenantID, target)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"enabled": c.Enabled})
}

// SetEnabled flips the enabled flag. Admin and above only.
func (h *Handler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := requireLevel(id, credentials.LevelAdmin); err != nil {
		respondError(w, r, err)
		return
	}
	target, err := targetID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	c, err := h.credService.SetEnabled(r.Context(), id.TenantID, target, req.Enabled)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c.View())
}

// ClearEnableWindow drops the enable-after / disable-after window.
// Admin and above only.
func (h *Handler) ClearEnableWindow(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := requireLevel(id, credentials.LevelAdmin); err != nil {
		respondError(w, r, err)
		return
	}
	target, err := targetID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	c, err := h.credService.ClearEnableWindow(r.Context(), id.TenantID, target)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c.View())
}

type setPasswordRequest struct {
	Password          string `json:"password"`
	PasswordResetCode string `json:"passwordResetCode,omitempty"`
}

// SetPassword sets a record's password. Three callers are legal: the
// owner with a challenged password, a challenged superadmin, or an
// anonymous caller holding the record's reset code.
func (h *Handler) SetPassword(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	raw := chi.URLParam(r, "id")

	var req setPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	if req.PasswordResetCode != "" {
		if raw == "me" {
			respondError(w, r, apperr.New(apperr.EInvalidParameter, "reset codes apply to explicit credentials ids"))
			return
		}
		c, err := h.credService.SetPasswordWithCode(r.Context(), id.TenantID, raw, req.PasswordResetCode, req.Password)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, c.View())
		return
	}

	if err := id.RequireChallenged(); err != nil {
		respondError(w, r, err)
		return
	}
	target := raw
	if raw == "me" {
		target = id.Credentials.ID
	} else if id.Credentials.ID != raw {
		if err := requireLevel(id, credentials.LevelSuperAdmin); err != nil {
			respondError(w, r, err)
			return
		}
	}

	c, err := h.credService.SetPassword(r.Context(), id.Credentials, id.TenantID, target, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c.View())
}

// ResetPassword deletes the password and mints a one-time reset code.
// Superadmin and above only.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := requireLevel(id, credentials.LevelSuperAdmin); err != nil {
		respondError(w, r, err)
		return
	}
	target, err := targetID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	code, err := h.credService.ResetPassword(r.Context(), id.Credentials, id.TenantID, target)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"passwordResetCode": code})
}

// SetPasswordMustChange forces a password rotation on next login.
// Superadmin and above only.
func (h *Handler) SetPasswordMustChange(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := requireLevel(id, credentials.LevelSuperAdmin); err != nil {
		respondError(w, r, err)
		return
	}
	target, err := targetID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	c, err := h.credService.SetPasswordMustChange(r.Context(), id.TenantID, target)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c.View())
}

// Enable turns a record back on and resets its lockout counter.
// Admin and above only.
func (h *Handler) Enable(w http.ResponseWriter, r *http.Request) {
	h.enableOrDisable(w, r, true)
}

// Disable turns a record off. Admin and above only.
func (h *Handler) Disable(w http.ResponseWriter, r *http.Request) {
	h.enableOrDisable(w, r, false)
}

func (h *Handler) enableOrDisable(w http.ResponseWriter, r *http.Request, enabled bool) {
	id := identity(r)
	if err := requireLevel(id, credentials.LevelAdmin); err != nil {
		respondError(w, r, err)
		return
	}
	target, err := targetID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	c, err := h.credService.SetEnabled(r.Context(), id.TenantID, target, enabled)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c.View())
}

// ForgotPassword regenerates a reset code for a username. The response
// is identical whether the username exists or not.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	id := identity(r)

	var req struct {
		Username string `json:"username"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Username == "" {
		respondError(w, r, apperr.New(apperr.EInvalidParameter, "username is required"))
		return
	}

	if c, err := h.credService.GetByUsername(r.Context(), id.TenantID, req.Username); err == nil {
		// The code travels out of band. Failures are deliberately not
		// surfaced to the caller.
		_, _ = h.credService.ResetPassword(r.Context(), id.Credentials, id.TenantID, c.ID)
	}
	respondJSON(w, http.StatusOK, nil)
}
