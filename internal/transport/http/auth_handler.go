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
	"time"

	"github.com/doghouse-io/doghouse/internal/apperr"
	"github.com/doghouse-io/doghouse/internal/credentials"
)

type loginResponse struct {
	AccessToken string           `json:"accessToken"`
	ExpiresIn   int64            `json:"expiresIn"`
	Credentials credentials.View `json:"credentials"`
}

// Login issues (or returns) an access token. A password-challenged
// caller gets a fresh session; a caller presenting a still-valid
// token gets the same token back without rotation.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if id.IsAnonymous() {
		respondError(w, r, apperr.New(apperr.EUnauthorized, "authentication required"))
		return
	}

	sess := id.Session
	if id.Challenged {
		lifetime, err := parseLifetime(r)
		if err != nil {
			respondError(w, r, err)
			return
		}
		sess, err = h.sessionManager.Issue(r.Context(), id.Credentials, id.TenantID, lifetime)
		if err != nil {
			respondError(w, r, err)
			return
		}
	}

	respondJSON(w, http.StatusOK, loginResponse{
		AccessToken: sess.Token,
		ExpiresIn:   sess.ExpiresIn(time.Now()),
		Credentials: id.Credentials.View(),
	})
}

// Logout revokes the presented token. A second logout with the same
// token fails: the token is gone, and gone tokens are invalid.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if id.IsAnonymous() || id.Session.Token == "" {
		respondError(w, r, apperr.New(apperr.EInvalidAccessToken, "no access token to revoke"))
		return
	}

	if err := h.sessionManager.Revoke(r.Context(), id.Session.Token); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

func parseLifetime(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("lifetime")
	if raw == "" {
		return 0, nil
	}
	lifetime, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || lifetime < 0 {
		return 0, apperr.New(apperr.EInvalidParameter, "invalid lifetime [%s]", raw)
	}
	return lifetime, nil
}
