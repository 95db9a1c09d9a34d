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
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/doghouse-io/doghouse/internal/apperr"
	"github.com/doghouse-io/doghouse/internal/observability/logger"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a platform error. Unknown-username and
// invalid-password collapse into one generic body so login responses
// do not leak which usernames exist.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.ErrorCode(err)
	status := apperr.HTTPStatus(err)
	msg := apperr.ErrorMessage(err)

	switch code {
	case apperr.EUnknownUsername, apperr.EInvalidPassword:
		code = apperr.EUnauthorized
		msg = "invalid username or password"
	case apperr.EInternal:
		slog.ErrorContext(r.Context(), "internal error",
			logger.Path(r.URL.Path),
			logger.Error(err),
		)
		msg = "internal error"
	}

	respondJSON(w, status, errorBody{Error: code, Message: msg})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.New(apperr.EInvalidParameter, "invalid request body")
	}
	return nil
}
