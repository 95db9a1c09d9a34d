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

	"github.com/doghouse-io/doghouse/internal/apperr"
	"github.com/doghouse-io/doghouse/internal/batch"
)

// Batch replays up to batch.MaxRequests sub-requests with the identity
// this request already resolved. Authorization still runs per
// sub-request; authentication does not.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	if h.dispatcher == nil {
		respondError(w, r, apperr.New(apperr.EInternal, "batch dispatcher not configured"))
		return
	}

	var reqs []batch.Request
	if err := decodeJSON(r, &reqs); err != nil {
		respondError(w, r, err)
		return
	}

	responses, err := h.dispatcher.Dispatch(r.Context(), reqs)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, responses)
}
