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

// Package batch replays a list of sub-requests through the router with
// the caller's identity resolved exactly once. Oversized batches are
// rejected wholesale before any sub-request runs.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/doghouse-io/doghouse/internal/apperr"
	"github.com/doghouse-io/doghouse/internal/observability/metrics"
)

// MaxRequests bounds the number of sub-requests per batch.
const MaxRequests = 10

// Request is one sub-request of a batch.
type Request struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Content json.RawMessage   `json:"content,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
}

// Response is the outcome of one sub-request.
type Response struct {
	Success bool            `json:"success"`
	Status  int             `json:"status"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Dispatcher replays sub-requests through an HTTP handler.
type Dispatcher struct {
	handler http.Handler
	meter   *metrics.Meter
}

// NewDispatcher creates a batch dispatcher around the router.
func NewDispatcher(handler http.Handler, meter *metrics.Meter) *Dispatcher {
	return &Dispatcher{handler: handler, meter: meter}
}

// Dispatch runs the batch. The context must already carry the caller's
// identity; no sub-request authenticates on its own.
func (d *Dispatcher) Dispatch(ctx context.Context, reqs []Request) ([]Response, error) {
	if len(reqs) > MaxRequests {
		return nil, apperr.New(apperr.EBatchLimitExceeded,
			"batch of [%d] requests exceeds the limit of [%d]", len(reqs), MaxRequests)
	}
	d.meter.BatchSize.Record(ctx, int64(len(reqs)))

	responses := make([]Response, 0, len(reqs))
	for _, sub := range reqs {
		responses = append(responses, d.dispatchOne(ctx, sub))
	}
	return responses, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, sub Request) Response {
	var body *bytes.Reader
	if len(sub.Content) > 0 {
		body = bytes.NewReader(sub.Content)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, sub.Method, sub.Path, body)
	if err != nil {
		msg, _ := json.Marshal(map[string]string{"error": "invalid-parameter"})
		return Response{Status: http.StatusBadRequest, Content: msg}
	}
	req.Header.Set("Content-Type", "application/json")
	q := req.URL.Query()
	for k, v := range sub.Params {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()

	rec := httptest.NewRecorder()
	d.handler.ServeHTTP(rec, req)

	var content json.RawMessage
	if b := rec.Body.Bytes(); len(b) > 0 {
		content = json.RawMessage(b)
	}
	return Response{
		Success: rec.Code < 400,
		Status:  rec.Code,
		Content: content,
	}
}
