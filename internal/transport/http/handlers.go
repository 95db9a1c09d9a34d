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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/doghouse-io/doghouse/internal/acl"
	"github.com/doghouse-io/doghouse/internal/apperr"
	"github.com/doghouse-io/doghouse/internal/authn"
	"github.com/doghouse-io/doghouse/internal/batch"
	"github.com/doghouse-io/doghouse/internal/credentials"
	"github.com/doghouse-io/doghouse/internal/session"
	"github.com/doghouse-io/doghouse/internal/settings"
	"github.com/doghouse-io/doghouse/internal/tenant"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	gate            *authn.Gate
	credService     *credentials.Service
	sessionManager  *session.Manager
	tenantService   *tenant.Service
	settingsService *settings.Service
	engine          *acl.Engine

	// dispatcher replays batch sub-requests through the router. It is
	// set after router construction because it wraps the router
	// itself.
	dispatcher *batch.Dispatcher
}

// NewHandler creates a new HTTP handler
func NewHandler(
	gate *authn.Gate,
	credService *credentials.Service,
	sessionManager *session.Manager,
	tenantService *tenant.Service,
	settingsService *settings.Service,
	engine *acl.Engine,
) *Handler {
	return &Handler{
		gate:            gate,
		credService:     credService,
		sessionManager:  sessionManager,
		tenantService:   tenantService,
		settingsService: settingsService,
		engine:          engine,
	}
}

// SetDispatcher wires the batch dispatcher once the router exists.
func (h *Handler) SetDispatcher(d *batch.Dispatcher) {
	h.dispatcher = d
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Get("/login", h.Login)
		r.Post("/login", h.Login)
		r.Get("/logout", h.Logout)
		r.Post("/logout", h.Logout)

		r.Route("/credentials", func(r chi.Router) {
			r.Post("/", h.CreateCredentials)
			r.Get("/", h.SearchCredentials)
			r.Delete("/", h.DeleteAllCredentials)
			r.Post("/forgotPassword", h.ForgotPassword)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetCredentials)
				r.Put("/", h.UpdateCredentials)
				r.Delete("/", h.DeleteCredentials)

				r.Get("/roles", h.GetRoles)
				r.Put("/roles/{role}", h.GrantRole)
				r.Delete("/roles/{role}", h.RevokeRole)

				r.Get("/enabled", h.GetEnabled)
				r.Put("/enabled", h.SetEnabled)
				r.Delete("/enabled", h.ClearEnableWindow)

				r.Post("/_set_password", h.SetPassword)
				r.Post("/_reset_password", h.ResetPassword)
				r.Post("/_password_must_change", h.SetPasswordMustChange)
				r.Post("/_enable", h.Enable)
				r.Post("/_disable", h.Disable)
			})
		})

		r.Route("/backend", func(r chi.Router) {
			r.Get("/", h.ListBackends)
			r.Post("/", h.CreateBackend)
			r.Get("/{id}", h.GetBackend)
			r.Post("/{id}", h.CreateBackendWithID)
			r.Delete("/{id}", h.DeleteBackend)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/credentials", h.GetCredentialsSettings)
			r.Put("/credentials", h.SetCredentialsSettings)
			r.Delete("/credentials", h.DeleteCredentialsSettings)

			r.Get("/acl/{type}", h.GetACL)
			r.Put("/acl/{type}", h.SetACL)
			r.Delete("/acl/{type}", h.DeleteACL)
		})

		r.Post("/authorize", h.Authorize)
		r.Post("/batch", h.Batch)
	})

	return r
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// identity pulls the resolved identity out of the request context. The
// auth middleware guarantees one on every route under it.
func identity(r *http.Request) *authn.Identity {
	id, ok := authn.IdentityFrom(r.Context())
	if !ok {
		return &authn.Identity{TenantID: tenant.RootID}
	}
	return id
}

// requireLevel refuses callers below the given rank. Anonymous callers
// get 401, authenticated ones 403.
func requireLevel(id *authn.Identity, level credentials.Level) error {
	if id.IsAnonymous() {
		return apperr.New(apperr.EUnauthorized, "authentication required")
	}
	if !id.Credentials.Level().HasAtLeast(level) {
		return apperr.New(apperr.EForbidden, "insufficient rights")
	}
	return nil
}

// authorizeRequest is the body of the /authorize check.
type authorizeRequest struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Owner  string `json:"owner,omitempty"`
	Group  string `json:"group,omitempty"`
}

// Authorize evaluates an access-control check on behalf of a
// downstream data service. The caller's identity and tenant come from
// this request; the target's type, action and ownership from the body.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	id := identity(r)

	var req authorizeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Type == "" || req.Action == "" {
		respondError(w, r, apperr.New(apperr.EInvalidParameter, "type and action are required"))
		return
	}

	err := h.engine.Authorize(r.Context(), id.Credentials, acl.Request{
		TenantID:     id.TenantID,
		ResourceType: req.Type,
		Action:       acl.Action(req.Action),
		TargetOwner:  req.Owner,
		TargetGroup:  req.Group,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"allowed": true})
}
