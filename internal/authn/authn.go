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

// Package authn is the authentication gate. It turns client-supplied
// material (Basic, Bearer, or an accessToken query parameter) into an
// Identity, enforcing lockout, enable windows and the
// password-must-change flag. Authorization is not its concern.
package authn

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/doghouse-io/doghouse/internal/apperr"
	"github.com/doghouse-io/doghouse/internal/audit"
	"github.com/doghouse-io/doghouse/internal/credentials"
	"github.com/doghouse-io/doghouse/internal/observability/metrics"
	"github.com/doghouse-io/doghouse/internal/session"
	"github.com/doghouse-io/doghouse/internal/tenant"
)

// TenantHeader names the request header carrying the target tenant id.
const TenantHeader = "X-Doghouse-Backend"

// Identity is an authenticated (or anonymous) caller.
type Identity struct {
	// Credentials is nil for an anonymous caller.
	Credentials *credentials.Credentials

	// TenantID is the tenant the caller acts on. For authenticated
	// callers it comes from the session or record, except for a
	// superdog whose record lives in the root tenant while acting on
	// the requested one.
	TenantID string

	// Session is set when the caller presented an access token.
	Session credentials.Session

	// Challenged reports that a password was verified on this request.
	Challenged bool
}

// IsAnonymous reports an identity without credentials.
func (i *Identity) IsAnonymous() bool { return i == nil || i.Credentials == nil }

// RequireChallenged refuses identities that did not prove password
// possession on this very request. Identity-sensitive mutations demand
// it; a stolen token alone must not suffice.
func (i *Identity) RequireChallenged() error {
	if i.IsAnonymous() {
		return apperr.New(apperr.EUnauthorized, "authentication required")
	}
	if !i.Challenged {
		return apperr.New(apperr.EUnchallengedPassword, "this operation requires a password challenge")
	}
	return nil
}

// Credential is the parsed authentication material of one request.
type Credential struct {
	Username string
	Password string
	Token    string
	TenantID string
}

// IsZero reports that no material was presented.
func (c Credential) IsZero() bool {
	return c.Username == "" && c.Password == "" && c.Token == ""
}

// FromRequest extracts authentication material and the requested
// tenant from an HTTP request. Tenant resolution order: header, then
// query parameter, then the root tenant.
func FromRequest(r *http.Request) Credential {
	c := Credential{TenantID: tenant.RootID}
	if h := r.Header.Get(TenantHeader); h != "" {
		c.TenantID = h
	} else if q := r.URL.Query().Get("backend"); q != "" {
		c.TenantID = q
	}

	auth := r.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(auth, "Basic "):
		if raw, err := base64.StdEncoding.DecodeString(auth[len("Basic "):]); err == nil {
			if user, pass, found := strings.Cut(string(raw), ":"); found {
				c.Username = user
				c.Password = pass
			}
		}
	case strings.HasPrefix(auth, "Bearer "):
		c.Token = strings.TrimSpace(auth[len("Bearer "):])
	default:
		c.Token = r.URL.Query().Get("accessToken")
	}
	return c
}

// Options tune gate behavior per route.
type Options struct {
	// AllowPasswordMustChange lets a flagged record through. Only the
	// set-password and logout routes set it.
	AllowPasswordMustChange bool
}

// Gate authenticates requests.
type Gate struct {
	creds       *credentials.Service
	sessions    *session.Manager
	meter       *metrics.Meter
	auditLogger audit.Logger
	now         func() time.Time

	// checks counts credential resolutions against the store. A batch
	// of N sub-requests bumps it once, not N times.
	checks atomic.Int64
}

// NewGate creates an authentication gate.
func NewGate(creds *credentials.Service, sessions *session.Manager, meter *metrics.Meter, auditLogger audit.Logger) *Gate {
	return &Gate{
		creds:       creds,
		sessions:    sessions,
		meter:       meter,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// CheckCount returns the number of credential checks performed.
func (g *Gate) CheckCount() int64 { return g.checks.Load() }

// Authenticate resolves the material into an Identity. Anonymous
// material yields an anonymous identity scoped to the requested
// tenant, not an error.
func (g *Gate) Authenticate(ctx context.Context, c Credential, opts Options) (*Identity, error) {
	if c.IsZero() {
		return &Identity{TenantID: c.TenantID}, nil
	}

	id, err := g.resolve(ctx, c)
	if err != nil {
		return nil, err
	}

	if !id.Credentials.IsEnabled(g.now()) {
		return nil, apperr.New(apperr.EDisabledCredentials, "credentials are disabled")
	}
	if id.Credentials.PasswordMustChange && !opts.AllowPasswordMustChange {
		return nil, apperr.New(apperr.EPasswordMustChange, "password must be changed")
	}
	return id, nil
}

func (g *Gate) resolve(ctx context.Context, c Credential) (*Identity, error) {
	g.checks.Add(1)
	g.meter.CredentialChecks.Add(ctx, 1)

	if c.Token != "" {
		return g.resolveToken(ctx, c.Token, c.TenantID)
	}

	// Basic with an issued access token in the password slot is
	// accepted for clients that cannot send a Bearer header.
	if id, err := g.resolveToken(ctx, c.Password, c.TenantID); err == nil {
		if id.Credentials.Username == c.Username {
			return id, nil
		}
	}

	cred, err := g.creds.CheckUsernamePassword(ctx, c.TenantID, c.Username, c.Password)
	if apperr.Is(err, apperr.EUnknownUsername) && c.TenantID != tenant.RootID {
		// Superdog records live only in the root tenant but may act
		// on any tenant.
		root, rootErr := g.creds.CheckUsernamePassword(ctx, tenant.RootID, c.Username, c.Password)
		if rootErr == nil && root.IsSuperdog() {
			cred, err = root, nil
		}
	}
	if err != nil {
		g.meter.LoginFailures.Add(ctx, 1)
		g.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			TenantID: c.TenantID,
			Metadata: map[string]any{"username": c.Username},
		})
		return nil, err
	}

	g.meter.Logins.Add(ctx, 1)
	g.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLoginSuccess,
		TenantID: c.TenantID,
		ActorID:  cred.ID,
	})
	return &Identity{
		Credentials: cred,
		TenantID:    c.TenantID,
		Challenged:  true,
	}, nil
}

func (g *Gate) resolveToken(ctx context.Context, token, requestedTenant string) (*Identity, error) {
	cred, sess, err := g.sessions.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	tenantID := sess.TenantID
	if cred.IsSuperdog() && requestedTenant != "" && requestedTenant != tenantID {
		tenantID = requestedTenant
	}
	return &Identity{
		Credentials: cred,
		TenantID:    tenantID,
		Session:     sess,
	}, nil
}
