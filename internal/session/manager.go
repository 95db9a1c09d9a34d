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

// Package session manages opaque access tokens. A token is random,
// carries no claims, and lives inside the credentials record that
// issued it; a record holds at most credentials.MaxSessions of them,
// the oldest being evicted on overflow. An evicted token becomes
// indistinguishable from one that never existed.
package session

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/doghouse-io/doghouse/internal/apperr"
	"github.com/doghouse-io/doghouse/internal/audit"
	"github.com/doghouse-io/doghouse/internal/credentials"
)

const casRetries = 3

// Manager issues, validates and revokes access tokens.
type Manager struct {
	repo        credentials.Repository
	settings    credentials.SettingsSource
	auditLogger audit.Logger
	now         func() time.Time
}

// NewManager creates a session manager.
func NewManager(repo credentials.Repository, settings credentials.SettingsSource, auditLogger audit.Logger) *Manager {
	return &Manager{
		repo:        repo,
		settings:    settings,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// Issue mints a new session for the record. tenantID is the tenant
// the session acts on; it differs from the record's own tenant only
// for superdogs. requestedLifetime is in seconds; zero selects the
// tenant's default. A request beyond the tenant maximum is refused
// rather than clamped.
func (m *Manager) Issue(ctx context.Context, c *credentials.Credentials, tenantID string, requestedLifetime int64) (credentials.Session, error) {
	if tenantID == "" {
		tenantID = c.TenantID
	}
	settings, err := m.settings.CredentialsSettings(ctx, tenantID)
	if err != nil {
		return credentials.Session{}, err
	}
	if requestedLifetime > settings.SessionMaximumLifetime {
		return credentials.Session{}, apperr.New(apperr.ELifetimeExceedsMaximum,
			"session lifetime [%d] exceeds maximum [%d]", requestedLifetime, settings.SessionMaximumLifetime)
	}
	lifetime := requestedLifetime
	if lifetime <= 0 {
		lifetime = settings.SessionDefaultLifetime
	}
	if lifetime > settings.SessionMaximumLifetime {
		lifetime = settings.SessionMaximumLifetime
	}

	now := m.now()
	sess := credentials.Session{
		Token:     newToken(),
		TenantID:  tenantID,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Duration(lifetime) * time.Second),
	}

	var evicted []credentials.Session
	err = m.update(ctx, c.TenantID, c.ID, func(stored *credentials.Credentials) {
		evicted = stored.AppendSession(sess)
		*c = *stored
	})
	if err != nil {
		return credentials.Session{}, err
	}

	m.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenIssued,
		TenantID: tenantID,
		ActorID:  c.ID,
	})
	for _, e := range evicted {
		m.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeTokenEvicted,
			TenantID: e.TenantID,
			ActorID:  c.ID,
		})
	}
	return sess, nil
}

// Validate resolves a token to its owning record and session. A token
// that was never issued or has been evicted or revoked fails as
// invalid; a token still on the record but past its expiry fails as
// expired.
func (m *Manager) Validate(ctx context.Context, token string) (*credentials.Credentials, credentials.Session, error) {
	c, err := m.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, credentials.Session{}, err
	}
	sess, ok := c.SessionByToken(token)
	if !ok {
		return nil, credentials.Session{}, apperr.New(apperr.EInvalidAccessToken, "access token is invalid")
	}
	if !m.now().Before(sess.ExpiresAt) {
		return nil, credentials.Session{}, apperr.New(apperr.EExpiredAccessToken, "access token has expired")
	}
	return c, sess, nil
}

// Revoke removes the session carrying the token. Revocation is not
// idempotent: a second revoke of the same token fails as invalid.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	c, err := m.repo.GetByToken(ctx, token)
	if err != nil {
		return err
	}
	err = m.update(ctx, c.TenantID, c.ID, func(stored *credentials.Credentials) {
		stored.RemoveSession(token)
	})
	if err != nil {
		return err
	}
	m.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenRevoked,
		TenantID: c.TenantID,
		ActorID:  c.ID,
	})
	return nil
}

// RevokeAll removes every session of a record.
func (m *Manager) RevokeAll(ctx context.Context, tenantID, id string) error {
	err := m.update(ctx, tenantID, id, func(stored *credentials.Credentials) {
		stored.ClearSessions()
	})
	if err != nil {
		return err
	}
	m.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenRevoked,
		TenantID: tenantID,
		ActorID:  id,
		Metadata: map[string]any{"all": true},
	})
	return nil
}

func (m *Manager) update(ctx context.Context, tenantID, id string, fn func(*credentials.Credentials)) error {
	var lastErr error
	for range casRetries {
		stored, err := m.repo.Get(ctx, tenantID, id)
		if err != nil {
			return err
		}
		fn(stored)
		stored.UpdatedAt = m.now()
		if err := m.repo.Update(ctx, stored); err != nil {
			if apperr.Is(err, apperr.EVersionConflict) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return lastErr
}

// newToken returns an opaque token. The hyphens of the underlying uuid
// are stripped so the token survives naive header and query parsing.
func newToken() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
