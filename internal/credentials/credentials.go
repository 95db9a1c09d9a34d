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

// Package credentials holds the identity records of a tenant: who can
// authenticate, under which roles, and with which sessions. A record
// exclusively owns its ordered session list, most recent first.
package credentials

import (
	"context"
	"time"
)

// MaxSessions bounds the session list per credentials record. Issuing a
// session beyond the bound evicts the oldest one.
const MaxSessions = 10

// Credentials is an authenticatable identity within a tenant.
type Credentials struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Version   int64     `json:"version"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Enabled   bool      `json:"enabled"`
	Roles     []string  `json:"roles"`
	GroupID   string    `json:"groupId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	EnableAfter  *time.Time `json:"enableAfter,omitempty"`
	DisableAfter *time.Time `json:"disableAfter,omitempty"`

	PasswordMustChange     bool       `json:"passwordMustChange"`
	InvalidChallenges      int        `json:"invalidChallenges"`
	LastInvalidChallengeAt *time.Time `json:"lastInvalidChallengeAt,omitempty"`

	// Never serialized to clients; the transport layer renders a View.
	HashedPassword    string    `json:"hashedPassword,omitempty"`
	PasswordResetCode string    `json:"passwordResetCode,omitempty"`
	Sessions          []Session `json:"sessions,omitempty"`
}

// Session is an opaque bearer token bound to this credentials record.
// Sessions are immutable once issued; they end by logout, expiry, or
// eviction from the bounded list.
type Session struct {
	Token     string    `json:"token"`
	TenantID  string    `json:"tenantId"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ExpiresIn returns the remaining lifetime in seconds, rounded up.
// Zero means expired.
func (s Session) ExpiresIn(now time.Time) int64 {
	d := s.ExpiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}

// Group returns the sharing scope of the record, defaulting to its id.
func (c *Credentials) Group() string {
	if c.GroupID != "" {
		return c.GroupID
	}
	return c.ID
}

// HasRole reports whether the record carries the given role.
func (c *Credentials) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AddRole appends a role if not already present.
func (c *Credentials) AddRole(role string) {
	if !c.HasRole(role) {
		c.Roles = append(c.Roles, role)
	}
}

// RemoveRole removes a role if present.
func (c *Credentials) RemoveRole(role string) {
	for i, r := range c.Roles {
		if r == role {
			c.Roles = append(c.Roles[:i], c.Roles[i+1:]...)
			return
		}
	}
}

// Level returns the derived rank of the record.
func (c *Credentials) Level() Level {
	switch {
	case c.HasRole(RoleSuperdog):
		return LevelSuperdog
	case c.HasRole(RoleSuperAdmin):
		return LevelSuperAdmin
	case c.HasRole(RoleAdmin):
		return LevelAdmin
	case c.HasRole(RoleUser):
		return LevelUser
	default:
		return LevelKey
	}
}

// IsSuperdog reports whether the record is the cross-tenant identity
// class authenticated in the root tenant.
func (c *Credentials) IsSuperdog() bool { return c.HasRole(RoleSuperdog) }

// IsAtLeastSuperAdmin reports superadmin or superdog rank.
func (c *Credentials) IsAtLeastSuperAdmin() bool { return c.Level().HasAtLeast(LevelSuperAdmin) }

// IsEnabled evaluates the enabled flag together with the enable-after /
// disable-after window at the given instant. The flag is a hard off
// switch; the window further constrains an enabled record. When
// disableAfter precedes enableAfter the record is disabled only between
// the two instants.
func (c *Credentials) IsEnabled(now time.Time) bool {
	if !c.Enabled {
		return false
	}
	ea, da := c.EnableAfter, c.DisableAfter
	switch {
	case ea == nil && da == nil:
		return true
	case ea == nil:
		return now.Before(*da)
	case da == nil:
		return now.After(*ea)
	case da.Before(*ea):
		// wrapped window: disabled between disableAfter and enableAfter
		return now.Before(*da) || now.After(*ea)
	default:
		return now.After(*ea) && now.Before(*da)
	}
}

// SessionByToken returns the session carrying the token, if any.
func (c *Credentials) SessionByToken(token string) (Session, bool) {
	for _, s := range c.Sessions {
		if s.Token == token {
			return s, true
		}
	}
	return Session{}, false
}

// AppendSession appends a session and evicts beyond MaxSessions,
// returning the evicted sessions (oldest first). The list is kept
// ordered by issuance, oldest first.
func (c *Credentials) AppendSession(s Session) []Session {
	c.Sessions = append(c.Sessions, s)
	if len(c.Sessions) <= MaxSessions {
		return nil
	}
	n := len(c.Sessions) - MaxSessions
	evicted := make([]Session, n)
	copy(evicted, c.Sessions[:n])
	c.Sessions = append(c.Sessions[:0], c.Sessions[n:]...)
	return evicted
}

// RemoveSession deletes the session carrying the token. It reports
// whether a session was removed.
func (c *Credentials) RemoveSession(token string) bool {
	for i, s := range c.Sessions {
		if s.Token == token {
			c.Sessions = append(c.Sessions[:i], c.Sessions[i+1:]...)
			return true
		}
	}
	return false
}

// ClearSessions drops every session. Used when the password changes so
// that no outstanding token ever validates again.
func (c *Credentials) ClearSessions() {
	c.Sessions = nil
}

// View is the client-facing rendering of a record: secrets stripped.
type View struct {
	ID                 string     `json:"id"`
	TenantID           string     `json:"tenantId"`
	Version            int64      `json:"version"`
	Username           string     `json:"username"`
	Email              string     `json:"email,omitempty"`
	Enabled            bool       `json:"enabled"`
	Roles              []string   `json:"roles"`
	GroupID            string     `json:"groupId,omitempty"`
	EnableAfter        *time.Time `json:"enableAfter,omitempty"`
	DisableAfter       *time.Time `json:"disableAfter,omitempty"`
	PasswordMustChange bool       `json:"passwordMustChange"`
	InvalidChallenges  int        `json:"invalidChallenges"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// View renders the record for clients.
func (c *Credentials) View() View {
	roles := c.Roles
	if roles == nil {
		roles = []string{}
	}
	return View{
		ID:                 c.ID,
		TenantID:           c.TenantID,
		Version:            c.Version,
		Username:           c.Username,
		Email:              c.Email,
		Enabled:            c.Enabled,
		Roles:              roles,
		GroupID:            c.GroupID,
		EnableAfter:        c.EnableAfter,
		DisableAfter:       c.DisableAfter,
		PasswordMustChange: c.PasswordMustChange,
		InvalidChallenges:  c.InvalidChallenges,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}

// Filter narrows a tenant-scoped search.
type Filter struct {
	Username string
	Email    string
	Role     string
	Limit    int
}

// Repository defines the persistence operations required by the
// credentials subsystem. Update is an atomic compare-and-set on
// Version; implementations return apperr.EVersionConflict on a race.
type Repository interface {
	// Create persists a new record; fails with apperr.EAlreadyExists
	// if the username is taken within the tenant.
	Create(ctx context.Context, c *Credentials) error

	// Get retrieves a record by id within a tenant.
	Get(ctx context.Context, tenantID, id string) (*Credentials, error)

	// GetByUsername retrieves a record by username within a tenant.
	GetByUsername(ctx context.Context, tenantID, username string) (*Credentials, error)

	// GetByToken resolves an access token to the record owning it,
	// across all tenants. Fails with apperr.EInvalidAccessToken when
	// no session carries the token.
	GetByToken(ctx context.Context, token string) (*Credentials, error)

	// Update persists a mutated record iff the stored version still
	// matches c.Version, then increments it.
	Update(ctx context.Context, c *Credentials) error

	// Delete removes a record and its sessions.
	Delete(ctx context.Context, tenantID, id string) error

	// DeleteByTenant removes every record of a tenant. When
	// keepSuperAdmins is set, superadmin records survive.
	DeleteByTenant(ctx context.Context, tenantID string, keepSuperAdmins bool) error

	// Search lists tenant records matching the filter.
	Search(ctx context.Context, tenantID string, f Filter) ([]*Credentials, error)

	// CountByRole counts tenant records carrying the role.
	CountByRole(ctx context.Context, tenantID, role string) (int, error)
}
