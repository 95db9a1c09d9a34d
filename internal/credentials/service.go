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

package credentials

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/doghouse-io/doghouse/internal/apperr"
	"github.com/doghouse-io/doghouse/internal/audit"
)

// casRetries bounds the re-fetch loop around compare-and-set updates
// that lose a version race against a concurrent writer.
const casRetries = 3

// Service provides credentials business logic.
type Service struct {
	repo        Repository
	hasher      *Hasher
	settings    SettingsSource
	auditLogger audit.Logger
	now         func() time.Time
}

// NewService creates a credentials service.
func NewService(repo Repository, hasher *Hasher, settings SettingsSource, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		hasher:      hasher,
		settings:    settings,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// CreateRequest carries the caller-supplied fields of a new record.
// An empty Password produces an invite: the record is created without
// a password hash and a single-use reset code is returned instead.
type CreateRequest struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Password string   `json:"password,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	GroupID  string   `json:"groupId,omitempty"`
}

// Create creates a new credentials record. actor is nil for guest
// sign-up. The returned string is the password reset code, non-empty
// only when no password was supplied.
func (s *Service) Create(ctx context.Context, tenantID string, req CreateRequest, actor *Credentials) (*Credentials, string, error) {
	const op = "credentials.Create"

	settings, err := s.settings.CredentialsSettings(ctx, tenantID)
	if err != nil {
		return nil, "", apperr.Wrap(op, err)
	}
	if settings.DisableGuestSignUp && actor == nil {
		return nil, "", apperr.New(apperr.EForbidden, "guest sign-up is disabled")
	}
	if err := checkPattern("username", req.Username, settings.UsernameRegex); err != nil {
		return nil, "", err
	}
	if req.Email == "" {
		return nil, "", apperr.New(apperr.EInvalidParameter, "email is required")
	}

	actorLevel := LevelKey
	if actor != nil {
		actorLevel = actor.Level()
	}
	roles := req.Roles
	if len(roles) == 0 {
		roles = []string{RoleUser}
	}
	for _, role := range roles {
		if err := CheckRole(role); err != nil {
			return nil, "", err
		}
		if !CanManage(actorLevel, role) {
			return nil, "", apperr.New(apperr.EForbidden, "insufficient rights to grant role [%s]", role)
		}
	}

	if _, err := s.repo.GetByUsername(ctx, tenantID, req.Username); err == nil {
		return nil, "", apperr.New(apperr.EAlreadyExists, "username [%s] already exists", req.Username)
	}

	now := s.now()
	c := &Credentials{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Username:  req.Username,
		Email:     req.Email,
		Enabled:   true,
		Roles:     roles,
		GroupID:   req.GroupID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var resetCode string
	if req.Password == "" {
		resetCode = uuid.New().String()
		c.PasswordResetCode = resetCode
	} else {
		if err := checkPattern("password", req.Password, settings.PasswordRegex); err != nil {
			return nil, "", err
		}
		hashed, err := s.hasher.Hash(req.Password)
		if err != nil {
			return nil, "", apperr.Wrap(op, err)
		}
		c.HashedPassword = hashed
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, "", err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeCredentialsCreated,
		TenantID: tenantID,
		ActorID:  actorID(actor),
		Resource: c.ID,
		Metadata: map[string]any{"username": c.Username, "roles": roles},
	})
	return c, resetCode, nil
}

// CreateWithRoles creates a record with an explicit role set, skipping
// the actor rank and guest sign-up checks. Bootstrap paths only: the
// first superadmin of a fresh backend, and the platform superdog.
func (s *Service) CreateWithRoles(ctx context.Context, tenantID string, req CreateRequest, roles []string) (*Credentials, error) {
	const op = "credentials.CreateWithRoles"

	settings, err := s.settings.CredentialsSettings(ctx, tenantID)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	if err := checkPattern("username", req.Username, settings.UsernameRegex); err != nil {
		return nil, err
	}
	if err := checkPattern("password", req.Password, settings.PasswordRegex); err != nil {
		return nil, err
	}
	if req.Email == "" {
		return nil, apperr.New(apperr.EInvalidParameter, "email is required")
	}
	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}

	now := s.now()
	c := &Credentials{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		Username:       req.Username,
		Email:          req.Email,
		Enabled:        true,
		Roles:          append([]string(nil), roles...),
		HashedPassword: hashed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeCredentialsCreated,
		TenantID: tenantID,
		Resource: c.ID,
		Metadata: map[string]any{"username": c.Username, "roles": roles},
	})
	return c, nil
}

// Get retrieves a record by id.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*Credentials, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// GetByUsername retrieves a record by username.
func (s *Service) GetByUsername(ctx context.Context, tenantID, username string) (*Credentials, error) {
	return s.repo.GetByUsername(ctx, tenantID, username)
}

// Search lists tenant records matching the filter.
func (s *Service) Search(ctx context.Context, tenantID string, f Filter) ([]*Credentials, error) {
	return s.repo.Search(ctx, tenantID, f)
}

// UpdateRequest carries the mutable profile fields. Nil pointers leave
// the stored value untouched.
type UpdateRequest struct {
	Username     *string    `json:"username,omitempty"`
	Email        *string    `json:"email,omitempty"`
	GroupID      *string    `json:"groupId,omitempty"`
	EnableAfter  *time.Time `json:"enableAfter,omitempty"`
	DisableAfter *time.Time `json:"disableAfter,omitempty"`
}

// Update mutates a record's profile fields under compare-and-set.
func (s *Service) Update(ctx context.Context, tenantID, id string, req UpdateRequest) (*Credentials, error) {
	var updated *Credentials
	err := s.withRetry(ctx, tenantID, id, func(c *Credentials) error {
		if req.Username != nil && *req.Username != c.Username {
			settings, err := s.settings.CredentialsSettings(ctx, tenantID)
			if err != nil {
				return err
			}
			if err := checkPattern("username", *req.Username, settings.UsernameRegex); err != nil {
				return err
			}
			if _, err := s.repo.GetByUsername(ctx, tenantID, *req.Username); err == nil {
				return apperr.New(apperr.EAlreadyExists, "username [%s] already exists", *req.Username)
			}
			c.Username = *req.Username
		}
		if req.Email != nil {
			if *req.Email == "" {
				return apperr.New(apperr.EInvalidParameter, "email is required")
			}
			c.Email = *req.Email
		}
		if req.GroupID != nil {
			c.GroupID = *req.GroupID
		}
		if req.EnableAfter != nil {
			c.EnableAfter = req.EnableAfter
		}
		if req.DisableAfter != nil {
			c.DisableAfter = req.DisableAfter
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a record. A record holding the superdog role is never
// deletable, and the last superadmin of a tenant cannot be deleted.
func (s *Service) Delete(ctx context.Context, actor *Credentials, tenantID, id string) error {
	c, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if c.HasRole(RoleSuperdog) {
		return apperr.New(apperr.EForbidden, "superdog credentials cannot be deleted")
	}
	if c.HasRole(RoleSuperAdmin) {
		n, err := s.repo.CountByRole(ctx, tenantID, RoleSuperAdmin)
		if err != nil {
			return err
		}
		if n <= 1 {
			return apperr.New(apperr.EForbidden, "backend [%s] must keep at least one superadmin", tenantID)
		}
	}
	if actor != nil && actor.ID != c.ID && !CanManage(actor.Level(), topRole(c)) {
		return apperr.New(apperr.EForbidden, "insufficient rights to delete credentials [%s]", id)
	}
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeCredentialsDeleted,
		TenantID: tenantID,
		ActorID:  actorID(actor),
		Resource: id,
		Metadata: map[string]any{"username": c.Username},
	})
	return nil
}

// DeleteAllButSuperAdmins removes every non-superadmin record of a
// tenant in one sweep.
func (s *Service) DeleteAllButSuperAdmins(ctx context.Context, tenantID string) error {
	return s.repo.DeleteByTenant(ctx, tenantID, true)
}

// DeleteTenant removes all records of a tenant, superadmins included.
// Registered as a cascade on tenant deletion.
func (s *Service) DeleteTenant(ctx context.Context, tenantID string) error {
	return s.repo.DeleteByTenant(ctx, tenantID, false)
}

// SetRoles replaces the role set of a record.
func (s *Service) SetRoles(ctx context.Context, actor *Credentials, tenantID, id string, roles []string) (*Credentials, error) {
	actorLevel := levelOf(actor)
	for _, role := range roles {
		if err := CheckRole(role); err != nil {
			return nil, err
		}
		if !CanManage(actorLevel, role) {
			return nil, apperr.New(apperr.EForbidden, "insufficient rights to grant role [%s]", role)
		}
	}
	var updated *Credentials
	err := s.withRetry(ctx, tenantID, id, func(c *Credentials) error {
		if err := s.checkSuperAdminFloor(ctx, c, roles); err != nil {
			return err
		}
		c.Roles = append([]string(nil), roles...)
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleGranted,
		TenantID: tenantID,
		ActorID:  actorID(actor),
		Resource: id,
		Metadata: map[string]any{"roles": roles},
	})
	return updated, nil
}

// GrantRole adds a role to a record.
func (s *Service) GrantRole(ctx context.Context, actor *Credentials, tenantID, id, role string) (*Credentials, error) {
	if err := CheckRole(role); err != nil {
		return nil, err
	}
	if !CanManage(levelOf(actor), role) {
		return nil, apperr.New(apperr.EForbidden, "insufficient rights to grant role [%s]", role)
	}
	var updated *Credentials
	err := s.withRetry(ctx, tenantID, id, func(c *Credentials) error {
		c.AddRole(role)
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleGranted,
		TenantID: tenantID,
		ActorID:  actorID(actor),
		Resource: id,
		Metadata: map[string]any{"role": role},
	})
	return updated, nil
}

// RevokeRole removes a role from a record. Revoking superadmin from
// the last superadmin of a tenant is refused.
func (s *Service) RevokeRole(ctx context.Context, actor *Credentials, tenantID, id, role string) (*Credentials, error) {
	if err := CheckRole(role); err != nil {
		return nil, err
	}
	if !CanManage(levelOf(actor), role) {
		return nil, apperr.New(apperr.EForbidden, "insufficient rights to revoke role [%s]", role)
	}
	var updated *Credentials
	err := s.withRetry(ctx, tenantID, id, func(c *Credentials) error {
		if role == RoleSuperAdmin && c.HasRole(RoleSuperAdmin) {
			n, err := s.repo.CountByRole(ctx, tenantID, RoleSuperAdmin)
			if err != nil {
				return err
			}
			if n <= 1 {
				return apperr.New(apperr.EForbidden, "backend [%s] must keep at least one superadmin", tenantID)
			}
		}
		c.RemoveRole(role)
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleRevoked,
		TenantID: tenantID,
		ActorID:  actorID(actor),
		Resource: id,
		Metadata: map[string]any{"role": role},
	})
	return updated, nil
}

// SetEnabled flips the enabled flag. Enabling also resets the invalid
// challenge counter so a previously locked record can log in again.
func (s *Service) SetEnabled(ctx context.Context, tenantID, id string, enabled bool) (*Credentials, error) {
	var updated *Credentials
	err := s.withRetry(ctx, tenantID, id, func(c *Credentials) error {
		c.Enabled = enabled
		if enabled {
			c.InvalidChallenges = 0
			c.LastInvalidChallengeAt = nil
		}
		updated = c
		return nil
	})
	return updated, err
}

// ClearEnableWindow drops the enable-after / disable-after window,
// leaving only the enabled flag in force.
func (s *Service) ClearEnableWindow(ctx context.Context, tenantID, id string) (*Credentials, error) {
	var updated *Credentials
	err := s.withRetry(ctx, tenantID, id, func(c *Credentials) error {
		c.EnableAfter = nil
		c.DisableAfter = nil
		updated = c
		return nil
	})
	return updated, err
}

// SetPassword sets a record's password to a known value, consuming any
// pending reset code and revoking every session.
func (s *Service) SetPassword(ctx context.Context, actor *Credentials, tenantID, id, password string) (*Credentials, error) {
	settings, err := s.settings.CredentialsSettings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := checkPattern("password", password, settings.PasswordRegex); err != nil {
		return nil, err
	}
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperr.Wrap("credentials.SetPassword", err)
	}
	var updated *Credentials
	err = s.withRetry(ctx, tenantID, id, func(c *Credentials) error {
		c.HashedPassword = hashed
		c.PasswordResetCode = ""
		c.PasswordMustChange = false
		c.ClearSessions()
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePasswordChanged,
		TenantID: tenantID,
		ActorID:  actorID(actor),
		Resource: id,
	})
	return updated, nil
}

// SetPasswordWithCode sets the password of an invited or reset record
// using its single-use reset code.
func (s *Service) SetPasswordWithCode(ctx context.Context, tenantID, id, code, password string) (*Credentials, error) {
	settings, err := s.settings.CredentialsSettings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := checkPattern("password", password, settings.PasswordRegex); err != nil {
		return nil, err
	}
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperr.Wrap("credentials.SetPasswordWithCode", err)
	}
	var updated *Credentials
	err = s.withRetry(ctx, tenantID, id, func(c *Credentials) error {
		if code == "" || c.PasswordResetCode != code {
			return apperr.New(apperr.EForbidden, "password reset code is invalid")
		}
		c.HashedPassword = hashed
		c.PasswordResetCode = ""
		c.PasswordMustChange = false
		c.ClearSessions()
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePasswordChanged,
		TenantID: tenantID,
		Resource: id,
	})
	return updated, nil
}

// ResetPassword deletes a record's password and mints a new single-use
// reset code. All sessions are revoked.
func (s *Service) ResetPassword(ctx context.Context, actor *Credentials, tenantID, id string) (string, error) {
	code := uuid.New().String()
	err := s.withRetry(ctx, tenantID, id, func(c *Credentials) error {
		c.HashedPassword = ""
		c.PasswordResetCode = code
		c.ClearSessions()
		return nil
	})
	if err != nil {
		return "", err
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePasswordChanged,
		TenantID: tenantID,
		ActorID:  actorID(actor),
		Resource: id,
		Metadata: map[string]any{"reset": true},
	})
	return code, nil
}

// SetPasswordMustChange forces a password rotation on next login.
func (s *Service) SetPasswordMustChange(ctx context.Context, tenantID, id string) (*Credentials, error) {
	var updated *Credentials
	err := s.withRetry(ctx, tenantID, id, func(c *Credentials) error {
		c.PasswordMustChange = true
		updated = c
		return nil
	})
	return updated, err
}

// CheckUsernamePassword verifies a password challenge and applies the
// invalid-challenge lockout policy. It returns the record on success;
// it does not check the enabled state, that is the caller's concern.
func (s *Service) CheckUsernamePassword(ctx context.Context, tenantID, username, password string) (*Credentials, error) {
	c, err := s.repo.GetByUsername(ctx, tenantID, username)
	if err != nil {
		if apperr.Is(err, apperr.ECredentialsNotFound) {
			return nil, apperr.New(apperr.EUnknownUsername, "username [%s] not found", username)
		}
		return nil, err
	}
	settings, err := s.settings.CredentialsSettings(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	ok := false
	if c.HashedPassword != "" {
		ok, err = s.hasher.Verify(password, c.HashedPassword)
		if err != nil {
			return nil, apperr.Wrap("credentials.CheckUsernamePassword", err)
		}
	}
	if !ok {
		s.recordInvalidChallenge(ctx, c, settings)
		return nil, apperr.New(apperr.EInvalidPassword, "invalid password for username [%s]", username)
	}

	if c.InvalidChallenges > 0 {
		c.InvalidChallenges = 0
		c.LastInvalidChallengeAt = nil
		// A lost race only delays the counter reset.
		_ = s.repo.Update(ctx, c)
	}
	return c, nil
}

// recordInvalidChallenge applies the lockout policy after a failed
// password challenge. With MaximumInvalidChallenges at zero the policy
// is off and failures are not tracked.
func (s *Service) recordInvalidChallenge(ctx context.Context, c *Credentials, settings Settings) {
	if settings.MaximumInvalidChallenges <= 0 {
		return
	}
	now := s.now()
	if c.LastInvalidChallengeAt != nil {
		resetAfter := time.Duration(settings.ResetInvalidChallengesAfterMinutes) * time.Minute
		if now.Sub(*c.LastInvalidChallengeAt) > resetAfter {
			c.InvalidChallenges = 0
		}
	}
	c.InvalidChallenges++
	c.LastInvalidChallengeAt = &now
	if c.InvalidChallenges >= settings.MaximumInvalidChallenges {
		c.Enabled = false
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeCredentialsLocked,
			TenantID: c.TenantID,
			Resource: c.ID,
			Metadata: map[string]any{"invalidChallenges": c.InvalidChallenges},
		})
	}
	// Best effort: a version race means a concurrent challenge already
	// advanced the counter.
	_ = s.repo.Update(ctx, c)
}

// withRetry fetches the record, applies fn and persists it, retrying
// the whole cycle on a version conflict.
func (s *Service) withRetry(ctx context.Context, tenantID, id string, fn func(*Credentials) error) error {
	var lastErr error
	for range casRetries {
		c, err := s.repo.Get(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		c.UpdatedAt = s.now()
		if err := s.repo.Update(ctx, c); err != nil {
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

// checkSuperAdminFloor refuses a role replacement that would strip the
// superadmin role from a tenant's last superadmin.
func (s *Service) checkSuperAdminFloor(ctx context.Context, c *Credentials, newRoles []string) error {
	if !c.HasRole(RoleSuperAdmin) {
		return nil
	}
	for _, r := range newRoles {
		if r == RoleSuperAdmin {
			return nil
		}
	}
	n, err := s.repo.CountByRole(ctx, c.TenantID, RoleSuperAdmin)
	if err != nil {
		return err
	}
	if n <= 1 {
		return apperr.New(apperr.EForbidden, "backend [%s] must keep at least one superadmin", c.TenantID)
	}
	return nil
}

func checkPattern(field, value, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return apperr.New(apperr.EInternal, "invalid %s regex [%s]", field, pattern)
	}
	if !re.MatchString(value) {
		return apperr.New(apperr.EInvalidParameter, "%s does not comply with the required format", field)
	}
	return nil
}

func actorID(actor *Credentials) string {
	if actor == nil {
		return ""
	}
	return actor.ID
}

func levelOf(actor *Credentials) Level {
	if actor == nil {
		return LevelKey
	}
	return actor.Level()
}

func topRole(c *Credentials) string {
	return c.Level().String()
}
