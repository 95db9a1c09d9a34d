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

// Package settings stores per-tenant configuration documents: the
// credentials policy and the per-resource-type permission tables.
package settings

import (
	"context"
	"encoding/json"

	"github.com/doghouse-io/doghouse/internal/acl"
	"github.com/doghouse-io/doghouse/internal/apperr"
	"github.com/doghouse-io/doghouse/internal/credentials"
)

// Well-known settings document keys.
const (
	KeyCredentials = "credentials"
	aclKeyPrefix   = "acl."
)

// ErrNotFound marks a missing settings document.
func ErrNotFound(tenantID, key string) error {
	return apperr.New(apperr.ENotFound, "settings [%s] not found in backend [%s]", key, tenantID)
}

// Repository persists named settings documents per tenant.
type Repository interface {
	Get(ctx context.Context, tenantID, key string) ([]byte, error)
	Set(ctx context.Context, tenantID, key string, doc []byte) error
	Delete(ctx context.Context, tenantID, key string) error
	DeleteByTenant(ctx context.Context, tenantID string) error
}

// Service provides typed access to settings documents.
type Service struct {
	repo Repository
}

// NewService creates a settings service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CredentialsSettings returns the tenant's credentials policy with
// defaults applied. A tenant without stored settings gets pure
// defaults. Implements credentials.SettingsSource.
func (s *Service) CredentialsSettings(ctx context.Context, tenantID string) (credentials.Settings, error) {
	var cs credentials.Settings
	raw, err := s.repo.Get(ctx, tenantID, KeyCredentials)
	if err != nil {
		if apperr.Is(err, apperr.ENotFound) {
			return cs.WithDefaults(), nil
		}
		return cs, err
	}
	if err := json.Unmarshal(raw, &cs); err != nil {
		return cs, apperr.Wrap("settings.CredentialsSettings", err)
	}
	return cs.WithDefaults(), nil
}

// SaveCredentialsSettings stores the tenant's credentials policy.
func (s *Service) SaveCredentialsSettings(ctx context.Context, tenantID string, cs credentials.Settings) error {
	raw, err := json.Marshal(cs)
	if err != nil {
		return apperr.Wrap("settings.SaveCredentialsSettings", err)
	}
	return s.repo.Set(ctx, tenantID, KeyCredentials, raw)
}

// DeleteCredentialsSettings resets the tenant's credentials policy to
// the platform defaults.
func (s *Service) DeleteCredentialsSettings(ctx context.Context, tenantID string) error {
	return s.repo.Delete(ctx, tenantID, KeyCredentials)
}

// RolePermissions implements acl.Source: it resolves the permission
// table stored for one resource type.
func (s *Service) RolePermissions(ctx context.Context, tenantID, resourceType string) (acl.RolePermissions, bool, error) {
	raw, err := s.repo.Get(ctx, tenantID, aclKeyPrefix+resourceType)
	if err != nil {
		if apperr.Is(err, apperr.ENotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var table acl.RolePermissions
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, false, apperr.Wrap("settings.RolePermissions", err)
	}
	return table, true, nil
}

// SaveRolePermissions stores the permission table of a resource type.
func (s *Service) SaveRolePermissions(ctx context.Context, tenantID, resourceType string, table acl.RolePermissions) error {
	if err := table.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(table)
	if err != nil {
		return apperr.Wrap("settings.SaveRolePermissions", err)
	}
	return s.repo.Set(ctx, tenantID, aclKeyPrefix+resourceType, raw)
}

// DeleteRolePermissions removes the permission table of a resource
// type. Deleting a type's schema must call this so the table dies with
// the schema.
func (s *Service) DeleteRolePermissions(ctx context.Context, tenantID, resourceType string) error {
	return s.repo.Delete(ctx, tenantID, aclKeyPrefix+resourceType)
}

// DeleteTenant removes every settings document of a tenant. Used by the
// tenant registry's cascading delete.
func (s *Service) DeleteTenant(ctx context.Context, tenantID string) error {
	return s.repo.DeleteByTenant(ctx, tenantID)
}
