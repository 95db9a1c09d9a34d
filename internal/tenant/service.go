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

package tenant

import (
	"context"
	"time"

	"github.com/doghouse-io/doghouse/internal/apperr"
	"github.com/doghouse-io/doghouse/internal/audit"
)

// Cascade removes tenant-owned state from a collaborating subsystem.
// Registered cascades run on tenant deletion, after the tenant record
// itself is gone, so a half-failed cascade never resurrects the tenant.
type Cascade func(ctx context.Context, tenantID string) error

// Service provides tenant registry business logic.
type Service struct {
	repo        Repository
	auditLogger audit.Logger
	cascades    []Cascade
}

// NewService creates a tenant service.
func NewService(repo Repository, auditLogger audit.Logger) *Service {
	return &Service{repo: repo, auditLogger: auditLogger}
}

// OnDelete registers a cascade invoked when a tenant is deleted.
func (s *Service) OnDelete(c Cascade) {
	s.cascades = append(s.cascades, c)
}

// CheckAvailable validates an id and verifies no tenant holds it yet.
func (s *Service) CheckAvailable(ctx context.Context, id string) error {
	if id == RootID {
		return apperr.New(apperr.EInvalidParameter, "backend id [%s] is reserved", id)
	}
	if err := CheckID(id); err != nil {
		return err
	}
	if _, err := s.repo.Get(ctx, id); err == nil {
		return apperr.New(apperr.EAlreadyExists, "backend [%s] already exists", id)
	}
	return nil
}

// Create creates a new tenant. The root tenant cannot be created this
// way; it exists from bootstrap.
func (s *Service) Create(ctx context.Context, id, ownerID string) (*Tenant, error) {
	if err := s.CheckAvailable(ctx, id); err != nil {
		return nil, err
	}

	now := time.Now()
	t := &Tenant{
		ID:        id,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeBackendCreated,
		TenantID: id,
		ActorID:  ownerID,
	})
	return t, nil
}

// Get retrieves a tenant by id.
func (s *Service) Get(ctx context.Context, id string) (*Tenant, error) {
	return s.repo.Get(ctx, id)
}

// List lists tenants with pagination.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	return s.repo.List(ctx, limit, offset)
}

// Delete removes a tenant and cascades into every registered
// subsystem: credentials, sessions and settings all die with it.
// Re-creating a tenant with the same id starts from nothing.
func (s *Service) Delete(ctx context.Context, id, actorID string) error {
	if id == RootID {
		return apperr.New(apperr.EForbidden, "the root backend cannot be deleted")
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	for _, cascade := range s.cascades {
		if err := cascade(ctx, id); err != nil {
			return err
		}
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeBackendDeleted,
		TenantID: id,
		ActorID:  actorID,
	})
	return nil
}

// EnsureRoot creates the root tenant if it does not exist yet. Called
// once at startup.
func (s *Service) EnsureRoot(ctx context.Context) error {
	if _, err := s.repo.Get(ctx, RootID); err == nil {
		return nil
	} else if !apperr.Is(err, apperr.ETenantNotFound) {
		return err
	}
	now := time.Now()
	return s.repo.Create(ctx, &Tenant{ID: RootID, CreatedAt: now, UpdatedAt: now})
}
