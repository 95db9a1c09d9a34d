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

// Package memory provides versioned in-memory repositories for tests
// and single-node runs. Semantics, the compare-and-set update in
// particular, mirror the postgres implementation.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/doghouse-io/doghouse/internal/apperr"
	"github.com/doghouse-io/doghouse/internal/credentials"
	"github.com/doghouse-io/doghouse/internal/settings"
	"github.com/doghouse-io/doghouse/internal/tenant"
)

// CredentialsStore is an in-memory credentials.Repository.
type CredentialsStore struct {
	mu sync.RWMutex

	// byID indexes records by "tenantID/id"; byUsername by
	// "tenantID/username"; byToken maps a session token to its
	// owner's byID key.
	byID       map[string]*credentials.Credentials
	byUsername map[string]string
	byToken    map[string]string
}

// NewCredentialsStore creates an empty credentials store.
func NewCredentialsStore() *CredentialsStore {
	return &CredentialsStore{
		byID:       make(map[string]*credentials.Credentials),
		byUsername: make(map[string]string),
		byToken:    make(map[string]string),
	}
}

func key(tenantID, id string) string { return tenantID + "/" + id }

func clone(c *credentials.Credentials) *credentials.Credentials {
	cp := *c
	cp.Roles = append([]string(nil), c.Roles...)
	cp.Sessions = append([]credentials.Session(nil), c.Sessions...)
	if c.EnableAfter != nil {
		t := *c.EnableAfter
		cp.EnableAfter = &t
	}
	if c.DisableAfter != nil {
		t := *c.DisableAfter
		cp.DisableAfter = &t
	}
	if c.LastInvalidChallengeAt != nil {
		t := *c.LastInvalidChallengeAt
		cp.LastInvalidChallengeAt = &t
	}
	return &cp
}

func (s *CredentialsStore) Create(ctx context.Context, c *credentials.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(c.TenantID, c.ID)
	if _, ok := s.byID[k]; ok {
		return apperr.New(apperr.EAlreadyExists, "credentials [%s] already exist", c.ID)
	}
	uk := key(c.TenantID, c.Username)
	if _, ok := s.byUsername[uk]; ok {
		return apperr.New(apperr.EAlreadyExists, "username [%s] already exists", c.Username)
	}

	c.Version = 1
	stored := clone(c)
	s.byID[k] = stored
	s.byUsername[uk] = k
	for _, sess := range stored.Sessions {
		s.byToken[sess.Token] = k
	}
	return nil
}

func (s *CredentialsStore) Get(ctx context.Context, tenantID, id string) (*credentials.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[key(tenantID, id)]
	if !ok {
		return nil, apperr.New(apperr.ECredentialsNotFound, "credentials [%s] not found in backend [%s]", id, tenantID)
	}
	return clone(c), nil
}

func (s *CredentialsStore) GetByUsername(ctx context.Context, tenantID, username string) (*credentials.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.byUsername[key(tenantID, username)]
	if !ok {
		return nil, apperr.New(apperr.ECredentialsNotFound, "username [%s] not found in backend [%s]", username, tenantID)
	}
	return clone(s.byID[k]), nil
}

func (s *CredentialsStore) GetByToken(ctx context.Context, token string) (*credentials.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.byToken[token]
	if !ok {
		return nil, apperr.New(apperr.EInvalidAccessToken, "access token is invalid")
	}
	return clone(s.byID[k]), nil
}

func (s *CredentialsStore) Update(ctx context.Context, c *credentials.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(c.TenantID, c.ID)
	stored, ok := s.byID[k]
	if !ok {
		return apperr.New(apperr.ECredentialsNotFound, "credentials [%s] not found in backend [%s]", c.ID, c.TenantID)
	}
	if stored.Version != c.Version {
		return apperr.New(apperr.EVersionConflict, "credentials [%s] changed concurrently", c.ID)
	}
	if stored.Username != c.Username {
		uk := key(c.TenantID, c.Username)
		if _, taken := s.byUsername[uk]; taken {
			return apperr.New(apperr.EAlreadyExists, "username [%s] already exists", c.Username)
		}
		delete(s.byUsername, key(c.TenantID, stored.Username))
		s.byUsername[uk] = k
	}

	for _, sess := range stored.Sessions {
		delete(s.byToken, sess.Token)
	}
	c.Version++
	next := clone(c)
	s.byID[k] = next
	for _, sess := range next.Sessions {
		s.byToken[sess.Token] = k
	}
	return nil
}

func (s *CredentialsStore) Delete(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(tenantID, id)
	stored, ok := s.byID[k]
	if !ok {
		return apperr.New(apperr.ECredentialsNotFound, "credentials [%s] not found in backend [%s]", id, tenantID)
	}
	s.remove(k, stored)
	return nil
}

func (s *CredentialsStore) DeleteByTenant(ctx context.Context, tenantID string, keepSuperAdmins bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := tenantID + "/"
	for k, stored := range s.byID {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if keepSuperAdmins && stored.HasRole(credentials.RoleSuperAdmin) {
			continue
		}
		s.remove(k, stored)
	}
	return nil
}

// remove expects the write lock to be held.
func (s *CredentialsStore) remove(k string, stored *credentials.Credentials) {
	delete(s.byID, k)
	delete(s.byUsername, key(stored.TenantID, stored.Username))
	for _, sess := range stored.Sessions {
		delete(s.byToken, sess.Token)
	}
}

func (s *CredentialsStore) Search(ctx context.Context, tenantID string, f credentials.Filter) ([]*credentials.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := tenantID + "/"
	var out []*credentials.Credentials
	for k, stored := range s.byID {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if f.Username != "" && stored.Username != f.Username {
			continue
		}
		if f.Email != "" && stored.Email != f.Email {
			continue
		}
		if f.Role != "" && !stored.HasRole(f.Role) {
			continue
		}
		out = append(out, clone(stored))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *CredentialsStore) CountByRole(ctx context.Context, tenantID, role string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := tenantID + "/"
	n := 0
	for k, stored := range s.byID {
		if strings.HasPrefix(k, prefix) && stored.HasRole(role) {
			n++
		}
	}
	return n, nil
}

// TenantStore is an in-memory tenant.Repository.
type TenantStore struct {
	mu      sync.RWMutex
	tenants map[string]*tenant.Tenant
}

// NewTenantStore creates an empty tenant store.
func NewTenantStore() *TenantStore {
	return &TenantStore{tenants: make(map[string]*tenant.Tenant)}
}

func (s *TenantStore) Create(ctx context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[t.ID]; ok {
		return apperr.New(apperr.EAlreadyExists, "backend [%s] already exists", t.ID)
	}
	t.Version = 1
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

func (s *TenantStore) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, apperr.New(apperr.ETenantNotFound, "backend [%s] not found", id)
	}
	cp := *t
	return &cp, nil
}

func (s *TenantStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[id]; !ok {
		return apperr.New(apperr.ETenantNotFound, "backend [%s] not found", id)
	}
	delete(s.tenants, id)
	return nil
}

func (s *TenantStore) List(ctx context.Context, limit, offset int) ([]*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*tenant.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SettingsStore is an in-memory settings.Repository.
type SettingsStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewSettingsStore creates an empty settings store.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{docs: make(map[string][]byte)}
}

func (s *SettingsStore) Get(ctx context.Context, tenantID, k string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[key(tenantID, k)]
	if !ok {
		return nil, settings.ErrNotFound(tenantID, k)
	}
	return append([]byte(nil), doc...), nil
}

func (s *SettingsStore) Set(ctx context.Context, tenantID, k string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[key(tenantID, k)] = append([]byte(nil), doc...)
	return nil
}

func (s *SettingsStore) Delete(ctx context.Context, tenantID, k string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kk := key(tenantID, k)
	if _, ok := s.docs[kk]; !ok {
		return settings.ErrNotFound(tenantID, k)
	}
	delete(s.docs, kk)
	return nil
}

func (s *SettingsStore) DeleteByTenant(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := tenantID + "/"
	for k := range s.docs {
		if strings.HasPrefix(k, prefix) {
			delete(s.docs, k)
		}
	}
	return nil
}
