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

package acl

import (
	"context"

	"github.com/doghouse-io/doghouse/internal/apperr"
	"github.com/doghouse-io/doghouse/internal/credentials"
)

// Source resolves the permission table of a resource type within a
// tenant. The second return value reports whether a table exists at
// all; an absent table denies everyone below superadmin.
type Source interface {
	RolePermissions(ctx context.Context, tenantID, resourceType string) (RolePermissions, bool, error)
}

// Engine evaluates authorization requests against per-tenant tables.
type Engine struct {
	source Source
}

// NewEngine creates an access control engine backed by the source.
func NewEngine(source Source) *Engine {
	return &Engine{source: source}
}

// Request describes one operation to authorize. TargetOwner and
// TargetGroup identify the object acted upon for Mine/Group scoping;
// they stay empty for unscoped operations such as create and search.
type Request struct {
	TenantID     string
	ResourceType string
	Action       Action
	TargetOwner  string
	TargetGroup  string
}

// Authorize allows or denies the request for the actor. A nil actor is
// anonymous: it holds only the implicit "all" role and denials surface
// as unauthorized rather than forbidden. Superadmins and superdogs of
// the tenant bypass the tables entirely.
func (e *Engine) Authorize(ctx context.Context, actor *credentials.Credentials, req Request) error {
	if actor != nil {
		if actor.IsSuperdog() {
			return nil
		}
		// superadmin rank bypasses tables, but only within its tenant
		if actor.IsAtLeastSuperAdmin() && actor.TenantID == req.TenantID {
			return nil
		}
		if actor.TenantID != req.TenantID {
			return apperr.New(apperr.EForbidden,
				"credentials of backend [%s] not authorized for backend [%s]", actor.TenantID, req.TenantID)
		}
	}

	table, ok, err := e.source.RolePermissions(ctx, req.TenantID, req.ResourceType)
	if err != nil {
		return err
	}
	if ok && e.granted(actor, table, req) {
		return nil
	}
	return e.deny(actor, req)
}

func (e *Engine) granted(actor *credentials.Credentials, table RolePermissions, req Request) bool {
	roles := []string{credentials.RoleAll}
	if actor != nil {
		roles = append(roles, actor.Roles...)
	}

	for _, role := range roles {
		for _, p := range table[role] {
			if e.matches(actor, p, req) {
				return true
			}
		}
	}
	return false
}

// matches checks one granted permission against the request, applying
// Mine/Group ownership scoping where the permission requires it.
func (e *Engine) matches(actor *credentials.Credentials, granted Permission, req Request) bool {
	switch req.Action {
	case ActionCreate:
		return granted == Create
	case ActionSearch:
		return granted == Search
	case ActionUpdateMeta:
		return granted == UpdateMeta
	case ActionRead:
		return e.scoped(actor, granted, ReadAll, ReadMine, ReadGroup, req)
	case ActionUpdate:
		return e.scoped(actor, granted, UpdateAll, UpdateMine, UpdateGroup, req)
	case ActionDelete:
		return e.scoped(actor, granted, DeleteAll, DeleteMine, DeleteGroup, req)
	default:
		return false
	}
}

func (e *Engine) scoped(actor *credentials.Credentials, granted, all, mine, group Permission, req Request) bool {
	switch granted {
	case all:
		return true
	case mine:
		return actor != nil && req.TargetOwner != "" && req.TargetOwner == actor.ID
	case group:
		return actor != nil && req.TargetGroup != "" && req.TargetGroup == actor.Group()
	default:
		return false
	}
}

func (e *Engine) deny(actor *credentials.Credentials, req Request) error {
	if actor == nil {
		return apperr.New(apperr.EUnauthorized,
			"anonymous not authorized to [%s] on [%s]", req.Action, req.ResourceType)
	}
	return apperr.New(apperr.EForbidden,
		"[%s] not authorized to [%s] on [%s]", actor.Username, req.Action, req.ResourceType)
}
