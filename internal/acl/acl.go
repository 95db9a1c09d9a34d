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

// Package acl evaluates per-resource-type, per-role permission tables.
// A resource type without a table is acted on by superadmins only.
package acl

import "github.com/doghouse-io/doghouse/internal/apperr"

// Permission is a grant on a resource type. Mine/Group/All variants
// scope the grant by ownership of the target object.
type Permission string

const (
	Create      Permission = "create"
	ReadAll     Permission = "readAll"
	ReadMine    Permission = "readMine"
	ReadGroup   Permission = "readGroup"
	UpdateAll   Permission = "updateAll"
	UpdateMine  Permission = "updateMine"
	UpdateGroup Permission = "updateGroup"
	UpdateMeta  Permission = "updateMeta"
	DeleteAll   Permission = "deleteAll"
	DeleteMine  Permission = "deleteMine"
	DeleteGroup Permission = "deleteGroup"
	Search      Permission = "search"
)

var allPermissions = map[Permission]struct{}{
	Create: {}, ReadAll: {}, ReadMine: {}, ReadGroup: {},
	UpdateAll: {}, UpdateMine: {}, UpdateGroup: {}, UpdateMeta: {},
	DeleteAll: {}, DeleteMine: {}, DeleteGroup: {}, Search: {},
}

// CheckPermission validates a permission name.
func CheckPermission(p Permission) error {
	if _, ok := allPermissions[p]; !ok {
		return apperr.New(apperr.EInvalidParameter, "[%s] is not a valid permission", p)
	}
	return nil
}

// RolePermissions maps role names to their granted permissions on one
// resource type. The "all" role applies to every caller, anonymous
// included.
type RolePermissions map[string][]Permission

// Validate checks every permission name in the table.
func (rp RolePermissions) Validate() error {
	for role, perms := range rp {
		if role != "all" {
			// free-form roles share the credentials role name rules
			if role == "" {
				return apperr.New(apperr.EInvalidParameter, "empty role in permission table")
			}
		}
		for _, p := range perms {
			if err := CheckPermission(p); err != nil {
				return err
			}
		}
	}
	return nil
}

// Has reports whether the role grants the permission in this table.
func (rp RolePermissions) Has(role string, p Permission) bool {
	for _, granted := range rp[role] {
		if granted == p {
			return true
		}
	}
	return false
}

// Action is the operation class being authorized. Actions with
// All/Mine/Group variants expand against the table; Create, Search and
// UpdateMeta are exact.
type Action string

const (
	ActionCreate     Action = "create"
	ActionRead       Action = "read"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionSearch     Action = "search"
	ActionUpdateMeta Action = "updateMeta"
)
