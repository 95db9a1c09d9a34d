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
	"regexp"

	"github.com/doghouse-io/doghouse/internal/apperr"
)

// Distinguished role names. Any other role is a free-form string used
// by per-type permission tables.
const (
	// RoleAll is implicit: every caller holds it, authenticated or
	// anonymous. It never appears on a stored record.
	RoleAll = "all"

	RoleKey        = "key"
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
	RoleSuperdog   = "superdog"
)

// Level is the ordered rank derived from the distinguished roles.
type Level int

const (
	LevelKey Level = iota
	LevelUser
	LevelAdmin
	LevelSuperAdmin
	LevelSuperdog
)

// HasAtLeast reports whether l ranks at or above other.
func (l Level) HasAtLeast(other Level) bool { return l >= other }

func (l Level) String() string {
	switch l {
	case LevelSuperdog:
		return RoleSuperdog
	case LevelSuperAdmin:
		return RoleSuperAdmin
	case LevelAdmin:
		return RoleAdmin
	case LevelUser:
		return RoleUser
	default:
		return RoleKey
	}
}

var roleNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// CheckRole validates a role name. The implicit "all" role may never be
// granted explicitly.
func CheckRole(role string) error {
	if role == RoleAll {
		return apperr.New(apperr.EInvalidParameter, "role [%s] is implicit and cannot be granted", role)
	}
	if !roleNamePattern.MatchString(role) {
		return apperr.New(apperr.EInvalidParameter, "role [%s] is not a valid role name", role)
	}
	return nil
}

// CanManage reports whether an actor holding actorLevel may grant or
// revoke the given role. Superdog is never managed; superadmin requires
// superadmin rank; admin requires admin rank; everything else requires
// admin rank as well.
func CanManage(actorLevel Level, role string) bool {
	switch role {
	case RoleSuperdog:
		return false
	case RoleSuperAdmin:
		return actorLevel.HasAtLeast(LevelSuperAdmin)
	default:
		return actorLevel.HasAtLeast(LevelAdmin)
	}
}
