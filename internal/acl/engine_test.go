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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/doghouse-io/doghouse/internal/apperr"
	"github.com/doghouse-io/doghouse/internal/credentials"
)

// fakeSource holds tables keyed by "tenant/type".
type fakeSource map[string]RolePermissions

func (f fakeSource) RolePermissions(ctx context.Context, tenantID, resourceType string) (RolePermissions, bool, error) {
	rp, ok := f[tenantID+"/"+resourceType]
	return rp, ok, nil
}

func user(id, tenantID string, roles ...string) *credentials.Credentials {
	if len(roles) == 0 {
		roles = []string{credentials.RoleUser}
	}
	return &credentials.Credentials{ID: id, TenantID: tenantID, Username: id, Roles: roles}
}

func TestAuthorize_AllRole(t *testing.T) {
	e := NewEngine(fakeSource{
		"acme/message": {"all": {ReadAll, Create}},
	})

	// The implicit role reaches anonymous callers too.
	err := e.Authorize(context.Background(), nil, Request{
		TenantID: "acme", ResourceType: "message", Action: ActionRead, TargetOwner: "someone",
	})
	assert.NoError(t, err)

	err = e.Authorize(context.Background(), nil, Request{
		TenantID: "acme", ResourceType: "message", Action: ActionDelete, TargetOwner: "someone",
	})
	assert.True(t, apperr.Is(err, apperr.EUnauthorized), "anonymous denial is unauthorized")
}

func TestAuthorize_MineScoping(t *testing.T) {
	e := NewEngine(fakeSource{
		"acme/message": {"user": {ReadMine, UpdateMine, DeleteMine}},
	})
	rex := user("rex", "acme")

	err := e.Authorize(context.Background(), rex, Request{
		TenantID: "acme", ResourceType: "message", Action: ActionUpdate, TargetOwner: "rex",
	})
	assert.NoError(t, err)

	err = e.Authorize(context.Background(), rex, Request{
		TenantID: "acme", ResourceType: "message", Action: ActionUpdate, TargetOwner: "fido",
	})
	assert.True(t, apperr.Is(err, apperr.EForbidden), "someone else's object")

	// An unowned target never matches a Mine grant.
	err = e.Authorize(context.Background(), rex, Request{
		TenantID: "acme", ResourceType: "message", Action: ActionUpdate,
	})
	assert.True(t, apperr.Is(err, apperr.EForbidden))
}

func TestAuthorize_GroupScoping(t *testing.T) {
	e := NewEngine(fakeSource{
		"acme/message": {"user": {ReadGroup}},
	})

	rex := user("rex", "acme")
	rex.GroupID = "pack-1"

	err := e.Authorize(context.Background(), rex, Request{
		TenantID: "acme", ResourceType: "message", Action: ActionRead, TargetGroup: "pack-1",
	})
	assert.NoError(t, err)

	err = e.Authorize(context.Background(), rex, Request{
		TenantID: "acme", ResourceType: "message", Action: ActionRead, TargetGroup: "pack-2",
	})
	assert.True(t, apperr.Is(err, apperr.EForbidden))

	// Without an explicit group the record's own id is its group.
	solo := user("solo", "acme")
	err = e.Authorize(context.Background(), solo, Request{
		TenantID: "acme", ResourceType: "message", Action: ActionRead, TargetGroup: "solo",
	})
	assert.NoError(t, err)
}

func TestAuthorize_ExactActions(t *testing.T) {
	e := NewEngine(fakeSource{
		"acme/message": {"user": {Create, Search, UpdateMeta}},
	})
	rex := user("rex", "acme")

	for _, action := range []Action{ActionCreate, ActionSearch, ActionUpdateMeta} {
		err := e.Authorize(context.Background(), rex, Request{
			TenantID: "acme", ResourceType: "message", Action: action,
		})
		assert.NoError(t, err, "action %s", action)
	}

	err := e.Authorize(context.Background(), rex, Request{
		TenantID: "acme", ResourceType: "message", Action: ActionRead, TargetOwner: "rex",
	})
	assert.True(t, apperr.Is(err, apperr.EForbidden), "create does not imply read")
}

func TestAuthorize_AbsentTable(t *testing.T) {
	e := NewEngine(fakeSource{})

	err := e.Authorize(context.Background(), user("rex", "acme", credentials.RoleAdmin), Request{
		TenantID: "acme", ResourceType: "message", Action: ActionRead, TargetOwner: "rex",
	})
	assert.True(t, apperr.Is(err, apperr.EForbidden), "no table denies admins too")

	err = e.Authorize(context.Background(), user("owner", "acme", credentials.RoleSuperAdmin), Request{
		TenantID: "acme", ResourceType: "message", Action: ActionRead,
	})
	assert.NoError(t, err, "superadmins bypass tables")
}

func TestAuthorize_SuperAdminScopedToTenant(t *testing.T) {
	e := NewEngine(fakeSource{})
	owner := user("owner", "acme", credentials.RoleSuperAdmin)

	err := e.Authorize(context.Background(), owner, Request{
		TenantID: "other", ResourceType: "message", Action: ActionRead,
	})
	assert.True(t, apperr.Is(err, apperr.EForbidden), "superadmin bypass stops at the tenant border")
}

func TestAuthorize_SuperdogCrossTenant(t *testing.T) {
	e := NewEngine(fakeSource{})
	dog := user("platform", "doghouse", credentials.RoleSuperdog)

	err := e.Authorize(context.Background(), dog, Request{
		TenantID: "acme", ResourceType: "message", Action: ActionDelete,
	})
	assert.NoError(t, err)
}

func TestAuthorize_CrossTenantActorDenied(t *testing.T) {
	e := NewEngine(fakeSource{
		"acme/message": {"all": {ReadAll}},
	})

	err := e.Authorize(context.Background(), user("rex", "other"), Request{
		TenantID: "acme", ResourceType: "message", Action: ActionRead,
	})
	assert.True(t, apperr.Is(err, apperr.EForbidden))
}

func TestRolePermissions_Validate(t *testing.T) {
	assert.NoError(t, RolePermissions{"user": {ReadMine, Create}}.Validate())
	assert.Error(t, RolePermissions{"user": {"readEverything"}}.Validate())
	assert.Error(t, RolePermissions{"": {ReadMine}}.Validate())
}
