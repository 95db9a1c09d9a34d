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

package credentials_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doghouse-io/doghouse/internal/apperr"
	"github.com/doghouse-io/doghouse/internal/audit"
	"github.com/doghouse-io/doghouse/internal/credentials"
	"github.com/doghouse-io/doghouse/internal/store/memory"
)

const testBackend = "acme"

// staticSettings serves one policy for every tenant.
type staticSettings struct {
	s credentials.Settings
}

func (ss staticSettings) CredentialsSettings(ctx context.Context, tenantID string) (credentials.Settings, error) {
	return ss.s.WithDefaults(), nil
}

func newService(t *testing.T, s credentials.Settings) (*credentials.Service, *memory.CredentialsStore) {
	t.Helper()
	store := memory.NewCredentialsStore()
	// Light argon2 parameters keep the suite fast.
	hasher := credentials.NewHasher(8*1024, 1, 1, 16, 32)
	svc := credentials.NewService(store, hasher, staticSettings{s}, audit.Nop{})
	return svc, store
}

func mustCreate(t *testing.T, svc *credentials.Service, username, password string, actor *credentials.Credentials, roles ...string) *credentials.Credentials {
	t.Helper()
	c, _, err := svc.Create(context.Background(), testBackend, credentials.CreateRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
		Roles:    roles,
	}, actor)
	require.NoError(t, err)
	return c
}

func superadmin() *credentials.Credentials {
	return &credentials.Credentials{ID: "sa-1", TenantID: testBackend, Roles: []string{credentials.RoleSuperAdmin}}
}

func TestCreate_GuestSignUp(t *testing.T) {
	svc, _ := newService(t, credentials.Settings{})

	c := mustCreate(t, svc, "rex", "hi dogs", nil)
	assert.Equal(t, []string{credentials.RoleUser}, c.Roles)
	assert.True(t, c.Enabled)
	assert.NotEmpty(t, c.HashedPassword)
	assert.Empty(t, c.PasswordResetCode)
}

func TestCreate_GuestSignUpDisabled(t *testing.T) {
	svc, _ := newService(t, credentials.Settings{DisableGuestSignUp: true})

	_, _, err := svc.Create(context.Background(), testBackend, credentials.CreateRequest{
		Username: "rex", Email: "rex@example.com", Password: "hi dogs",
	}, nil)
	assert.True(t, apperr.Is(err, apperr.EForbidden))

	// The same request passes with an authenticated actor.
	_, _, err = svc.Create(context.Background(), testBackend, credentials.CreateRequest{
		Username: "rex", Email: "rex@example.com", Password: "hi dogs",
	}, superadmin())
	assert.NoError(t, err)
}

func TestCreate_InviteWithoutPassword(t *testing.T) {
	svc, _ := newService(t, credentials.Settings{})

	c, code, err := svc.Create(context.Background(), testBackend, credentials.CreateRequest{
		Username: "invited", Email: "invited@example.com",
	}, superadmin())
	require.NoError(t, err)
	assert.NotEmpty(t, code)
	assert.Empty(t, c.HashedPassword)

	// The code is single use: it sets the password once, then dies.
	_, err = svc.SetPasswordWithCode(context.Background(), testBackend, c.ID, code, "hi dogs")
	require.NoError(t, err)
	_, err = svc.SetPasswordWithCode(context.Background(), testBackend, c.ID, code, "other password")
	assert.True(t, apperr.Is(err, apperr.EForbidden))
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newService(t, credentials.Settings{})

	_, _, err := svc.Create(context.Background(), testBackend, credentials.CreateRequest{
		Username: "ab", Email: "a@b.c", Password: "hi dogs",
	}, nil)
	assert.True(t, apperr.Is(err, apperr.EInvalidParameter), "username below minimum length")

	_, _, err = svc.Create(context.Background(), testBackend, credentials.CreateRequest{
		Username: "rex", Email: "rex@example.com", Password: "hi",
	}, nil)
	assert.True(t, apperr.Is(err, apperr.EInvalidParameter), "password below minimum length")

	_, _, err = svc.Create(context.Background(), testBackend, credentials.CreateRequest{
		Username: "rex", Password: "hi dogs",
	}, nil)
	assert.True(t, apperr.Is(err, apperr.EInvalidParameter), "email required")
}

func TestCreate_DuplicateUsername(t *testing.T) {
	svc, _ := newService(t, credentials.Settings{})
	mustCreate(t, svc, "rex", "hi dogs", nil)

	_, _, err := svc.Create(context.Background(), testBackend, credentials.CreateRequest{
		Username: "rex", Email: "other@example.com", Password: "hi dogs",
	}, nil)
	assert.True(t, apperr.Is(err, apperr.EAlreadyExists))
}

func TestCreate_RoleEscalationDenied(t *testing.T) {
	svc, _ := newService(t, credentials.Settings{})

	_, _, err := svc.Create(context.Background(), testBackend, credentials.CreateRequest{
		Username: "evil", Email: "evil@example.com", Password: "hi dogs",
		Roles: []string{credentials.RoleAdmin},
	}, nil)
	assert.True(t, apperr.Is(err, apperr.EForbidden), "guests cannot self-grant admin")

	_, _, err = svc.Create(context.Background(), testBackend, credentials.CreateRequest{
		Username: "evil", Email: "evil@example.com", Password: "hi dogs",
		Roles: []string{credentials.RoleSuperdog},
	}, superadmin())
	assert.True(t, apperr.Is(err, apperr.EForbidden), "superdog is never grantable")
}

func TestCheckUsernamePassword(t *testing.T) {
	svc, _ := newService(t, credentials.Settings{})
	created := mustCreate(t, svc, "rex", "hi dogs", nil)

	c, err := svc.CheckUsernamePassword(context.Background(), testBackend, "rex", "hi dogs")
	require.NoError(t, err)
	assert.Equal(t, created.ID, c.ID)

	_, err = svc.CheckUsernamePassword(context.Background(), testBackend, "rex", "wrong")
	assert.True(t, apperr.Is(err, apperr.EInvalidPassword))

	_, err = svc.CheckUsernamePassword(context.Background(), testBackend, "nobody", "hi dogs")
	assert.True(t, apperr.Is(err, apperr.EUnknownUsername))
}

func TestLockout(t *testing.T) {
	svc, store := newService(t, credentials.Settings{MaximumInvalidChallenges: 3})
	created := mustCreate(t, svc, "rex", "hi dogs", nil)

	for i := 0; i < 3; i++ {
		_, err := svc.CheckUsernamePassword(context.Background(), testBackend, "rex", "wrong")
		assert.True(t, apperr.Is(err, apperr.EInvalidPassword))
	}

	c, err := store.Get(context.Background(), testBackend, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, c.InvalidChallenges)
	assert.False(t, c.Enabled, "record locks at the maximum")
}

func TestLockout_SuccessResetsCounter(t *testing.T) {
	svc, store := newService(t, credentials.Settings{MaximumInvalidChallenges: 3})
	created := mustCreate(t, svc, "rex", "hi dogs", nil)

	_, err := svc.CheckUsernamePassword(context.Background(), testBackend, "rex", "wrong")
	assert.Error(t, err)

	_, err = svc.CheckUsernamePassword(context.Background(), testBackend, "rex", "hi dogs")
	require.NoError(t, err)

	c, err := store.Get(context.Background(), testBackend, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, c.InvalidChallenges)
	assert.Nil(t, c.LastInvalidChallengeAt)
}

func TestLockout_DisabledWhenMaximumZero(t *testing.T) {
	svc, store := newService(t, credentials.Settings{})
	created := mustCreate(t, svc, "rex", "hi dogs", nil)

	for i := 0; i < 20; i++ {
		_, err := svc.CheckUsernamePassword(context.Background(), testBackend, "rex", "wrong")
		assert.True(t, apperr.Is(err, apperr.EInvalidPassword))
	}

	c, err := store.Get(context.Background(), testBackend, created.ID)
	require.NoError(t, err)
	assert.True(t, c.Enabled)
	assert.Zero(t, c.InvalidChallenges)
}

func TestEnable_ResetsChallengeCounter(t *testing.T) {
	svc, store := newService(t, credentials.Settings{MaximumInvalidChallenges: 2})
	created := mustCreate(t, svc, "rex", "hi dogs", nil)

	for i := 0; i < 2; i++ {
		_, _ = svc.CheckUsernamePassword(context.Background(), testBackend, "rex", "wrong")
	}
	c, _ := store.Get(context.Background(), testBackend, created.ID)
	require.False(t, c.Enabled)

	_, err := svc.SetEnabled(context.Background(), testBackend, created.ID, true)
	require.NoError(t, err)

	c, _ = store.Get(context.Background(), testBackend, created.ID)
	assert.True(t, c.Enabled)
	assert.Zero(t, c.InvalidChallenges)

	// And the password works again immediately.
	_, err = svc.CheckUsernamePassword(context.Background(), testBackend, "rex", "hi dogs")
	assert.NoError(t, err)
}

func TestSetPassword_RevokesSessions(t *testing.T) {
	svc, store := newService(t, credentials.Settings{})
	created := mustCreate(t, svc, "rex", "hi dogs", nil)

	c, _ := store.Get(context.Background(), testBackend, created.ID)
	c.AppendSession(credentials.Session{Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, store.Update(context.Background(), c))

	_, err := svc.SetPassword(context.Background(), superadmin(), testBackend, created.ID, "new password")
	require.NoError(t, err)

	c, _ = store.Get(context.Background(), testBackend, created.ID)
	assert.Empty(t, c.Sessions)
	_, err = store.GetByToken(context.Background(), "tok-1")
	assert.True(t, apperr.Is(err, apperr.EInvalidAccessToken))

	_, err = svc.CheckUsernamePassword(context.Background(), testBackend, "rex", "new password")
	assert.NoError(t, err)
}

func TestResetPassword(t *testing.T) {
	svc, _ := newService(t, credentials.Settings{})
	created := mustCreate(t, svc, "rex", "hi dogs", nil)

	code, err := svc.ResetPassword(context.Background(), superadmin(), testBackend, created.ID)
	require.NoError(t, err)
	require.NotEmpty(t, code)

	// The old password died with the reset.
	_, err = svc.CheckUsernamePassword(context.Background(), testBackend, "rex", "hi dogs")
	assert.True(t, apperr.Is(err, apperr.EInvalidPassword))

	_, err = svc.SetPasswordWithCode(context.Background(), testBackend, created.ID, code, "fresh password")
	require.NoError(t, err)
	_, err = svc.CheckUsernamePassword(context.Background(), testBackend, "rex", "fresh password")
	assert.NoError(t, err)
}

func TestDelete_LastSuperAdminProtected(t *testing.T) {
	svc, _ := newService(t, credentials.Settings{})

	only, err := svc.CreateWithRoles(context.Background(), testBackend, credentials.CreateRequest{
		Username: "owner", Email: "owner@example.com", Password: "hi dogs",
	}, []string{credentials.RoleSuperAdmin})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), only, testBackend, only.ID)
	assert.True(t, apperr.Is(err, apperr.EForbidden), "the last superadmin is undeletable")

	second, err := svc.CreateWithRoles(context.Background(), testBackend, credentials.CreateRequest{
		Username: "second", Email: "second@example.com", Password: "hi dogs",
	}, []string{credentials.RoleSuperAdmin})
	require.NoError(t, err)

	assert.NoError(t, svc.Delete(context.Background(), only, testBackend, second.ID),
		"with two superadmins one may go")
}

func TestDelete_SuperdogNeverDeletable(t *testing.T) {
	svc, _ := newService(t, credentials.Settings{})

	dog, err := svc.CreateWithRoles(context.Background(), testBackend, credentials.CreateRequest{
		Username: "platform", Email: "platform@example.com", Password: "hi dogs",
	}, []string{credentials.RoleSuperdog})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), dog, testBackend, dog.ID)
	assert.True(t, apperr.Is(err, apperr.EForbidden))
}

func TestDelete_SelfAllowed(t *testing.T) {
	svc, _ := newService(t, credentials.Settings{})
	c := mustCreate(t, svc, "rex", "hi dogs", nil)

	assert.NoError(t, svc.Delete(context.Background(), c, testBackend, c.ID))
	_, err := svc.Get(context.Background(), testBackend, c.ID)
	assert.True(t, apperr.Is(err, apperr.ECredentialsNotFound))
}

func TestRevokeRole_LastSuperAdmin(t *testing.T) {
	svc, _ := newService(t, credentials.Settings{})
	only, err := svc.CreateWithRoles(context.Background(), testBackend, credentials.CreateRequest{
		Username: "owner", Email: "owner@example.com", Password: "hi dogs",
	}, []string{credentials.RoleSuperAdmin})
	require.NoError(t, err)

	_, err = svc.RevokeRole(context.Background(), only, testBackend, only.ID, credentials.RoleSuperAdmin)
	assert.True(t, apperr.Is(err, apperr.EForbidden))
}

func TestGrantRole(t *testing.T) {
	svc, _ := newService(t, credentials.Settings{})
	c := mustCreate(t, svc, "rex", "hi dogs", nil)

	updated, err := svc.GrantRole(context.Background(), superadmin(), testBackend, c.ID, credentials.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, updated.HasRole(credentials.RoleAdmin))

	_, err = svc.GrantRole(context.Background(), superadmin(), testBackend, c.ID, credentials.RoleAll)
	assert.True(t, apperr.Is(err, apperr.EInvalidParameter), "the implicit role is not grantable")
}

func TestUpdate_AllowList(t *testing.T) {
	svc, _ := newService(t, credentials.Settings{})
	c := mustCreate(t, svc, "rex", "hi dogs", nil)

	email := "new@example.com"
	group := "pack-1"
	updated, err := svc.Update(context.Background(), testBackend, c.ID, credentials.UpdateRequest{
		Email:   &email,
		GroupID: &group,
	})
	require.NoError(t, err)
	assert.Equal(t, email, updated.Email)
	assert.Equal(t, group, updated.GroupID)
	assert.Equal(t, "rex", updated.Username, "untouched fields survive")
}

func TestDeleteAllButSuperAdmins(t *testing.T) {
	svc, store := newService(t, credentials.Settings{})
	mustCreate(t, svc, "alpha", "hi dogs", nil)
	mustCreate(t, svc, "beta", "hi dogs", nil)
	owner, err := svc.CreateWithRoles(context.Background(), testBackend, credentials.CreateRequest{
		Username: "owner", Email: "owner@example.com", Password: "hi dogs",
	}, []string{credentials.RoleSuperAdmin})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAllButSuperAdmins(context.Background(), testBackend))

	results, err := store.Search(context.Background(), testBackend, credentials.Filter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, owner.ID, results[0].ID)
}
