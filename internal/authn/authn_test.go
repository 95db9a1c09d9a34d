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

package authn_test

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doghouse-io/doghouse/internal/apperr"
	"github.com/doghouse-io/doghouse/internal/audit"
	"github.com/doghouse-io/doghouse/internal/authn"
	"github.com/doghouse-io/doghouse/internal/credentials"
	"github.com/doghouse-io/doghouse/internal/observability/metrics"
	"github.com/doghouse-io/doghouse/internal/session"
	"github.com/doghouse-io/doghouse/internal/store/memory"
	"github.com/doghouse-io/doghouse/internal/tenant"
)

type settingsStub struct{}

func (settingsStub) CredentialsSettings(ctx context.Context, tenantID string) (credentials.Settings, error) {
	return credentials.Settings{}.WithDefaults(), nil
}

type fixture struct {
	gate     *authn.Gate
	creds    *credentials.Service
	sessions *session.Manager
	store    *memory.CredentialsStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewCredentialsStore()
	hasher := credentials.NewHasher(8*1024, 1, 1, 16, 32)
	creds := credentials.NewService(store, hasher, settingsStub{}, audit.Nop{})
	sessions := session.NewManager(store, settingsStub{}, audit.Nop{})
	meter, err := metrics.New(context.Background(), metrics.Config{}, "test")
	require.NoError(t, err)
	return &fixture{
		gate:     authn.NewGate(creds, sessions, meter, audit.Nop{}),
		creds:    creds,
		sessions: sessions,
		store:    store,
	}
}

func (f *fixture) createUser(t *testing.T, tenantID, username, password string, roles ...string) *credentials.Credentials {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{credentials.RoleUser}
	}
	c, err := f.creds.CreateWithRoles(context.Background(), tenantID, credentials.CreateRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
	}, roles)
	require.NoError(t, err)
	return c
}

func basic(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func TestFromRequest_TenantResolution(t *testing.T) {
	r := httptest.NewRequest("GET", "/login", nil)
	assert.Equal(t, tenant.RootID, authn.FromRequest(r).TenantID)

	r = httptest.NewRequest("GET", "/login?backend=acme", nil)
	assert.Equal(t, "acme", authn.FromRequest(r).TenantID)

	// The header wins over the query parameter.
	r = httptest.NewRequest("GET", "/login?backend=acme", nil)
	r.Header.Set(authn.TenantHeader, "bravo")
	assert.Equal(t, "bravo", authn.FromRequest(r).TenantID)
}

func TestFromRequest_Material(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", basic("rex", "hi:dogs"))
	c := authn.FromRequest(r)
	assert.Equal(t, "rex", c.Username)
	assert.Equal(t, "hi:dogs", c.Password, "password may contain colons")

	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer sometoken")
	assert.Equal(t, "sometoken", authn.FromRequest(r).Token)

	r = httptest.NewRequest("GET", "/?accessToken=querytoken", nil)
	assert.Equal(t, "querytoken", authn.FromRequest(r).Token)

	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Basic not!base64")
	assert.True(t, authn.FromRequest(r).IsZero(), "garbage material parses as anonymous")
}

func TestAuthenticate_Anonymous(t *testing.T) {
	f := newFixture(t)

	id, err := f.gate.Authenticate(context.Background(), authn.Credential{TenantID: "acme"}, authn.Options{})
	require.NoError(t, err)
	assert.True(t, id.IsAnonymous())
	assert.Equal(t, "acme", id.TenantID)
	assert.Zero(t, f.gate.CheckCount(), "anonymous requests never hit the store")
}

func TestAuthenticate_Password(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "acme", "rex", "hi dogs")

	id, err := f.gate.Authenticate(context.Background(), authn.Credential{
		Username: "rex", Password: "hi dogs", TenantID: "acme",
	}, authn.Options{})
	require.NoError(t, err)
	assert.Equal(t, "rex", id.Credentials.Username)
	assert.Equal(t, "acme", id.TenantID)
	assert.True(t, id.Challenged)
	assert.NoError(t, id.RequireChallenged())

	_, err = f.gate.Authenticate(context.Background(), authn.Credential{
		Username: "rex", Password: "wrong", TenantID: "acme",
	}, authn.Options{})
	assert.True(t, apperr.Is(err, apperr.EInvalidPassword))

	_, err = f.gate.Authenticate(context.Background(), authn.Credential{
		Username: "ghost", Password: "hi dogs", TenantID: "acme",
	}, authn.Options{})
	assert.True(t, apperr.Is(err, apperr.EUnknownUsername))
}

func TestAuthenticate_Token(t *testing.T) {
	f := newFixture(t)
	c := f.createUser(t, "acme", "rex", "hi dogs")
	sess, err := f.sessions.Issue(context.Background(), c, "", 0)
	require.NoError(t, err)

	id, err := f.gate.Authenticate(context.Background(), authn.Credential{
		Token: sess.Token, TenantID: "acme",
	}, authn.Options{})
	require.NoError(t, err)
	assert.Equal(t, c.ID, id.Credentials.ID)
	assert.Equal(t, sess.Token, id.Session.Token)
	assert.False(t, id.Challenged)
	assert.True(t, apperr.Is(id.RequireChallenged(), apperr.EUnchallengedPassword))

	_, err = f.gate.Authenticate(context.Background(), authn.Credential{
		Token: "bogus", TenantID: "acme",
	}, authn.Options{})
	assert.True(t, apperr.Is(err, apperr.EInvalidAccessToken))
}

func TestAuthenticate_TokenInPasswordSlot(t *testing.T) {
	f := newFixture(t)
	c := f.createUser(t, "acme", "rex", "hi dogs")
	sess, err := f.sessions.Issue(context.Background(), c, "", 0)
	require.NoError(t, err)

	id, err := f.gate.Authenticate(context.Background(), authn.Credential{
		Username: "rex", Password: sess.Token, TenantID: "acme",
	}, authn.Options{})
	require.NoError(t, err)
	assert.Equal(t, sess.Token, id.Session.Token)
	assert.False(t, id.Challenged, "a token is not a password challenge")

	// The username must own the token; otherwise the material falls
	// through to a regular, failing, password check.
	f.createUser(t, "acme", "fido", "hi dogs")
	_, err = f.gate.Authenticate(context.Background(), authn.Credential{
		Username: "fido", Password: sess.Token, TenantID: "acme",
	}, authn.Options{})
	assert.True(t, apperr.Is(err, apperr.EInvalidPassword))
}

func TestAuthenticate_SuperdogFallback(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, tenant.RootID, "platform", "hi dogs", credentials.RoleSuperdog)
	f.createUser(t, tenant.RootID, "mortal", "hi dogs")

	// A superdog signs in to any tenant with its root record; the
	// identity acts on the requested tenant.
	id, err := f.gate.Authenticate(context.Background(), authn.Credential{
		Username: "platform", Password: "hi dogs", TenantID: "acme",
	}, authn.Options{})
	require.NoError(t, err)
	assert.Equal(t, tenant.RootID, id.Credentials.TenantID)
	assert.Equal(t, "acme", id.TenantID)

	// Ordinary root records do not leak into other tenants.
	_, err = f.gate.Authenticate(context.Background(), authn.Credential{
		Username: "mortal", Password: "hi dogs", TenantID: "acme",
	}, authn.Options{})
	assert.True(t, apperr.Is(err, apperr.EUnknownUsername))
}

func TestAuthenticate_SuperdogTokenActsOnRequestedTenant(t *testing.T) {
	f := newFixture(t)
	dog := f.createUser(t, tenant.RootID, "platform", "hi dogs", credentials.RoleSuperdog)
	sess, err := f.sessions.Issue(context.Background(), dog, "", 0)
	require.NoError(t, err)

	id, err := f.gate.Authenticate(context.Background(), authn.Credential{
		Token: sess.Token, TenantID: "acme",
	}, authn.Options{})
	require.NoError(t, err)
	assert.Equal(t, "acme", id.TenantID)
}

func TestAuthenticate_Disabled(t *testing.T) {
	f := newFixture(t)
	c := f.createUser(t, "acme", "rex", "hi dogs")
	sess, err := f.sessions.Issue(context.Background(), c, "", 0)
	require.NoError(t, err)

	_, err = f.creds.SetEnabled(context.Background(), "acme", c.ID, false)
	require.NoError(t, err)

	_, err = f.gate.Authenticate(context.Background(), authn.Credential{
		Username: "rex", Password: "hi dogs", TenantID: "acme",
	}, authn.Options{})
	assert.True(t, apperr.Is(err, apperr.EDisabledCredentials))

	// Existing tokens stop working too.
	_, err = f.gate.Authenticate(context.Background(), authn.Credential{
		Token: sess.Token, TenantID: "acme",
	}, authn.Options{})
	assert.True(t, apperr.Is(err, apperr.EDisabledCredentials))
}

func TestAuthenticate_PasswordMustChange(t *testing.T) {
	f := newFixture(t)
	c := f.createUser(t, "acme", "rex", "hi dogs")
	_, err := f.creds.SetPasswordMustChange(context.Background(), "acme", c.ID)
	require.NoError(t, err)

	material := authn.Credential{Username: "rex", Password: "hi dogs", TenantID: "acme"}

	_, err = f.gate.Authenticate(context.Background(), material, authn.Options{})
	assert.True(t, apperr.Is(err, apperr.EPasswordMustChange))

	id, err := f.gate.Authenticate(context.Background(), material, authn.Options{AllowPasswordMustChange: true})
	require.NoError(t, err)
	assert.True(t, id.Challenged)
}

func TestCheckCount(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "acme", "rex", "hi dogs")

	material := authn.Credential{Username: "rex", Password: "hi dogs", TenantID: "acme"}
	for i := 0; i < 3; i++ {
		_, err := f.gate.Authenticate(context.Background(), material, authn.Options{})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), f.gate.CheckCount())
}
