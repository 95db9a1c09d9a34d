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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestIsEnabled_FlagOnly(t *testing.T) {
	now := ts("2026-06-01T12:00:00Z")

	c := &Credentials{Enabled: true}
	assert.True(t, c.IsEnabled(now))

	c.Enabled = false
	assert.False(t, c.IsEnabled(now))
}

func TestIsEnabled_Window(t *testing.T) {
	now := ts("2026-06-01T12:00:00Z")
	before := ts("2026-06-01T10:00:00Z")
	after := ts("2026-06-01T14:00:00Z")

	tests := []struct {
		name         string
		enableAfter  *time.Time
		disableAfter *time.Time
		want         bool
	}{
		{"no window", nil, nil, true},
		{"enable passed", &before, nil, true},
		{"enable pending", &after, nil, false},
		{"disable pending", nil, &after, true},
		{"disable passed", nil, &before, false},
		{"inside window", &before, &after, true},
		{"window not yet open", &after, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Credentials{Enabled: true, EnableAfter: tt.enableAfter, DisableAfter: tt.disableAfter}
			assert.Equal(t, tt.want, c.IsEnabled(now))
		})
	}
}

// A wrapped window (disableAfter before enableAfter) disables the
// record only between the two instants.
func TestIsEnabled_WrappedWindow(t *testing.T) {
	enable := ts("2026-06-01T14:00:00Z")
	disable := ts("2026-06-01T10:00:00Z")
	c := &Credentials{Enabled: true, EnableAfter: &enable, DisableAfter: &disable}

	assert.True(t, c.IsEnabled(ts("2026-06-01T08:00:00Z")), "before the disable instant")
	assert.False(t, c.IsEnabled(ts("2026-06-01T12:00:00Z")), "between disable and enable")
	assert.True(t, c.IsEnabled(ts("2026-06-01T16:00:00Z")), "after the enable instant")
}

func TestAppendSession_EvictsOldest(t *testing.T) {
	c := &Credentials{}
	base := ts("2026-06-01T00:00:00Z")

	for i := 0; i < MaxSessions; i++ {
		evicted := c.AppendSession(Session{
			Token:    fmt.Sprintf("token-%d", i),
			IssuedAt: base.Add(time.Duration(i) * time.Minute),
		})
		assert.Empty(t, evicted)
	}
	require.Len(t, c.Sessions, MaxSessions)

	evicted := c.AppendSession(Session{Token: "token-overflow", IssuedAt: base.Add(time.Hour)})
	require.Len(t, evicted, 1)
	assert.Equal(t, "token-0", evicted[0].Token)
	assert.Len(t, c.Sessions, MaxSessions)

	_, ok := c.SessionByToken("token-0")
	assert.False(t, ok, "evicted token must be gone from the record")
	_, ok = c.SessionByToken("token-overflow")
	assert.True(t, ok)
}

func TestRemoveSession(t *testing.T) {
	c := &Credentials{}
	c.AppendSession(Session{Token: "a"})
	c.AppendSession(Session{Token: "b"})

	assert.True(t, c.RemoveSession("a"))
	assert.False(t, c.RemoveSession("a"), "second removal finds nothing")
	assert.Len(t, c.Sessions, 1)
}

func TestSessionExpiresIn_RoundsUp(t *testing.T) {
	now := ts("2026-06-01T12:00:00Z")
	s := Session{ExpiresAt: now.Add(90*time.Second + 300*time.Millisecond)}
	assert.Equal(t, int64(91), s.ExpiresIn(now))

	s = Session{ExpiresAt: now.Add(60 * time.Second)}
	assert.Equal(t, int64(60), s.ExpiresIn(now))

	s = Session{ExpiresAt: now.Add(-time.Second)}
	assert.Equal(t, int64(0), s.ExpiresIn(now))
}

func TestLevel(t *testing.T) {
	tests := []struct {
		roles []string
		want  Level
	}{
		{nil, LevelKey},
		{[]string{"user"}, LevelUser},
		{[]string{"user", "admin"}, LevelAdmin},
		{[]string{"superadmin"}, LevelSuperAdmin},
		{[]string{"user", "superdog"}, LevelSuperdog},
	}
	for _, tt := range tests {
		c := &Credentials{Roles: tt.roles}
		assert.Equal(t, tt.want, c.Level())
	}

	assert.True(t, LevelSuperdog.HasAtLeast(LevelAdmin))
	assert.False(t, LevelUser.HasAtLeast(LevelAdmin))
}

func TestGroupFallsBackToID(t *testing.T) {
	c := &Credentials{ID: "id-1"}
	assert.Equal(t, "id-1", c.Group())

	c.GroupID = "shared"
	assert.Equal(t, "shared", c.Group())
}

func TestViewStripsSecrets(t *testing.T) {
	c := &Credentials{
		ID:                "id-1",
		Username:          "rex",
		HashedPassword:    "$argon2id$...",
		PasswordResetCode: "code",
		Sessions:          []Session{{Token: "tok"}},
	}
	v := c.View()
	assert.Equal(t, "rex", v.Username)

	// The view type carries no secret fields at all; this is a
	// compile-time property, the assertion documents it.
	assert.NotContains(t, fmt.Sprintf("%+v", v), "argon2id")
	assert.NotContains(t, fmt.Sprintf("%+v", v), "tok")
}
