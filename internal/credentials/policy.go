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

import "context"

// Settings is the per-tenant credentials policy. It is stored and
// edited through the settings service and consumed here and by the
// session manager and the authentication gate.
type Settings struct {
	// DisableGuestSignUp requires an authenticated caller on sign-up.
	DisableGuestSignUp bool `json:"disableGuestSignUp"`

	// UsernameRegex and PasswordRegex validate new usernames and
	// cleartext passwords. Empty means the default.
	UsernameRegex string `json:"usernameRegex,omitempty"`
	PasswordRegex string `json:"passwordRegex,omitempty"`

	// MaximumInvalidChallenges disables a record after that many
	// consecutive failed password challenges. Zero disables lockout.
	MaximumInvalidChallenges int `json:"maximumInvalidChallenges"`

	// ResetInvalidChallengesAfterMinutes forgets stale failed
	// challenges once the last one is older than this.
	ResetInvalidChallengesAfterMinutes int `json:"resetInvalidChallengesAfterMinutes"`

	// SessionMaximumLifetime and SessionDefaultLifetime bound and
	// default the access token lifetime, in seconds.
	SessionMaximumLifetime int64 `json:"sessionMaximumLifetime"`
	SessionDefaultLifetime int64 `json:"sessionDefaultLifetime"`
}

// Platform defaults applied when a tenant has no stored policy.
const (
	DefaultUsernameRegex          = `.{3,}`
	DefaultPasswordRegex          = `.{6,}`
	DefaultResetChallengesMinutes = 60
	DefaultSessionMaxLifetime     = int64(24 * 60 * 60)
)

// WithDefaults fills unset fields with the platform defaults.
func (s Settings) WithDefaults() Settings {
	if s.UsernameRegex == "" {
		s.UsernameRegex = DefaultUsernameRegex
	}
	if s.PasswordRegex == "" {
		s.PasswordRegex = DefaultPasswordRegex
	}
	if s.ResetInvalidChallengesAfterMinutes <= 0 {
		s.ResetInvalidChallengesAfterMinutes = DefaultResetChallengesMinutes
	}
	if s.SessionMaximumLifetime <= 0 {
		s.SessionMaximumLifetime = DefaultSessionMaxLifetime
	}
	if s.SessionDefaultLifetime <= 0 || s.SessionDefaultLifetime > s.SessionMaximumLifetime {
		s.SessionDefaultLifetime = s.SessionMaximumLifetime
	}
	return s
}

// SettingsSource resolves the credentials policy of a tenant.
// Implemented by the settings service.
type SettingsSource interface {
	CredentialsSettings(ctx context.Context, tenantID string) (Settings, error)
}
