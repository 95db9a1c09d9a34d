package audit

import (
	"testing"
)

func TestIsSecret(t *testing.T) {
	tests := []struct {
		key      string
		isSecret bool
	}{
		{"password", true},
		{"PASSWORD", true},
		{"passwordResetCode", true},
		{"access_token", true},
		{"token", true},
		{"hashed_password", true},
		{"hash", true},
		{"secret", true},
		{"api_key", true},
		{"credential", true},
		{"authorization", true},
		{"username", false},
		{"backend", false},
		{"roles", false},
		{"group_id", false},
		{"email", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := isSecret(tt.key); got != tt.isSecret {
				t.Errorf("isSecret(%q) = %v, want %v", tt.key, got, tt.isSecret)
			}
		})
	}
}
