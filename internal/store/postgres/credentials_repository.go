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

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/doghouse-io/doghouse/internal/apperr"
	"github.com/doghouse-io/doghouse/internal/credentials"
)

const uniqueViolation = "23505"

// CredentialsRepository implements credentials.Repository. Sessions
// live as a JSONB array on the credentials row so that eviction and
// revoke-all commit atomically with the version bump.
type CredentialsRepository struct {
	db *DB
}

// NewCredentialsRepository creates a new credentials repository
func NewCredentialsRepository(db *DB) *CredentialsRepository {
	return &CredentialsRepository{db: db}
}

const credentialsColumns = `
	id, tenant_id, version, username, email, enabled, roles, group_id,
	enable_after, disable_after, password_must_change,
	invalid_challenges, last_invalid_challenge_at,
	hashed_password, password_reset_code, sessions, created_at, updated_at`

func (r *CredentialsRepository) Create(ctx context.Context, c *credentials.Credentials) error {
	sessions, err := marshalSessions(c.Sessions)
	if err != nil {
		return err
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO credentials (
			id, tenant_id, version, username, email, enabled, roles, group_id,
			enable_after, disable_after, password_must_change,
			invalid_challenges, last_invalid_challenge_at,
			hashed_password, password_reset_code, sessions, created_at, updated_at
		) VALUES ($1, $2, 1, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		c.ID, c.TenantID, c.Username, c.Email, c.Enabled, c.Roles, c.GroupID,
		c.EnableAfter, c.DisableAfter, c.PasswordMustChange,
		c.InvalidChallenges, c.LastInvalidChallengeAt,
		c.HashedPassword, c.PasswordResetCode, sessions, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperr.New(apperr.EAlreadyExists, "username [%s] already exists", c.Username)
		}
		return fmt.Errorf("failed to insert credentials: %w", err)
	}
	c.Version = 1
	return nil
}

func (r *CredentialsRepository) Get(ctx context.Context, tenantID, id string) (*credentials.Credentials, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT`+credentialsColumns+`
		FROM credentials
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)

	c, err := scanCredentials(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.ECredentialsNotFound, "credentials [%s] not found in backend [%s]", id, tenantID)
	}
	return c, err
}

func (r *CredentialsRepository) GetByUsername(ctx context.Context, tenantID, username string) (*credentials.Credentials, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT`+credentialsColumns+`
		FROM credentials
		WHERE tenant_id = $1 AND username = $2
	`, tenantID, username)

	c, err := scanCredentials(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.ECredentialsNotFound, "username [%s] not found in backend [%s]", username, tenantID)
	}
	return c, err
}

func (r *CredentialsRepository) GetByToken(ctx context.Context, token string) (*credentials.Credentials, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT`+credentialsColumns+`
		FROM credentials
		WHERE sessions @> jsonb_build_array(jsonb_build_object('token', $1::text))
	`, token)

	c, err := scanCredentials(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.EInvalidAccessToken, "access token is invalid")
	}
	return c, err
}

func (r *CredentialsRepository) Update(ctx context.Context, c *credentials.Credentials) error {
	sessions, err := marshalSessions(c.Sessions)
	if err != nil {
		return err
	}

	result, err := r.db.pool.Exec(ctx, `
		UPDATE credentials SET
			version = version + 1,
			username = $4,
			email = $5,
			enabled = $6,
			roles = $7,
			group_id = $8,
			enable_after = $9,
			disable_after = $10,
			password_must_change = $11,
			invalid_challenges = $12,
			last_invalid_challenge_at = $13,
			hashed_password = $14,
			password_reset_code = $15,
			sessions = $16,
			updated_at = $17
		WHERE tenant_id = $1 AND id = $2 AND version = $3
	`,
		c.TenantID, c.ID, c.Version,
		c.Username, c.Email, c.Enabled, c.Roles, c.GroupID,
		c.EnableAfter, c.DisableAfter, c.PasswordMustChange,
		c.InvalidChallenges, c.LastInvalidChallengeAt,
		c.HashedPassword, c.PasswordResetCode, sessions, c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperr.New(apperr.EAlreadyExists, "username [%s] already exists", c.Username)
		}
		return fmt.Errorf("failed to update credentials: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Either the row is gone or the version moved under us.
		if _, getErr := r.Get(ctx, c.TenantID, c.ID); getErr != nil {
			return getErr
		}
		return apperr.New(apperr.EVersionConflict, "credentials [%s] changed concurrently", c.ID)
	}
	c.Version++
	return nil
}

func (r *CredentialsRepository) Delete(ctx context.Context, tenantID, id string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM credentials WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.New(apperr.ECredentialsNotFound, "credentials [%s] not found in backend [%s]", id, tenantID)
	}
	return nil
}

func (r *CredentialsRepository) DeleteByTenant(ctx context.Context, tenantID string, keepSuperAdmins bool) error {
	query := `DELETE FROM credentials WHERE tenant_id = $1`
	args := []any{tenantID}
	if keepSuperAdmins {
		query += ` AND NOT (roles @> ARRAY[$2]::text[])`
		args = append(args, credentials.RoleSuperAdmin)
	}
	if _, err := r.db.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete tenant credentials: %w", err)
	}
	return nil
}

func (r *CredentialsRepository) Search(ctx context.Context, tenantID string, f credentials.Filter) ([]*credentials.Credentials, error) {
	query := `SELECT` + credentialsColumns + ` FROM credentials WHERE tenant_id = $1`
	args := []any{tenantID}

	if f.Username != "" {
		args = append(args, f.Username)
		query += fmt.Sprintf(" AND username = $%d", len(args))
	}
	if f.Email != "" {
		args = append(args, f.Email)
		query += fmt.Sprintf(" AND email = $%d", len(args))
	}
	if f.Role != "" {
		args = append(args, f.Role)
		query += fmt.Sprintf(" AND roles @> ARRAY[$%d]::text[]", len(args))
	}
	query += " ORDER BY username"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search credentials: %w", err)
	}
	defer rows.Close()

	var out []*credentials.Credentials
	for rows.Next() {
		c, err := scanCredentials(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CredentialsRepository) CountByRole(ctx context.Context, tenantID, role string) (int, error) {
	var n int
	err := r.db.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM credentials
		WHERE tenant_id = $1 AND roles @> ARRAY[$2]::text[]
	`, tenantID, role).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count credentials by role: %w", err)
	}
	return n, nil
}

func scanCredentials(row pgx.Row) (*credentials.Credentials, error) {
	var c credentials.Credentials
	var sessions []byte

	err := row.Scan(
		&c.ID, &c.TenantID, &c.Version, &c.Username, &c.Email, &c.Enabled,
		&c.Roles, &c.GroupID, &c.EnableAfter, &c.DisableAfter,
		&c.PasswordMustChange, &c.InvalidChallenges, &c.LastInvalidChallengeAt,
		&c.HashedPassword, &c.PasswordResetCode, &sessions,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan credentials: %w", err)
	}
	if err := json.Unmarshal(sessions, &c.Sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return &c, nil
}

func marshalSessions(sessions []credentials.Session) ([]byte, error) {
	if sessions == nil {
		sessions = []credentials.Session{}
	}
	raw, err := json.Marshal(sessions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sessions: %w", err)
	}
	return raw, nil
}
