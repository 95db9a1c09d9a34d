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
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/doghouse-io/doghouse/internal/settings"
)

// SettingsRepository implements settings.Repository
type SettingsRepository struct {
	db *DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Get(ctx context.Context, tenantID, key string) ([]byte, error) {
	var doc []byte
	err := r.db.pool.QueryRow(ctx, `
		SELECT doc FROM settings WHERE tenant_id = $1 AND key = $2
	`, tenantID, key).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, settings.ErrNotFound(tenantID, key)
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return doc, nil
}

func (r *SettingsRepository) Set(ctx context.Context, tenantID, key string, doc []byte) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO settings (tenant_id, key, doc, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, key) DO UPDATE SET doc = $3, updated_at = $4
	`, tenantID, key, doc, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set settings: %w", err)
	}
	return nil
}

func (r *SettingsRepository) Delete(ctx context.Context, tenantID, key string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM settings WHERE tenant_id = $1 AND key = $2
	`, tenantID, key)
	if err != nil {
		return fmt.Errorf("failed to delete settings: %w", err)
	}
	if result.RowsAffected() == 0 {
		return settings.ErrNotFound(tenantID, key)
	}
	return nil
}

func (r *SettingsRepository) DeleteByTenant(ctx context.Context, tenantID string) error {
	if _, err := r.db.pool.Exec(ctx, `
		DELETE FROM settings WHERE tenant_id = $1
	`, tenantID); err != nil {
		return fmt.Errorf("failed to delete tenant settings: %w", err)
	}
	return nil
}
