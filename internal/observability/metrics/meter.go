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

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps the OpenTelemetry meter and the instruments the platform
// core reports on.
type Meter struct {
	// CredentialChecks counts store-backed credential resolutions.
	// Batch requests must bump this exactly once regardless of size.
	CredentialChecks metric.Int64Counter

	// Logins and LoginFailures count password challenges.
	Logins        metric.Int64Counter
	LoginFailures metric.Int64Counter

	// BatchSize records the number of sub-requests per batch.
	BatchSize metric.Int64Histogram
}

// New creates a meter instance with the core instruments registered.
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	name := serviceName
	if !cfg.Enabled {
		name = "noop"
	}
	meter := otel.Meter(name)

	m := &Meter{}
	var err error

	if m.CredentialChecks, err = meter.Int64Counter("credential_checks_total",
		metric.WithDescription("Credential resolutions against the store")); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	if m.Logins, err = meter.Int64Counter("logins_total",
		metric.WithDescription("Successful password challenges")); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	if m.LoginFailures, err = meter.Int64Counter("login_failures_total",
		metric.WithDescription("Failed password challenges")); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	if m.BatchSize, err = meter.Int64Histogram("batch_size",
		metric.WithDescription("Sub-requests per batch"),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("failed to create histogram: %w", err)
	}

	return m, nil
}
