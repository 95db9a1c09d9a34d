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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/doghouse-io/doghouse/internal/acl"
	"github.com/doghouse-io/doghouse/internal/apperr"
	"github.com/doghouse-io/doghouse/internal/audit"
	"github.com/doghouse-io/doghouse/internal/authn"
	"github.com/doghouse-io/doghouse/internal/batch"
	"github.com/doghouse-io/doghouse/internal/config"
	"github.com/doghouse-io/doghouse/internal/credentials"
	"github.com/doghouse-io/doghouse/internal/observability/logger"
	"github.com/doghouse-io/doghouse/internal/observability/metrics"
	"github.com/doghouse-io/doghouse/internal/observability/tracing"
	"github.com/doghouse-io/doghouse/internal/session"
	"github.com/doghouse-io/doghouse/internal/settings"
	"github.com/doghouse-io/doghouse/internal/store/memory"
	"github.com/doghouse-io/doghouse/internal/store/postgres"
	"github.com/doghouse-io/doghouse/internal/tenant"
	transportHTTP "github.com/doghouse-io/doghouse/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting doghouse platform core")

	ctx := context.Background()

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
		os.Exit(1)
	}

	// Repositories
	var (
		credRepo     credentials.Repository
		tenantRepo   tenant.Repository
		settingsRepo settings.Repository
	)
	switch cfg.Store.Backend {
	case "postgres":
		db, err := postgres.New(ctx, postgres.Config{
			Host:         cfg.Database.Host,
			Port:         cfg.Database.Port,
			User:         cfg.Database.User,
			Password:     cfg.Database.Password,
			Database:     cfg.Database.Database,
			SSLMode:      cfg.Database.SSLMode,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			slog.Error("failed to connect to database", logger.Error(err))
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
			slog.Error("failed to run migrations", logger.Error(err))
			os.Exit(1)
		}
		slog.Info("connected to database")

		credRepo = postgres.NewCredentialsRepository(db)
		tenantRepo = postgres.NewTenantRepository(db)
		settingsRepo = postgres.NewSettingsRepository(db)
	case "memory":
		slog.Warn("using in-memory store, all state is lost on restart")
		credRepo = memory.NewCredentialsStore()
		tenantRepo = memory.NewTenantStore()
		settingsRepo = memory.NewSettingsStore()
	}

	// Services
	auditLogger := audit.NewSlogLogger()
	settingsService := settings.NewService(settingsRepo)
	hasher := credentials.NewHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)
	credService := credentials.NewService(credRepo, hasher, settingsService, auditLogger)
	sessionManager := session.NewManager(credRepo, settingsService, auditLogger)

	tenantService := tenant.NewService(tenantRepo, auditLogger)
	tenantService.OnDelete(credService.DeleteTenant)
	tenantService.OnDelete(settingsService.DeleteTenant)

	gate := authn.NewGate(credService, sessionManager, meter, auditLogger)
	engine := acl.NewEngine(settingsService)

	if err := tenantService.EnsureRoot(ctx); err != nil {
		slog.Error("failed to ensure root backend", logger.Error(err))
		os.Exit(1)
	}
	if err := bootstrapSuperdog(ctx, cfg, credService); err != nil {
		slog.Error("failed to bootstrap superdog", logger.Error(err))
		os.Exit(1)
	}

	// HTTP
	handler := transportHTTP.NewHandler(gate, credService, sessionManager, tenantService, settingsService, engine)
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	router := transportHTTP.NewRouter(handler, rateLimiter)
	handler.SetDispatcher(batch.NewDispatcher(router, meter))

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("http server listening", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed", logger.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", logger.Error(err))
	}
}

// bootstrapSuperdog ensures the configured platform operator exists in
// the root backend. Idempotent across restarts.
func bootstrapSuperdog(ctx context.Context, cfg *config.Config, credService *credentials.Service) error {
	if cfg.Security.SuperdogUsername == "" {
		return nil
	}
	_, err := credService.GetByUsername(ctx, tenant.RootID, cfg.Security.SuperdogUsername)
	if err == nil {
		return nil
	}
	if !apperr.Is(err, apperr.ECredentialsNotFound) {
		return err
	}

	_, err = credService.CreateWithRoles(ctx, tenant.RootID, credentials.CreateRequest{
		Username: cfg.Security.SuperdogUsername,
		Password: cfg.Security.SuperdogPassword,
		Email:    cfg.Security.SuperdogEmail,
	}, []string{credentials.RoleSuperdog})
	if err != nil {
		return err
	}
	slog.Info("bootstrapped superdog", logger.Username(cfg.Security.SuperdogUsername))
	return nil
}
