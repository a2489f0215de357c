// Copyright (c) 2026 John Earle
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

// Mailsweep — Operator Sweep Command
//
// Standalone CLI that runs one-off sweep and cleanup operations without the
// long-running service. Intended for incident response and migrations.
//
// Usage:
//
//	go run ./cmd/sweep/ --tenant <id>                          # sweep one tenant now
//	go run ./cmd/sweep/ --tenant <id> --cleanup                # delete orphaned records
//	go run ./cmd/sweep/ --tenant <id> --delete-all             # delete all records
//	go run ./cmd/sweep/ --tenant <id> --delete-integration <i> # delete one integration's records
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dealscope/mailsweep/internal/config"
	"github.com/dealscope/mailsweep/internal/dedup"
	"github.com/dealscope/mailsweep/internal/directory"
	"github.com/dealscope/mailsweep/internal/provider"
	"github.com/dealscope/mailsweep/internal/provider/gmail"
	"github.com/dealscope/mailsweep/internal/provider/outlook"
	"github.com/dealscope/mailsweep/internal/queue"
	"github.com/dealscope/mailsweep/internal/scheduler"
	"github.com/dealscope/mailsweep/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	tenantFlag := flag.String("tenant", "", "Tenant ID to operate on (required)")
	cleanupFlag := flag.Bool("cleanup", false, "Delete records with no integration scope instead of sweeping")
	deleteAllFlag := flag.Bool("delete-all", false, "Delete all of the tenant's records instead of sweeping")
	deleteIntegrationFlag := flag.String("delete-integration", "", "Delete one integration's records instead of sweeping")
	flag.Parse()

	if *tenantFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: --tenant is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}

	dir, err := directory.New(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise directory", "error", err)
		os.Exit(1)
	}

	gateway, err := store.NewGateway(ctx, pgPool, dir)
	if err != nil {
		slog.Error("failed to initialise record gateway", "error", err)
		os.Exit(1)
	}

	// --- Deletion modes need no Redis or adapters ---
	switch {
	case *cleanupFlag:
		deleted, err := gateway.CleanupOrphaned(ctx, *tenantFlag)
		exitOnError("cleanup failed", err)
		slog.Info("cleanup complete", "tenant", *tenantFlag, "deleted", deleted)
		return
	case *deleteAllFlag:
		deleted, err := gateway.DeleteAll(ctx, *tenantFlag)
		exitOnError("delete all failed", err)
		slog.Info("delete all complete", "tenant", *tenantFlag, "deleted", deleted)
		return
	case *deleteIntegrationFlag != "":
		deleted, err := gateway.DeleteByIntegration(ctx, *tenantFlag, *deleteIntegrationFlag)
		exitOnError("delete by integration failed", err)
		slog.Info("delete by integration complete",
			"tenant", *tenantFlag,
			"integration", *deleteIntegrationFlag,
			"deleted", deleted,
		)
		return
	}

	// --- Sweep mode: connect to Redis and run one tenant sync ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	publisher := queue.NewPublisher(rdb, cfg.NotifyQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(scheduler.Deps{
		Tenants:      dir,
		Integrations: dir,
		Records:      gateway,
		Seen:         dedup.NewFilter(rdb),
		Notify:       publisher,
		Providers: []provider.MailProvider{
			gmail.New(gmail.DefaultBaseURL),
			outlook.New(outlook.DefaultBaseURL),
		},
	}, cfg.SyncInterval, cfg.FetchMaxResults)

	res, err := sched.SyncTenant(ctx, *tenantFlag)
	exitOnError("sweep failed", err)

	slog.Info("sweep complete",
		"tenant", res.TenantID,
		"fetched", res.Fetched,
		"stored", res.Stored,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
}

func exitOnError(msg string, err error) {
	if err != nil {
		slog.Error(msg, "error", err)
		os.Exit(1)
	}
}
