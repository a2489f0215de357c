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

// Mailsweep — Email Sync Service
//
// Entry point for the sweep service. It:
//  1. Loads configuration from config.yaml / environment
//  2. Connects to PostgreSQL and Redis
//  3. Wires the provider adapters, classifier pipeline, and record gateway
//  4. Starts the periodic sweep scheduler
//  5. Serves the operator control surface and health endpoint
//  6. Handles graceful shutdown on SIGTERM/SIGINT
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dealscope/mailsweep/internal/config"
	"github.com/dealscope/mailsweep/internal/control"
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

	slog.Info("starting mailsweep service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"sync_interval", cfg.SyncInterval,
		"fetch_max_results", cfg.FetchMaxResults,
	)

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
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	publisher := queue.NewPublisher(rdb, cfg.NotifyQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Dedup Filter ---
	filter := dedup.NewFilter(rdb)

	// --- Directories + Record Gateway (Postgres) ---
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

	// --- Scheduler ---
	sched := scheduler.New(scheduler.Deps{
		Tenants:      dir,
		Integrations: dir,
		Records:      gateway,
		Seen:         filter,
		Notify:       publisher,
		Providers: []provider.MailProvider{
			gmail.New(gmail.DefaultBaseURL),
			outlook.New(outlook.DefaultBaseURL),
		},
	}, cfg.SyncInterval, cfg.FetchMaxResults)

	sched.Start(ctx)

	// --- Control Surface ---
	handler := control.New(ctx, sched, gateway, dir, pgPinger{pgPool}, publisher)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		sched.Stop()
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		rdb.Close()
		pgPool.Close()
	}()

	slog.Info("mailsweep service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("mailsweep service stopped")
}

// pgPinger adapts the pgx pool to the control surface's Pinger.
type pgPinger struct {
	pool *pgxpool.Pool
}

func (p pgPinger) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
