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

// Subtrack - Subscription Service
//
// Entry point for the subscription extraction service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Compiles the pattern catalog and builds the extractor
//  4. Serves the JSON API (parsing, mailbox connections, scans, tracker)
//  5. Serves /health and /metrics on a separate port
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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/subtrack/ingestion/internal/api"
	"github.com/subtrack/ingestion/internal/catalog"
	"github.com/subtrack/ingestion/internal/config"
	"github.com/subtrack/ingestion/internal/connection"
	"github.com/subtrack/ingestion/internal/dedup"
	"github.com/subtrack/ingestion/internal/extractor"
	"github.com/subtrack/ingestion/internal/metrics"
	"github.com/subtrack/ingestion/internal/oauth"
	"github.com/subtrack/ingestion/internal/queue"
	"github.com/subtrack/ingestion/internal/scan"
	"github.com/subtrack/ingestion/internal/tracker"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting subtrack service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"api_port", cfg.APIPort,
		"scan_max_messages", cfg.ScanMaxMessages,
		"gmail", cfg.Gmail.ClientID != "",
		"outlook", cfg.Outlook.ClientID != "",
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

	publisher := queue.NewPublisher(rdb, cfg.CandidatesQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	filter := dedup.NewFilter(rdb, cfg.DedupTTL)

	// --- Stores (Postgres) ---
	connections, err := connection.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise connection store", "error", err)
		os.Exit(1)
	}
	subscriptions, err := tracker.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise tracker store", "error", err)
		os.Exit(1)
	}

	// --- Extractor ---
	cat := catalog.MustDefault()
	if cfg.CatalogPath != "" {
		cat, err = catalog.Load(cfg.CatalogPath)
		if err != nil {
			slog.Error("failed to load pattern catalog", "path", cfg.CatalogPath, "error", err)
			os.Exit(1)
		}
		slog.Info("pattern catalog loaded", "path", cfg.CatalogPath, "services", len(cat.Services))
	}
	ex := extractor.New(extractor.Config{
		Catalog: cat,
		Workers: cfg.ScanWorkers,
	})

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// --- OAuth + Scan Runner ---
	authMgr := oauth.NewManager(oauth.Config{
		AppURL:  cfg.AppURL,
		Gmail:   oauth.Credentials{ClientID: cfg.Gmail.ClientID, ClientSecret: cfg.Gmail.ClientSecret},
		Outlook: oauth.Credentials{ClientID: cfg.Outlook.ClientID, ClientSecret: cfg.Outlook.ClientSecret},
	})

	runner := scan.NewRunner(scan.RunnerConfig{
		Connections: connections,
		Sources:     &scan.Providers{OAuth: authMgr, GraphBaseURL: cfg.GraphBaseURL},
		Extractor:   ex,
		Publisher:   publisher,
		Dedup:       filter,
		Metrics:     m,
		MaxMessages: cfg.ScanMaxMessages,
	})

	// --- API Server ---
	handler := api.NewHandler(api.HandlerConfig{
		Extractor:   ex,
		Connections: connections,
		Scanner:     runner,
		Auth:        authMgr,
		States:      oauth.NewStateStore(rdb, oauth.DefaultStateTTL),
		Tracker:     subscriptions,
		Metrics:     m,
		AppURL:      cfg.AppURL,
	})
	ready, err := api.Serve(ctx, cfg.APIPort, handler)
	if err != nil {
		slog.Error("failed to start api server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Health + Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		// Check Redis
		if err := publisher.Ping(r.Context()); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}
		// Check Postgres
		if err := pgPool.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel() // Stops the api server

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		rdb.Close()
	}()

	slog.Info("health server listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("subtrack service stopped")
}
