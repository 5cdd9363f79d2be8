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

// Subtrack - Scan Command
//
// Standalone CLI tool with two modes:
//
// Offline: rank a JSON array of candidate emails read from a file or stdin
// and print the detected subscriptions, highest confidence first. Needs no
// configuration.
//
// Live: scan a stored mailbox connection exactly as the API does, queueing
// first-seen candidates for review.
//
// Usage:
//
//	go run ./cmd/scan/ [--input emails.json] [--catalog catalog.yaml]
//	go run ./cmd/scan/ --user <user-id> --connection <connection-id>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/subtrack/ingestion/internal/catalog"
	"github.com/subtrack/ingestion/internal/config"
	"github.com/subtrack/ingestion/internal/connection"
	"github.com/subtrack/ingestion/internal/dedup"
	"github.com/subtrack/ingestion/internal/extractor"
	"github.com/subtrack/ingestion/internal/models"
	"github.com/subtrack/ingestion/internal/oauth"
	"github.com/subtrack/ingestion/internal/queue"
	"github.com/subtrack/ingestion/internal/scan"
)

func main() {
	// Structured JSON logging; stdout carries results.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	inputFlag := flag.String("input", "-", "JSON file of candidate emails for offline ranking (- = stdin)")
	catalogFlag := flag.String("catalog", "", "Pattern catalog YAML (optional; default built-in)")
	userFlag := flag.String("user", "", "User id owning the connection (live mode)")
	connFlag := flag.String("connection", "", "Connection id to scan (live mode)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var err error
	switch {
	case *connFlag == "" && *userFlag == "":
		err = rankOffline(*inputFlag, *catalogFlag, os.Stdout)
	case *connFlag == "" || *userFlag == "":
		fmt.Fprintf(os.Stderr, "Error: --user and --connection must be given together\n\n")
		flag.Usage()
		os.Exit(1)
	default:
		err = scanLive(ctx, *userFlag, *connFlag, os.Stdout)
	}
	if err != nil {
		slog.Error("scan failed", "error", err)
		os.Exit(1)
	}
}

// rankOffline reads candidate emails and writes the ranked matches to w.
func rankOffline(input, catalogPath string, w io.Writer) error {
	var r io.Reader = os.Stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var emails []models.CandidateEmail
	if err := json.NewDecoder(r).Decode(&emails); err != nil {
		return fmt.Errorf("decode candidate emails: %w", err)
	}

	cat := catalog.MustDefault()
	if catalogPath != "" {
		var err error
		if cat, err = catalog.Load(catalogPath); err != nil {
			return err
		}
	}

	subs := extractor.New(extractor.Config{Catalog: cat}).ScanAll(emails)
	slog.Info("offline ranking complete",
		"emails", len(emails),
		"found", len(subs),
	)
	return writeJSON(w, subs)
}

// scanLive runs one scan of a stored connection through the same runner
// the API uses.
func scanLive(ctx context.Context, userID, connectionID string, w io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("create Postgres pool: %w", err)
	}
	defer pgPool.Close()

	connections, err := connection.NewStore(ctx, pgPool)
	if err != nil {
		return err
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	publisher := queue.NewPublisher(rdb, cfg.CandidatesQueue)
	if err := publisher.Ping(ctx); err != nil {
		return fmt.Errorf("connect to Redis: %w", err)
	}

	cat := catalog.MustDefault()
	if cfg.CatalogPath != "" {
		if cat, err = catalog.Load(cfg.CatalogPath); err != nil {
			return err
		}
	}

	authMgr := oauth.NewManager(oauth.Config{
		AppURL:  cfg.AppURL,
		Gmail:   oauth.Credentials{ClientID: cfg.Gmail.ClientID, ClientSecret: cfg.Gmail.ClientSecret},
		Outlook: oauth.Credentials{ClientID: cfg.Outlook.ClientID, ClientSecret: cfg.Outlook.ClientSecret},
	})

	runner := scan.NewRunner(scan.RunnerConfig{
		Connections: connections,
		Sources:     &scan.Providers{OAuth: authMgr, GraphBaseURL: cfg.GraphBaseURL},
		Extractor:   extractor.New(extractor.Config{Catalog: cat, Workers: cfg.ScanWorkers}),
		Publisher:   publisher,
		Dedup:       dedup.NewFilter(rdb, cfg.DedupTTL),
		MaxMessages: cfg.ScanMaxMessages,
	})

	res, err := runner.Run(ctx, userID, connectionID)
	if err != nil {
		return err
	}

	// --- Summary ---
	slog.Info("live scan complete",
		"user", userID,
		"connection", connectionID,
		"provider", res.Provider,
		"examined", res.Examined,
		"found", len(res.Subscriptions),
		"queued", res.Queued,
	)
	return writeJSON(w, res)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
