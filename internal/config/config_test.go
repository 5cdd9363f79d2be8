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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "REDIS_URL", "CANDIDATES_QUEUE", "DEDUP_TTL",
		"GMAIL_CLIENT_ID", "GMAIL_CLIENT_SECRET", "OUTLOOK_CLIENT_ID", "OUTLOOK_CLIENT_SECRET",
		"APP_URL", "SCAN_MAX_MESSAGES", "SCAN_WORKERS", "CATALOG_PATH", "GRAPH_BASE_URL",
		"API_PORT", "PORT",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoad_EnvOnly verifies defaults when no file exists.
func TestLoad_EnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DATABASE_URL", "postgres://localhost/subtrack")
	t.Setenv("GMAIL_CLIENT_ID", "gid")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DatabaseURL != "postgres://localhost/subtrack" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" || cfg.CandidatesQueue != "candidates" {
		t.Errorf("redis = %q/%q", cfg.RedisURL, cfg.CandidatesQueue)
	}
	if cfg.DedupTTL != 30*24*time.Hour {
		t.Errorf("DedupTTL = %v", cfg.DedupTTL)
	}
	if cfg.ScanMaxMessages != 100 || cfg.ScanWorkers != 0 {
		t.Errorf("scan = %d/%d", cfg.ScanMaxMessages, cfg.ScanWorkers)
	}
	if cfg.APIPort != 8080 || cfg.Port != 9090 {
		t.Errorf("ports = %d/%d", cfg.APIPort, cfg.Port)
	}
	if cfg.Gmail.ClientID != "gid" || cfg.Outlook.ClientID != "" {
		t.Errorf("oauth = %+v / %+v", cfg.Gmail, cfg.Outlook)
	}
	if cfg.GraphBaseURL != "https://graph.microsoft.com/v1.0" {
		t.Errorf("GraphBaseURL = %q", cfg.GraphBaseURL)
	}
}

// TestLoad_File verifies YAML values, env expansion and precedence.
func TestLoad_File(t *testing.T) {
	clearEnv(t)
	t.Setenv("PG_PASSWORD", "hunter2")
	t.Setenv("REDIS_URL", "redis://env:6379/1")
	t.Setenv("SCAN_MAX_MESSAGES", "50")

	t.Setenv("CONFIG_PATH", writeConfig(t, `
database:
  url: postgres://app:${PG_PASSWORD}@db/subtrack
redis:
  url: redis://file:6379/0
  queues:
    candidates: review
  dedup_ttl: 48h
oauth:
  app_url: https://subtrack.example.com/
  outlook:
    client_id: oid
    client_secret: osecret
scan:
  workers: 4
  catalog: /etc/subtrack/catalog.yaml
`))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DatabaseURL != "postgres://app:hunter2@db/subtrack" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.RedisURL != "redis://file:6379/0" || cfg.CandidatesQueue != "review" {
		t.Errorf("redis = %q/%q", cfg.RedisURL, cfg.CandidatesQueue)
	}
	if cfg.DedupTTL != 48*time.Hour {
		t.Errorf("DedupTTL = %v", cfg.DedupTTL)
	}
	if cfg.AppURL != "https://subtrack.example.com" {
		t.Errorf("AppURL = %q", cfg.AppURL)
	}
	if cfg.Outlook != (OAuthClient{ClientID: "oid", ClientSecret: "osecret"}) {
		t.Errorf("Outlook = %+v", cfg.Outlook)
	}
	if cfg.ScanMaxMessages != 50 || cfg.ScanWorkers != 4 {
		t.Errorf("scan = %d/%d", cfg.ScanMaxMessages, cfg.ScanWorkers)
	}
	if cfg.CatalogPath != "/etc/subtrack/catalog.yaml" {
		t.Errorf("CatalogPath = %q", cfg.CatalogPath)
	}
}

// TestLoad_Errors verifies rejected configurations.
func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{"no database", "redis:\n  url: redis://x\n", nil},
		{"bad yaml", "database: [unclosed\n", map[string]string{"DATABASE_URL": "postgres://x"}},
		{"bad ttl", "redis:\n  dedup_ttl: forever\n", map[string]string{"DATABASE_URL": "postgres://x"}},
		{"same ports", "", map[string]string{"DATABASE_URL": "postgres://x", "API_PORT": "9000", "PORT": "9000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			t.Setenv("CONFIG_PATH", writeConfig(t, tt.yaml))

			if _, err := Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
