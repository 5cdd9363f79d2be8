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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OAuthClient holds one provider's OAuth application credentials.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
}

// Config holds all configuration for the subtrack service.
type Config struct {
	DatabaseURL string

	// Redis
	RedisURL        string
	CandidatesQueue string
	DedupTTL        time.Duration

	// OAuth
	Gmail   OAuthClient
	Outlook OAuthClient
	AppURL  string // public front-end URL; OAuth redirects are built from it

	// Scanning
	ScanMaxMessages int
	ScanWorkers     int // 0 = GOMAXPROCS
	CatalogPath     string
	GraphBaseURL    string

	// Servers
	APIPort int
	Port    int // health and metrics
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Candidates string `yaml:"candidates"`
		} `yaml:"queues"`
		DedupTTL string `yaml:"dedup_ttl"`
	} `yaml:"redis"`
	OAuth struct {
		AppURL string `yaml:"app_url"`
		Gmail  struct {
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"client_secret"`
		} `yaml:"gmail"`
		Outlook struct {
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"client_secret"`
		} `yaml:"outlook"`
	} `yaml:"oauth"`
	Scan struct {
		MaxMessages int    `yaml:"max_messages"`
		Workers     int    `yaml:"workers"`
		Catalog     string `yaml:"catalog"`
		GraphURL    string `yaml:"graph_url"`
	} `yaml:"scan"`
}

// Load reads configuration from the file at CONFIG_PATH (with env var
// expansion) and environment variables. A missing file is not an error;
// the service then runs on environment variables alone.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// environment only
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	default:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	dedupTTL := envOrDefaultDuration("DEDUP_TTL", 30*24*time.Hour)
	if raw.Redis.DedupTTL != "" {
		d, err := time.ParseDuration(raw.Redis.DedupTTL)
		if err != nil {
			return nil, fmt.Errorf("parse redis.dedup_ttl %q: %w", raw.Redis.DedupTTL, err)
		}
		dedupTTL = d
	}

	cfg := &Config{
		DatabaseURL:     firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		RedisURL:        firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		CandidatesQueue: firstNonEmpty(raw.Redis.Queues.Candidates, envOrDefault("CANDIDATES_QUEUE", "candidates")),
		DedupTTL:        dedupTTL,
		Gmail: OAuthClient{
			ClientID:     firstNonEmpty(raw.OAuth.Gmail.ClientID, os.Getenv("GMAIL_CLIENT_ID")),
			ClientSecret: firstNonEmpty(raw.OAuth.Gmail.ClientSecret, os.Getenv("GMAIL_CLIENT_SECRET")),
		},
		Outlook: OAuthClient{
			ClientID:     firstNonEmpty(raw.OAuth.Outlook.ClientID, os.Getenv("OUTLOOK_CLIENT_ID")),
			ClientSecret: firstNonEmpty(raw.OAuth.Outlook.ClientSecret, os.Getenv("OUTLOOK_CLIENT_SECRET")),
		},
		AppURL:          strings.TrimSuffix(firstNonEmpty(raw.OAuth.AppURL, envOrDefault("APP_URL", "http://localhost:3000")), "/"),
		ScanMaxMessages: firstPositive(raw.Scan.MaxMessages, envOrDefaultInt("SCAN_MAX_MESSAGES", 100)),
		ScanWorkers:     firstPositive(raw.Scan.Workers, envOrDefaultInt("SCAN_WORKERS", 0)),
		CatalogPath:     firstNonEmpty(raw.Scan.Catalog, os.Getenv("CATALOG_PATH")),
		GraphBaseURL:    firstNonEmpty(raw.Scan.GraphURL, envOrDefault("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0")),
		APIPort:         envOrDefaultInt("API_PORT", 8080),
		Port:            envOrDefaultInt("PORT", 9090),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.APIPort == cfg.Port {
		return nil, fmt.Errorf("API_PORT and PORT must differ (both %d)", cfg.Port)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
