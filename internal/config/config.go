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
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the sweep service.
type Config struct {
	// Postgres
	DatabaseURL string

	// Redis
	RedisURL    string
	NotifyQueue string

	// Sweep
	SyncInterval    time.Duration
	FetchMaxResults int

	// Server (control surface + health)
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Notify string `yaml:"notify"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Sweep struct {
		Interval   string `yaml:"interval"`
		MaxResults int    `yaml:"max_results"`
	} `yaml:"sweep"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables. A missing config file is not an error: everything
// has an env override or a default, so env-only deployments work.
func Load() (*Config, error) {
	raw := rawConfig{}

	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")
	if data, err := os.ReadFile(configPath); err == nil {
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		DatabaseURL:     firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		RedisURL:        firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		NotifyQueue:     firstNonEmpty(raw.Redis.Queues.Notify, envOrDefault("NOTIFY_QUEUE", "email-records")),
		SyncInterval:    envOrDefaultDuration("SYNC_INTERVAL", 5*time.Minute),
		FetchMaxResults: envOrDefaultInt("FETCH_MAX_RESULTS", 50),
		Port:            envOrDefaultInt("PORT", 8080),
	}

	if d, err := time.ParseDuration(raw.Sweep.Interval); err == nil && raw.Sweep.Interval != "" {
		cfg.SyncInterval = d
	}
	if raw.Sweep.MaxResults > 0 {
		cfg.FetchMaxResults = raw.Sweep.MaxResults
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("no database URL configured — set DATABASE_URL or database.url in config.yaml")
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
