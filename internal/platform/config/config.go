// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, providers) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// # Configuration Schema

// Config holds all runtime configuration for the Storyforge API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Store (Redis) — job queue, poll schedule, cancellation flags
	RedisURL string `env:"REDIS_URL,required"`

	// Local asset storage for downloaded images and style references
	StoragePath string `env:"STORAGE_PATH" envDefault:"./storage"`

	// Dify workflow provider (prompt extraction, prompt assembly, judging)
	DifyAPIKey           string `env:"DIFY_API_KEY"`
	DifyBaseURL          string `env:"DIFY_BASE_URL"           envDefault:"https://api.dify.ai/v1"`
	DifyWorkflowStage1   string `env:"DIFY_WORKFLOW_STAGE1"`
	DifyWorkflowStage2   string `env:"DIFY_WORKFLOW_STAGE2"`
	DifyWorkflowStyle    string `env:"DIFY_WORKFLOW_STYLE_REVERSE"`
	DifyWorkflowSelector string `env:"DIFY_WORKFLOW_IMAGE_SELECTOR"`

	// Image generation platforms
	JimengAPIKey   string `env:"JIMENG_API_KEY"`
	JimengBaseURL  string `env:"JIMENG_BASE_URL"  envDefault:"https://api.jimeng.com"`
	VolcanoAPIKey  string `env:"VOLCANO_API_KEY"`
	VolcanoBaseURL string `env:"VOLCANO_BASE_URL" envDefault:"https://api.volcengine.com"`
	MJAPIKey       string `env:"MJ_API_KEY"`
	MJBaseURL      string `env:"MJ_BASE_URL"      envDefault:"https://api.midjourney.com"`

	// Generation pipeline tuning
	MaxJobAttempts      int           `env:"MAX_JOB_ATTEMPTS"      envDefault:"3"`
	CandidateCount      int           `env:"CANDIDATE_COUNT"       envDefault:"3"`
	ProviderConcurrency int           `env:"PROVIDER_CONCURRENCY"  envDefault:"4"`
	ProviderRPS         float64       `env:"PROVIDER_RPS"          envDefault:"2"`
	PollBaseInterval    time.Duration `env:"POLL_BASE_INTERVAL"    envDefault:"2s"`
	PollMaxInterval     time.Duration `env:"POLL_MAX_INTERVAL"     envDefault:"60s"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
//
// A local .env file is read first when present. Missing .env is not an
// error — production deployments inject real environment variables.
func Load() (*Config, error) {

	_ = godotenv.Load()

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
