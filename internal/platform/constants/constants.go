// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate limits, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Rate Limiting: Burst capacities and IP tracking TTLs.
  - Pipeline: Generation platforms, Redis key taxonomy for the job queue.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "storyforge-api"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 30 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the requests per second allowed per IP.
	DefaultRateLimitRPS = 100.0

	// DefaultRateLimitBurst is the maximum burst allowed for the rate limiter.
	DefaultRateLimitBurst = 150

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute
)

// # HTTP Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderOrigin        = "Origin"
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldMeta    = "meta"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldItems   = "items"
	FieldTotal   = "total"
	FieldMessage = "message"
	FieldStatus  = "status"
	FieldApp     = "app"
	FieldVersion = "version"
	FieldChecks  = "checks"
)

// # Generation Platforms

const (
	PlatformJimeng     = "jimeng"
	PlatformVolcano    = "volcano"
	PlatformMidjourney = "mj"

	// ProviderDify is the workflow provider for prompt extraction,
	// prompt assembly, style reversal, and candidate judging.
	ProviderDify = "dify"
)

// Platforms enumerates the selectable image generation platforms.
var Platforms = []string{PlatformJimeng, PlatformVolcano, PlatformMidjourney}

// # Database Schemas

const (
	SchemaStory = "story"
)

// # Redis Key Taxonomy (Job Dispatch)

const (
	// RedisKeyJobQueue is the list the submit worker blocks on (LPUSH / BRPOP).
	RedisKeyJobQueue = "jobs:queue"

	// RedisKeyJobDelayed is the sorted set of job IDs scored by their next
	// due time — used both for poll backoff and delayed retry requeue.
	RedisKeyJobDelayed = "jobs:delayed"

	// RedisPrefixJobCancelled flags best-effort cancellation of in-flight jobs.
	RedisPrefixJobCancelled = "jobs:cancelled:"

	// JobCancelFlagTTL bounds how long a cancellation flag lingers after the
	// owning entity is gone.
	JobCancelFlagTTL = 24 * time.Hour
)
