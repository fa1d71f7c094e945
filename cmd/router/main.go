// Copyright 2025 CascadeFlow
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

// Package main is the entry point for the CascadeFlow router gateway.
//
// The router reads operational policy and governance from a durable
// registry, deterministically decides which tier (local, market, premium)
// should handle each task, dispatches through a fallback chain on failure
// or invalid output, and writes a complete audit trail.
//
// Usage:
//
//	./router
//
// Environment Variables:
//
//	ROUTER_PORT - HTTP server port (default: 8100)
//	REGISTRY_BACKEND - postgres, mysql, mongodb, or cassandra (default: postgres)
//	DATABASE_URL / MYSQL_DSN / MONGODB_URI / CASSANDRA_HOSTS - backend DSNs
//	OLLAMA_BASE_URL - local tier endpoint (default: http://localhost:11434)
//	OPENROUTER_API_KEY / OPENROUTER_API_KEY_SECRET_ARN - market tier credentials
//	ANTHROPIC_API_KEY / ANTHROPIC_API_KEY_SECRET_ARN - premium tier credentials
//	REDIS_URL - optional health-probe cache
//	AUDIT_ARCHIVE_BUCKET - optional S3 bucket for full-response archival
package main

import (
	"log"

	"cascadeflow/platform/router"
)

func main() {
	if err := router.Run(); err != nil {
		log.Fatalf("router exited: %v", err)
	}
}
