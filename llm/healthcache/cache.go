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

// Package healthcache smooths repeated tier health-probe calls
// (IsAvailable) across concurrent requests with a short-TTL Redis cache.
// It caches only probe results, never Policy or Governance: those are
// read fresh from the registry on every request.
package healthcache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"cascadeflow/platform/model"
)

// DefaultTTL bounds how stale a cached health result can be. It is kept
// short because a tier flipping from unhealthy to healthy should be
// reflected quickly rather than masked for an extended window.
const DefaultTTL = 10 * time.Second

// Cache wraps a Redis client for tier health-probe memoization.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New constructs a Cache against an already-configured redis.Client.
func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(tier model.Tier) string {
	return fmt.Sprintf("cascadeflow:health:%s", tier)
}

// Get returns the cached result and true if present and unexpired.
func (c *Cache) Get(ctx context.Context, tier model.Tier) (bool, bool) {
	if c == nil || c.client == nil {
		return false, false
	}
	val, err := c.client.Get(ctx, cacheKey(tier)).Result()
	if err != nil {
		return false, false
	}
	return val == "1", true
}

// Set stores a probe result with the cache's TTL.
func (c *Cache) Set(ctx context.Context, tier model.Tier, healthy bool) {
	if c == nil || c.client == nil {
		return
	}
	val := "0"
	if healthy {
		val = "1"
	}
	c.client.Set(ctx, cacheKey(tier), val, c.ttl)
}

// Probe returns the cached result for tier if present, otherwise calls
// probe, caches its result, and returns it.
func (c *Cache) Probe(ctx context.Context, tier model.Tier, probe func(context.Context) bool) bool {
	if cached, ok := c.Get(ctx, tier); ok {
		return cached
	}
	result := probe(ctx)
	c.Set(ctx, tier, result)
	return result
}
