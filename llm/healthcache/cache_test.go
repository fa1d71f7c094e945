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

package healthcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cascadeflow/platform/model"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, 50*time.Millisecond), mr
}

func TestProbe_CachesResult(t *testing.T) {
	c, _ := newTestCache(t)
	calls := 0
	probe := func(context.Context) bool {
		calls++
		return true
	}

	ctx := context.Background()
	assert.True(t, c.Probe(ctx, model.TierLocal, probe))
	assert.True(t, c.Probe(ctx, model.TierLocal, probe))
	assert.Equal(t, 1, calls)
}

func TestProbe_ExpiresAndRecoversAfterTTL(t *testing.T) {
	c, mr := newTestCache(t)
	calls := 0
	healthy := false
	probe := func(context.Context) bool {
		calls++
		return healthy
	}

	ctx := context.Background()
	assert.False(t, c.Probe(ctx, model.TierMarket, probe))

	healthy = true
	mr.FastForward(100 * time.Millisecond)

	assert.True(t, c.Probe(ctx, model.TierMarket, probe))
	assert.Equal(t, 2, calls)
}

func TestGet_MissingKey(t *testing.T) {
	c, _ := newTestCache(t)
	_, ok := c.Get(context.Background(), model.TierPremium)
	assert.False(t, ok)
}

func TestNilCache_DoesNotPanic(t *testing.T) {
	var c *Cache
	assert.NotPanics(t, func() {
		c.Set(context.Background(), model.TierLocal, true)
		_, ok := c.Get(context.Background(), model.TierLocal)
		assert.False(t, ok)
	})
}
