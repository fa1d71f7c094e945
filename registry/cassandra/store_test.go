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

package cassandra

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"cascadeflow/platform/model"
	"cascadeflow/platform/registry"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abcde", truncate("abcdefghij", 5))
}

func newUnconnectedStore(t *testing.T) *Store {
	t.Helper()
	defPolicy, defGov, err := registry.Defaults()
	assert.NoError(t, err)
	return &Store{
		defaultPolicy:     defPolicy,
		defaultGovernance: defGov,
		logger:            log.New(io.Discard, "", 0),
	}
}

func TestGetPolicy_FallsBackWithoutSession(t *testing.T) {
	s := newUnconnectedStore(t)
	got, err := s.GetPolicy(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, s.defaultPolicy, got)
}

func TestIsConnected_NilSession(t *testing.T) {
	s := newUnconnectedStore(t)
	assert.False(t, s.IsConnected(context.Background()))
}

func TestUpdateTaskStatus_NoopWithoutSession(t *testing.T) {
	s := newUnconnectedStore(t)
	assert.NotPanics(t, func() {
		s.UpdateTaskStatus(context.Background(), "00000000-0000-0000-0000-000000000000", model.TaskRouting)
	})
}

func TestBackendName(t *testing.T) {
	s := newUnconnectedStore(t)
	assert.Equal(t, "cassandra", s.Backend())
}
