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

package postgres

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cascadeflow/platform/model"
	"cascadeflow/platform/registry"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	defPolicy, defGov, err := registry.Defaults()
	require.NoError(t, err)

	s, err := newStoreWithDB(db, nil, defPolicy, defGov, false)
	require.NoError(t, err)
	return s, mock
}

func TestGetPolicy_ReturnsStoredValue(t *testing.T) {
	s, mock := newTestStore(t)

	stored := model.Policy{DefaultTier: model.TierMarket, LocalRatio: 0.5}
	raw, err := json.Marshal(stored)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT value FROM system_registry WHERE key = \$1`).
		WithArgs(keyPolicy).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(raw))

	got, err := s.GetPolicy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stored.DefaultTier, got.DefaultTier)
	assert.Equal(t, stored.LocalRatio, got.LocalRatio)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPolicy_FallsBackOnQueryError(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT value FROM system_registry WHERE key = \$1`).
		WithArgs(keyPolicy).
		WillReturnError(assertErr{})

	got, err := s.GetPolicy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, s.defaultPolicy, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetGovernance_FallsBackOnMalformedValue(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT value FROM system_registry WHERE key = \$1`).
		WithArgs(keyGovernance).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte("not json")))

	got, err := s.GetGovernance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, s.defaultGovernance, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogTask_ReturnsGeneratedIDOnWriteFailure(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(`INSERT INTO router_tasks`).
		WillReturnError(assertErr{})

	id := s.LogTask(context.Background(), model.Request{
		TaskType:    "summarize",
		Prompt:      "hello",
		Sensitivity: model.SensitivityNormal,
		Source:      "api",
	})

	assert.NotEmpty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogTask_Success(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(`INSERT INTO router_tasks`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	id := s.LogTask(context.Background(), model.Request{
		TaskType:    "summarize",
		Prompt:      "hello",
		Sensitivity: model.SensitivityNormal,
		Source:      "api",
	})

	assert.NotEmpty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTaskStatus_DoesNotPanicOnFailure(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(`UPDATE router_tasks`).
		WillReturnError(assertErr{})

	assert.NotPanics(t, func() {
		s.UpdateTaskStatus(context.Background(), "task-1", model.TaskRouting)
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogDecision_Success(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(`INSERT INTO router_decisions`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NotPanics(t, func() {
		s.LogDecision(context.Background(), "task-1", model.Decision{
			Route: model.TierLocal, Model: "llama3.1:8b", Reason: "default",
			Confidence: 0.9,
		}, s.defaultPolicy, "standard")
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogEvent_TruncatesResponsePreview(t *testing.T) {
	s, mock := newTestStore(t)

	long := make([]byte, 600)
	for i := range long {
		long[i] = 'a'
	}

	mock.ExpectExec(`INSERT INTO router_events`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s.LogEvent(context.Background(), "task-1", "execution", map[string]interface{}{
		"response_preview": string(long),
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackendName(t *testing.T) {
	s, _ := newTestStore(t)
	assert.Equal(t, "postgres", s.Backend())
}

type assertErr struct{}

func (assertErr) Error() string { return "mock error" }
