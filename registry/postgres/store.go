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

// Package postgres implements the registry.Store contract on top of
// PostgreSQL, following the connection pooling and schema bootstrap
// conventions of the wider platform's database-backed components.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"cascadeflow/platform/model"
	"cascadeflow/platform/registry"
)

const (
	keyPolicy     = "router_policy"
	keyGovernance = "governance"

	responsePreviewMax = 500
)

// Store is a PostgreSQL-backed registry.Store.
type Store struct {
	db     *sql.DB
	logger *log.Logger

	defaultPolicy     model.Policy
	defaultGovernance model.Governance
}

// New opens a connection pool against databaseURL, bootstraps the schema
// if needed, and returns a Store. The embedded defaults are loaded
// regardless of connection success so reads can fall back immediately.
func New(databaseURL string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[registry/postgres] ", log.LstdFlags)
	}

	defPolicy, defGov, err := registry.Defaults()
	if err != nil {
		return nil, fmt.Errorf("postgres: load embedded defaults: %w", err)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newStoreWithDB(db, logger, defPolicy, defGov, true)
}

// newStoreWithDB builds a Store around an already-opened *sql.DB, optionally
// pinging and bootstrapping the schema. Tests inject a sqlmock-backed DB and
// skip the bootstrap probe to keep expectations explicit per test case.
func newStoreWithDB(db *sql.DB, logger *log.Logger, defPolicy model.Policy, defGov model.Governance, probe bool) (*Store, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[registry/postgres] ", log.LstdFlags)
	}

	s := &Store{
		db:                db,
		logger:            logger,
		defaultPolicy:     defPolicy,
		defaultGovernance: defGov,
	}

	if !probe {
		return s, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		s.logger.Printf("postgres unreachable at startup, will retry on demand: %v", err)
		return s, nil
	}

	if err := s.initSchema(ctx); err != nil {
		s.logger.Printf("schema bootstrap failed, continuing with fallback defaults: %v", err)
	}

	return s, nil
}

func (s *Store) Backend() string { return "postgres" }

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS system_registry (
			key   TEXT PRIMARY KEY,
			value JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS router_tasks (
			id          UUID PRIMARY KEY,
			task_type   TEXT NOT NULL,
			prompt      TEXT NOT NULL,
			context     TEXT,
			sensitivity TEXT NOT NULL,
			source      TEXT NOT NULL,
			metadata    JSONB,
			status      TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_router_tasks_status ON router_tasks(status)`,
		`CREATE TABLE IF NOT EXISTS router_decisions (
			id               UUID PRIMARY KEY,
			task_id          UUID NOT NULL REFERENCES router_tasks(id),
			route            TEXT NOT NULL,
			model            TEXT NOT NULL,
			reason           TEXT NOT NULL,
			confidence       DOUBLE PRECISION NOT NULL,
			escalation_level INTEGER NOT NULL,
			cost_estimate    DOUBLE PRECISION NOT NULL,
			policy_snapshot  JSONB NOT NULL,
			governance_level TEXT NOT NULL,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_router_decisions_task_id ON router_decisions(task_id)`,
		`CREATE TABLE IF NOT EXISTS router_events (
			id                UUID PRIMARY KEY,
			task_id           UUID NOT NULL REFERENCES router_tasks(id),
			event_type        TEXT NOT NULL,
			payload           JSONB,
			response_preview  TEXT,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_router_events_task_id ON router_events(task_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema stmt: %w", err)
		}
	}
	return nil
}

func (s *Store) IsConnected(ctx context.Context) bool {
	if s.db == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx) == nil
}

func (s *Store) GetPolicy(ctx context.Context) (model.Policy, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_registry WHERE key = $1`, keyPolicy).Scan(&raw)
	if err != nil {
		s.logger.Printf("GetPolicy falling back to defaults: %v", err)
		return s.defaultPolicy, nil
	}
	var p model.Policy
	if err := json.Unmarshal(raw, &p); err != nil {
		s.logger.Printf("GetPolicy: malformed stored value, falling back to defaults: %v", err)
		return s.defaultPolicy, nil
	}
	return p, nil
}

func (s *Store) GetGovernance(ctx context.Context) (model.Governance, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_registry WHERE key = $1`, keyGovernance).Scan(&raw)
	if err != nil {
		s.logger.Printf("GetGovernance falling back to defaults: %v", err)
		return s.defaultGovernance, nil
	}
	var g model.Governance
	if err := json.Unmarshal(raw, &g); err != nil {
		s.logger.Printf("GetGovernance: malformed stored value, falling back to defaults: %v", err)
		return s.defaultGovernance, nil
	}
	return g, nil
}

func (s *Store) LogTask(ctx context.Context, req model.Request) string {
	id := uuid.NewString()

	metadata, err := json.Marshal(req.Metadata)
	if err != nil {
		metadata = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO router_tasks (id, task_type, prompt, context, sensitivity, source, metadata, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, req.TaskType, truncate(req.Prompt, responsePreviewMax), req.Context, req.Sensitivity, req.Source, metadata, model.TaskReceived)
	if err != nil {
		s.logger.Printf("LogTask write failed, using local id %s: %v", id, err)
	}
	return id
}

func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, status model.TaskStatus) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE router_tasks SET status = $1, updated_at = now() WHERE id = $2
	`, status, taskID)
	if err != nil {
		s.logger.Printf("UpdateTaskStatus(%s, %s) failed: %v", taskID, status, err)
	}
}

func (s *Store) LogDecision(ctx context.Context, taskID string, decision model.Decision, policy model.Policy, governanceLevel string) {
	snapshot, err := yaml.Marshal(policy)
	if err != nil {
		snapshot = []byte("{}")
	}
	snapshotJSON, err := yamlToJSON(snapshot)
	if err != nil {
		snapshotJSON = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO router_decisions (id, task_id, route, model, reason, confidence, escalation_level, cost_estimate, policy_snapshot, governance_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, uuid.NewString(), taskID, decision.Route, decision.Model, decision.Reason, decision.Confidence,
		decision.EscalationLevel, decision.CostEstimate, snapshotJSON, governanceLevel)
	if err != nil {
		s.logger.Printf("LogDecision(%s) failed: %v", taskID, err)
	}
}

func (s *Store) LogEvent(ctx context.Context, taskID, eventType string, payload map[string]interface{}) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		payloadJSON = []byte("{}")
	}

	preview := ""
	if v, ok := payload["response_preview"].(string); ok {
		preview = truncate(v, responsePreviewMax)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO router_events (id, task_id, event_type, payload, response_preview)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), taskID, eventType, payloadJSON, preview)
	if err != nil {
		s.logger.Printf("LogEvent(%s, %s) failed: %v", taskID, eventType, err)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// yamlToJSON round-trips a yaml.Marshal'd value through JSON so it can be
// stored in a JSONB column; yaml.v3 decodes into map[interface{}]interface{}
// shapes that encoding/json cannot marshal directly, so we decode via a
// generic interface{} first.
func yamlToJSON(y []byte) ([]byte, error) {
	var v interface{}
	if err := yaml.Unmarshal(y, &v); err != nil {
		return nil, err
	}
	v = normalizeYAML(v)
	return json.Marshal(v)
}

func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, vv := range val {
			m[fmt.Sprintf("%v", k)] = normalizeYAML(vv)
		}
		return m
	case map[string]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, vv := range val {
			m[k] = normalizeYAML(vv)
		}
		return m
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, vv := range val {
			out[i] = normalizeYAML(vv)
		}
		return out
	default:
		return val
	}
}

var _ registry.Store = (*Store)(nil)
