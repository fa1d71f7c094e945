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

// Package mysql implements the registry.Store contract on top of MySQL, as
// an alternate backend to registry/postgres selected via REGISTRY_BACKEND.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"cascadeflow/platform/model"
	"cascadeflow/platform/registry"
)

const (
	keyPolicy     = "router_policy"
	keyGovernance = "governance"

	responsePreviewMax = 500
)

// Store is a MySQL-backed registry.Store.
type Store struct {
	db     *sql.DB
	logger *log.Logger

	defaultPolicy     model.Policy
	defaultGovernance model.Governance
}

// New opens a connection pool against dsn (e.g. "user:pass@tcp(host:3306)/dbname")
// and bootstraps the schema if needed.
func New(dsn string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[registry/mysql] ", log.LstdFlags)
	}

	defPolicy, defGov, err := registry.Defaults()
	if err != nil {
		return nil, fmt.Errorf("mysql: load embedded defaults: %w", err)
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newStoreWithDB(db, logger, defPolicy, defGov, true)
}

func newStoreWithDB(db *sql.DB, logger *log.Logger, defPolicy model.Policy, defGov model.Governance, probe bool) (*Store, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[registry/mysql] ", log.LstdFlags)
	}

	s := &Store{db: db, logger: logger, defaultPolicy: defPolicy, defaultGovernance: defGov}

	if !probe {
		return s, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		s.logger.Printf("mysql unreachable at startup, will retry on demand: %v", err)
		return s, nil
	}

	if err := s.initSchema(ctx); err != nil {
		s.logger.Printf("schema bootstrap failed, continuing with fallback defaults: %v", err)
	}

	return s, nil
}

func (s *Store) Backend() string { return "mysql" }

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS system_registry (
			registry_key VARCHAR(64) PRIMARY KEY,
			value        JSON NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS router_tasks (
			id          CHAR(36) PRIMARY KEY,
			task_type   VARCHAR(255) NOT NULL,
			prompt      TEXT NOT NULL,
			context     TEXT,
			sensitivity VARCHAR(16) NOT NULL,
			source      VARCHAR(64) NOT NULL,
			metadata    JSON,
			status      VARCHAR(16) NOT NULL,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_router_tasks_status (status)
		)`,
		`CREATE TABLE IF NOT EXISTS router_decisions (
			id               CHAR(36) PRIMARY KEY,
			task_id          CHAR(36) NOT NULL,
			route            VARCHAR(16) NOT NULL,
			model            VARCHAR(128) NOT NULL,
			reason           TEXT NOT NULL,
			confidence       DOUBLE NOT NULL,
			escalation_level INT NOT NULL,
			cost_estimate    DOUBLE NOT NULL,
			policy_snapshot  JSON NOT NULL,
			governance_level VARCHAR(32) NOT NULL,
			created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_router_decisions_task_id (task_id)
		)`,
		`CREATE TABLE IF NOT EXISTS router_events (
			id               CHAR(36) PRIMARY KEY,
			task_id          CHAR(36) NOT NULL,
			event_type       VARCHAR(64) NOT NULL,
			payload          JSON,
			response_preview TEXT,
			created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_router_events_task_id (task_id)
		)`,
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
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_registry WHERE registry_key = ?`, keyPolicy).Scan(&raw)
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
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_registry WHERE registry_key = ?`, keyGovernance).Scan(&raw)
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, req.TaskType, truncate(req.Prompt, responsePreviewMax), req.Context, req.Sensitivity, req.Source, metadata, model.TaskReceived)
	if err != nil {
		s.logger.Printf("LogTask write failed, using local id %s: %v", id, err)
	}
	return id
}

func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, status model.TaskStatus) {
	_, err := s.db.ExecContext(ctx, `UPDATE router_tasks SET status = ? WHERE id = ?`, status, taskID)
	if err != nil {
		s.logger.Printf("UpdateTaskStatus(%s, %s) failed: %v", taskID, status, err)
	}
}

func (s *Store) LogDecision(ctx context.Context, taskID string, decision model.Decision, policy model.Policy, governanceLevel string) {
	snapshot, err := json.Marshal(policy)
	if err != nil {
		snapshot = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO router_decisions (id, task_id, route, model, reason, confidence, escalation_level, cost_estimate, policy_snapshot, governance_level)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), taskID, decision.Route, decision.Model, decision.Reason, decision.Confidence,
		decision.EscalationLevel, decision.CostEstimate, snapshot, governanceLevel)
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
		VALUES (?, ?, ?, ?, ?)
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

var _ registry.Store = (*Store)(nil)
