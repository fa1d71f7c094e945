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

// Package cassandra implements the registry.Store contract on top of
// Apache Cassandra / ScyllaDB, as an alternate backend to registry/postgres.
package cassandra

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gocql/gocql"

	"cascadeflow/platform/model"
	"cascadeflow/platform/registry"
)

const (
	keyPolicy     = "router_policy"
	keyGovernance = "governance"

	responsePreviewMax = 500
)

// Store is a Cassandra-backed registry.Store.
type Store struct {
	session *gocql.Session
	logger  *log.Logger

	defaultPolicy     model.Policy
	defaultGovernance model.Governance
}

// New connects to a Cassandra cluster at the given hosts/keyspace.
func New(hosts []string, keyspace string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[registry/cassandra] ", log.LstdFlags)
	}

	defPolicy, defGov, err := registry.Defaults()
	if err != nil {
		return nil, fmt.Errorf("cassandra: load embedded defaults: %w", err)
	}

	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second

	session, err := cluster.CreateSession()
	if err != nil {
		logger.Printf("cassandra unreachable at startup, serving fallback defaults without a session: %v", err)
		return &Store{logger: logger, defaultPolicy: defPolicy, defaultGovernance: defGov}, nil
	}

	s := &Store{session: session, logger: logger, defaultPolicy: defPolicy, defaultGovernance: defGov}
	if err := s.initSchema(); err != nil {
		s.logger.Printf("schema bootstrap failed, continuing with fallback defaults: %v", err)
	}
	return s, nil
}

func (s *Store) Backend() string { return "cassandra" }

func (s *Store) Close() error {
	if s.session != nil {
		s.session.Close()
	}
	return nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS system_registry (
			key   text PRIMARY KEY,
			value text
		)`,
		`CREATE TABLE IF NOT EXISTS router_tasks (
			id          uuid PRIMARY KEY,
			task_type   text,
			prompt      text,
			context     text,
			sensitivity text,
			source      text,
			metadata    text,
			status      text,
			created_at  timestamp,
			updated_at  timestamp
		)`,
		`CREATE TABLE IF NOT EXISTS router_decisions (
			id               uuid PRIMARY KEY,
			task_id          uuid,
			route            text,
			model            text,
			reason           text,
			confidence       double,
			escalation_level int,
			cost_estimate    double,
			policy_snapshot  text,
			governance_level text,
			created_at       timestamp
		)`,
		`CREATE TABLE IF NOT EXISTS router_events (
			id               uuid PRIMARY KEY,
			task_id          uuid,
			event_type       text,
			payload          text,
			response_preview text,
			created_at       timestamp
		)`,
	}
	for _, stmt := range stmts {
		if err := s.session.Query(stmt).Exec(); err != nil {
			return fmt.Errorf("exec schema stmt: %w", err)
		}
	}
	return nil
}

func (s *Store) IsConnected(ctx context.Context) bool {
	if s.session == nil {
		return false
	}
	return !s.session.Closed()
}

func (s *Store) GetPolicy(ctx context.Context) (model.Policy, error) {
	if s.session == nil {
		return s.defaultPolicy, nil
	}
	var raw string
	err := s.session.Query(`SELECT value FROM system_registry WHERE key = ?`, keyPolicy).
		WithContext(ctx).Scan(&raw)
	if err != nil {
		s.logger.Printf("GetPolicy falling back to defaults: %v", err)
		return s.defaultPolicy, nil
	}
	var p model.Policy
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Printf("GetPolicy: malformed stored value, falling back to defaults: %v", err)
		return s.defaultPolicy, nil
	}
	return p, nil
}

func (s *Store) GetGovernance(ctx context.Context) (model.Governance, error) {
	if s.session == nil {
		return s.defaultGovernance, nil
	}
	var raw string
	err := s.session.Query(`SELECT value FROM system_registry WHERE key = ?`, keyGovernance).
		WithContext(ctx).Scan(&raw)
	if err != nil {
		s.logger.Printf("GetGovernance falling back to defaults: %v", err)
		return s.defaultGovernance, nil
	}
	var g model.Governance
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		s.logger.Printf("GetGovernance: malformed stored value, falling back to defaults: %v", err)
		return s.defaultGovernance, nil
	}
	return g, nil
}

func (s *Store) LogTask(ctx context.Context, req model.Request) string {
	id, idErr := gocql.RandomUUID()
	if idErr != nil {
		s.logger.Printf("LogTask: failed to mint task id: %v", idErr)
		return ""
	}

	metadata, err := json.Marshal(req.Metadata)
	if err != nil {
		metadata = []byte("{}")
	}

	if s.session != nil {
		now := time.Now().UTC()
		err = s.session.Query(`
			INSERT INTO router_tasks (id, task_type, prompt, context, sensitivity, source, metadata, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, req.TaskType, truncate(req.Prompt, responsePreviewMax), req.Context, req.Sensitivity, req.Source,
			string(metadata), model.TaskReceived, now, now).WithContext(ctx).Exec()
		if err != nil {
			s.logger.Printf("LogTask write failed, using local id %s: %v", id, err)
		}
	}
	return id.String()
}

func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, status model.TaskStatus) {
	if s.session == nil {
		return
	}
	id, err := gocql.ParseUUID(taskID)
	if err != nil {
		s.logger.Printf("UpdateTaskStatus: invalid task id %s: %v", taskID, err)
		return
	}
	err = s.session.Query(`UPDATE router_tasks SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id).WithContext(ctx).Exec()
	if err != nil {
		s.logger.Printf("UpdateTaskStatus(%s, %s) failed: %v", taskID, status, err)
	}
}

func (s *Store) LogDecision(ctx context.Context, taskID string, decision model.Decision, policy model.Policy, governanceLevel string) {
	if s.session == nil {
		return
	}
	taskUUID, err := gocql.ParseUUID(taskID)
	if err != nil {
		s.logger.Printf("LogDecision: invalid task id %s: %v", taskID, err)
		return
	}
	snapshot, err := json.Marshal(policy)
	if err != nil {
		snapshot = []byte("{}")
	}
	rowID, err := gocql.RandomUUID()
	if err != nil {
		s.logger.Printf("LogDecision: failed to mint row id: %v", err)
		return
	}
	err = s.session.Query(`
		INSERT INTO router_decisions (id, task_id, route, model, reason, confidence, escalation_level, cost_estimate, policy_snapshot, governance_level, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rowID, taskUUID, decision.Route, decision.Model, decision.Reason, decision.Confidence,
		decision.EscalationLevel, decision.CostEstimate, string(snapshot), governanceLevel, time.Now().UTC()).
		WithContext(ctx).Exec()
	if err != nil {
		s.logger.Printf("LogDecision(%s) failed: %v", taskID, err)
	}
}

func (s *Store) LogEvent(ctx context.Context, taskID, eventType string, payload map[string]interface{}) {
	if s.session == nil {
		return
	}
	taskUUID, err := gocql.ParseUUID(taskID)
	if err != nil {
		s.logger.Printf("LogEvent: invalid task id %s: %v", taskID, err)
		return
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		payloadJSON = []byte("{}")
	}
	preview := ""
	if v, ok := payload["response_preview"].(string); ok {
		preview = truncate(v, responsePreviewMax)
	}
	rowID, err := gocql.RandomUUID()
	if err != nil {
		s.logger.Printf("LogEvent: failed to mint row id: %v", err)
		return
	}
	err = s.session.Query(`
		INSERT INTO router_events (id, task_id, event_type, payload, response_preview, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rowID, taskUUID, eventType, string(payloadJSON), preview, time.Now().UTC()).WithContext(ctx).Exec()
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
