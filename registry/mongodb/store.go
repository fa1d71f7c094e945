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

// Package mongodb implements the registry.Store contract on top of
// MongoDB, as an alternate backend to registry/postgres.
package mongodb

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"cascadeflow/platform/model"
	"cascadeflow/platform/registry"
)

const (
	collSystemRegistry = "system_registry"
	collTasks           = "router_tasks"
	collDecisions       = "router_decisions"
	collEvents          = "router_events"

	keyPolicy     = "router_policy"
	keyGovernance = "governance"

	responsePreviewMax = 500

	defaultConnectTimeout = 10 * time.Second
	defaultOpTimeout      = 5 * time.Second
)

// Store is a MongoDB-backed registry.Store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *log.Logger

	defaultPolicy     model.Policy
	defaultGovernance model.Governance
}

// New connects to MongoDB at uri using database dbName.
func New(uri, dbName string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[registry/mongodb] ", log.LstdFlags)
	}

	defPolicy, defGov, err := registry.Defaults()
	if err != nil {
		return nil, fmt.Errorf("mongodb: load embedded defaults: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetMaxPoolSize(100).SetMinPoolSize(10))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}

	s := &Store{
		client:            client,
		db:                client.Database(dbName),
		logger:            logger,
		defaultPolicy:     defPolicy,
		defaultGovernance: defGov,
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		s.logger.Printf("mongodb unreachable at startup, will retry on demand: %v", err)
	}

	return s, nil
}

func (s *Store) Backend() string { return "mongodb" }

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) IsConnected(ctx context.Context) bool {
	if s.client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary()) == nil
}

type registryDoc struct {
	Key   string      `bson:"key"`
	Value interface{} `bson:"value"`
}

func (s *Store) GetPolicy(ctx context.Context) (model.Policy, error) {
	var doc registryDoc
	err := s.db.Collection(collSystemRegistry).FindOne(ctx, bson.M{"key": keyPolicy}).Decode(&doc)
	if err != nil {
		s.logger.Printf("GetPolicy falling back to defaults: %v", err)
		return s.defaultPolicy, nil
	}
	var p model.Policy
	if err := decodeValue(doc.Value, &p); err != nil {
		s.logger.Printf("GetPolicy: malformed stored value, falling back to defaults: %v", err)
		return s.defaultPolicy, nil
	}
	return p, nil
}

func (s *Store) GetGovernance(ctx context.Context) (model.Governance, error) {
	var doc registryDoc
	err := s.db.Collection(collSystemRegistry).FindOne(ctx, bson.M{"key": keyGovernance}).Decode(&doc)
	if err != nil {
		s.logger.Printf("GetGovernance falling back to defaults: %v", err)
		return s.defaultGovernance, nil
	}
	var g model.Governance
	if err := decodeValue(doc.Value, &g); err != nil {
		s.logger.Printf("GetGovernance: malformed stored value, falling back to defaults: %v", err)
		return s.defaultGovernance, nil
	}
	return g, nil
}

// decodeValue round-trips a decoded bson.M through bson.Marshal/Unmarshal
// into a typed struct, mirroring the teacher's JSON round-trip pattern for
// document-shaped dynamic values.
func decodeValue(v interface{}, out interface{}) error {
	raw, err := bson.Marshal(bson.M{"v": v})
	if err != nil {
		return err
	}
	var wrapper struct {
		V bson.Raw `bson:"v"`
	}
	if err := bson.Unmarshal(raw, &wrapper); err != nil {
		return err
	}
	return bson.Unmarshal(wrapper.V, out)
}

func (s *Store) LogTask(ctx context.Context, req model.Request) string {
	id := uuid.NewString()

	_, err := s.db.Collection(collTasks).InsertOne(ctx, bson.M{
		"_id":         id,
		"task_type":   req.TaskType,
		"prompt":      truncate(req.Prompt, responsePreviewMax),
		"context":     req.Context,
		"sensitivity": req.Sensitivity,
		"source":      req.Source,
		"metadata":    req.Metadata,
		"status":      model.TaskReceived,
		"created_at":  time.Now().UTC(),
		"updated_at":  time.Now().UTC(),
	})
	if err != nil {
		s.logger.Printf("LogTask write failed, using local id %s: %v", id, err)
	}
	return id
}

func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, status model.TaskStatus) {
	_, err := s.db.Collection(collTasks).UpdateOne(ctx,
		bson.M{"_id": taskID},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		s.logger.Printf("UpdateTaskStatus(%s, %s) failed: %v", taskID, status, err)
	}
}

func (s *Store) LogDecision(ctx context.Context, taskID string, decision model.Decision, policy model.Policy, governanceLevel string) {
	_, err := s.db.Collection(collDecisions).InsertOne(ctx, bson.M{
		"_id":              uuid.NewString(),
		"task_id":          taskID,
		"route":            decision.Route,
		"model":            decision.Model,
		"reason":           decision.Reason,
		"confidence":       decision.Confidence,
		"escalation_level": decision.EscalationLevel,
		"cost_estimate":    decision.CostEstimate,
		"policy_snapshot":  policy,
		"governance_level": governanceLevel,
		"created_at":       time.Now().UTC(),
	})
	if err != nil {
		s.logger.Printf("LogDecision(%s) failed: %v", taskID, err)
	}
}

func (s *Store) LogEvent(ctx context.Context, taskID, eventType string, payload map[string]interface{}) {
	preview := ""
	if v, ok := payload["response_preview"].(string); ok {
		preview = truncate(v, responsePreviewMax)
	}

	_, err := s.db.Collection(collEvents).InsertOne(ctx, bson.M{
		"_id":               uuid.NewString(),
		"task_id":           taskID,
		"event_type":        eventType,
		"payload":           payload,
		"response_preview":  preview,
		"created_at":        time.Now().UTC(),
	})
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
