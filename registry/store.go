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

// Package registry defines the durable key/value and audit-log contract
// used by the routing pipeline, along with embedded fallback defaults for
// when the durable store is unreachable.
package registry

import (
	"context"

	"cascadeflow/platform/model"
)

// Store is the durable registry contract. Implementations back it with a
// concrete database; the pipeline never depends on a specific backend.
//
// Reads are read-through with fallback: if the backend call fails, the
// implementation logs the failure and returns the embedded defaults rather
// than propagating the error, so a registry outage degrades the gateway to
// default behavior instead of failing every request.
//
// Writes are best-effort: implementations log failures but never return an
// error that would abort the pipeline.
type Store interface {
	GetPolicy(ctx context.Context) (model.Policy, error)
	GetGovernance(ctx context.Context) (model.Governance, error)
	IsConnected(ctx context.Context) bool

	LogTask(ctx context.Context, req model.Request) (taskID string)
	UpdateTaskStatus(ctx context.Context, taskID string, status model.TaskStatus)
	LogDecision(ctx context.Context, taskID string, decision model.Decision, policy model.Policy, governanceLevel string)
	LogEvent(ctx context.Context, taskID, eventType string, payload map[string]interface{})

	Backend() string
	Close() error
}
