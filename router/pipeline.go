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

package router

import (
	"context"
	"log"
	"time"

	"cascadeflow/platform/audit"
	"cascadeflow/platform/llm"
	"cascadeflow/platform/model"
	"cascadeflow/platform/registry"
)

// Pipeline composes the registry, the Decision Engine, and the Fallback
// Executor into the three request flows the HTTP surface exposes: Run
// (full pipeline), Route (decision only), and Execute (direct tier
// dispatch bypassing the Decision Engine).
type Pipeline struct {
	store    registry.Store
	executor *Executor
	adapters map[model.Tier]llm.Adapter
	logger   *log.Logger
}

// NewPipeline constructs a Pipeline over the given registry and adapters.
// archiver may be nil to disable full-response archival.
func NewPipeline(store registry.Store, adapters map[model.Tier]llm.Adapter, archiver *audit.Archiver, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[router/pipeline] ", log.LstdFlags)
	}
	return &Pipeline{
		store:    store,
		executor: NewExecutor(adapters, store, archiver, logger),
		adapters: adapters,
		logger:   logger,
	}
}

// Run executes the full pipeline: policy/governance read, task log,
// decision, decision log, fallback execution, final event, result.
func (p *Pipeline) Run(ctx context.Context, req model.Request) model.Result {
	start := time.Now()

	policy, _ := p.store.GetPolicy(ctx)
	governance, _ := p.store.GetGovernance(ctx)

	taskID := p.store.LogTask(ctx, req)
	p.store.UpdateTaskStatus(ctx, taskID, model.TaskRouting)

	decision := Decide(req, policy, governance)
	p.store.LogDecision(ctx, taskID, decision, policy, governance.Level)

	p.store.UpdateTaskStatus(ctx, taskID, model.TaskExecuting)

	finalDecision, attempt, err := p.executor.Run(ctx, taskID, req, decision, policy)

	result := model.Result{
		TaskID:    taskID,
		Decision:  finalDecision,
		Output:    attempt.Output,
		Success:   err == nil,
		TierUsed:  finalDecision.Route,
		ModelUsed: finalDecision.Model,
		LatencyMs: time.Since(start).Milliseconds(),
		Timestamp: time.Now().UTC(),
	}

	if err != nil {
		result.Error = err.Error()
		p.store.UpdateTaskStatus(ctx, taskID, model.TaskFailed)
	} else {
		p.store.UpdateTaskStatus(ctx, taskID, model.TaskCompleted)
	}

	p.store.LogEvent(ctx, taskID, "final_result", map[string]interface{}{
		"success":    result.Success,
		"tier_used":  string(result.TierUsed),
		"latency_ms": result.LatencyMs,
	})

	return result
}

// Route runs only the Decision Engine, for callers that want a routing
// decision without executing it.
func (p *Pipeline) Route(ctx context.Context, req model.Request) (model.Decision, model.Policy, model.Governance) {
	policy, _ := p.store.GetPolicy(ctx)
	governance, _ := p.store.GetGovernance(ctx)
	return Decide(req, policy, governance), policy, governance
}

// ExecuteRequest is the input to Execute: a direct tier dispatch that
// bypasses the Decision Engine entirely.
type ExecuteRequest struct {
	Tier    model.Tier
	Model   string
	Prompt  string
	Context string
}

// Execute dispatches directly to the requested tier's adapter, logging a
// task and a single "direct_execution" event, without involving the
// Decision Engine or the Fallback Executor's retry/escalation logic.
func (p *Pipeline) Execute(ctx context.Context, req ExecuteRequest) model.Result {
	start := time.Now()

	policy, _ := p.store.GetPolicy(ctx)

	taskID := p.store.LogTask(ctx, model.Request{
		TaskType: "direct_execute",
		Prompt:   req.Prompt,
		Context:  req.Context,
		Source:   "api",
	})
	p.store.UpdateTaskStatus(ctx, taskID, model.TaskExecuting)

	modelName := req.Model
	if modelName == "" {
		modelName = policy.Models[req.Tier]
	}

	result := model.Result{
		TaskID:    taskID,
		TierUsed:  req.Tier,
		ModelUsed: modelName,
		Timestamp: time.Now().UTC(),
	}

	adapter, ok := p.adapters[req.Tier]
	if !ok {
		result.Error = "no adapter configured for requested tier"
		p.store.UpdateTaskStatus(ctx, taskID, model.TaskFailed)
		result.LatencyMs = time.Since(start).Milliseconds()
		return result
	}

	attempt, genErr := adapter.Generate(ctx, req.Prompt, modelName, req.Context)
	if genErr != nil {
		attempt = model.AttemptResult{Success: false, Error: genErr.Error()}
	}

	p.store.LogEvent(ctx, taskID, "direct_execution", map[string]interface{}{
		"tier":        string(req.Tier),
		"success":     attempt.Success,
		"latency_ms":  attempt.LatencyMs,
		"token_count": attempt.TokenCount,
	})

	result.Success = attempt.Success
	result.Output = attempt.Output
	result.Error = attempt.Error
	result.LatencyMs = time.Since(start).Milliseconds()

	if attempt.Success {
		p.store.UpdateTaskStatus(ctx, taskID, model.TaskCompleted)
	} else {
		p.store.UpdateTaskStatus(ctx, taskID, model.TaskFailed)
	}

	return result
}
