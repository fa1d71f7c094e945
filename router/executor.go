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
	"encoding/json"
	"fmt"
	"log"

	"cascadeflow/platform/audit"
	"cascadeflow/platform/llm"
	"cascadeflow/platform/model"
	"cascadeflow/platform/registry"
)

// Executor drives the Fallback Executor state machine: it walks a
// Decision's tier forward through the policy's fallback chain, retrying
// within a tier per policy and escalating to the next tier on failure or
// (when configured) invalid JSON output. Every attempt and transition is
// logged through store in strict chronological order.
type Executor struct {
	adapters map[model.Tier]llm.Adapter
	store    registry.Store
	archiver *audit.Archiver
	logger   *log.Logger
}

// NewExecutor constructs an Executor bound to the given per-tier adapters.
// archiver may be nil, in which case full-response archival is disabled.
func NewExecutor(adapters map[model.Tier]llm.Adapter, store registry.Store, archiver *audit.Archiver, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.New(log.Writer(), "[router/executor] ", log.LstdFlags)
	}
	return &Executor{adapters: adapters, store: store, archiver: archiver, logger: logger}
}

// Run executes decision against req, walking the fallback chain as needed.
// It returns the final Decision (rewritten to reflect the tier that
// actually produced output, with escalation_level and confidence updated),
// the winning AttemptResult, and a non-nil error only when every tier in
// the chain was exhausted without success.
func (e *Executor) Run(ctx context.Context, taskID string, req model.Request, decision model.Decision, policy model.Policy) (model.Decision, model.AttemptResult, error) {
	startIdx := chainIndex(policy.FallbackChain, decision.Route)
	if startIdx < 0 {
		startIdx = 0
	}

	var lastError string
	localFailCount := 0

	for i := startIdx; i < len(policy.FallbackChain); i++ {
		tier := policy.FallbackChain[i]

		adapter, ok := e.adapters[tier]
		if !ok {
			lastError = fmt.Sprintf("no adapter configured for tier %s", tier)
			e.logger.Printf("task %s: %s", taskID, lastError)
			continue
		}

		maxAttempts := 1
		if tier == model.TierLocal {
			maxAttempts = policy.MaxLocalRetries
			if maxAttempts < 1 {
				maxAttempts = 1
			}
		}

		tierSucceeded := false
		var result model.AttemptResult

		var modelName string
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			modelName = policy.Models[tier]
			if modelName == "" {
				modelName = decision.Model
			}
			res, genErr := adapter.Generate(ctx, req.Prompt, modelName, req.Context)
			if genErr != nil {
				res = model.AttemptResult{Success: false, Error: genErr.Error()}
			}

			e.logEvent(ctx, taskID, "execution", tier, attempt, res)
			e.archiver.Archive(ctx, taskID, string(tier), "execution", attempt, res.Output)

			if res.Success {
				if !llm.IsValidJSON(res.Output) && policy.EscalationRules.InvalidJSONEscalate {
					invalid := res
					invalid.Success = false
					invalid.Error = "Invalid JSON output"
					e.logEvent(ctx, taskID, "invalid_json_escalation", tier, attempt, invalid)
					lastError = "Invalid JSON output"
					result = res
					break
				}
				result = res
				tierSucceeded = true
				break
			}

			lastError = res.Error
			result = res
			if tier == model.TierLocal {
				localFailCount++
			}
		}

		if tierSucceeded {
			escalation := 0
			if i > startIdx {
				escalation = i - startIdx
			}
			return e.finalize(decision, tier, modelName, result.TokenCount, escalation), result, nil
		}

		if tier == model.TierLocal && localFailCount >= policy.EscalationRules.LocalFailCount {
			e.logEvent(ctx, taskID, "escalation", tier, 0, model.AttemptResult{Error: lastError})
		}
	}

	lastErrorDisplay := "<nil>"
	if lastError != "" {
		lastErrorDisplay = lastError
	}
	return decision, model.AttemptResult{}, fmt.Errorf("All tiers exhausted. Last error: %s", lastErrorDisplay)
}

func (e *Executor) finalize(decision model.Decision, actualTier model.Tier, modelName string, tokenCount, escalation int) model.Decision {
	final := decision
	final.Route = actualTier
	final.Model = modelName
	final.CostEstimate = EstimateCost(actualTier, tokenCount)
	if escalation > 0 {
		final.Reason = fmt.Sprintf("%s; escalated %dx", decision.Reason, escalation)
		final.Confidence = decision.Confidence - float64(escalation)*0.15
		if final.Confidence < 0.5 {
			final.Confidence = 0.5
		}
	}
	final.EscalationLevel = model.ClampEscalationLevel(decision.EscalationLevel + escalation)
	return final
}

func (e *Executor) logEvent(ctx context.Context, taskID, eventType string, tier model.Tier, attempt int, res model.AttemptResult) {
	if e.store == nil {
		return
	}
	payload := map[string]interface{}{
		"tier":        string(tier),
		"attempt":     attempt,
		"success":     res.Success,
		"latency_ms":  res.LatencyMs,
		"token_count": res.TokenCount,
	}
	if res.Error != "" {
		payload["error"] = res.Error
	}
	if res.Output != nil {
		payload["response_preview"] = previewOf(res.Output)
	}
	e.store.LogEvent(ctx, taskID, eventType, payload)
}

func previewOf(output interface{}) string {
	if s, ok := output.(string); ok {
		return s
	}
	raw, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("%v", output)
	}
	return string(raw)
}

func chainIndex(chain []model.Tier, tier model.Tier) int {
	for i, t := range chain {
		if t == tier {
			return i
		}
	}
	return -1
}
