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

// Package model defines the core data types shared by the registry, the
// tier adapters, and the routing pipeline: requests, policy, decisions,
// attempt results, and the final result returned to callers.
package model

import "time"

// Tier identifies one of the three operational backend categories.
type Tier string

const (
	TierLocal   Tier = "local"
	TierMarket  Tier = "market"
	TierPremium Tier = "premium"
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierLocal, TierMarket, TierPremium:
		return true
	default:
		return false
	}
}

// Sensitivity classifies how carefully a request must be handled.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityNormal Sensitivity = "normal"
	SensitivityHigh   Sensitivity = "high"
)

// TaskStatus tracks the lifecycle of a task row in the registry.
// Transitions are monotonic: received -> routing -> executing -> {completed, failed}.
type TaskStatus string

const (
	TaskReceived  TaskStatus = "received"
	TaskRouting   TaskStatus = "routing"
	TaskExecuting TaskStatus = "executing"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Request is an incoming task submitted to the gateway.
type Request struct {
	TaskType    string                 `json:"task_type"`
	Prompt      string                 `json:"prompt"`
	Context     string                 `json:"context,omitempty"`
	Sensitivity Sensitivity            `json:"sensitivity"`
	Source      string                 `json:"source"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// EscalationRules controls when the Decision Engine routes past the local
// tier (ContextOverflowEscalate) and when the Fallback Executor advances
// past a tier (LocalFailCount, InvalidJSONEscalate).
type EscalationRules struct {
	LocalFailCount         int  `yaml:"local_fail_count" json:"local_fail_count"`
	InvalidJSONEscalate    bool `yaml:"invalid_json_escalate" json:"invalid_json_escalate"`
	ContextOverflowEscalate bool `yaml:"context_overflow_escalate" json:"context_overflow_escalate"`
}

// Policy is the durable, registry-owned routing configuration. It is
// re-read from the registry on every request; nothing caches it.
type Policy struct {
	DefaultTier           Tier            `yaml:"default_tier" json:"default_tier"`
	LocalRatio            float64         `yaml:"local_ratio" json:"local_ratio"`
	MaxLocalRetries       int             `yaml:"max_local_retries" json:"max_local_retries"`
	ContextThresholdTokens int            `yaml:"context_threshold_tokens" json:"context_threshold_tokens"`
	EscalationRules       EscalationRules `yaml:"escalation_rules" json:"escalation_rules"`
	PremiumTrigger        string          `yaml:"premium_trigger" json:"premium_trigger"`
	FallbackChain         []Tier          `yaml:"fallback_chain" json:"fallback_chain"`
	Models                map[Tier]string `yaml:"models" json:"models"`
}

// Governance is the durable, registry-owned compliance configuration.
type Governance struct {
	Level                   string  `yaml:"level" json:"level"`
	RequireAudit            bool    `yaml:"require_audit" json:"require_audit"`
	RequireExplanation      bool    `yaml:"require_explanation" json:"require_explanation"`
	MaxCostPerRequest       float64 `yaml:"max_cost_per_request" json:"max_cost_per_request"`
	PremiumApprovalRequired bool    `yaml:"premium_approval_required" json:"premium_approval_required"`
}

// Decision is the immutable outcome of the Decision Engine (or, after
// execution, the Fallback Executor's rewrite of it to reflect the tier
// that actually produced the output).
type Decision struct {
	Route            Tier    `json:"route"`
	Model            string  `json:"model"`
	Reason           string  `json:"reason"`
	Confidence       float64 `json:"confidence"`
	EscalationLevel  int     `json:"escalation_level"`
	CostEstimate     float64 `json:"cost_estimate"`
}

// AttemptResult is what a single tier adapter call produces.
type AttemptResult struct {
	Success    bool        `json:"success"`
	Output     interface{} `json:"output"`
	LatencyMs  int64       `json:"latency_ms"`
	TokenCount int         `json:"token_count"`
	Error      string      `json:"error,omitempty"`
}

// Result is returned to the caller for a completed /run request.
type Result struct {
	TaskID     string    `json:"task_id"`
	Decision   Decision  `json:"decision"`
	Output     interface{} `json:"output"`
	Success    bool      `json:"success"`
	TierUsed   Tier      `json:"tier_used"`
	ModelUsed  string    `json:"model_used"`
	LatencyMs  int64     `json:"latency_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EscalationLevelCap is the maximum escalation_level a Decision can carry;
// chains longer than this are clamped on write (spec Open Question).
const EscalationLevelCap = 3

// ClampEscalationLevel clamps an escalation level to [0, EscalationLevelCap].
func ClampEscalationLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > EscalationLevelCap {
		return EscalationLevelCap
	}
	return level
}
