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

// Package router implements the Decision Engine, the Fallback Executor,
// and the Pipeline Orchestrator that compose them.
package router

import (
	"fmt"

	"cascadeflow/platform/model"
)

// CostPer1K holds the fixed per-1000-token cost rate for each tier.
var CostPer1K = map[model.Tier]float64{
	model.TierLocal:   0.0,
	model.TierMarket:  0.0008,
	model.TierPremium: 0.003,
}

// EstimateTokens coarsely estimates the token count of text as one token
// per four characters, with a floor of one token (an empty string also
// counts as one token).
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// EstimateCost computes the fixed-rate cost estimate for tokenCount tokens
// routed to tier, rounded to 6 decimal places.
func EstimateCost(tier model.Tier, tokenCount int) float64 {
	rate := CostPer1K[tier]
	cost := rate * (float64(tokenCount) / 1000.0)
	return roundTo(cost, 6)
}

func roundTo(v float64, places int) float64 {
	mult := 1.0
	for i := 0; i < places; i++ {
		mult *= 10
	}
	return float64(int64(v*mult+0.5)) / mult
}

// Decide runs the three ordered escalation rules and returns the routing
// Decision for req under policy and governance. It is a pure function: it
// performs no I/O and has no side effects.
func Decide(req model.Request, policy model.Policy, governance model.Governance) model.Decision {
	totalTokens := EstimateTokens(req.Prompt) + EstimateTokens(req.Context)

	// Rule 1: sensitivity escalation.
	if req.Sensitivity == model.SensitivityHigh && policy.PremiumTrigger == "sensitivity_high_only" {
		return model.Decision{
			Route:           model.TierPremium,
			Model:           policy.Models[model.TierPremium],
			Reason:          "Sensitivity=high triggers premium tier per policy",
			Confidence:      0.95,
			EscalationLevel: 2,
			CostEstimate:    EstimateCost(model.TierPremium, totalTokens*2),
		}
	}

	// Rule 2: context overflow escalation.
	if totalTokens > policy.ContextThresholdTokens && policy.EscalationRules.ContextOverflowEscalate {
		return model.Decision{
			Route:           model.TierMarket,
			Model:           policy.Models[model.TierMarket],
			Reason:          fmt.Sprintf("estimated %d tokens exceeds context threshold of %d, routed to market tier", totalTokens, policy.ContextThresholdTokens),
			Confidence:      0.85,
			EscalationLevel: 1,
			CostEstimate:    EstimateCost(model.TierMarket, totalTokens*2),
		}
	}

	// Rule 3: default local routing.
	return model.Decision{
		Route:           model.TierLocal,
		Model:           policy.Models[model.TierLocal],
		Reason:          fmt.Sprintf("Default routing to local tier (local tier handles %d%% of traffic under current policy)", int(policy.LocalRatio*100)),
		Confidence:      0.90,
		EscalationLevel: 0,
		CostEstimate:    EstimateCost(model.TierLocal, totalTokens),
	}
}
