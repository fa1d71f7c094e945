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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"cascadeflow/platform/model"
	"cascadeflow/platform/registry"
)

func testPolicy(t *testing.T) model.Policy {
	t.Helper()
	p, _, err := registry.Defaults()
	assert.NoError(t, err)
	return p
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcde678"))
}

func TestEstimateCost(t *testing.T) {
	assert.Equal(t, 0.0, EstimateCost(model.TierLocal, 10000))
	assert.Equal(t, 0.0008, EstimateCost(model.TierMarket, 1000))
	assert.Equal(t, 0.003, EstimateCost(model.TierPremium, 1000))
}

func TestDecide_SensitivityHighEscalatesToPremium(t *testing.T) {
	policy := testPolicy(t)
	req := model.Request{Prompt: "short", Sensitivity: model.SensitivityHigh}

	d := Decide(req, policy, model.Governance{})

	assert.Equal(t, model.TierPremium, d.Route)
	assert.Equal(t, policy.Models[model.TierPremium], d.Model)
	assert.Equal(t, 2, d.EscalationLevel)
	assert.Equal(t, 0.95, d.Confidence)
	assert.Equal(t, "Sensitivity=high triggers premium tier per policy", d.Reason)
}

func TestDecide_ContextOverflowEscalatesToMarket(t *testing.T) {
	policy := testPolicy(t)
	longPrompt := strings.Repeat("a", (policy.ContextThresholdTokens+100)*4)
	req := model.Request{Prompt: longPrompt, Sensitivity: model.SensitivityNormal}

	d := Decide(req, policy, model.Governance{})

	assert.Equal(t, model.TierMarket, d.Route)
	assert.Equal(t, 1, d.EscalationLevel)
	assert.Equal(t, 0.85, d.Confidence)
}

func TestDecide_DefaultsToLocal(t *testing.T) {
	policy := testPolicy(t)
	req := model.Request{Prompt: "short task", Sensitivity: model.SensitivityNormal}

	d := Decide(req, policy, model.Governance{})

	assert.Equal(t, model.TierLocal, d.Route)
	assert.Equal(t, 0, d.EscalationLevel)
	assert.Equal(t, 0.90, d.Confidence)
	assert.Contains(t, d.Reason, "Default routing to local")
	assert.Contains(t, d.Reason, "80%")
}

func TestDecide_SensitivityHighIgnoredWhenTriggerDiffers(t *testing.T) {
	policy := testPolicy(t)
	policy.PremiumTrigger = "never"
	req := model.Request{Prompt: "short", Sensitivity: model.SensitivityHigh}

	d := Decide(req, policy, model.Governance{})

	assert.Equal(t, model.TierLocal, d.Route)
}
