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

// Package llm defines the tier adapter contract: a uniform interface the
// Fallback Executor uses to dispatch a generation request to whichever
// concrete backend (Ollama, OpenRouter, Anthropic) is bound to a tier.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	"cascadeflow/platform/model"
)

// SystemPrompt is sent to every tier adapter ahead of the task prompt. All
// tiers are instructed to respond with bare JSON so the Fallback Executor's
// validity gate can parse the output uniformly.
const SystemPrompt = "You are a CascadeFlow worker. Respond ONLY with valid JSON. No markdown, no explanation, no preamble. Just a JSON object."

// Adapter is implemented by each tier's concrete backend client.
type Adapter interface {
	// Tier reports which tier this adapter serves.
	Tier() model.Tier

	// Generate sends prompt (with optional context) to modelName and
	// returns the raw attempt result. It never returns a non-nil error for
	// ordinary backend failures (timeouts, non-2xx responses) — those are
	// reported via AttemptResult.Success=false and AttemptResult.Error so
	// the executor can log and advance the fallback chain uniformly. A
	// non-nil error indicates a programming error (e.g. nil adapter).
	Generate(ctx context.Context, prompt, modelName, taskContext string) (model.AttemptResult, error)

	// IsAvailable reports whether the adapter is currently usable: for
	// hosted tiers this means an API key is configured; for the local
	// tier it means the runtime is reachable.
	IsAvailable(ctx context.Context) bool

	// Close releases any resources (HTTP clients) held by the adapter.
	Close() error
}

// BuildUserContent mirrors the original adapters' prompt framing: when
// context is supplied it is prepended ahead of the task prompt.
func BuildUserContent(prompt, taskContext string) string {
	if strings.TrimSpace(taskContext) == "" {
		return prompt
	}
	return "Context:\n" + taskContext + "\n\nTask:\n" + prompt
}

// IsValidJSON reports whether v is already a decoded JSON value, or a
// string that successfully parses as JSON. The Fallback Executor treats
// anything else as an invalid-JSON attempt eligible for escalation.
func IsValidJSON(v interface{}) bool {
	switch val := v.(type) {
	case map[string]interface{}, []interface{}:
		return true
	case string:
		var js interface{}
		return json.Unmarshal([]byte(val), &js) == nil
	default:
		return false
	}
}

// ParseOutput tries to decode raw as JSON; on failure it returns raw
// unchanged as a plain string, matching the original adapters'
// parse-with-fallback behavior.
func ParseOutput(raw string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
