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

// Package ollama binds the local tier to a self-hosted Ollama runtime.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"cascadeflow/platform/llm"
	"cascadeflow/platform/model"
)

const (
	DefaultBaseURL    = "http://localhost:11434"
	DefaultTimeout    = 120 * time.Second
	reachableTimeout  = 5 * time.Second
	DefaultTemperature = 0.3
)

// HTTPClient enables injecting a fake transport in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures the Ollama tier adapter.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Client  HTTPClient
}

// Provider is the local-tier llm.Adapter backed by Ollama's chat API.
type Provider struct {
	baseURL string
	model   string
	client  HTTPClient
}

func NewProvider(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Provider{baseURL: cfg.BaseURL, model: cfg.Model, client: cfg.Client}
}

func (p *Provider) Tier() model.Tier { return model.TierLocal }

func (p *Provider) Close() error { return nil }

// IsAvailable probes /api/tags, mirroring the original adapter's
// is_reachable check, with a short independent timeout so a hung local
// runtime does not stall the caller's own request deadline.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, reachableTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	EvalCount      int `json:"eval_count"`
	PromptEvalCount int `json:"prompt_eval_count"`
}

// Generate implements llm.Adapter.
func (p *Provider) Generate(ctx context.Context, prompt, modelName, taskContext string) (model.AttemptResult, error) {
	if modelName == "" {
		modelName = p.model
	}

	messages := []ollamaMessage{{Role: "system", Content: llm.SystemPrompt}}
	messages = append(messages, ollamaMessage{Role: "user", Content: llm.BuildUserContent(prompt, taskContext)})

	reqBody := ollamaRequest{
		Model:    modelName,
		Messages: messages,
		Stream:   false,
		Format:   "json",
		Options:  ollamaOptions{Temperature: DefaultTemperature},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return model.AttemptResult{}, fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return model.AttemptResult{}, fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		if ctx.Err() != nil {
			return model.AttemptResult{Success: false, LatencyMs: latency, Error: "Ollama request timed out"}, nil
		}
		return model.AttemptResult{Success: false, LatencyMs: latency, Error: fmt.Sprintf("Ollama request failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return model.AttemptResult{Success: false, LatencyMs: latency, Error: fmt.Sprintf("Ollama response read failed: %v", readErr)}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return model.AttemptResult{
			Success:   false,
			LatencyMs: latency,
			Error:     fmt.Sprintf("Ollama returned %d: %s", resp.StatusCode, truncate(string(body), 200)),
		}, nil
	}

	var parsed ollamaChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return model.AttemptResult{Success: false, LatencyMs: latency, Error: fmt.Sprintf("Ollama returned malformed response: %v", err)}, nil
	}

	return model.AttemptResult{
		Success:    true,
		Output:     llm.ParseOutput(parsed.Message.Content),
		LatencyMs:  latency,
		TokenCount: parsed.EvalCount + parsed.PromptEvalCount,
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

var _ llm.Adapter = (*Provider)(nil)
