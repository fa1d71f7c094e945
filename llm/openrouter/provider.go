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

// Package openrouter binds the market tier to the OpenRouter API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cascadeflow/platform/llm"
	"cascadeflow/platform/model"
)

const (
	DefaultBaseURL     = "https://openrouter.ai/api/v1"
	DefaultTimeout     = 60 * time.Second
	DefaultTemperature = 0.3
	refererHeader      = "https://cascadeflow.app"
	titleHeader        = "CascadeFlow Router"
)

// HTTPClient enables injecting a fake transport in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures the OpenRouter tier adapter.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Client  HTTPClient
}

// Provider is the market-tier llm.Adapter backed by OpenRouter.
type Provider struct {
	apiKey  string
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
	return &Provider{apiKey: cfg.APIKey, baseURL: cfg.BaseURL, model: cfg.Model, client: cfg.Client}
}

func (p *Provider) Tier() model.Tier { return model.TierMarket }

func (p *Provider) Close() error { return nil }

func (p *Provider) IsAvailable(ctx context.Context) bool {
	return strings.TrimSpace(p.apiKey) != ""
}

type openrouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openrouterRequest struct {
	Model          string              `json:"model"`
	Messages       []openrouterMessage `json:"messages"`
	Temperature    float64             `json:"temperature"`
	ResponseFormat responseFormat      `json:"response_format"`
}

type openrouterChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

type openrouterUsage struct {
	TotalTokens int `json:"total_tokens"`
}

type openrouterResponse struct {
	Choices []openrouterChoice `json:"choices"`
	Usage   openrouterUsage    `json:"usage"`
}

// Generate implements llm.Adapter.
func (p *Provider) Generate(ctx context.Context, prompt, modelName, taskContext string) (model.AttemptResult, error) {
	if !p.IsAvailable(ctx) {
		return model.AttemptResult{Success: false, Error: "OpenRouter is not configured (missing API key)"}, nil
	}
	if modelName == "" {
		modelName = p.model
	}

	messages := []openrouterMessage{{Role: "system", Content: llm.SystemPrompt}}
	messages = append(messages, openrouterMessage{Role: "user", Content: llm.BuildUserContent(prompt, taskContext)})

	reqBody := openrouterRequest{
		Model:          modelName,
		Messages:       messages,
		Temperature:    DefaultTemperature,
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return model.AttemptResult{}, fmt.Errorf("openrouter: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return model.AttemptResult{}, fmt.Errorf("openrouter: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("HTTP-Referer", refererHeader)
	httpReq.Header.Set("X-Title", titleHeader)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		if ctx.Err() != nil {
			return model.AttemptResult{Success: false, LatencyMs: latency, Error: "OpenRouter request timed out"}, nil
		}
		return model.AttemptResult{Success: false, LatencyMs: latency, Error: fmt.Sprintf("OpenRouter request failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return model.AttemptResult{Success: false, LatencyMs: latency, Error: fmt.Sprintf("OpenRouter response read failed: %v", readErr)}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return model.AttemptResult{
			Success:   false,
			LatencyMs: latency,
			Error:     fmt.Sprintf("OpenRouter returned %d: %s", resp.StatusCode, truncate(string(body), 200)),
		}, nil
	}

	var parsed openrouterResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return model.AttemptResult{Success: false, LatencyMs: latency, Error: fmt.Sprintf("OpenRouter returned malformed response: %v", err)}, nil
	}

	content := ""
	if len(parsed.Choices) > 0 {
		content = parsed.Choices[0].Message.Content
	}

	return model.AttemptResult{
		Success:    true,
		Output:     llm.ParseOutput(content),
		LatencyMs:  latency,
		TokenCount: parsed.Usage.TotalTokens,
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

var _ llm.Adapter = (*Provider)(nil)
