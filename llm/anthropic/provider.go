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

// Package anthropic binds the premium tier to Anthropic's Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"cascadeflow/platform/llm"
	"cascadeflow/platform/model"
)

const (
	DefaultBaseURL    = "https://api.anthropic.com/v1/messages"
	DefaultAPIVersion = "2023-06-01"
	DefaultTimeout    = 120 * time.Second
	DefaultMaxTokens  = 4096
	DefaultTemperature = 0.3
)

// HTTPClient enables injecting a fake transport in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures the Anthropic tier adapter.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Client  HTTPClient
}

// Provider is the premium-tier llm.Adapter backed by Anthropic.
type Provider struct {
	apiKey  string
	baseURL string
	model   string
	client  HTTPClient

	mu      sync.RWMutex
	healthy bool
}

// NewProvider constructs a Provider. An empty APIKey is allowed: the
// adapter is simply reported unavailable until a key is configured.
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
	return &Provider{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  cfg.Client,
		healthy: cfg.APIKey != "",
	}
}

func (p *Provider) Tier() model.Tier { return model.TierPremium }

func (p *Provider) IsAvailable(ctx context.Context) bool {
	return strings.TrimSpace(p.apiKey) != ""
}

func (p *Provider) Close() error { return nil }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Usage   anthropicUsage          `json:"usage"`
}

// Generate implements llm.Adapter.
func (p *Provider) Generate(ctx context.Context, prompt, modelName, taskContext string) (model.AttemptResult, error) {
	if !p.IsAvailable(ctx) {
		return model.AttemptResult{Success: false, Error: "Claude is not configured (missing API key)"}, nil
	}
	if modelName == "" {
		modelName = p.model
	}

	userContent := llm.BuildUserContent(prompt, taskContext)

	reqBody := anthropicRequest{
		Model:       modelName,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		System:      llm.SystemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: userContent}},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return model.AttemptResult{}, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(payload))
	if err != nil {
		return model.AttemptResult{}, fmt.Errorf("anthropic: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", DefaultAPIVersion)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		if ctx.Err() != nil {
			return model.AttemptResult{Success: false, LatencyMs: latency, Error: "Claude request timed out"}, nil
		}
		return model.AttemptResult{Success: false, LatencyMs: latency, Error: fmt.Sprintf("Claude request failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return model.AttemptResult{Success: false, LatencyMs: latency, Error: fmt.Sprintf("Claude response read failed: %v", readErr)}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return model.AttemptResult{
			Success:   false,
			LatencyMs: latency,
			Error:     fmt.Sprintf("Claude returned %d: %s", resp.StatusCode, truncate(string(body), 200)),
		}, nil
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return model.AttemptResult{Success: false, LatencyMs: latency, Error: fmt.Sprintf("Claude returned malformed response: %v", err)}, nil
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		text.WriteString(block.Text)
	}

	return model.AttemptResult{
		Success:    true,
		Output:     llm.ParseOutput(text.String()),
		LatencyMs:  latency,
		TokenCount: parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

var _ llm.Adapter = (*Provider)(nil)
