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
	"net/http"
	"strings"
	"time"

	"cascadeflow/platform/llm"
	"cascadeflow/platform/model"
	"cascadeflow/platform/shared/logger"
)

// Server wires the Pipeline and tier adapters to the HTTP surface.
type Server struct {
	pipeline    *Pipeline
	store       StoreChecker
	adapters    map[model.Tier]llm.Adapter
	healthCache HealthProbe
	logger      *logger.Logger
	startedAt   time.Time
}

// StoreChecker is the subset of registry.Store the health handler needs.
type StoreChecker interface {
	IsConnected(ctx context.Context) bool
	Backend() string
}

// HealthProbe caches adapter reachability probes. Implemented by
// *healthcache.Cache. A nil HealthProbe is allowed: the health handlers
// then call each adapter's IsAvailable directly on every request.
type HealthProbe interface {
	Probe(ctx context.Context, tier model.Tier, probe func(context.Context) bool) bool
}

// NewServer constructs the HTTP-facing Server.
func NewServer(pipeline *Pipeline, store StoreChecker, adapters map[model.Tier]llm.Adapter, healthCache HealthProbe, log *logger.Logger) *Server {
	if log == nil {
		log = logger.New("router")
	}
	return &Server{
		pipeline:    pipeline,
		store:       store,
		adapters:    adapters,
		healthCache: healthCache,
		logger:      log,
		startedAt:   time.Now(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// runRequestBody mirrors model.Request's JSON shape for decoding from the
// wire; sensitivity/source default when absent.
type runRequestBody struct {
	TaskType    string                 `json:"task_type"`
	Prompt      string                 `json:"prompt"`
	Context     string                 `json:"context,omitempty"`
	Sensitivity string                 `json:"sensitivity,omitempty"`
	Source      string                 `json:"source,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

func (b runRequestBody) toRequest() (model.Request, error) {
	if strings.TrimSpace(b.TaskType) == "" {
		return model.Request{}, errEmptyField("task_type")
	}
	if strings.TrimSpace(b.Prompt) == "" {
		return model.Request{}, errEmptyField("prompt")
	}

	sensitivity := model.Sensitivity(b.Sensitivity)
	if sensitivity == "" {
		sensitivity = model.SensitivityNormal
	}

	source := b.Source
	if source == "" {
		source = "api"
	}

	return model.Request{
		TaskType:    b.TaskType,
		Prompt:      b.Prompt,
		Context:     b.Context,
		Sensitivity: sensitivity,
		Source:      source,
		Metadata:    b.Metadata,
	}, nil
}

type fieldError string

func errEmptyField(field string) error { return fieldError(field + " must not be empty") }
func (e fieldError) Error() string     { return string(e) }

// HandleRun implements POST /run: the full pipeline, body → Result.
func (s *Server) HandleRun(w http.ResponseWriter, r *http.Request) {
	var body runRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := body.toRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := s.pipeline.Run(r.Context(), req)
	writeJSON(w, http.StatusOK, result)
}

type routeRequestBody struct {
	TaskType    string `json:"task_type"`
	Prompt      string `json:"prompt"`
	Context     string `json:"context,omitempty"`
	Sensitivity string `json:"sensitivity,omitempty"`
}

// HandleRoute implements POST /route: decision only, no execution.
func (s *Server) HandleRoute(w http.ResponseWriter, r *http.Request) {
	var body routeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.TaskType) == "" || strings.TrimSpace(body.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "task_type and prompt must not be empty")
		return
	}

	sensitivity := model.Sensitivity(body.Sensitivity)
	if sensitivity == "" {
		sensitivity = model.SensitivityNormal
	}

	decision, policy, governance := s.pipeline.Route(r.Context(), model.Request{
		TaskType:    body.TaskType,
		Prompt:      body.Prompt,
		Context:     body.Context,
		Sensitivity: sensitivity,
		Source:      "api",
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"decision":    decision,
		"policy_used": policy,
		"governance":  governance,
	})
}

type executeRequestBody struct {
	Tier    string `json:"tier"`
	Model   string `json:"model,omitempty"`
	Prompt  string `json:"prompt"`
	Context string `json:"context,omitempty"`
}

// HandleExecute implements POST /execute: direct tier dispatch bypassing
// the Decision Engine.
func (s *Server) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var body executeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tier := model.Tier(body.Tier)
	if !tier.Valid() {
		writeError(w, http.StatusBadRequest, "tier must be one of local, market, premium")
		return
	}
	if strings.TrimSpace(body.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt must not be empty")
		return
	}

	result := s.pipeline.Execute(r.Context(), ExecuteRequest{
		Tier:    tier,
		Model:   body.Model,
		Prompt:  body.Prompt,
		Context: body.Context,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"task_id":    result.TaskID,
		"tier":       result.TierUsed,
		"model":      result.ModelUsed,
		"success":    result.Success,
		"output":     result.Output,
		"latency_ms": result.LatencyMs,
		"error":      result.Error,
	})
}

// HandleHealth implements GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	connected := s.store != nil && s.store.IsConnected(ctx)

	ollamaReachable := false
	if adapter, ok := s.adapters[model.TierLocal]; ok {
		if s.healthCache != nil {
			ollamaReachable = s.healthCache.Probe(ctx, model.TierLocal, adapter.IsAvailable)
		} else {
			ollamaReachable = adapter.IsAvailable(ctx)
		}
	}

	backend := ""
	if s.store != nil {
		backend = s.store.Backend()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "healthy",
		"service":            "cascadeflow-router",
		"version":            "1.0.0",
		"registry_connected": connected,
		"registry_backend":   backend,
		"ollama_reachable":   ollamaReachable,
	})
}

// HandleProviderStatus implements GET /api/v1/providers/status.
func (s *Server) HandleProviderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := make(map[string]interface{}, len(s.adapters))

	for tier, adapter := range s.adapters {
		reachable := false
		if s.healthCache != nil {
			reachable = s.healthCache.Probe(ctx, tier, adapter.IsAvailable)
		} else {
			reachable = adapter.IsAvailable(ctx)
		}
		status[string(tier)] = map[string]interface{}{
			"reachable": reachable,
		}
	}

	writeJSON(w, http.StatusOK, status)
}
