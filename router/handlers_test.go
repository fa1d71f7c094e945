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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cascadeflow/platform/llm"
	"cascadeflow/platform/model"
)

type fakeHealthProbe struct{}

func (fakeHealthProbe) Probe(ctx context.Context, tier model.Tier, probe func(context.Context) bool) bool {
	return probe(ctx)
}

func newTestServer(t *testing.T, adapters map[model.Tier]llm.Adapter) (*Server, *policyStore) {
	t.Helper()
	store := newPolicyStore(t)
	pipeline := NewPipeline(store, adapters, nil, nil)
	return NewServer(pipeline, store, adapters, fakeHealthProbe{}, nil), store
}

func doRequest(handler http.HandlerFunc, method, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleRun_ValidatesEmptyFields(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doRequest(server.HandleRun, http.MethodPost, `{"task_type":"","prompt":""}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "task_type")
}

func TestHandleRun_InvalidJSONBody(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doRequest(server.HandleRun, http.MethodPost, `not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRun_Success(t *testing.T) {
	local := &fakeAdapter{tier: model.TierLocal, results: []model.AttemptResult{
		{Success: true, Output: map[string]interface{}{"ok": true}},
	}}
	server, _ := newTestServer(t, map[model.Tier]llm.Adapter{model.TierLocal: local})

	rec := doRequest(server.HandleRun, http.MethodPost, `{"task_type":"summarize","prompt":"hello"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	var result model.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, model.TierLocal, result.TierUsed)
}

func TestHandleRoute_ReturnsDecisionWithoutExecuting(t *testing.T) {
	server, store := newTestServer(t, nil)

	rec := doRequest(server.HandleRoute, http.MethodPost, `{"task_type":"summarize","prompt":"hello","sensitivity":"high"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	decision := body["decision"].(map[string]interface{})
	assert.Equal(t, string(model.TierPremium), decision["route"])
	assert.Empty(t, store.events)
}

func TestHandleRoute_RejectsEmptyPrompt(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doRequest(server.HandleRoute, http.MethodPost, `{"task_type":"summarize","prompt":""}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExecute_RejectsInvalidTier(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doRequest(server.HandleExecute, http.MethodPost, `{"tier":"nonexistent","prompt":"hi"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "tier must be one of")
}

func TestHandleExecute_DispatchesDirectly(t *testing.T) {
	premium := &fakeAdapter{tier: model.TierPremium, results: []model.AttemptResult{
		{Success: true, Output: map[string]interface{}{"ok": true}},
	}}
	server, _ := newTestServer(t, map[model.Tier]llm.Adapter{model.TierPremium: premium})

	rec := doRequest(server.HandleExecute, http.MethodPost, `{"tier":"premium","prompt":"hi"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, string(model.TierPremium), body["tier"])
}

func TestHandleHealth_ReportsBackendAndOllama(t *testing.T) {
	local := &fakeAdapter{tier: model.TierLocal, results: []model.AttemptResult{{Success: true}}}
	server, _ := newTestServer(t, map[model.Tier]llm.Adapter{model.TierLocal: local})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.HandleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "fake", body["registry_backend"])
	assert.Equal(t, true, body["registry_connected"])
	assert.Equal(t, true, body["ollama_reachable"])
}

func TestHandleProviderStatus_ReturnsPerTierReachability(t *testing.T) {
	local := &fakeAdapter{tier: model.TierLocal, results: []model.AttemptResult{{Success: true}}}
	premium := &fakeAdapter{tier: model.TierPremium, results: []model.AttemptResult{{Success: true}}}
	server, _ := newTestServer(t, map[model.Tier]llm.Adapter{
		model.TierLocal:   local,
		model.TierPremium: premium,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/providers/status", nil)
	rec := httptest.NewRecorder()
	server.HandleProviderStatus(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body[string(model.TierLocal)]["reachable"])
	assert.Equal(t, true, body[string(model.TierPremium)]["reachable"])
}
