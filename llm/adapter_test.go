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

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildUserContent_NoContext(t *testing.T) {
	assert.Equal(t, "do the thing", BuildUserContent("do the thing", ""))
}

func TestBuildUserContent_WithContext(t *testing.T) {
	got := BuildUserContent("do the thing", "background info")
	assert.Equal(t, "Context:\nbackground info\n\nTask:\ndo the thing", got)
}

func TestIsValidJSON(t *testing.T) {
	assert.True(t, IsValidJSON(map[string]interface{}{"a": 1}))
	assert.True(t, IsValidJSON([]interface{}{1, 2}))
	assert.True(t, IsValidJSON(`{"a":1}`))
	assert.True(t, IsValidJSON(`[1,2,3]`))
	assert.False(t, IsValidJSON(`not json`))
	assert.True(t, IsValidJSON(`"just a string"`))
	assert.False(t, IsValidJSON(42))
}

func TestParseOutput(t *testing.T) {
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, ParseOutput(`{"a":1}`))
	assert.Equal(t, "plain text", ParseOutput("plain text"))
}
