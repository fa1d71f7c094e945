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

package registry

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"cascadeflow/platform/model"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type defaultsDoc struct {
	Policy     model.Policy     `yaml:"policy"`
	Governance model.Governance `yaml:"governance"`
}

var (
	defaultsOnce sync.Once
	defaultsErr  error
	defaults     defaultsDoc
)

// Defaults returns the embedded fallback Policy and Governance, parsed
// once from defaults.yaml. Backends fall back to these values whenever a
// durable read fails.
func Defaults() (model.Policy, model.Governance, error) {
	defaultsOnce.Do(func() {
		defaultsErr = yaml.Unmarshal(defaultsYAML, &defaults)
	})
	if defaultsErr != nil {
		return model.Policy{}, model.Governance{}, fmt.Errorf("registry: parse embedded defaults: %w", defaultsErr)
	}
	return defaults.Policy, defaults.Governance, nil
}

// MustDefaults is Defaults but panics on parse failure. The embedded YAML
// is a build-time constant, so a parse failure here means the file was
// edited without validation and should fail loudly at startup.
func MustDefaults() (model.Policy, model.Governance) {
	p, g, err := Defaults()
	if err != nil {
		panic(err)
	}
	return p, g
}
