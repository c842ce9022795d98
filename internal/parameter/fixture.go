/*
Copyright 2021 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package parameter

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// fixtureDoc is the on-disk shape LoadFixture parses.
type fixtureDoc struct {
	Projects []fixtureProject `json:"projects"`
}

type fixtureProject struct {
	Name       string           `json:"name"`
	Parent     string           `json:"parent,omitempty"`
	Parameters []fixtureParam   `json:"parameters,omitempty"`
}

type fixtureParam struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Secret bool   `json:"secret,omitempty"`
}

// LoadFixture reads a YAML document describing a fixed set of projects and
// returns a MemorySource over it. This is the wiring point a real
// CloudTruth-backed Source replaces in production; it exists so this
// module is runnable end-to-end without the external REST client spec.md
// §1 places out of scope.
func LoadFixture(path string) (*MemorySource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("parameter: reading fixture %s: %w", path, err)
	}

	var doc fixtureDoc
	if err := yaml.UnmarshalStrict(raw, &doc); err != nil {
		return nil, fmt.Errorf("parameter: parsing fixture %s: %w", path, err)
	}

	source := NewMemorySource()

	for _, p := range doc.Projects {
		project := Project{Name: p.Name, Parent: p.Parent}
		for _, param := range p.Parameters {
			project.Parameters = append(project.Parameters, Parameter{Key: param.Key, Value: param.Value, Secret: param.Secret})
		}

		source.AddProject(project)
	}

	return source, nil
}
