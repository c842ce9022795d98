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
	"context"
	"fmt"
)

// MemorySource is a deterministic, in-process Source used by this module's
// own tests and by callers wiring up a fixture instead of a live CloudTruth
// client. Projects are returned in the order they were added.
type MemorySource struct {
	order    []string
	projects map[string]Project
}

// NewMemorySource builds an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{projects: map[string]Project{}}
}

// AddProject registers or replaces a project's parameters/parent.
func (m *MemorySource) AddProject(p Project) *MemorySource {
	if _, exists := m.projects[p.Name]; !exists {
		m.order = append(m.order, p.Name)
	}

	m.projects[p.Name] = p

	return m
}

func (m *MemorySource) ProjectNames(_ context.Context) ([]string, error) {
	names := make([]string, len(m.order))
	copy(names, m.order)

	return names, nil
}

func (m *MemorySource) Project(_ context.Context, name string, wantSecrets bool) (Project, error) {
	p, ok := m.projects[name]
	if !ok {
		return Project{}, fmt.Errorf("parameter: unknown project %q", name)
	}

	if wantSecrets {
		return p, nil
	}

	filtered := Project{Name: p.Name, Parent: p.Parent}

	for _, param := range p.Parameters {
		if !param.Secret {
			filtered.Parameters = append(filtered.Parameters, param)
		}
	}

	return filtered, nil
}
