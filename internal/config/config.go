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

// Package config composes the ordered list of ProjectMapping specs read
// from the cluster into a root spec plus overrides, and resolves the
// effective spec for a given project name (spec.md §3/§4.4).
package config

import (
	"fmt"
	"regexp"

	"github.com/mikolajroszak/kubetruth/api/v1alpha1"
	"github.com/mikolajroszak/kubetruth/util"
)

// Error reports a malformed or missing root ProjectMapping. Per spec.md §9
// a missing root is never fatal to the process: the reconciler turns it
// into a no-op tick.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

func newConfigError(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Config is exactly one root spec plus zero or more overrides in the order
// they were declared in the cluster.
type Config struct {
	root      v1alpha1.ProjectMappingSpec
	overrides []compiledOverride
}

type compiledOverride struct {
	spec     v1alpha1.ProjectMappingSpec
	selector *regexp.Regexp
}

// Load validates that exactly one of the given specs has Scope=root and
// compiles every override's ProjectSelector. Overrides are applied in the
// order given, matching the order ClusterGateway.GetProjectMappings
// returned them in.
func Load(specs []v1alpha1.ProjectMappingSpec) (*Config, error) {
	var (
		root     *v1alpha1.ProjectMappingSpec
		rootSeen int
	)

	cfg := &Config{}

	for i := range specs {
		s := specs[i]

		switch s.Scope {
		case v1alpha1.ScopeRoot:
			rootSeen++
			root = &s
		case v1alpha1.ScopeOverride:
			selector, err := compileSelector(s.ProjectSelector)
			if err != nil {
				return nil, newConfigError("override %d: invalid projectSelector %q: %v", i, s.ProjectSelector, err)
			}

			cfg.overrides = append(cfg.overrides, compiledOverride{spec: s, selector: selector})
		default:
			return nil, newConfigError("spec %d: unknown scope %q", i, s.Scope)
		}
	}

	switch rootSeen {
	case 0:
		return nil, newConfigError("no ProjectMapping with scope=root found")
	case 1:
		// ok
	default:
		return nil, newConfigError("found %d ProjectMapping specs with scope=root, expected exactly one", rootSeen)
	}

	cfg.root = *root

	return cfg, nil
}

func compileSelector(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}

	return regexp.Compile(pattern)
}

// Root returns the unmodified root spec, e.g. for ReconcileEngine to read
// Root.SkipSecrets before building the ProjectGraph.
func (c *Config) Root() v1alpha1.ProjectMappingSpec {
	return c.root
}

// SpecFor resolves the effective spec for project name per spec.md §4.4:
// start from root, then for each override (in declared order) whose
// ProjectSelector matches name, shallow-merge its set fields over the
// accumulator.
func (c *Config) SpecFor(name string) v1alpha1.ProjectMappingSpec {
	effective := c.root
	// Scope never participates in merging; it's a classification field.
	effective.Scope = v1alpha1.ScopeRoot

	for _, o := range c.overrides {
		if !matches(o.selector, name) {
			continue
		}

		mergeOverride(&effective, o.spec)
	}

	return effective
}

// MatchesSelector reports whether an override's ProjectSelector (or the
// empty-matches-all root selector) matches name. Exported so
// ReconcileEngine can evaluate "included via an override's
// includedProjects" independent of SpecFor's merge.
func MatchesSelector(pattern, name string) bool {
	selector, err := compileSelector(pattern)
	if err != nil {
		return false
	}

	return matches(selector, name)
}

func matches(selector *regexp.Regexp, name string) bool {
	if selector == nil {
		return true
	}

	return selector.MatchString(name)
}

// mergeOverride shallow-merges every field an override spec *sets* onto
// effective, replacing wholesale rather than concatenating — including
// list-valued fields such as IncludedProjects (spec.md §9 Open Question,
// resolved in favor of replace for predictability).
func mergeOverride(effective *v1alpha1.ProjectMappingSpec, override v1alpha1.ProjectMappingSpec) {
	effective.ProjectSelector = util.Or(override.ProjectSelector, effective.ProjectSelector)
	effective.ConfigMapTemplate = util.Or(override.ConfigMapTemplate, effective.ConfigMapTemplate)
	effective.SecretTemplate = util.Or(override.SecretTemplate, effective.SecretTemplate)
	effective.ResourceName = util.Or(override.ResourceName, effective.ResourceName)
	effective.ResourceNamespace = util.Or(override.ResourceNamespace, effective.ResourceNamespace)

	if override.Skip {
		effective.Skip = override.Skip
	}

	if override.SkipSecrets {
		effective.SkipSecrets = override.SkipSecrets
	}

	if override.IncludedProjects != nil {
		effective.IncludedProjects = override.IncludedProjects
	}

	if override.Patches != nil {
		effective.Patches = override.Patches
	}
}
