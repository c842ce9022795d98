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

// Package graph is the in-memory model of projects and their parent links:
// cycle-safe ancestry walks, hierarchical parameter flattening with origin
// tracking, and the nested "hierarchy tree" fed to templates (spec.md §3,
// §4.5).
package graph

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/mikolajroszak/kubetruth/internal/parameter"
)

// Graph maps project name to Project, rebuilt fresh on every tick.
type Graph struct {
	projects map[string]parameter.Project
}

// Build enumerates every project name from source and fetches its
// parameters (omitting secrets when wantSecrets is false) and parent.
func Build(ctx context.Context, source parameter.Source, wantSecrets bool) (*Graph, error) {
	names, err := source.ProjectNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: listing projects: %w", err)
	}

	g := &Graph{projects: make(map[string]parameter.Project, len(names))}

	for _, name := range names {
		p, err := source.Project(ctx, name, wantSecrets)
		if err != nil {
			return nil, fmt.Errorf("graph: fetching project %q: %w", name, err)
		}

		g.projects[name] = p
	}

	return g, nil
}

// Names returns every project name known to the graph, useful for tests.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.projects))
	for n := range g.projects {
		names = append(names, n)
	}

	return names
}

// Has reports whether name was observed by Build.
func (g *Graph) Has(name string) bool {
	_, ok := g.projects[name]
	return ok
}

// ancestry returns the ancestor chain of name, deepest ancestor first,
// ending at name itself. A cycle is broken at the first repeated name and
// logged as a warning here, so the traversal never infinite-loops (spec.md
// "Cycle-safe" invariant).
func (g *Graph) ancestry(name string) []string {
	seen := map[string]bool{}

	var chain []string

	cur := name
	for cur != "" {
		if seen[cur] {
			klog.Warningf("graph: cycle detected in project ancestry at %q, breaking traversal", cur)
			break
		}

		seen[cur] = true
		chain = append(chain, cur)

		p, ok := g.projects[cur]
		if !ok || p.Parent == "" {
			break
		}

		cur = p.Parent
	}

	// Reverse in place: chain was built self-first, we want deepest-ancestor-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	return chain
}

// Flatten produces the effective parameter map and its per-key origin for
// project per spec.md §4.5's resolution order (earliest loses, latest
// wins):
//  1. project's own ancestor chain, excluding project itself, deepest
//     ancestor first.
//  2. each name in includedProjects, in order, each preceded by its own
//     ancestor chain.
//  3. project's own parameters, applied last so they always win over both
//     its ancestors and anything it includes.
//
// Values contains only the winning value per key; Origins names the
// project a value came from, annotated "<project> (<included>)" when
// contributed via includedProjects rather than project's own ancestry.
func (g *Graph) Flatten(project string, includedProjects []string) (values map[string]parameter.Parameter, origins map[string]string) {
	values = map[string]parameter.Parameter{}
	origins = map[string]string{}

	applyOne := func(name string, viaInclusion string) {
		p, ok := g.projects[name]
		if !ok {
			return
		}

		for _, param := range p.Parameters {
			values[param.Key] = param

			if viaInclusion != "" {
				origins[param.Key] = fmt.Sprintf("%s (%s)", project, viaInclusion)
			} else {
				origins[param.Key] = name
			}
		}
	}

	chain := g.ancestry(project)
	if len(chain) > 0 {
		chain = chain[:len(chain)-1] // drop project itself; step 3 applies it last
	}

	for _, ancestor := range chain {
		applyOne(ancestor, "")
	}

	for _, included := range includedProjects {
		for _, chainName := range g.ancestry(included) {
			applyOne(chainName, included)
		}
	}

	applyOne(project, "")

	return values, origins
}

// Hierarchy builds the nested {self: {parent: {grandparent: {}}}} mapping
// used as the project_heirarchy template context key (spelling preserved
// per spec.md §4.6/§9 — it's a wire contract). included projects are
// nested as additional children alongside the ancestry chain, matching the
// create/update scenario in spec.md §8 scenario 4, where
// project_heirarchy = {proj1: {proj2: {}}} for proj1 with
// includedProjects=[proj2].
func (g *Graph) Hierarchy(project string, includedProjects []string) map[string]any {
	tree := g.hierarchyChain(project)

	inner := tree[project].(map[string]any)
	for _, included := range includedProjects {
		incTree := g.hierarchyChain(included)
		for k, v := range incTree {
			inner[k] = v
		}
	}

	return tree
}

func (g *Graph) hierarchyChain(name string) map[string]any {
	seen := map[string]bool{}
	root := map[string]any{}
	cur := root
	node := name

	for node != "" {
		if seen[node] {
			klog.Warningf("graph: cycle detected building hierarchy at %q, breaking traversal", node)
			break
		}

		seen[node] = true
		child := map[string]any{}
		cur[node] = child
		cur = child

		p, ok := g.projects[node]
		if !ok || p.Parent == "" {
			break
		}

		node = p.Parent
	}

	return root
}
