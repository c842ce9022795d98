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

// Package reconcile orchestrates one full reconciliation pass: load
// config, fetch projects, build the graph, filter by selector, render
// ConfigMap/Secret manifests per project, and submit each through the
// drift-aware apply (spec.md §4.6).
package reconcile

import (
	"context"
	"encoding/base64"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"

	"github.com/mikolajroszak/kubetruth/api/v1alpha1"
	"github.com/mikolajroszak/kubetruth/internal/config"
	"github.com/mikolajroszak/kubetruth/internal/gateway"
	"github.com/mikolajroszak/kubetruth/internal/graph"
	"github.com/mikolajroszak/kubetruth/internal/parameter"
	"github.com/mikolajroszak/kubetruth/internal/template"
)

// Engine is the ReconcileEngine from spec.md §4.6.
type Engine struct {
	Gateway  gateway.Gateway
	Source   parameter.Source
	Renderer template.Renderer
}

// New builds an Engine from its three collaborators.
func New(gw gateway.Gateway, source parameter.Source, renderer template.Renderer) *Engine {
	return &Engine{Gateway: gw, Source: source, Renderer: renderer}
}

// Apply performs one tick. A ConfigError from loading the cluster's
// ProjectMapping specs makes the tick a no-op (spec.md §7, §9). A
// source-wide project-enumeration failure aborts the tick, and so does a
// failure fetching any single project's parameters while the graph is
// built. Failures while rendering or applying one project are logged and
// do not stop the remaining projects (spec.md §4.6 step 5).
func (e *Engine) Apply(ctx context.Context) error {
	specs, err := e.Gateway.GetProjectMappings(ctx)
	if err != nil {
		klog.Errorf("reconcile: listing ProjectMapping specs: %v", err)
		return nil
	}

	cfg, err := config.Load(specs)
	if err != nil {
		klog.Errorf("reconcile: loading config: %v", err)
		return nil
	}

	if e.Gateway.DryRun() {
		klog.Infof("reconcile: dry-run enabled, this tick will not create or update any resource")
	}

	names, err := e.Source.ProjectNames(ctx)
	if err != nil {
		return err
	}

	g, err := graph.Build(ctx, e.Source, !cfg.Root().SkipSecrets)
	if err != nil {
		return err
	}

	for _, name := range names {
		if err := e.applyProject(ctx, cfg, g, name); err != nil {
			klog.Errorf("reconcile: project %q: %v", name, err)
		}
	}

	return nil
}

func (e *Engine) applyProject(ctx context.Context, cfg *config.Config, g *graph.Graph, name string) error {
	spec := cfg.SpecFor(name)

	if !projectSelected(spec, name) {
		return nil
	}

	if spec.Skip {
		return nil
	}

	values, origins := g.Flatten(name, spec.IncludedProjects)

	nonSecret := map[string]string{}
	secret := map[string]string{}

	for key, p := range values {
		if p.Secret {
			secret[key] = base64.StdEncoding.EncodeToString([]byte(p.Value))
		} else {
			nonSecret[key] = p.Value
		}
	}

	ctxCommon := template.Context{
		Project:          name,
		ProjectHeirarchy: g.Hierarchy(name, spec.IncludedProjects),
		ParameterOrigins: origins,
		Debug:            klog.V(1).Enabled(),
	}

	if spec.ConfigMapTemplate != "" {
		cmCtx := ctxCommon
		cmCtx.Parameters = nonSecret

		rendered, err := e.Renderer.Render(spec.ConfigMapTemplate, cmCtx)
		if err != nil {
			return err
		}

		if rendered != "" {
			rendered, err = e.overrideResourceIdentity(rendered, spec, cmCtx)
			if err != nil {
				return err
			}

			if err := gateway.Apply(ctx, e.Gateway, rendered, spec.Patches...); err != nil {
				return err
			}
		}
	}

	if !spec.SkipSecrets && spec.SecretTemplate != "" {
		secCtx := ctxCommon
		secCtx.Parameters = secret

		rendered, err := e.Renderer.Render(spec.SecretTemplate, secCtx)
		if err != nil {
			return err
		}

		if rendered != "" {
			rendered, err = e.overrideResourceIdentity(rendered, spec, secCtx)
			if err != nil {
				return err
			}

			if err := gateway.Apply(ctx, e.Gateway, rendered, spec.Patches...); err != nil {
				return err
			}
		}
	}

	return nil
}

// overrideResourceIdentity applies spec.md §3's resourceName/
// resourceNamespace contract: both are themselves rendered as templates
// against ctx, then substituted into the rendered manifest's
// metadata.name/metadata.namespace. A manifest's own metadata still wins
// for whichever of the two fields isn't set.
func (e *Engine) overrideResourceIdentity(manifest string, spec v1alpha1.ProjectMappingSpec, ctx template.Context) (string, error) {
	if spec.ResourceName == "" && spec.ResourceNamespace == "" {
		return manifest, nil
	}

	obj := &unstructured.Unstructured{}

	j, err := yaml.YAMLToJSON([]byte(manifest))
	if err != nil {
		return "", fmt.Errorf("reconcile: parsing rendered manifest: %w", err)
	}

	if err := obj.UnmarshalJSON(j); err != nil {
		return "", fmt.Errorf("reconcile: parsing rendered manifest: %w", err)
	}

	if spec.ResourceName != "" {
		name, err := e.Renderer.Render(spec.ResourceName, ctx)
		if err != nil {
			return "", err
		}

		obj.SetName(name)
	}

	if spec.ResourceNamespace != "" {
		namespace, err := e.Renderer.Render(spec.ResourceNamespace, ctx)
		if err != nil {
			return "", err
		}

		obj.SetNamespace(namespace)
	}

	out, err := yaml.Marshal(obj.Object)
	if err != nil {
		return "", fmt.Errorf("reconcile: re-marshaling manifest: %w", err)
	}

	return string(out), nil
}

// projectSelected reports whether a project is in scope: its effective
// spec's selector matches it, OR that same effective spec's
// includedProjects names it. Only the project's own effective spec is
// consulted; being named in another project's includedProjects does not
// bring a project into scope.
func projectSelected(spec v1alpha1.ProjectMappingSpec, name string) bool {
	if config.MatchesSelector(spec.ProjectSelector, name) {
		return true
	}

	for _, included := range spec.IncludedProjects {
		if included == name {
			return true
		}
	}

	return false
}
