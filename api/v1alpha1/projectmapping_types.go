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

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Scope identifies whether a ProjectMappingSpec is the single root spec or
// one of the ordered override specs layered on top of it.
type Scope string

const (
	// ScopeRoot marks the single base spec every Config must carry exactly one of.
	ScopeRoot Scope = "root"
	// ScopeOverride marks a spec that shallow-merges onto the root for projects
	// matching its ProjectSelector.
	ScopeOverride Scope = "override"
)

// ProjectMappingSpec declares how one or more CloudTruth projects are
// selected, composed, and rendered into cluster resources. See DESIGN.md
// for the shallow-merge composition rules applied across a ProjectMapping's
// declared order.
type ProjectMappingSpec struct {
	// Scope is "root" (exactly one per Config) or "override".
	// +kubebuilder:validation:Enum=root;override
	Scope Scope `json:"scope"`

	// ProjectSelector is a regular expression matched against project names.
	// An empty selector matches every project.
	// +optional
	ProjectSelector string `json:"projectSelector,omitempty"`

	// Skip excludes matching projects from output entirely.
	// +optional
	Skip bool `json:"skip,omitempty"`

	// SkipSecrets omits secret parameters and suppresses Secret generation
	// for matching projects.
	// +optional
	SkipSecrets bool `json:"skipSecrets,omitempty"`

	// IncludedProjects names additional projects whose parameters are
	// inherited, in order, as if they were parents of the matched project.
	// +optional
	IncludedProjects []string `json:"includedProjects,omitempty"`

	// ConfigMapTemplate renders the ConfigMap manifest. Empty means no
	// ConfigMap is produced for matching projects.
	// +optional
	ConfigMapTemplate string `json:"configMapTemplate,omitempty"`

	// SecretTemplate renders the Secret manifest. Empty means no Secret is
	// produced for matching projects.
	// +optional
	SecretTemplate string `json:"secretTemplate,omitempty"`

	// ResourceName overrides the default (project name) used to name
	// generated resources. Rendered as a template.
	// +optional
	ResourceName string `json:"resourceName,omitempty"`

	// ResourceNamespace overrides the gateway's default namespace for
	// generated resources. Rendered as a template.
	// +optional
	ResourceNamespace string `json:"resourceNamespace,omitempty"`

	// Patches lists RFC 6902 JSON Patch or RFC 7386 JSON merge patch
	// documents (auto-detected) applied to a matching project's rendered
	// ConfigMap/Secret manifests before the drift-aware apply. Each
	// document applies to both manifests; scope it with kind/name checks
	// inside the patch itself if only one should be touched.
	// +optional
	Patches []string `json:"patches,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:resource:path=projectmappings,scope=Namespaced,shortName=ptm
// +kubebuilder:printcolumn:name="Scope",type="string",JSONPath=".spec.scope"
// +kubebuilder:printcolumn:name="Selector",type="string",JSONPath=".spec.projectSelector"
// +kubebuilder:printcolumn:name="Skip",type="boolean",JSONPath=".spec.skip"

// ProjectMapping is the Schema for the projectmappings API. Each document
// carries one ProjectMappingSpec; the full set of ProjectMapping objects in
// the controller's namespace composes the effective Config (spec.md §3/§4.4).
type ProjectMapping struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec ProjectMappingSpec `json:"spec,omitempty"`
}

// +kubebuilder:object:root=true

// ProjectMappingList contains a list of ProjectMapping.
type ProjectMappingList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []ProjectMapping `json:"items"`
}
