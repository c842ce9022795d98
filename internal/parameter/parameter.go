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

// Package parameter defines the data model and external contract for the
// configuration service this controller projects into the cluster
// ("CloudTruth" in kubetruth's deployments, treated here as an opaque
// ParameterSource). See spec.md §3/§6.
package parameter

import "context"

// Parameter is a single key/value pair from a project, immutable once
// produced by a ParameterSource.
type Parameter struct {
	Key    string
	Value  string
	Secret bool
}

// Project is one logical parameter namespace together with an optional
// parent reference. Built fresh on every reconciliation tick.
type Project struct {
	Name       string
	Parameters []Parameter
	Parent     string // empty means no parent
}

// Source enumerates project names and, per project, the parameters and
// optional parent. Implementations are eventually consistent: every tick
// re-queries from scratch, per spec.md §6. The real CloudTruth REST client
// is an external collaborator outside this module's scope; only the
// contract and a deterministic in-memory test double live here.
type Source interface {
	// ProjectNames lists every project visible to this source.
	ProjectNames(ctx context.Context) ([]string, error)

	// Project fetches one project's parameters and parent reference. When
	// wantSecrets is false, parameters with Secret=true are omitted.
	Project(ctx context.Context, name string, wantSecrets bool) (Project, error)
}
