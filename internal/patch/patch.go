/*
Copyright 2023 The Kubernetes Authors.

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

// Package patch applies a list of operator-supplied patches (RFC 6902 JSON
// Patch or RFC 7386 JSON merge patch, auto-detected) to rendered resources,
// each optionally scoped to a Target selector. gateway.Apply runs a
// ProjectMapping's Patches through this before the drift-aware apply, so a
// template that can't express some field tweak doesn't have to.
package patch

import (
	"encoding/json"
	"fmt"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"sigs.k8s.io/yaml"
)

// Patch defines an interface for applying patches to unstructured objects.
type Patch interface {
	Apply(obj *unstructured.Unstructured) error
}

// Directive is one patch document plus the Target it's scoped to.
type Directive struct {
	Target *Target
	Patch  string
}

// Apply runs every directive, in order, against every object it targets.
func Apply(objs []unstructured.Unstructured, directives []Directive) ([]unstructured.Unstructured, error) {
	result := make([]unstructured.Unstructured, len(objs))
	copy(result, objs)

	for i, d := range directives {
		patchJSON, err := yaml.YAMLToJSON([]byte(d.Patch))
		if err != nil {
			return nil, fmt.Errorf("patch %d: failed to convert YAML to JSON: %w", i, err)
		}

		var ls labels.Selector
		if d.Target != nil && d.Target.LabelSelector != "" {
			ls, err = labels.Parse(d.Target.LabelSelector)
			if err != nil {
				return nil, fmt.Errorf("patch %d: failed to parse label selector %q: %w", i, d.Target.LabelSelector, err)
			}
		}

		for j := range result {
			obj := &result[j]

			if !matchSelector(obj, d.Target, ls) {
				continue
			}

			if err := inferAndApplyPatchType(obj, patchJSON); err != nil {
				return nil, fmt.Errorf("patch %d: failed to apply patch to %s/%s: %w", i, obj.GetNamespace(), obj.GetName(), err)
			}
		}
	}

	return result, nil
}

func inferAndApplyPatchType(obj *unstructured.Unstructured, patchByte []byte) error {
	var rfc6902Patches []*RFC6902
	if err := json.Unmarshal(patchByte, &rfc6902Patches); err == nil && len(rfc6902Patches) > 0 {
		return NewRFC6902Patch(rfc6902Patches).Apply(obj)
	}

	var strategicMerge apiextensionsv1.JSON
	if err := json.Unmarshal(patchByte, &strategicMerge); err == nil {
		patch := NewStrategicMergePatch(&strategicMerge)
		if patch == nil {
			return fmt.Errorf("strategic merge patch is nil")
		}

		return patch.Apply(obj)
	}

	return fmt.Errorf("unable to infer patch type")
}
