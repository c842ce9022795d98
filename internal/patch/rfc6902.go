/*
Copyright 2025 The Kubernetes Authors.

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

package patch

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// RFC6902 is a single operation from an RFC 6902 JSON Patch document
// (https://www.rfc-editor.org/rfc/rfc6902) targeting a project's rendered
// ConfigMap or Secret manifest, e.g.
// {"op":"replace","path":"/data/key","value":"v"}.
type RFC6902 struct {
	Op    string                `json:"op"`
	Path  string                `json:"path"`
	Value *apiextensionsv1.JSON `json:"value"`
	// From is an optional field used in "move" and "copy" operations.
	From string `json:"from,omitempty"`
}

// RFC6902Patch is an ordered list of operations applied together as one
// patch against a single object.
type RFC6902Patch []*RFC6902

// NewRFC6902Patch returns ops as a Patch, or nil if ops is empty.
// inferAndApplyPatchType only calls it with a non-empty list; an empty
// list there falls through to the merge-patch path instead.
func NewRFC6902Patch(ops []*RFC6902) Patch {
	if len(ops) == 0 {
		return nil
	}

	return RFC6902Patch(ops)
}

func (p RFC6902Patch) Apply(obj *unstructured.Unstructured) error {
	objJSON, err := obj.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshaling %s %s/%s to JSON: %w", obj.GetKind(), obj.GetNamespace(), obj.GetName(), err)
	}

	opsJSON, err := json.Marshal([]*RFC6902(p))
	if err != nil {
		return fmt.Errorf("marshaling RFC 6902 ops: %w", err)
	}

	decoded, err := jsonpatch.DecodePatch(opsJSON)
	if err != nil {
		return fmt.Errorf("decoding RFC 6902 patch: %w", err)
	}

	patched, err := decoded.Apply(objJSON)
	if err != nil {
		return fmt.Errorf("applying RFC 6902 patch to %s %s/%s: %w", obj.GetKind(), obj.GetNamespace(), obj.GetName(), err)
	}

	if err := obj.UnmarshalJSON(patched); err != nil {
		return fmt.Errorf("unmarshaling patched %s %s/%s: %w", obj.GetKind(), obj.GetNamespace(), obj.GetName(), err)
	}

	return nil
}
