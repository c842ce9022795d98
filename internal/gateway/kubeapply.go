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

package gateway

import (
	"context"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/go-cmp/cmp"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"

	"github.com/mikolajroszak/kubetruth/internal/patch"
)

// serverPopulatedFieldsPatch is a JSON merge patch (RFC 7386) that nulls
// out every field the API server populates on its own, so the "identical"
// comparison in Apply never flags drift on fields kube_apply never wrote
// (spec.md §4.3). Grounded on the teacher's internal/patch package, which
// uses the same evanphx/json-patch merge-patch mechanics to normalize
// documents before comparing/patching them.
const serverPopulatedFieldsPatch = `{
	"metadata": {"resourceVersion": null, "uid": null, "creationTimestamp": null, "generation": null, "managedFields": null, "selfLink": null},
	"status": null
}`

// Apply is the drift-aware apply protocol from spec.md §4.3. manifest is
// rendered template output; it is parsed, matched against the cluster by
// kind/name/namespace, and created, updated, or left alone depending on
// whether an identical or differing resource already exists under this
// controller's management. patches, if non-empty, are run over the parsed
// manifest first (spec.md §12 supplement: post-render patching).
func Apply(ctx context.Context, gw Gateway, manifest string, patches ...string) error {
	obj, err := parseManifest(manifest)
	if err != nil {
		return fmt.Errorf("kubeapply: %w", err)
	}

	if len(patches) > 0 {
		patched, err := patch.Apply([]unstructured.Unstructured{*obj}, directives(patches))
		if err != nil {
			return fmt.Errorf("kubeapply: applying patches: %w", err)
		}

		obj = &patched[0]
	}

	labels := obj.GetLabels()
	if labels == nil {
		labels = map[string]string{}
	}

	labels[ManagedByLabel] = ManagedByValue
	obj.SetLabels(labels)

	ns := obj.GetNamespace()
	if ns == "" {
		ns = gw.Namespace()
		obj.SetNamespace(ns)
	}

	if err := gw.EnsureNamespace(ctx, ns); err != nil {
		return fmt.Errorf("kubeapply: %w", err)
	}

	existing, err := gw.GetResource(ctx, obj.GetKind(), obj.GetName(), ns)

	switch {
	case apierrors.IsNotFound(err):
		klog.Infof("Creating %s %s/%s", obj.GetKind(), ns, obj.GetName())
		return gw.ApplyResource(ctx, obj)

	case err != nil:
		return fmt.Errorf("kubeapply: fetching existing %s %s/%s: %w", obj.GetKind(), ns, obj.GetName(), err)

	case !gw.UnderManagement(existing):
		klog.Infof("Skipping %s %s/%s (not under kubetruth management)", obj.GetKind(), ns, obj.GetName())
		return nil
	}

	identical, err := identical(existing, obj)
	if err != nil {
		return fmt.Errorf("kubeapply: comparing %s %s/%s: %w", obj.GetKind(), ns, obj.GetName(), err)
	}

	if identical {
		klog.Infof("Skipping identical %s %s/%s", obj.GetKind(), ns, obj.GetName())
		return nil
	}

	klog.Infof("Updating %s %s/%s", obj.GetKind(), ns, obj.GetName())

	return gw.ApplyResource(ctx, obj)
}

// directives wraps each raw patch document untargeted: every patch applies
// to the single manifest Apply is rendering for, so no Target is needed.
func directives(patches []string) []patch.Directive {
	out := make([]patch.Directive, len(patches))
	for i, p := range patches {
		out[i] = patch.Directive{Patch: p}
	}

	return out
}

func parseManifest(manifest string) (*unstructured.Unstructured, error) {
	j, err := yaml.YAMLToJSON([]byte(manifest))
	if err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	obj := &unstructured.Unstructured{}
	if err := obj.UnmarshalJSON(j); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	if obj.GetKind() == "" {
		return nil, fmt.Errorf("manifest has no kind")
	}

	if obj.GetName() == "" {
		return nil, fmt.Errorf("manifest has no metadata.name")
	}

	return obj, nil
}

// identical compares the intended fields (metadata.labels,
// metadata.annotations, data/stringData) of existing against candidate,
// ignoring server-populated fields, per spec.md §4.3.
func identical(existing, candidate *unstructured.Unstructured) (bool, error) {
	existingJSON, err := existing.MarshalJSON()
	if err != nil {
		return false, fmt.Errorf("marshaling existing object: %w", err)
	}

	normalized, err := jsonpatch.MergePatch(existingJSON, []byte(serverPopulatedFieldsPatch))
	if err != nil {
		return false, fmt.Errorf("stripping server-populated fields: %w", err)
	}

	normalizedObj := &unstructured.Unstructured{}
	if err := normalizedObj.UnmarshalJSON(normalized); err != nil {
		return false, fmt.Errorf("re-parsing normalized object: %w", err)
	}

	left := comparableView(normalizedObj)
	right := comparableView(candidate)

	return cmp.Equal(left, right), nil
}

type comparable struct {
	Labels      map[string]string
	Annotations map[string]string
	Data        map[string]any
	StringData  map[string]any
}

func comparableView(obj *unstructured.Unstructured) comparable {
	c := comparable{
		Labels:      obj.GetLabels(),
		Annotations: obj.GetAnnotations(),
	}

	if data, ok, _ := unstructured.NestedMap(obj.Object, "data"); ok {
		c.Data = data
	}

	if stringData, ok, _ := unstructured.NestedMap(obj.Object, "stringData"); ok {
		c.StringData = stringData
	}

	return c
}
