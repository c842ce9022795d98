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
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// recordingGateway counts ApplyResource calls so tests can assert kubeapply
// skipped (or didn't skip) an apply without inspecting fake-client internals.
type recordingGateway struct {
	*K8sGateway
	applyCalls int
}

func (r *recordingGateway) ApplyResource(ctx context.Context, obj *unstructured.Unstructured) error {
	r.applyCalls++
	return r.K8sGateway.ApplyResource(ctx, obj)
}

const configMapManifest = `
apiVersion: v1
kind: ConfigMap
metadata:
  name: app-config
  namespace: default
data:
  key: value
`

func TestKubeapplyApplyCreatesWhenAbsent(t *testing.T) {
	gw := &recordingGateway{K8sGateway: newTestGateway(t, "default", false)}

	if err := Apply(context.Background(), gw, configMapManifest); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if gw.applyCalls != 1 {
		t.Fatalf("applyCalls = %d, want 1 (create)", gw.applyCalls)
	}

	existing, err := gw.GetResource(context.Background(), "ConfigMap", "app-config", "default")
	if err != nil {
		t.Fatalf("GetResource: %v", err)
	}

	if !gw.UnderManagement(existing) {
		t.Error("created resource should carry the managed-by label")
	}
}

func TestKubeapplyApplySkipsWhenIdentical(t *testing.T) {
	gw := &recordingGateway{K8sGateway: newTestGateway(t, "default", false)}

	if err := Apply(context.Background(), gw, configMapManifest); err != nil {
		t.Fatalf("first Apply: %v", err)
	}

	gw.applyCalls = 0

	if err := Apply(context.Background(), gw, configMapManifest); err != nil {
		t.Fatalf("second Apply: %v", err)
	}

	if gw.applyCalls != 0 {
		t.Errorf("applyCalls = %d, want 0 (identical resource should be skipped)", gw.applyCalls)
	}
}

func TestKubeapplyApplyUpdatesWhenDifferent(t *testing.T) {
	gw := &recordingGateway{K8sGateway: newTestGateway(t, "default", false)}

	if err := Apply(context.Background(), gw, configMapManifest); err != nil {
		t.Fatalf("first Apply: %v", err)
	}

	gw.applyCalls = 0

	changed := `
apiVersion: v1
kind: ConfigMap
metadata:
  name: app-config
  namespace: default
data:
  key: different-value
`

	if err := Apply(context.Background(), gw, changed); err != nil {
		t.Fatalf("second Apply: %v", err)
	}

	if gw.applyCalls != 1 {
		t.Errorf("applyCalls = %d, want 1 (changed resource should trigger an update)", gw.applyCalls)
	}
}

func TestKubeapplyApplySkipsUnmanagedResource(t *testing.T) {
	underlying := newTestGateway(t, "default", false, &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "app-config", Namespace: "default"},
		Data:       map[string]string{"key": "preexisting"},
	})

	gw := &recordingGateway{K8sGateway: underlying}

	if err := Apply(context.Background(), gw, configMapManifest); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if gw.applyCalls != 0 {
		t.Errorf("applyCalls = %d, want 0 (resource predates kubetruth management)", gw.applyCalls)
	}
}

func TestKubeapplyApplyWithPatchMutatesBeforeApply(t *testing.T) {
	gw := &recordingGateway{K8sGateway: newTestGateway(t, "default", false)}

	patchDoc := `
apiVersion: v1
kind: ConfigMap
metadata:
  labels:
    patched: "true"
`

	if err := Apply(context.Background(), gw, configMapManifest, patchDoc); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	existing, err := gw.GetResource(context.Background(), "ConfigMap", "app-config", "default")
	if err != nil {
		t.Fatalf("GetResource: %v", err)
	}

	if existing.GetLabels()["patched"] != "true" {
		t.Errorf("labels = %v, want patched=true applied before create", existing.GetLabels())
	}
}

func TestKubeapplyApplyRejectsManifestWithoutKind(t *testing.T) {
	gw := &recordingGateway{K8sGateway: newTestGateway(t, "default", false)}

	if err := Apply(context.Background(), gw, "apiVersion: v1\nmetadata:\n  name: x\n"); err == nil {
		t.Error("Apply: expected error for manifest without kind, got nil")
	}
}
