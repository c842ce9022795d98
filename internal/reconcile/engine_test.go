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

package reconcile

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/mikolajroszak/kubetruth/api/v1alpha1"
	"github.com/mikolajroszak/kubetruth/internal/gateway"
	"github.com/mikolajroszak/kubetruth/internal/parameter"
	"github.com/mikolajroszak/kubetruth/internal/template"
)

// memGateway is an in-memory gateway.Gateway double: it reproduces
// K8sGateway's create/update/skip-when-managed-by-someone-else behavior
// without a real API server, so Engine.Apply's per-project logic can be
// exercised directly against gateway.Apply's drift protocol.
type memGateway struct {
	namespace  string
	specs      []v1alpha1.ProjectMappingSpec
	store      map[string]*unstructured.Unstructured
	applyCalls int
}

func newMemGateway(namespace string, specs ...v1alpha1.ProjectMappingSpec) *memGateway {
	return &memGateway{namespace: namespace, specs: specs, store: map[string]*unstructured.Unstructured{}}
}

func resourceKey(kind, namespace, name string) string {
	return strings.Join([]string{kind, namespace, name}, "/")
}

func (g *memGateway) put(obj *unstructured.Unstructured) {
	g.store[resourceKey(obj.GetKind(), obj.GetNamespace(), obj.GetName())] = obj
}

func (g *memGateway) GetResource(_ context.Context, kind, name, namespace string) (*unstructured.Unstructured, error) {
	obj, ok := g.store[resourceKey(kind, namespace, name)]
	if !ok {
		return nil, apierrors.NewNotFound(schema.GroupResource{Resource: strings.ToLower(kind)}, name)
	}

	return obj.DeepCopy(), nil
}

func (g *memGateway) ApplyResource(_ context.Context, obj *unstructured.Unstructured) error {
	g.applyCalls++

	labels := obj.GetLabels()
	if labels == nil {
		labels = map[string]string{}
	}

	labels[gateway.ManagedByLabel] = gateway.ManagedByValue
	obj.SetLabels(labels)

	g.put(obj.DeepCopy())

	return nil
}

func (g *memGateway) EnsureNamespace(context.Context, string) error { return nil }

func (g *memGateway) UnderManagement(obj *unstructured.Unstructured) bool {
	return obj.GetLabels()[gateway.ManagedByLabel] == gateway.ManagedByValue
}

func (g *memGateway) WatchProjectMappings(context.Context) (watch.Interface, error) {
	return nil, fmt.Errorf("memGateway: watch not supported")
}

func (g *memGateway) GetProjectMappings(context.Context) ([]v1alpha1.ProjectMappingSpec, error) {
	return g.specs, nil
}

func (g *memGateway) Namespace() string { return g.namespace }
func (g *memGateway) DryRun() bool      { return false }

const configMapTemplate = `apiVersion: v1
kind: ConfigMap
metadata:
  name: {{.project}}-config
  namespace: default
data:
{{range $k, $v := .parameters}}  {{$k}}: {{$v | printf "%q"}}
{{end}}
`

const secretTemplate = `apiVersion: v1
kind: Secret
metadata:
  name: {{.project}}-secret
  namespace: default
data:
{{range $k, $v := .parameters}}  {{$k}}: {{$v | printf "%q"}}
{{end}}
`

func TestEngineApplyCreatesConfigMapForProject(t *testing.T) {
	source := parameter.NewMemorySource().AddProject(parameter.Project{
		Name:       "app",
		Parameters: []parameter.Parameter{{Key: "foo", Value: "bar"}},
	})

	gw := newMemGateway("default", v1alpha1.ProjectMappingSpec{Scope: v1alpha1.ScopeRoot, ConfigMapTemplate: configMapTemplate})
	engine := New(gw, source, template.NewTextRenderer())

	if err := engine.Apply(context.Background()); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if gw.applyCalls != 1 {
		t.Fatalf("applyCalls = %d, want 1", gw.applyCalls)
	}

	cm, err := gw.GetResource(context.Background(), "ConfigMap", "app-config", "default")
	if err != nil {
		t.Fatalf("GetResource: %v", err)
	}

	if v, _, _ := unstructured.NestedString(cm.Object, "data", "foo"); v != "bar" {
		t.Errorf("data.foo = %q, want bar", v)
	}
}

func TestEngineApplySkipsSecondIdenticalPass(t *testing.T) {
	source := parameter.NewMemorySource().AddProject(parameter.Project{
		Name:       "app",
		Parameters: []parameter.Parameter{{Key: "foo", Value: "bar"}},
	})

	gw := newMemGateway("default", v1alpha1.ProjectMappingSpec{Scope: v1alpha1.ScopeRoot, ConfigMapTemplate: configMapTemplate})
	engine := New(gw, source, template.NewTextRenderer())

	if err := engine.Apply(context.Background()); err != nil {
		t.Fatalf("first Apply: %v", err)
	}

	gw.applyCalls = 0

	if err := engine.Apply(context.Background()); err != nil {
		t.Fatalf("second Apply: %v", err)
	}

	if gw.applyCalls != 0 {
		t.Errorf("applyCalls = %d, want 0 (identical resource should be skipped)", gw.applyCalls)
	}
}

func TestEngineApplyRespectsPreexistingUnmanagedResource(t *testing.T) {
	source := parameter.NewMemorySource().AddProject(parameter.Project{
		Name:       "app",
		Parameters: []parameter.Parameter{{Key: "foo", Value: "bar"}},
	})

	gw := newMemGateway("default", v1alpha1.ProjectMappingSpec{Scope: v1alpha1.ScopeRoot, ConfigMapTemplate: configMapTemplate})

	foreign := &unstructured.Unstructured{}
	foreign.SetAPIVersion("v1")
	foreign.SetKind("ConfigMap")
	foreign.SetName("app-config")
	foreign.SetNamespace("default")
	unstructured.SetNestedField(foreign.Object, map[string]interface{}{"foo": "untouched"}, "data")
	gw.put(foreign)

	engine := New(gw, source, template.NewTextRenderer())

	if err := engine.Apply(context.Background()); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if gw.applyCalls != 0 {
		t.Errorf("applyCalls = %d, want 0 (resource predates kubetruth management)", gw.applyCalls)
	}

	cm, err := gw.GetResource(context.Background(), "ConfigMap", "app-config", "default")
	if err != nil {
		t.Fatalf("GetResource: %v", err)
	}

	if v, _, _ := unstructured.NestedString(cm.Object, "data", "foo"); v != "untouched" {
		t.Errorf("data.foo = %q, want untouched (foreign resource should not be overwritten)", v)
	}
}

func TestEngineApplyIncludedProjectsViaOverride(t *testing.T) {
	source := parameter.NewMemorySource().
		AddProject(parameter.Project{Name: "proj1", Parameters: []parameter.Parameter{{Key: "a", Value: "1"}}}).
		AddProject(parameter.Project{Name: "proj2", Parameters: []parameter.Parameter{{Key: "b", Value: "2"}}})

	gw := newMemGateway("default",
		v1alpha1.ProjectMappingSpec{Scope: v1alpha1.ScopeRoot, ConfigMapTemplate: configMapTemplate},
		v1alpha1.ProjectMappingSpec{Scope: v1alpha1.ScopeOverride, ProjectSelector: "^proj1$", IncludedProjects: []string{"proj2"}},
	)

	engine := New(gw, source, template.NewTextRenderer())

	if err := engine.Apply(context.Background()); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	proj1, err := gw.GetResource(context.Background(), "ConfigMap", "proj1-config", "default")
	if err != nil {
		t.Fatalf("GetResource proj1-config: %v", err)
	}

	if v, _, _ := unstructured.NestedString(proj1.Object, "data", "a"); v != "1" {
		t.Errorf("proj1-config data.a = %q, want 1", v)
	}

	if v, _, _ := unstructured.NestedString(proj1.Object, "data", "b"); v != "2" {
		t.Errorf("proj1-config data.b = %q, want 2 (inherited via includedProjects)", v)
	}

	proj2, err := gw.GetResource(context.Background(), "ConfigMap", "proj2-config", "default")
	if err != nil {
		t.Fatalf("GetResource proj2-config: %v", err)
	}

	if _, ok, _ := unstructured.NestedString(proj2.Object, "data", "a"); ok {
		t.Error("proj2-config should not inherit proj1's parameters back")
	}
}

func TestEngineApplySkipFlagExcludesProject(t *testing.T) {
	source := parameter.NewMemorySource().
		AddProject(parameter.Project{Name: "appA", Parameters: []parameter.Parameter{{Key: "k", Value: "v"}}}).
		AddProject(parameter.Project{Name: "appB", Parameters: []parameter.Parameter{{Key: "k", Value: "v2"}}})

	gw := newMemGateway("default",
		v1alpha1.ProjectMappingSpec{Scope: v1alpha1.ScopeRoot, ConfigMapTemplate: configMapTemplate},
		v1alpha1.ProjectMappingSpec{Scope: v1alpha1.ScopeOverride, ProjectSelector: "^appB$", Skip: true},
	)

	engine := New(gw, source, template.NewTextRenderer())

	if err := engine.Apply(context.Background()); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if gw.applyCalls != 1 {
		t.Fatalf("applyCalls = %d, want 1 (only appA should be rendered)", gw.applyCalls)
	}

	if _, err := gw.GetResource(context.Background(), "ConfigMap", "appA-config", "default"); err != nil {
		t.Errorf("GetResource appA-config: %v", err)
	}

	if _, err := gw.GetResource(context.Background(), "ConfigMap", "appB-config", "default"); !apierrors.IsNotFound(err) {
		t.Errorf("GetResource appB-config error = %v, want IsNotFound (skipped project)", err)
	}
}

func TestEngineApplyBase64EncodesSecretParameters(t *testing.T) {
	source := parameter.NewMemorySource().AddProject(parameter.Project{
		Name:       "svc",
		Parameters: []parameter.Parameter{{Key: "token", Value: "s3cr3t", Secret: true}},
	})

	gw := newMemGateway("default", v1alpha1.ProjectMappingSpec{Scope: v1alpha1.ScopeRoot, SecretTemplate: secretTemplate})
	engine := New(gw, source, template.NewTextRenderer())

	if err := engine.Apply(context.Background()); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	sec, err := gw.GetResource(context.Background(), "Secret", "svc-secret", "default")
	if err != nil {
		t.Fatalf("GetResource: %v", err)
	}

	want := base64.StdEncoding.EncodeToString([]byte("s3cr3t"))

	if v, _, _ := unstructured.NestedString(sec.Object, "data", "token"); v != want {
		t.Errorf("data.token = %q, want base64-encoded %q", v, want)
	}
}

func TestEngineApplyResourceNameOverride(t *testing.T) {
	source := parameter.NewMemorySource().AddProject(parameter.Project{
		Name:       "app",
		Parameters: []parameter.Parameter{{Key: "foo", Value: "bar"}},
	})

	gw := newMemGateway("default", v1alpha1.ProjectMappingSpec{
		Scope:             v1alpha1.ScopeRoot,
		ConfigMapTemplate: configMapTemplate,
		ResourceName:      "{{.project}}-custom-name",
	})
	engine := New(gw, source, template.NewTextRenderer())

	if err := engine.Apply(context.Background()); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, err := gw.GetResource(context.Background(), "ConfigMap", "app-config", "default"); !apierrors.IsNotFound(err) {
		t.Errorf("GetResource app-config error = %v, want IsNotFound (resourceName should have renamed it)", err)
	}

	cm, err := gw.GetResource(context.Background(), "ConfigMap", "app-custom-name", "default")
	if err != nil {
		t.Fatalf("GetResource app-custom-name: %v", err)
	}

	if v, _, _ := unstructured.NestedString(cm.Object, "data", "foo"); v != "bar" {
		t.Errorf("data.foo = %q, want bar", v)
	}
}

func TestEngineApplyResourceNamespaceOverride(t *testing.T) {
	source := parameter.NewMemorySource().AddProject(parameter.Project{
		Name:       "app",
		Parameters: []parameter.Parameter{{Key: "foo", Value: "bar"}},
	})

	gw := newMemGateway("default", v1alpha1.ProjectMappingSpec{
		Scope:             v1alpha1.ScopeRoot,
		ConfigMapTemplate: configMapTemplate,
		ResourceNamespace: "team-a",
	})
	engine := New(gw, source, template.NewTextRenderer())

	if err := engine.Apply(context.Background()); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, err := gw.GetResource(context.Background(), "ConfigMap", "app-config", "default"); !apierrors.IsNotFound(err) {
		t.Errorf("GetResource in default error = %v, want IsNotFound (resourceNamespace should have moved it)", err)
	}

	if _, err := gw.GetResource(context.Background(), "ConfigMap", "app-config", "team-a"); err != nil {
		t.Errorf("GetResource app-config in team-a: %v", err)
	}
}

func TestEngineApplyPatchesModifyRenderedConfigMap(t *testing.T) {
	source := parameter.NewMemorySource().AddProject(parameter.Project{
		Name:       "app",
		Parameters: []parameter.Parameter{{Key: "foo", Value: "bar"}},
	})

	gw := newMemGateway("default", v1alpha1.ProjectMappingSpec{
		Scope:             v1alpha1.ScopeRoot,
		ConfigMapTemplate: configMapTemplate,
		Patches: []string{`{"metadata":{"labels":{"environment":"prod"}}}`},
	})
	engine := New(gw, source, template.NewTextRenderer())

	if err := engine.Apply(context.Background()); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	cm, err := gw.GetResource(context.Background(), "ConfigMap", "app-config", "default")
	if err != nil {
		t.Fatalf("GetResource: %v", err)
	}

	if got := cm.GetLabels()["environment"]; got != "prod" {
		t.Errorf("environment label = %q, want prod (Patches should have merged into the rendered ConfigMap)", got)
	}

	if v, _, _ := unstructured.NestedString(cm.Object, "data", "foo"); v != "bar" {
		t.Errorf("data.foo = %q, want bar (template rendering untouched by the patch)", v)
	}
}
