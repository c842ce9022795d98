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

// Package gateway is the thin abstraction over the Kubernetes API this
// controller needs: fetch, apply (create-or-update), namespace-ensure, and
// long-poll watch for ProjectMapping CRD changes (spec.md §4.2).
package gateway

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/rest"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/mikolajroszak/kubetruth/api/v1alpha1"
)

// ManagedByLabel is the ownership annotation identifying resources this
// controller manages (spec.md §5, §6). Resources that carry a different
// value, or none, are left alone by kube_apply's drift protocol.
const (
	ManagedByLabel = "app.kubernetes.io/managed-by"
	ManagedByValue = "kubetruth"
)

// Gateway is the ClusterGateway contract from spec.md §4.2. GetResource
// reports absence via an error satisfying apierrors.IsNotFound, distinctly
// from transport errors (spec.md §4.2).
type Gateway interface {
	// GetResource fetches a single resource, returning an error satisfying
	// apierrors.IsNotFound(err) when absent.
	GetResource(ctx context.Context, kind, name, namespace string) (*unstructured.Unstructured, error)

	// ApplyResource is an idempotent create-or-update. The ManagedByLabel
	// is set on every call, per spec.md §5's ownership discipline.
	ApplyResource(ctx context.Context, obj *unstructured.Unstructured) error

	// EnsureNamespace creates namespace ns if absent; idempotent.
	EnsureNamespace(ctx context.Context, ns string) error

	// UnderManagement reports whether obj carries this controller's
	// ownership label with the expected value.
	UnderManagement(obj *unstructured.Unstructured) bool

	// WatchProjectMappings opens a fresh watch stream over ProjectMapping
	// CRDs in this gateway's namespace. Callers must call Stop() on the
	// returned watch.Interface exactly once.
	WatchProjectMappings(ctx context.Context) (watch.Interface, error)

	// GetProjectMappings lists every ProjectMapping spec currently present.
	GetProjectMappings(ctx context.Context) ([]v1alpha1.ProjectMappingSpec, error)

	// Namespace is the default namespace for resources lacking an explicit one.
	Namespace() string

	// DryRun reports whether mutating calls are suppressed (spec.md §6).
	DryRun() bool
}

// K8sGateway is the real Gateway implementation, backed by a
// controller-runtime client. It favors client.WithWatch over building a
// separate client-go informer: the teacher's own dependency
// (sigs.k8s.io/controller-runtime) already gives us a typed List + Watch
// surface, so no extra client stack is needed.
type K8sGateway struct {
	client    client.WithWatch
	namespace string
	dryRun    bool
}

// New builds a K8sGateway from a REST config and scheme. The scheme must
// have v1alpha1 (ProjectMapping) and corev1 registered.
func New(cfg *rest.Config, scheme *runtime.Scheme, namespace string, dryRun bool) (*K8sGateway, error) {
	c, err := client.NewWithWatch(cfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("gateway: building client: %w", err)
	}

	return &K8sGateway{client: c, namespace: namespace, dryRun: dryRun}, nil
}

func (g *K8sGateway) Namespace() string { return g.namespace }
func (g *K8sGateway) DryRun() bool      { return g.dryRun }

func (g *K8sGateway) GetResource(ctx context.Context, kind, name, namespace string) (*unstructured.Unstructured, error) {
	obj := &unstructured.Unstructured{}
	obj.SetAPIVersion(apiVersionForKind(kind))
	obj.SetKind(kind)

	err := g.client.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, obj)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, err
		}

		return nil, fmt.Errorf("gateway: getting %s/%s in %s: %w", kind, name, namespace, err)
	}

	return obj, nil
}

func (g *K8sGateway) ApplyResource(ctx context.Context, obj *unstructured.Unstructured) error {
	labels := obj.GetLabels()
	if labels == nil {
		labels = map[string]string{}
	}

	labels[ManagedByLabel] = ManagedByValue
	obj.SetLabels(labels)

	if g.dryRun {
		klog.V(1).Infof("dry-run: would apply %s %s/%s", obj.GetKind(), obj.GetNamespace(), obj.GetName())
		return nil
	}

	existing := obj.DeepCopy()

	err := g.client.Get(ctx, client.ObjectKeyFromObject(obj), existing)
	switch {
	case apierrors.IsNotFound(err):
		if err := g.client.Create(ctx, obj); err != nil {
			return fmt.Errorf("gateway: creating %s/%s: %w", obj.GetKind(), obj.GetName(), err)
		}
	case err != nil:
		return fmt.Errorf("gateway: checking %s/%s before apply: %w", obj.GetKind(), obj.GetName(), err)
	default:
		obj.SetResourceVersion(existing.GetResourceVersion())
		if err := g.client.Update(ctx, obj); err != nil {
			return fmt.Errorf("gateway: updating %s/%s: %w", obj.GetKind(), obj.GetName(), err)
		}
	}

	return nil
}

func (g *K8sGateway) EnsureNamespace(ctx context.Context, ns string) error {
	if g.dryRun {
		klog.V(1).Infof("dry-run: would ensure namespace %s", ns)
		return nil
	}

	namespace := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: ns}}

	if err := g.client.Create(ctx, namespace); err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("gateway: ensuring namespace %s: %w", ns, err)
	}

	return nil
}

func (g *K8sGateway) UnderManagement(obj *unstructured.Unstructured) bool {
	return obj.GetLabels()[ManagedByLabel] == ManagedByValue
}

func (g *K8sGateway) WatchProjectMappings(ctx context.Context) (watch.Interface, error) {
	list := &v1alpha1.ProjectMappingList{}

	w, err := g.client.Watch(ctx, list, client.InNamespace(g.namespace))
	if err != nil {
		return nil, fmt.Errorf("gateway: watching project mappings: %w", err)
	}

	return w, nil
}

func (g *K8sGateway) GetProjectMappings(ctx context.Context) ([]v1alpha1.ProjectMappingSpec, error) {
	list := &v1alpha1.ProjectMappingList{}
	if err := g.client.List(ctx, list, client.InNamespace(g.namespace)); err != nil {
		return nil, fmt.Errorf("gateway: listing project mappings: %w", err)
	}

	specs := make([]v1alpha1.ProjectMappingSpec, 0, len(list.Items))
	for _, item := range list.Items {
		specs = append(specs, item.Spec)
	}

	return specs, nil
}

// apiVersionForKind covers the handful of core kinds kube_apply manifests
// are expected to render (ConfigMap, Secret, Namespace). It is only
// consulted by GetResource, which receives a kind but no apiVersion, and it
// returns "v1" for every kind, so a non-core kind is looked up as v1.
func apiVersionForKind(kind string) string {
	switch kind {
	case "ConfigMap", "Secret", "Namespace":
		return "v1"
	default:
		return "v1"
	}
}
