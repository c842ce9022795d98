//go:build !ignore_autogenerated

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

// Code generated by hand in the style of controller-gen's object deepcopy. DO NOT EDIT casually.

package v1alpha1

import (
	runtime "k8s.io/apimachinery/pkg/runtime"
)

// DeepCopyInto copies the receiver into out.
func (in *ProjectMappingSpec) DeepCopyInto(out *ProjectMappingSpec) {
	*out = *in

	if in.IncludedProjects != nil {
		out.IncludedProjects = make([]string, len(in.IncludedProjects))
		copy(out.IncludedProjects, in.IncludedProjects)
	}

	if in.Patches != nil {
		out.Patches = make([]string, len(in.Patches))
		copy(out.Patches, in.Patches)
	}
}

// DeepCopy returns a deep copy of the receiver.
func (in *ProjectMappingSpec) DeepCopy() *ProjectMappingSpec {
	if in == nil {
		return nil
	}

	out := new(ProjectMappingSpec)
	in.DeepCopyInto(out)

	return out
}

// DeepCopyInto copies the receiver into out.
func (in *ProjectMapping) DeepCopyInto(out *ProjectMapping) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
}

// DeepCopy returns a deep copy of the receiver.
func (in *ProjectMapping) DeepCopy() *ProjectMapping {
	if in == nil {
		return nil
	}

	out := new(ProjectMapping)
	in.DeepCopyInto(out)

	return out
}

// DeepCopyObject implements runtime.Object.
func (in *ProjectMapping) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}

	return nil
}

// DeepCopyInto copies the receiver into out.
func (in *ProjectMappingList) DeepCopyInto(out *ProjectMappingList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)

	if in.Items != nil {
		out.Items = make([]ProjectMapping, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

// DeepCopy returns a deep copy of the receiver.
func (in *ProjectMappingList) DeepCopy() *ProjectMappingList {
	if in == nil {
		return nil
	}

	out := new(ProjectMappingList)
	in.DeepCopyInto(out)

	return out
}

// DeepCopyObject implements runtime.Object.
func (in *ProjectMappingList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}

	return nil
}
