/*
SPDX-FileCopyrightText: 2026 urumi.ai and store-operator contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package v1 contains the Store custom resource of the platform.urumi.ai group.
// +kubebuilder:object:generate=true
// +groupName=platform.urumi.ai
package v1

import (
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/scheme"
)

var (
	// GroupVersion is group version used to register these objects.
	GroupVersion = schema.GroupVersion{Group: "platform.urumi.ai", Version: "v1"}

	// SchemeBuilder is used to add go types to the GroupVersionKind scheme.
	SchemeBuilder = &scheme.Builder{GroupVersion: GroupVersion}

	// AddToScheme adds the types in this group-version to the given scheme.
	AddToScheme = SchemeBuilder.AddToScheme
)
