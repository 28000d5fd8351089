/*
SPDX-FileCopyrightText: 2026 urumi.ai and store-operator contributors
SPDX-License-Identifier: Apache-2.0
*/

package v1

import (
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// Finalizer blocks removal of a Store until teardown completed.
	Finalizer = "stores.platform.urumi.ai/finalizer"

	// AnnotationPrefix is the prefix of all operator-owned progress annotations.
	AnnotationPrefix = "platform.urumi.ai"

	// AnnotationLastDriftCheck records when the drift timer last ran for a Store.
	AnnotationLastDriftCheck = AnnotationPrefix + "/last-drift-check"

	LabelStoreName   = "store.platform.urumi.ai/name"
	LabelStoreEngine = "store.platform.urumi.ai/engine"
	LabelManagedBy   = "app.kubernetes.io/managed-by"

	ManagedByValue = "store-operator"
)

// Engine is the e-commerce engine a Store runs on.
type Engine string

const (
	EngineMedusa      Engine = "medusa"
	EngineWooCommerce Engine = "woocommerce"
)

// Phase is the lifecycle phase of a Store, maintained exclusively by the operator.
type Phase string

const (
	PhasePending      Phase = "Pending"
	PhaseProvisioning Phase = "Provisioning"
	PhaseReady        Phase = "Ready"
	PhaseFailed       Phase = "Failed"
	PhaseComingSoon   Phase = "ComingSoon"
	PhaseDeleting     Phase = "Deleting"
	PhaseDeleted      Phase = "Deleted"
)

type ConditionStatus string

const (
	ConditionTrue    ConditionStatus = "True"
	ConditionFalse   ConditionStatus = "False"
	ConditionUnknown ConditionStatus = "Unknown"
)

type ConditionType string

const (
	ConditionTypeEngineReady     ConditionType = "EngineReady"
	ConditionTypeQuotaCheck      ConditionType = "QuotaCheck"
	ConditionTypeNamespaceReady  ConditionType = "NamespaceReady"
	ConditionTypeHelmInstalled   ConditionType = "HelmInstalled"
	ConditionTypeDatabaseReady   ConditionType = "DatabaseReady"
	ConditionTypeBackendReady    ConditionType = "BackendReady"
	ConditionTypeStorefrontReady ConditionType = "StorefrontReady"
	ConditionTypeDriftDetected   ConditionType = "DriftDetected"
	ConditionTypeHealthCheck     ConditionType = "HealthCheck"
	ConditionTypeProvisioning    ConditionType = "Provisioning"
)

// Condition describes one aspect of the observed state of a Store.
// Timestamps are RFC3339 UTC strings with second precision; by convention of
// this API, LastTransitionTime is refreshed on every write, not only on
// actual status transitions.
type Condition struct {
	Type               ConditionType   `json:"type"`
	Status             ConditionStatus `json:"status"`
	Reason             string          `json:"reason,omitempty"`
	Message            string          `json:"message,omitempty"`
	LastTransitionTime string          `json:"lastTransitionTime,omitempty"`
}

// ActivityLogEntry is one entry of the bounded per-Store activity log.
type ActivityLogEntry struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Message   string `json:"message,omitempty"`
}

// ActivityLogMaxEntries bounds status.activityLog; the bound protects etcd
// object size and must be enforced on every write.
const ActivityLogMaxEntries = 15

// StoreSpec is the desired state of a Store; it is owned by the intent API
// and never written by the operator.
type StoreSpec struct {
	// +kubebuilder:validation:Enum=medusa;woocommerce
	Engine Engine `json:"engine"`
	// +kubebuilder:validation:MaxLength=60
	// +kubebuilder:default=default
	Owner string `json:"owner,omitempty"`
	// DomainSuffix is the DNS suffix under which the store is exposed.
	DomainSuffix string `json:"domainSuffix,omitempty"`
	// Version of the engine bundle; informational.
	Version string `json:"version,omitempty"`
}

// StoreStatus is the observed state of a Store; it is owned by the operator
// and never written by the intent API.
type StoreStatus struct {
	Phase       Phase              `json:"phase,omitempty"`
	URL         string             `json:"url,omitempty"`
	AdminURL    string             `json:"adminUrl,omitempty"`
	Message     string             `json:"message,omitempty"`
	CreatedAt   string             `json:"createdAt,omitempty"`
	LastUpdated string             `json:"lastUpdated,omitempty"`
	RetryCount  int                `json:"retryCount,omitempty"`
	Conditions  []Condition        `json:"conditions,omitempty"`
	ActivityLog []ActivityLogEntry `json:"activityLog,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Cluster
// +kubebuilder:printcolumn:name="Engine",type="string",JSONPath=".spec.engine"
// +kubebuilder:printcolumn:name="Owner",type="string",JSONPath=".spec.owner"
// +kubebuilder:printcolumn:name="Phase",type="string",JSONPath=".status.phase"
// +kubebuilder:printcolumn:name="URL",type="string",JSONPath=".status.url"
// +kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"

// Store is one multi-tenant e-commerce store provisioned on the cluster.
type Store struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   StoreSpec   `json:"spec,omitempty"`
	Status StoreStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

type StoreList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Store `json:"items"`
}

// NamespaceName returns the namespace all cluster resources of this Store live in.
func (s *Store) NamespaceName() string {
	return fmt.Sprintf("store-%s", s.Name)
}

// ReleaseName returns the packaged release name of this Store.
func (s *Store) ReleaseName() string {
	return fmt.Sprintf("store-%s", s.Name)
}

// EffectiveOwner returns spec.owner, defaulted like the original API does.
func (s *Store) EffectiveOwner() string {
	if s.Spec.Owner == "" {
		return "default"
	}
	return s.Spec.Owner
}

// GetCondition returns the condition of the given type, or nil.
func (s *StoreStatus) GetCondition(condType ConditionType) *Condition {
	for i := 0; i < len(s.Conditions); i++ {
		if s.Conditions[i].Type == condType {
			return &s.Conditions[i]
		}
	}
	return nil
}

func init() {
	SchemeBuilder.Register(&Store{}, &StoreList{})
}
