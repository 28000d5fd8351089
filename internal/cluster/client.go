/*
SPDX-FileCopyrightText: 2026 urumi.ai and store-operator contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package cluster provides the operator's typed, idempotent access to the
// Kubernetes API. All primitives are check-then-act safe: conflict responses
// on create and 404 responses on delete are treated as success.
package cluster

import (
	"context"

	"github.com/pkg/errors"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	apitypes "k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/client"

	storev1 "github.com/urumi-ai/store-operator/api/v1"
)

// Gateway wraps a controller-runtime client with the store-shaped primitives
// the reconciler needs.
type Gateway struct {
	client.Client
	eventRecorder record.EventRecorder
}

func NewGateway(clnt client.Client, eventRecorder record.EventRecorder) *Gateway {
	return &Gateway{
		Client:        clnt,
		eventRecorder: eventRecorder,
	}
}

func (g *Gateway) EventRecorder() record.EventRecorder {
	return g.eventRecorder
}

// EnsureNamespace creates the namespace with the given labels; an already
// existing namespace is success. Returns true if the namespace was created.
func (g *Gateway) EnsureNamespace(ctx context.Context, name string, lbls map[string]string) (bool, error) {
	namespace := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: lbls,
		},
	}
	if err := g.Create(ctx, namespace); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "error creating namespace %s", name)
	}
	return true, nil
}

// DeleteNamespace deletes the namespace; not found is success.
func (g *Gateway) DeleteNamespace(ctx context.Context, name string) error {
	namespace := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: name},
	}
	if err := g.Delete(ctx, namespace); err != nil && !apierrors.IsNotFound(err) {
		return errors.Wrapf(err, "error deleting namespace %s", name)
	}
	return nil
}

// GetDeployment returns the deployment, or nil if it does not exist.
func (g *Gateway) GetDeployment(ctx context.Context, namespace string, name string) (*appsv1.Deployment, error) {
	deployment := &appsv1.Deployment{}
	if err := g.Get(ctx, apitypes.NamespacedName{Namespace: namespace, Name: name}, deployment); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "error reading deployment %s/%s", namespace, name)
	}
	return deployment, nil
}

// GetStatefulSet returns the stateful set, or nil if it does not exist.
func (g *Gateway) GetStatefulSet(ctx context.Context, namespace string, name string) (*appsv1.StatefulSet, error) {
	statefulSet := &appsv1.StatefulSet{}
	if err := g.Get(ctx, apitypes.NamespacedName{Namespace: namespace, Name: name}, statefulSet); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "error reading statefulset %s/%s", namespace, name)
	}
	return statefulSet, nil
}

// GetService returns the service, or nil if it does not exist.
func (g *Gateway) GetService(ctx context.Context, namespace string, name string) (*corev1.Service, error) {
	service := &corev1.Service{}
	if err := g.Get(ctx, apitypes.NamespacedName{Namespace: namespace, Name: name}, service); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "error reading service %s/%s", namespace, name)
	}
	return service, nil
}

// ListPods lists pods in the namespace matching the given label selector;
// an empty selector lists all pods.
func (g *Gateway) ListPods(ctx context.Context, namespace string, labelSelector string) ([]corev1.Pod, error) {
	opts := []client.ListOption{client.InNamespace(namespace)}
	if labelSelector != "" {
		selector, err := labels.Parse(labelSelector)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid label selector %q", labelSelector)
		}
		opts = append(opts, client.MatchingLabelsSelector{Selector: selector})
	}
	podList := &corev1.PodList{}
	if err := g.List(ctx, podList, opts...); err != nil {
		return nil, errors.Wrapf(err, "error listing pods in namespace %s", namespace)
	}
	return podList.Items, nil
}

// ListPVCs lists all persistent volume claims in the namespace.
func (g *Gateway) ListPVCs(ctx context.Context, namespace string) ([]corev1.PersistentVolumeClaim, error) {
	pvcList := &corev1.PersistentVolumeClaimList{}
	if err := g.List(ctx, pvcList, client.InNamespace(namespace)); err != nil {
		return nil, errors.Wrapf(err, "error listing persistent volume claims in namespace %s", namespace)
	}
	return pvcList.Items, nil
}

// DeletePVC deletes the claim; not found is success.
func (g *Gateway) DeletePVC(ctx context.Context, namespace string, name string) error {
	pvc := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name},
	}
	if err := g.Delete(ctx, pvc); err != nil && !apierrors.IsNotFound(err) {
		return errors.Wrapf(err, "error deleting persistent volume claim %s/%s", namespace, name)
	}
	return nil
}

// ListSecrets lists secrets in the namespace matching the given labels.
func (g *Gateway) ListSecrets(ctx context.Context, namespace string, matchLabels map[string]string) ([]corev1.Secret, error) {
	secretList := &corev1.SecretList{}
	if err := g.List(ctx, secretList, client.InNamespace(namespace), client.MatchingLabels(matchLabels)); err != nil {
		return nil, errors.Wrapf(err, "error listing secrets in namespace %s", namespace)
	}
	return secretList.Items, nil
}

// DeleteSecret deletes the secret; not found is success.
func (g *Gateway) DeleteSecret(ctx context.Context, namespace string, name string) error {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name},
	}
	if err := g.Delete(ctx, secret); err != nil && !apierrors.IsNotFound(err) {
		return errors.Wrapf(err, "error deleting secret %s/%s", namespace, name)
	}
	return nil
}

// ListStores lists all Store resources in the cluster.
func (g *Gateway) ListStores(ctx context.Context) ([]storev1.Store, error) {
	storeList := &storev1.StoreList{}
	if err := g.List(ctx, storeList); err != nil {
		return nil, errors.Wrap(err, "error listing stores")
	}
	return storeList.Items, nil
}

// PatchStoreStatus writes the status of the given Store as a single status
// update at the end of a handler. A resource version conflict is retried
// once against a fresh read.
func (g *Gateway) PatchStoreStatus(ctx context.Context, store *storev1.Store) error {
	err := g.Status().Update(ctx, store, client.FieldOwner(storev1.ManagedByValue))
	if err == nil {
		return nil
	}
	if !apierrors.IsConflict(err) {
		return errors.Wrapf(err, "error updating status of store %s", store.Name)
	}
	current := &storev1.Store{}
	if getErr := g.Get(ctx, apitypes.NamespacedName{Name: store.Name}, current); getErr != nil {
		return errors.Wrapf(getErr, "error re-reading store %s after status conflict", store.Name)
	}
	current.Status = *store.Status.DeepCopy()
	if err := g.Status().Update(ctx, current, client.FieldOwner(storev1.ManagedByValue)); err != nil {
		return errors.Wrapf(err, "error updating status of store %s", store.Name)
	}
	store.ResourceVersion = current.ResourceVersion
	return nil
}
