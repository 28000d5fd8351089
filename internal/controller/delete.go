/*
SPDX-FileCopyrightText: 2026 urumi.ai and store-operator contributors
SPDX-License-Identifier: Apache-2.0
*/

package controller

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/log"

	storev1 "github.com/urumi-ai/store-operator/api/v1"
	"github.com/urumi-ai/store-operator/internal/status"
)

// reconcileDelete tears down everything a store owns before the finalizer is
// released: the chart release, residual volume claims, and the namespace.
// Individual teardown failures are logged and skipped so that a broken
// release can never pin the Store object forever.
func (r *StoreReconciler) reconcileDelete(ctx context.Context, store *storev1.Store) error {
	logger := log.FromContext(ctx)

	if store.Spec.Engine != storev1.EngineMedusa {
		logger.V(1).Info("nothing to tear down for engine", "engine", store.Spec.Engine)
		return nil
	}

	st := &store.Status
	st.Phase = storev1.PhaseDeleting
	st.Message = "Deleting store resources..."
	st.ActivityLog = status.AppendActivity(st.ActivityLog, "DELETE_START", "Store deletion started")
	st.LastUpdated = status.Now()
	if err := r.gateway.PatchStoreStatus(ctx, store); err != nil {
		logger.V(1).Info("failed to record deleting phase", "error", err.Error())
	}
	r.publisher.Publish(ctx, store.Name, string(storev1.PhaseDeleting), "DELETE_START", "Store deletion started")

	namespace := store.NamespaceName()
	if err := r.installer.Uninstall(ctx, store.ReleaseName(), namespace); err != nil {
		logger.Info("release uninstall failed; continuing teardown", "error", err.Error())
	}

	pvcs, err := r.gateway.ListPVCs(ctx, namespace)
	if err != nil {
		logger.Info("listing volume claims failed; continuing teardown", "error", err.Error())
	}
	for _, pvc := range pvcs {
		if err := r.gateway.DeletePVC(ctx, namespace, pvc.Name); err != nil {
			logger.Info("volume claim deletion failed; continuing teardown", "pvc", pvc.Name, "error", err.Error())
		}
	}

	if err := r.gateway.DeleteNamespace(ctx, namespace); err != nil {
		logger.Info("namespace deletion failed; continuing teardown", "error", err.Error())
	}

	r.publisher.Publish(ctx, store.Name, string(storev1.PhaseDeleted), "DELETE_COMPLETE", "Store deleted")
	r.publisher.DeleteStream(ctx, store.Name)
	r.gateway.EventRecorder().Event(store, corev1.EventTypeNormal, "StoreDeleted", "Store resources deleted")
	logger.Info("store torn down", "namespace", namespace)

	return ctx.Err()
}
