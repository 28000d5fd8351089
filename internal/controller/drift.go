/*
SPDX-FileCopyrightText: 2026 urumi.ai and store-operator contributors
SPDX-License-Identifier: Apache-2.0
*/

package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/utils/ptr"
	kstatus "sigs.k8s.io/cli-utils/pkg/kstatus/status"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"

	storev1 "github.com/urumi-ai/store-operator/api/v1"
	"github.com/urumi-ai/store-operator/internal/metrics"
	"github.com/urumi-ai/store-operator/internal/status"
	"github.com/urumi-ai/store-operator/pkg/types"
)

// managedWorkloads are the chart resources whose existence the drift check
// verifies; each has a Deployment or StatefulSet plus a Service of the same
// name.
var managedWorkloads = []string{"medusa-backend", "storefront", "postgres"}

// checkDrift re-verifies the cluster resources of a Ready store and heals
// divergence with a chart upgrade. The last completed check is persisted in an
// annotation so that restarts do not re-run it within the idle window.
func (r *StoreReconciler) checkDrift(ctx context.Context, store *storev1.Store) (ctrl.Result, error) {
	logger := log.FromContext(ctx)
	st := &store.Status

	if store.Spec.Engine != storev1.EngineMedusa {
		return ctrl.Result{}, nil
	}

	if last, ok := store.Annotations[storev1.AnnotationLastDriftCheck]; ok {
		if lastTime, err := time.Parse(time.RFC3339, last); err == nil {
			if elapsed := time.Since(lastTime); elapsed < driftPeriod {
				return ctrl.Result{RequeueAfter: driftPeriod - elapsed}, nil
			}
		}
	}

	reasons, err := r.detectDrift(ctx, store)
	if err != nil {
		// skip this round; the namespace may be in flight
		if types.IsTransientAPIError(err) {
			logger.V(1).Info("drift check skipped", "error", err.Error())
		} else {
			logger.Error(err, "drift check failed")
		}
		return ctrl.Result{RequeueAfter: driftPeriod}, nil
	}

	if len(reasons) > 0 {
		detail := strings.Join(reasons, "; ")
		logger.Info("drift detected", "detail", detail)
		st.Conditions = status.UpsertCondition(st.Conditions, storev1.ConditionTypeDriftDetected, storev1.ConditionTrue, "Drift", status.Truncate(detail, 200))
		st.Message = "Drift detected, healing..."
		st.ActivityLog = status.AppendActivity(st.ActivityLog, "DRIFT_DETECTED", detail)
		r.publisher.Publish(ctx, store.Name, string(st.Phase), "DRIFT_DETECTED", detail)
		r.gateway.EventRecorder().Event(store, corev1.EventTypeWarning, "DriftDetected", detail)

		if err := r.installer.Install(ctx, store.ReleaseName(), store.NamespaceName(), r.buildValues(store)); err != nil {
			st.Conditions = status.UpsertCondition(st.Conditions, storev1.ConditionTypeDriftDetected, storev1.ConditionTrue, "HealFailed", status.Truncate(err.Error(), 200))
			st.Message = status.Truncate("Drift heal failed: "+err.Error(), 200)
			return ctrl.Result{}, err
		}
		metrics.DriftHeals.Inc()
		st.Conditions = status.UpsertCondition(st.Conditions, storev1.ConditionTypeDriftDetected, storev1.ConditionFalse, "Healed", "Resources restored by upgrade")
		st.Message = "Store is ready"
		st.ActivityLog = status.AppendActivity(st.ActivityLog, "DRIFT_HEALED", "Resources restored by upgrade")
		r.publisher.Publish(ctx, store.Name, string(st.Phase), "DRIFT_HEALED", "Resources restored by upgrade")
		logger.Info("drift healed")

		r.recordDriftCheck(ctx, store)
		return ctrl.Result{RequeueAfter: driftPeriod}, nil
	}

	healthy, detail := r.checkHealth(ctx, store)
	if !healthy {
		st.Conditions = status.UpsertCondition(st.Conditions, storev1.ConditionTypeHealthCheck, storev1.ConditionFalse, "PodDegraded", status.Truncate(detail, 200))
		logger.Info("store degraded", "detail", detail)
		// re-check with increasing delays instead of waiting a full period
		return ctrl.Result{RequeueAfter: r.backoff.Next(store.Name, "health")}, nil
	}
	st.Conditions = status.UpsertCondition(st.Conditions, storev1.ConditionTypeHealthCheck, storev1.ConditionTrue, "Healthy", "All pods running")
	r.backoff.Forget(store.Name)

	r.recordDriftCheck(ctx, store)
	return ctrl.Result{RequeueAfter: driftPeriod}, nil
}

// detectDrift returns the list of divergences between the chart's expected
// resources and the cluster: missing workloads or services, or a backend
// replica count that no longer matches.
func (r *StoreReconciler) detectDrift(ctx context.Context, store *storev1.Store) ([]string, error) {
	namespace := store.NamespaceName()
	var reasons []string
	var backend *appsv1.Deployment

	for _, name := range managedWorkloads {
		var exists bool
		var err error
		if name == "postgres" {
			var statefulSet *appsv1.StatefulSet
			statefulSet, err = r.gateway.GetStatefulSet(ctx, namespace, name)
			exists = statefulSet != nil
		} else {
			var deployment *appsv1.Deployment
			deployment, err = r.gateway.GetDeployment(ctx, namespace, name)
			exists = deployment != nil
			if name == "medusa-backend" {
				backend = deployment
			}
		}
		if err != nil {
			return nil, err
		}
		if !exists {
			reasons = append(reasons, fmt.Sprintf("workload %s missing", name))
		}

		service, err := r.gateway.GetService(ctx, namespace, name)
		if err != nil {
			return nil, err
		}
		if service == nil {
			reasons = append(reasons, fmt.Sprintf("service %s missing", name))
		}
	}
	if len(reasons) > 0 {
		return reasons, nil
	}

	// the backend was fetched above; an empty reason list implies it exists
	expected := ptr.Deref(backend.Spec.Replicas, 1)
	if backend.Status.ReadyReplicas != expected {
		reasons = append(reasons, fmt.Sprintf("medusa-backend has %d/%d ready replicas", backend.Status.ReadyReplicas, expected))
	}
	return reasons, nil
}

// checkHealth verifies that all pods of the store run, and that the backend
// rollout has settled according to the aggregate workload status.
func (r *StoreReconciler) checkHealth(ctx context.Context, store *storev1.Store) (bool, string) {
	namespace := store.NamespaceName()
	var degraded []string

	pods, err := r.gateway.ListPods(ctx, namespace, "")
	if err != nil {
		// the namespace may be gone mid-teardown; skip this round
		log.FromContext(ctx).V(1).Info("health check skipped", "error", err.Error())
		return true, ""
	}
	for _, pod := range pods {
		if pod.Status.Phase != corev1.PodRunning && pod.Status.Phase != corev1.PodSucceeded {
			degraded = append(degraded, fmt.Sprintf("pod %s is %s", pod.Name, pod.Status.Phase))
		}
	}

	backend, err := r.gateway.GetDeployment(ctx, namespace, "medusa-backend")
	if err == nil && backend != nil {
		if result := workloadStatus(backend); result != nil && result.Status != kstatus.CurrentStatus {
			degraded = append(degraded, fmt.Sprintf("medusa-backend rollout is %s", result.Status))
		}
	}

	if len(degraded) == 0 {
		return true, ""
	}
	return false, strings.Join(degraded, "; ")
}

// workloadStatus computes the aggregate rollout status of a deployment; nil
// means the status could not be computed and should be ignored.
func workloadStatus(deployment *appsv1.Deployment) *kstatus.Result {
	raw, err := runtime.DefaultUnstructuredConverter.ToUnstructured(deployment)
	if err != nil {
		return nil
	}
	obj := &unstructured.Unstructured{Object: raw}
	obj.SetGroupVersionKind(appsv1.SchemeGroupVersion.WithKind("Deployment"))
	result, err := kstatus.Compute(obj)
	if err != nil {
		return nil
	}
	return result
}

// recordDriftCheck persists the completion time of a drift round in the
// store's annotations; failures only shorten the idle window.
func (r *StoreReconciler) recordDriftCheck(ctx context.Context, store *storev1.Store) {
	if store.Annotations == nil {
		store.Annotations = map[string]string{}
	}
	store.Annotations[storev1.AnnotationLastDriftCheck] = status.Now()
	if err := r.gateway.Update(ctx, store); err != nil {
		log.FromContext(ctx).V(1).Info("failed to record drift check time", "error", err.Error())
	}
}
