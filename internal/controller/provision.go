/*
SPDX-FileCopyrightText: 2026 urumi.ai and store-operator contributors
SPDX-License-Identifier: Apache-2.0
*/

package controller

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/log"

	storev1 "github.com/urumi-ai/store-operator/api/v1"
	"github.com/urumi-ai/store-operator/internal/status"
	"github.com/urumi-ai/store-operator/pkg/types"
)

// componentGate ties one chart component to the condition reporting its
// readiness. Gates are checked in order; the first not-ready component stops
// the pass.
type componentGate struct {
	component string
	condition storev1.ConditionType
}

var readinessGates = []componentGate{
	{component: "postgres", condition: storev1.ConditionTypeDatabaseReady},
	{component: "medusa-backend", condition: storev1.ConditionTypeBackendReady},
	{component: "storefront", condition: storev1.ConditionTypeStorefrontReady},
}

// provision runs one pass of the provisioning steps: namespace, chart
// install, then the component readiness gates. Not-ready components yield a
// TransientError with the short re-check delay and do not count as failures.
func (r *StoreReconciler) provision(ctx context.Context, store *storev1.Store) error {
	logger := log.FromContext(ctx)
	st := &store.Status
	namespace := store.NamespaceName()

	if st.Phase != storev1.PhaseProvisioning {
		st.Phase = storev1.PhaseProvisioning
		st.Message = "Creating store resources..."
		if st.CreatedAt == "" {
			st.CreatedAt = status.Now()
		}
		st.ActivityLog = status.AppendActivity(st.ActivityLog, "PROVISIONING_START", "Provisioning started for owner "+store.EffectiveOwner())
		r.publisher.Publish(ctx, store.Name, string(st.Phase), "PROVISIONING_START", "Provisioning started")
		r.gateway.EventRecorder().Event(store, corev1.EventTypeNormal, "Provisioning", "Store provisioning started")
		logger.Info("provisioning started", "namespace", namespace)
	}

	created, err := r.gateway.EnsureNamespace(ctx, namespace, map[string]string{
		storev1.LabelStoreName:   store.Name,
		storev1.LabelStoreEngine: string(store.Spec.Engine),
		storev1.LabelManagedBy:   storev1.ManagedByValue,
	})
	if err != nil {
		return err
	}
	if created {
		logger.V(1).Info("namespace created", "namespace", namespace)
	}
	st.Conditions = status.UpsertCondition(st.Conditions, storev1.ConditionTypeNamespaceReady, storev1.ConditionTrue, "Created", fmt.Sprintf("Namespace %s exists", namespace))

	if err := r.installer.Install(ctx, store.ReleaseName(), namespace, r.buildValues(store)); err != nil {
		st.Conditions = status.UpsertCondition(st.Conditions, storev1.ConditionTypeHelmInstalled, storev1.ConditionFalse, "InstallFailed", status.Truncate(err.Error(), 200))
		return err
	}
	st.Conditions = status.UpsertCondition(st.Conditions, storev1.ConditionTypeHelmInstalled, storev1.ConditionTrue, "Installed", fmt.Sprintf("Release %s installed", store.ReleaseName()))

	for _, gate := range readinessGates {
		ready, reason, detail, err := r.podsReady(ctx, namespace, gate.component)
		if err != nil {
			return err
		}
		if !ready {
			st.Conditions = status.UpsertCondition(st.Conditions, gate.condition, storev1.ConditionFalse, reason, detail)
			st.Message = status.Truncate(fmt.Sprintf("Waiting for %s: %s", gate.component, detail), 200)
			logger.V(1).Info("component not ready", "component", gate.component, "reason", reason, "detail", detail)
			return types.NewTransientError(errors.Errorf("%s not ready: %s", gate.component, detail), notReadyDelay)
		}
		st.Conditions = status.UpsertCondition(st.Conditions, gate.condition, storev1.ConditionTrue, "AllRunning", detail)
	}
	return nil
}

// podsReady checks the pods of one chart component. The pods are selected by
// the chart's app.kubernetes.io/name label; container waiting reasons (for
// example CrashLoopBackOff or ImagePullBackOff) are surfaced verbatim.
func (r *StoreReconciler) podsReady(ctx context.Context, namespace string, component string) (bool, string, string, error) {
	pods, err := r.gateway.ListPods(ctx, namespace, "app.kubernetes.io/name="+component)
	if err != nil {
		return false, "", "", err
	}
	if len(pods) == 0 {
		return false, "NoPods", fmt.Sprintf("no pods found for %s", component), nil
	}
	for _, pod := range pods {
		if pod.Status.Phase == corev1.PodSucceeded {
			continue
		}
		if pod.Status.Phase != corev1.PodRunning {
			reason := "NotReady"
			detail := fmt.Sprintf("pod %s is %s", pod.Name, pod.Status.Phase)
			for _, containerStatus := range pod.Status.ContainerStatuses {
				if containerStatus.State.Waiting != nil && containerStatus.State.Waiting.Reason != "" {
					reason = containerStatus.State.Waiting.Reason
					detail = fmt.Sprintf("pod %s container %s is waiting: %s", pod.Name, containerStatus.Name, reason)
					break
				}
			}
			return false, reason, detail, nil
		}
		for _, containerStatus := range pod.Status.ContainerStatuses {
			if !containerStatus.Ready {
				return false, "NotReady", fmt.Sprintf("pod %s container %s is not ready", pod.Name, containerStatus.Name), nil
			}
		}
	}
	return true, "AllRunning", fmt.Sprintf("all %s pods are running", component), nil
}

// buildValues assembles the per-store chart values.
func (r *StoreReconciler) buildValues(store *storev1.Store) map[string]any {
	host := ingressHost(store, r.config)
	return map[string]any{
		"storeName": store.Name,
		"owner":     store.EffectiveOwner(),
		"medusa": map[string]any{
			"image": r.config.MedusaImage,
		},
		"storefront": map[string]any{
			"image":    r.config.StorefrontImage,
			"storeUrl": "http://" + host,
		},
		"postgres": map[string]any{
			"storageClass": r.config.StorageClass,
		},
		"ingress": map[string]any{
			"className": r.config.IngressClass,
			"host":      host,
		},
	}
}
