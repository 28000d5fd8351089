/*
SPDX-FileCopyrightText: 2026 urumi.ai and store-operator contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package controller contains the Store reconciler: a per-object state
// machine driving Pending → Provisioning → Ready, with drift detection for
// Ready stores and finalizer-guaranteed teardown.
package controller

import (
	"context"
	"reflect"
	"time"

	"github.com/pkg/errors"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/predicate"

	storev1 "github.com/urumi-ai/store-operator/api/v1"
	"github.com/urumi-ai/store-operator/internal/backoff"
	"github.com/urumi-ai/store-operator/internal/cluster"
	"github.com/urumi-ai/store-operator/internal/config"
	"github.com/urumi-ai/store-operator/internal/events"
	"github.com/urumi-ai/store-operator/internal/helm"
	"github.com/urumi-ai/store-operator/internal/metrics"
	"github.com/urumi-ai/store-operator/internal/quota"
	"github.com/urumi-ai/store-operator/internal/status"
	"github.com/urumi-ai/store-operator/pkg/types"
)

const (
	// driftPeriod is how often Ready stores are re-checked for drift; it also
	// is the idle window after the last handler run.
	driftPeriod = 120 * time.Second

	// notReadyDelay is the re-check delay while pods are still coming up.
	notReadyDelay = 15 * time.Second

	// errorRetryDelay is the re-check delay after a provisioning error.
	errorRetryDelay = 30 * time.Second

	// maxRetries caps provisioning attempts; after that the store stays
	// Failed until the spec changes or someone intervenes.
	maxRetries = 3
)

// StoreReconciler reconciles Store objects.
type StoreReconciler struct {
	gateway   *cluster.Gateway
	installer *helm.Installer
	publisher *events.Publisher
	quota     *quota.Evaluator
	config    *config.Config
	backoff   *backoff.Backoff
}

func NewStoreReconciler(gateway *cluster.Gateway, installer *helm.Installer, publisher *events.Publisher, quotaEvaluator *quota.Evaluator, cfg *config.Config) *StoreReconciler {
	return &StoreReconciler{
		gateway:   gateway,
		installer: installer,
		publisher: publisher,
		quota:     quotaEvaluator,
		config:    cfg,
		backoff:   backoff.New(notReadyDelay, driftPeriod),
	}
}

// Reconcile drives one store towards its desired state. Events for the same
// store are strictly serialized by the controller; up to
// MAX_PARALLEL_PROVISIONS handlers run concurrently for distinct stores.
func (r *StoreReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	store := &storev1.Store{}
	if err := r.gateway.Get(ctx, req.NamespacedName, store); err != nil {
		if apierrors.IsNotFound(err) {
			logger.V(1).Info("store not found; ignoring")
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, errors.Wrap(err, "unexpected get error")
	}

	if !store.DeletionTimestamp.IsZero() {
		if controllerutil.ContainsFinalizer(store, storev1.Finalizer) {
			if err := r.reconcileDelete(ctx, store); err != nil {
				return ctrl.Result{}, err
			}
			controllerutil.RemoveFinalizer(store, storev1.Finalizer)
			if err := r.gateway.Update(ctx, store); err != nil {
				return ctrl.Result{}, errors.Wrap(err, "error removing finalizer")
			}
			r.backoff.Forget(store.Name)
		}
		return ctrl.Result{}, nil
	}

	// the finalizer must be in place before any cluster resource is created
	if controllerutil.AddFinalizer(store, storev1.Finalizer) {
		if err := r.gateway.Update(ctx, store); err != nil {
			return ctrl.Result{}, errors.Wrap(err, "error adding finalizer")
		}
		return ctrl.Result{Requeue: true}, nil
	}

	return r.reconcileNormal(ctx, store)
}

// reconcileNormal runs the create/resume state machine and writes the
// resulting status as a single patch at the end of the handler. Transient
// failures are translated into delayed requeues here.
func (r *StoreReconciler) reconcileNormal(ctx context.Context, store *storev1.Store) (result ctrl.Result, err error) {
	logger := log.FromContext(ctx)
	savedStatus := store.Status.DeepCopy()

	defer func() {
		transientError := types.TransientError{}
		if err != nil && errors.As(err, &transientError) {
			logger.V(1).Info("transient outcome; requeueing", "after", transientError.RetryAfter().String(), "cause", transientError.Error())
			result = ctrl.Result{RequeueAfter: transientError.RetryAfter()}
			err = nil
		}
		if err != nil {
			metrics.Reconciles.WithLabelValues("error").Inc()
		} else {
			metrics.Reconciles.WithLabelValues("success").Inc()
		}
		if !reflect.DeepEqual(store.Status, *savedStatus) {
			store.Status.LastUpdated = status.Now()
			if updateErr := r.gateway.PatchStoreStatus(ctx, store); updateErr != nil {
				err = utilerrors.NewAggregate([]error{err, updateErr})
				result = ctrl.Result{}
			}
		}
		r.updatePhaseGauges(ctx)
	}()

	return r.reconcileStore(ctx, store)
}

// reconcileStore is the create/resume flow of the state machine; every step
// checks before it acts, so re-running it is safe.
func (r *StoreReconciler) reconcileStore(ctx context.Context, store *storev1.Store) (ctrl.Result, error) {
	logger := log.FromContext(ctx)
	st := &store.Status

	// engine gate: nothing is provisioned for engines that are not live yet
	if store.Spec.Engine == storev1.EngineWooCommerce {
		if st.Phase != storev1.PhaseComingSoon {
			st.Conditions = status.UpsertCondition(st.Conditions, storev1.ConditionTypeEngineReady, storev1.ConditionFalse, "ComingSoon", "WooCommerce engine is coming soon")
			st.Phase = storev1.PhaseComingSoon
			st.Message = "WooCommerce engine is coming soon. Only MedusaJS is currently supported."
			st.ActivityLog = status.AppendActivity(st.ActivityLog, "ENGINE_STUB", "WooCommerce engine stubbed")
			r.publisher.Publish(ctx, store.Name, string(st.Phase), "ENGINE_STUB", "WooCommerce engine is coming soon")
			logger.Info("engine stubbed", "engine", store.Spec.Engine)
		}
		return ctrl.Result{}, nil
	}

	// quota re-check; admission already enforced it, this catches races
	if st.Phase != storev1.PhaseProvisioning && st.Phase != storev1.PhaseReady {
		if err := r.quota.CheckReconcile(ctx, store.EffectiveOwner()); err != nil {
			exceeded := quota.ExceededError{}
			if !errors.As(err, &exceeded) {
				return ctrl.Result{}, errors.Wrap(err, "error evaluating quota")
			}
			st.Conditions = status.UpsertCondition(st.Conditions, storev1.ConditionTypeQuotaCheck, storev1.ConditionFalse, "QuotaExceeded", exceeded.Error())
			st.Phase = storev1.PhaseFailed
			st.Message = status.Truncate(exceeded.Error(), 200)
			st.ActivityLog = status.AppendActivity(st.ActivityLog, "QUOTA_EXCEEDED", exceeded.Error())
			r.publisher.Publish(ctx, store.Name, string(st.Phase), "QUOTA_EXCEEDED", exceeded.Error())
			r.gateway.EventRecorder().Event(store, corev1.EventTypeWarning, "QuotaExceeded", exceeded.Error())
			logger.Info("quota exceeded", "owner", store.EffectiveOwner())
			return ctrl.Result{}, nil
		}
	}

	// Ready stores are only re-checked for drift on the timer
	if st.Phase == storev1.PhaseReady {
		return r.checkDrift(ctx, store)
	}

	if err := r.provision(ctx, store); err != nil {
		if errors.As(err, &types.TransientError{}) {
			return ctrl.Result{}, err
		}
		return ctrl.Result{}, r.failProvisioning(ctx, store, err)
	}

	url := storeURL(store, r.config)
	st.URL = url
	st.AdminURL = url + "/app"
	st.Phase = storev1.PhaseReady
	st.Message = "Store is ready"
	st.RetryCount = 0
	st.ActivityLog = status.AppendActivity(st.ActivityLog, "STORE_READY", "Store is ready at "+url)
	r.publisher.Publish(ctx, store.Name, string(st.Phase), "STORE_READY", "Store is ready")
	r.gateway.EventRecorder().Event(store, corev1.EventTypeNormal, "StoreReady", "Store is ready at "+url)
	r.backoff.Forget(store.Name)
	logger.Info("store is ready", "url", url)

	return ctrl.Result{RequeueAfter: driftPeriod}, nil
}

// failProvisioning applies the error policy of the create/resume flow:
// bump retryCount, surface the error, and retry up to maxRetries times.
func (r *StoreReconciler) failProvisioning(ctx context.Context, store *storev1.Store, cause error) error {
	logger := log.FromContext(ctx)
	st := &store.Status

	st.RetryCount++
	message := status.Truncate(cause.Error(), 200)
	st.Conditions = status.UpsertCondition(st.Conditions, storev1.ConditionTypeProvisioning, storev1.ConditionFalse, "Error", message)
	st.Phase = storev1.PhaseFailed
	st.Message = status.Truncate("Provisioning failed: "+message, 200)
	st.ActivityLog = status.AppendActivity(st.ActivityLog, "PROVISION_FAILED", message)
	r.publisher.Publish(ctx, store.Name, string(st.Phase), "PROVISION_FAILED", message)
	r.gateway.EventRecorder().Event(store, corev1.EventTypeWarning, "ProvisioningFailed", message)
	metrics.ProvisionFailures.Inc()
	logger.Error(cause, "provisioning failed", "attempt", st.RetryCount)

	if st.RetryCount < maxRetries {
		return types.NewTransientError(cause, errorRetryDelay)
	}
	logger.Info("retries exhausted; store stays failed until spec change or manual intervention")
	return nil
}

func (r *StoreReconciler) updatePhaseGauges(ctx context.Context) {
	stores, err := r.gateway.ListStores(ctx)
	if err != nil {
		return
	}
	counts := map[storev1.Phase]int{}
	for _, store := range stores {
		counts[store.Status.Phase]++
	}
	for _, phase := range []storev1.Phase{storev1.PhasePending, storev1.PhaseProvisioning, storev1.PhaseReady, storev1.PhaseFailed, storev1.PhaseComingSoon} {
		metrics.StoresByPhase.WithLabelValues(string(phase)).Set(float64(counts[phase]))
	}
}

func storeURL(store *storev1.Store, cfg *config.Config) string {
	return "http://" + ingressHost(store, cfg)
}

func ingressHost(store *storev1.Store, cfg *config.Config) string {
	suffix := store.Spec.DomainSuffix
	if suffix == "" {
		suffix = cfg.DomainSuffix
	}
	return store.Name + "." + suffix
}

// SetupWithManager registers the reconciler; MAX_PARALLEL_PROVISIONS bounds
// concurrent reconciliations across all stores.
func (r *StoreReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&storev1.Store{}, builder.WithPredicates(predicate.Or(predicate.GenerationChangedPredicate{}, predicate.AnnotationChangedPredicate{}))).
		WithOptions(controller.Options{MaxConcurrentReconciles: r.config.MaxParallelProvisions}).
		Complete(r)
}
