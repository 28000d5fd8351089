/*
SPDX-FileCopyrightText: 2026 urumi.ai and store-operator contributors
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	storev1 "github.com/urumi-ai/store-operator/api/v1"
	"github.com/urumi-ai/store-operator/internal/cluster"
	"github.com/urumi-ai/store-operator/internal/config"
	"github.com/urumi-ai/store-operator/internal/controller"
	"github.com/urumi-ai/store-operator/internal/crds"
	"github.com/urumi-ai/store-operator/internal/events"
	"github.com/urumi-ai/store-operator/internal/helm"
	"github.com/urumi-ai/store-operator/internal/quota"
)

const controllerName = "store-operator"

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(apiextensionsv1.AddToScheme(scheme))
	utilruntime.Must(storev1.AddToScheme(scheme))
}

type options struct {
	metricsAddr string
	probeAddr   string
	installCRDs bool
	leaderElect bool
	development bool
}

func newCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          controllerName,
		Short:        "Provision multi-tenant e-commerce stores from Store resources",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	addFlags(cmd.Flags(), opts)
	return cmd
}

func addFlags(flags *pflag.FlagSet, opts *options) {
	flags.StringVar(&opts.metricsAddr, "metrics-bind-address", ":8080", "Address the metrics endpoint binds to")
	flags.StringVar(&opts.probeAddr, "health-probe-bind-address", ":8081", "Address the probe endpoints bind to")
	flags.BoolVar(&opts.installCRDs, "install-crds", false, "Install or update the Store CRD at startup")
	flags.BoolVar(&opts.leaderElect, "leader-elect", false, "Enable leader election (only one active reconciler)")
	flags.BoolVar(&opts.development, "development", false, "Enable development logging")
}

func run(opts *options) error {
	ctrl.SetLogger(zap.New(
		zap.UseDevMode(opts.development),
		func(o *zap.Options) { o.TimeEncoder = zapcore.ISO8601TimeEncoder },
	))
	setupLog := ctrl.Log.WithName("setup")

	cfg := config.Load()
	restConfig, err := restConfigFor(cfg)
	if err != nil {
		return err
	}

	ctx := ctrl.SetupSignalHandler()

	if opts.installCRDs {
		if err := installCRDs(ctx, restConfig, setupLog); err != nil {
			return err
		}
	}

	mgr, err := ctrl.NewManager(restConfig, ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: opts.metricsAddr},
		HealthProbeBindAddress: opts.probeAddr,
		LeaderElection:         opts.leaderElect,
		LeaderElectionID:       "stores.platform.urumi.ai",
	})
	if err != nil {
		return errors.Wrap(err, "unable to create manager")
	}

	publisher := events.NewPublisher(cfg.RedisURL)
	defer publisher.Close()
	if publisher.Enabled() {
		setupLog.Info("event publishing enabled", "url", cfg.RedisURL)
	}

	gateway := cluster.NewGateway(mgr.GetClient(), mgr.GetEventRecorderFor(controllerName))
	installer := helm.NewInstaller(cfg.HelmChartPath, cfg.ProvisionTimeout, gateway)
	quotaEvaluator := quota.NewEvaluator(mgr.GetClient(), cfg.MaxStores, cfg.MaxStoresPerOwner, cfg.MaxStoresGlobal)

	reconciler := controller.NewStoreReconciler(gateway, installer, publisher, quotaEvaluator, cfg)
	if err := reconciler.SetupWithManager(mgr); err != nil {
		return errors.Wrap(err, "unable to create controller")
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return errors.Wrap(err, "unable to set up health check")
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		return errors.Wrap(err, "unable to set up ready check")
	}

	setupLog.Info("starting manager", "maxParallelProvisions", cfg.MaxParallelProvisions)
	return mgr.Start(ctx)
}

func installCRDs(ctx context.Context, restConfig *rest.Config, log logr.Logger) error {
	bootstrapClient, err := client.New(restConfig, client.Options{Scheme: scheme})
	if err != nil {
		return errors.Wrap(err, "unable to create bootstrap client")
	}
	if err := crds.Ensure(ctx, bootstrapClient); err != nil {
		return err
	}
	log.Info("store crd installed")
	return nil
}

func restConfigFor(cfg *config.Config) (*rest.Config, error) {
	if cfg.InCluster {
		restConfig, err := rest.InClusterConfig()
		if err != nil {
			return nil, errors.Wrap(err, "unable to load in-cluster config")
		}
		return restConfig, nil
	}
	restConfig, err := ctrl.GetConfig()
	if err != nil {
		return nil, errors.Wrap(err, "unable to load kubeconfig")
	}
	return restConfig, nil
}

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
