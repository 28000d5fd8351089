/*
SPDX-FileCopyrightText: 2026 urumi.ai and store-operator contributors
SPDX-License-Identifier: Apache-2.0
*/

package helm_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/urumi-ai/store-operator/internal/cluster"
	"github.com/urumi-ai/store-operator/internal/helm"
)

// fakeHelm is a stand-in for the CLI; it records every invocation and takes
// its answers from files in HELM_FAKE_DIR.
const fakeHelm = `#!/bin/sh
echo "$@" >> "$HELM_FAKE_DIR/calls.log"
case "$1" in
  status)
    if [ -f "$HELM_FAKE_DIR/release-status" ]; then
      printf '{"info":{"status":"%s"}}\n' "$(cat "$HELM_FAKE_DIR/release-status")"
      exit 0
    fi
    echo "Error: release: not found" >&2
    exit 1
    ;;
  install|upgrade)
    if [ -f "$HELM_FAKE_DIR/fail-install" ]; then
      echo "Error: chart is broken" >&2
      exit 1
    fi
    exit 0
    ;;
  *)
    exit 0
    ;;
esac
`

var _ = Describe("Installer", func() {
	var fakeDir string
	var clnt client.Client
	var installer *helm.Installer

	calls := func() []string {
		raw, err := os.ReadFile(filepath.Join(fakeDir, "calls.log"))
		if os.IsNotExist(err) {
			return nil
		}
		Expect(err).NotTo(HaveOccurred())
		return strings.Split(strings.TrimSpace(string(raw)), "\n")
	}

	setReleaseStatus := func(status string) {
		Expect(os.WriteFile(filepath.Join(fakeDir, "release-status"), []byte(status), 0o644)).To(Succeed())
	}

	BeforeEach(func() {
		fakeDir = GinkgoT().TempDir()
		binary := filepath.Join(fakeDir, "helm")
		Expect(os.WriteFile(binary, []byte(fakeHelm), 0o755)).To(Succeed())
		GinkgoT().Setenv("HELM_FAKE_DIR", fakeDir)

		scheme := runtime.NewScheme()
		Expect(clientgoscheme.AddToScheme(scheme)).To(Succeed())
		clnt = fake.NewClientBuilder().WithScheme(scheme).Build()
		installer = helm.NewInstaller("/charts/store-medusa", 300*time.Second, cluster.NewGateway(clnt, nil)).WithBinary(binary)
	})

	Describe("Status", func() {
		It("should report not-installed for an unknown release", func(ctx context.Context) {
			Expect(installer.Status(ctx, "store-demo", "store-demo")).To(Equal(helm.StatusNotInstalled))
		})

		It("should report the CLI status for an installed release", func(ctx context.Context) {
			setReleaseStatus("deployed")
			Expect(installer.Status(ctx, "store-demo", "store-demo")).To(Equal(helm.StatusDeployed))
		})

		It("should classify pending and failed statuses as stuck", func() {
			Expect(helm.StatusPendingInstall.IsStuck()).To(BeTrue())
			Expect(helm.StatusPendingUpgrade.IsStuck()).To(BeTrue())
			Expect(helm.StatusFailed.IsStuck()).To(BeTrue())
			Expect(helm.StatusDeployed.IsStuck()).To(BeFalse())
			Expect(helm.StatusNotInstalled.IsStuck()).To(BeFalse())
		})
	})

	Describe("Install", func() {
		values := map[string]any{"storeName": "demo"}

		It("should freshly install an absent release", func(ctx context.Context) {
			Expect(installer.Install(ctx, "store-demo", "store-demo", values)).To(Succeed())

			invocations := calls()
			Expect(invocations).To(HaveLen(2))
			Expect(invocations[0]).To(HavePrefix("status store-demo"))
			Expect(invocations[1]).To(HavePrefix("install store-demo /charts/store-medusa -n store-demo --create-namespace --timeout 300s -f "))
		})

		It("should upgrade a deployed release", func(ctx context.Context) {
			setReleaseStatus("deployed")
			Expect(installer.Install(ctx, "store-demo", "store-demo", values)).To(Succeed())

			invocations := calls()
			Expect(invocations).To(HaveLen(2))
			Expect(invocations[1]).To(HavePrefix("upgrade store-demo /charts/store-medusa -n store-demo --timeout 300s -f "))
		})

		It("should clean up a stuck release before installing", func(ctx context.Context) {
			setReleaseStatus("pending-install")
			secret := &corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{
					Namespace: "store-demo",
					Name:      "sh.helm.release.v1.store-demo.v1",
					Labels:    map[string]string{"owner": "helm", "name": "store-demo"},
				},
			}
			Expect(clnt.Create(ctx, secret)).To(Succeed())

			Expect(installer.Install(ctx, "store-demo", "store-demo", values)).To(Succeed())

			invocations := calls()
			Expect(invocations).To(HaveLen(3))
			Expect(invocations[1]).To(Equal("uninstall store-demo -n store-demo --no-hooks"))
			Expect(invocations[2]).To(HavePrefix("install store-demo"))

			secrets, err := cluster.NewGateway(clnt, nil).ListSecrets(ctx, "store-demo", map[string]string{"owner": "helm"})
			Expect(err).NotTo(HaveOccurred())
			Expect(secrets).To(BeEmpty())
		})

		It("should surface an install failure with the CLI stderr", func(ctx context.Context) {
			Expect(os.WriteFile(filepath.Join(fakeDir, "fail-install"), nil, 0o644)).To(Succeed())

			err := installer.Install(ctx, "store-demo", "store-demo", values)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("helm install failed"))
			Expect(err.Error()).To(ContainSubstring("chart is broken"))
		})
	})

	Describe("Uninstall", func() {
		It("should skip an absent release", func(ctx context.Context) {
			Expect(installer.Uninstall(ctx, "store-demo", "store-demo")).To(Succeed())
			Expect(calls()).To(HaveLen(1))
		})

		It("should uninstall a deployed release", func(ctx context.Context) {
			setReleaseStatus("deployed")
			Expect(installer.Uninstall(ctx, "store-demo", "store-demo")).To(Succeed())

			invocations := calls()
			Expect(invocations).To(HaveLen(2))
			Expect(invocations[1]).To(Equal("uninstall store-demo -n store-demo"))
		})
	})
})
