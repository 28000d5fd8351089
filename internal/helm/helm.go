/*
SPDX-FileCopyrightText: 2026 urumi.ai and store-operator contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package helm wraps the helm CLI as an opaque subprocess. It never waits
// for pod readiness; readiness is the reconciler's job.
package helm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
	"sigs.k8s.io/controller-runtime/pkg/log"
	kyaml "sigs.k8s.io/yaml"

	"github.com/urumi-ai/store-operator/internal/cluster"
	"github.com/urumi-ai/store-operator/internal/metrics"
)

// ReleaseStatus is the lifecycle status of a packaged release as reported by
// the CLI.
type ReleaseStatus string

const (
	StatusNotInstalled   ReleaseStatus = "not-installed"
	StatusDeployed       ReleaseStatus = "deployed"
	StatusPendingInstall ReleaseStatus = "pending-install"
	StatusPendingUpgrade ReleaseStatus = "pending-upgrade"
	StatusPendingRollbck ReleaseStatus = "pending-rollback"
	StatusFailed         ReleaseStatus = "failed"
	StatusUnknown        ReleaseStatus = "unknown"
)

// IsStuck reports whether the release is in a state that blocks both install
// and upgrade and must be cleaned up first.
func (s ReleaseStatus) IsStuck() bool {
	switch s {
	case StatusPendingInstall, StatusPendingUpgrade, StatusPendingRollbck, StatusFailed:
		return true
	}
	return false
}

// logTruncateLimit bounds subprocess output in logs.
const logTruncateLimit = 800

// Installer invokes the helm CLI. One Installer is shared across all stores;
// per-store serialization is provided by the worker pool.
type Installer struct {
	chartPath string
	timeout   time.Duration
	gateway   *cluster.Gateway
	binary    string
}

func NewInstaller(chartPath string, timeout time.Duration, gateway *cluster.Gateway) *Installer {
	return &Installer{
		chartPath: chartPath,
		timeout:   timeout,
		gateway:   gateway,
		binary:    "helm",
	}
}

// run executes one helm invocation under the configured wall-clock timeout.
func (i *Installer) run(ctx context.Context, args ...string) (string, string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	logger := log.FromContext(ctx)
	logger.V(1).Info("invoking helm", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, i.binary, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	if out := stdout.String(); out != "" {
		logger.V(2).Info("helm stdout", "output", truncate(out, logTruncateLimit))
	}
	if out := stderr.String(); out != "" {
		logger.V(1).Info("helm stderr", "output", truncate(out, logTruncateLimit))
	}

	rc := 0
	if err != nil {
		rc = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			rc = exitErr.ExitCode()
			err = nil
		}
	}
	metrics.HelmInvocations.WithLabelValues(args[0]).Inc()
	return stdout.String(), stderr.String(), rc, err
}

// Status returns the status of a release; a non-zero exit means the release
// is not installed, unparseable output means unknown.
func (i *Installer) Status(ctx context.Context, release string, namespace string) (ReleaseStatus, error) {
	stdout, _, rc, err := i.run(ctx, "status", release, "-n", namespace, "-o", "json")
	if err != nil {
		return StatusUnknown, errors.Wrap(err, "error running helm status")
	}
	if rc != 0 {
		return StatusNotInstalled, nil
	}
	var parsed struct {
		Info struct {
			Status string `json:"status"`
		} `json:"info"`
	}
	if err := json.Unmarshal([]byte(stdout), &parsed); err != nil || parsed.Info.Status == "" {
		return StatusUnknown, nil
	}
	return ReleaseStatus(parsed.Info.Status), nil
}

// Install reconciles the release to the given values: stuck releases are
// cleaned up and freshly installed, deployed releases are upgraded, anything
// else is installed. This is the only entry point the reconciler uses.
func (i *Installer) Install(ctx context.Context, release string, namespace string, values map[string]any) error {
	logger := log.FromContext(ctx)

	status, err := i.Status(ctx, release, namespace)
	if err != nil {
		return err
	}
	if status.IsStuck() {
		logger.Info("release is stuck; cleaning up before fresh install", "release", release, "status", status)
		if err := i.CleanupStuck(ctx, release, namespace); err != nil {
			return err
		}
		status = StatusNotInstalled
	}

	valuesFile, err := writeValuesFile(values)
	if err != nil {
		return err
	}
	defer os.Remove(valuesFile)

	timeoutArg := fmt.Sprintf("%ds", int(i.timeout.Seconds()))
	var args []string
	if status == StatusDeployed {
		args = []string{"upgrade", release, i.chartPath, "-n", namespace, "--timeout", timeoutArg, "-f", valuesFile}
	} else {
		args = []string{"install", release, i.chartPath, "-n", namespace, "--create-namespace", "--timeout", timeoutArg, "-f", valuesFile}
	}
	_, stderr, rc, err := i.run(ctx, args...)
	if err != nil {
		return errors.Wrapf(err, "error running helm %s", args[0])
	}
	if rc != 0 {
		return errors.Errorf("helm %s failed (rc=%d): %s", args[0], rc, truncate(stderr, 500))
	}
	return nil
}

// Uninstall removes the release; an absent release is success.
func (i *Installer) Uninstall(ctx context.Context, release string, namespace string) error {
	status, err := i.Status(ctx, release, namespace)
	if err != nil {
		return err
	}
	if status == StatusNotInstalled {
		log.FromContext(ctx).V(1).Info("release not found; skipping uninstall", "release", release)
		return nil
	}
	_, _, _, err = i.run(ctx, "uninstall", release, "-n", namespace)
	return errors.Wrap(err, "error running helm uninstall")
}

// CleanupStuck force-removes a stuck release: best-effort uninstall followed
// by deletion of residual release-tracking secrets.
func (i *Installer) CleanupStuck(ctx context.Context, release string, namespace string) error {
	logger := log.FromContext(ctx)
	logger.Info("cleaning up stuck release", "release", release, "namespace", namespace)

	if _, _, _, err := i.run(ctx, "uninstall", release, "-n", namespace, "--no-hooks"); err != nil {
		return errors.Wrap(err, "error running helm uninstall")
	}

	secrets, err := i.gateway.ListSecrets(ctx, namespace, map[string]string{"owner": "helm", "name": release})
	if err != nil {
		logger.Info("failed to list release secrets (non-fatal)", "error", err.Error())
		return nil
	}
	for _, secret := range secrets {
		if err := i.gateway.DeleteSecret(ctx, namespace, secret.Name); err != nil {
			logger.Info("failed to delete release secret (non-fatal)", "secret", secret.Name, "error", err.Error())
			continue
		}
		logger.Info("deleted stuck release secret", "secret", secret.Name)
	}
	return nil
}

// WithBinary overrides the CLI binary; used in tests.
func (i *Installer) WithBinary(binary string) *Installer {
	i.binary = binary
	return i
}

func writeValuesFile(values map[string]any) (string, error) {
	raw, err := kyaml.Marshal(values)
	if err != nil {
		return "", errors.Wrap(err, "error serializing values")
	}
	file, err := os.CreateTemp("", "store-values-*.yaml")
	if err != nil {
		return "", errors.Wrap(err, "error creating values file")
	}
	defer file.Close()
	if _, err := file.Write(raw); err != nil {
		os.Remove(file.Name())
		return "", errors.Wrap(err, "error writing values file")
	}
	return file.Name(), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
