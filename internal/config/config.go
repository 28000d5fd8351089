/*
SPDX-FileCopyrightText: 2026 urumi.ai and store-operator contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package config holds the process-wide operator configuration, loaded once
// at startup from environment variables.
package config

import (
	"os"
	"time"

	"github.com/spf13/cast"
)

// Config carries everything the operator reads from the environment.
// It is loaded once in main and passed down explicitly; nothing in the
// reconciliation path touches the environment.
type Config struct {
	// HelmChartPath is the local path of the packaged store chart.
	HelmChartPath string
	// DomainSuffix is the default DNS suffix for store ingress hosts.
	DomainSuffix string

	// MaxStores is the per-owner bound re-checked by the reconciler.
	MaxStores int
	// MaxStoresPerOwner and MaxStoresGlobal are the admission-time bounds.
	MaxStoresPerOwner int
	MaxStoresGlobal   int

	// ProvisionTimeout bounds every installer subprocess invocation.
	ProvisionTimeout time.Duration

	MedusaImage     string
	StorefrontImage string
	StorageClass    string
	IngressClass    string

	// RedisURL configures the optional event publisher; empty disables it.
	RedisURL string

	// MaxParallelProvisions caps concurrent reconciliations.
	MaxParallelProvisions int

	// InCluster forces in-cluster API access; otherwise in-cluster config is
	// tried first with a kubeconfig fallback.
	InCluster  bool
	Kubeconfig string
}

// Load reads the configuration from the environment, applying defaults.
func Load() *Config {
	return &Config{
		HelmChartPath:         getString("HELM_CHART_PATH", "/charts/store-medusa"),
		DomainSuffix:          getString("DOMAIN_SUFFIX", "local.urumi"),
		MaxStores:             getInt("MAX_STORES", 10),
		MaxStoresPerOwner:     getInt("MAX_STORES_PER_OWNER", 5),
		MaxStoresGlobal:       getInt("MAX_STORES_GLOBAL", 10),
		ProvisionTimeout:      time.Duration(getInt("PROVISION_TIMEOUT", 300)) * time.Second,
		MedusaImage:           getString("MEDUSA_IMAGE", "medusa-store:latest"),
		StorefrontImage:       getString("STOREFRONT_IMAGE", "store-storefront:latest"),
		StorageClass:          getString("STORAGE_CLASS", "standard"),
		IngressClass:          getString("INGRESS_CLASS", "nginx"),
		RedisURL:              getString("REDIS_URL", ""),
		MaxParallelProvisions: getInt("MAX_PARALLEL_PROVISIONS", 3),
		InCluster:             getBool("IN_CLUSTER", false),
		Kubeconfig:            getString("KUBECONFIG", ""),
	}
}

func getString(key string, def string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return def
}

func getInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := cast.ToIntE(value); err == nil {
			return parsed
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := cast.ToBoolE(value); err == nil {
			return parsed
		}
	}
	return def
}
