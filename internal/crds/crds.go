/*
SPDX-FileCopyrightText: 2026 urumi.ai and store-operator contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package crds carries the operator's custom resource definitions and
// installs them at startup when requested.
package crds

import (
	"context"
	"embed"

	"github.com/pkg/errors"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	apitypes "k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	kyaml "sigs.k8s.io/yaml"
)

//go:embed stores.yaml
var files embed.FS

// Load parses the embedded Store CRD.
func Load() (*apiextensionsv1.CustomResourceDefinition, error) {
	raw, err := files.ReadFile("stores.yaml")
	if err != nil {
		return nil, errors.Wrap(err, "error reading embedded crd")
	}
	crd := &apiextensionsv1.CustomResourceDefinition{}
	if err := kyaml.Unmarshal(raw, crd); err != nil {
		return nil, errors.Wrap(err, "error parsing embedded crd")
	}
	return crd, nil
}

// Ensure creates the Store CRD or updates it in place if it already exists.
func Ensure(ctx context.Context, clnt client.Client) error {
	crd, err := Load()
	if err != nil {
		return err
	}
	existing := &apiextensionsv1.CustomResourceDefinition{}
	if err := clnt.Get(ctx, apitypes.NamespacedName{Name: crd.Name}, existing); err != nil {
		if !apierrors.IsNotFound(err) {
			return errors.Wrapf(err, "error reading crd %s", crd.Name)
		}
		if err := clnt.Create(ctx, crd); err != nil {
			return errors.Wrapf(err, "error creating crd %s", crd.Name)
		}
		return nil
	}
	existing.Spec = crd.Spec
	if err := clnt.Update(ctx, existing); err != nil {
		return errors.Wrapf(err, "error updating crd %s", crd.Name)
	}
	return nil
}
