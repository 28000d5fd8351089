/*
SPDX-FileCopyrightText: 2026 urumi.ai and store-operator contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package quota counts stores per owner and globally and reports admission
// verdicts. The intent API enforces quotas at admission; the reconciler
// re-checks on entry as defense in depth against racing admissions.
package quota

import (
	"context"
	"fmt"

	"github.com/sap/go-generics/slices"
	"sigs.k8s.io/controller-runtime/pkg/client"

	storev1 "github.com/urumi-ai/store-operator/api/v1"
)

// ExceededError is returned when a quota threshold is hit; its message is
// suitable for user-facing status.
type ExceededError struct {
	Owner string
	Count int
	Limit int
}

func (e ExceededError) Error() string {
	if e.Owner == "" {
		return fmt.Sprintf("global quota exceeded: %d/%d stores", e.Count, e.Limit)
	}
	return fmt.Sprintf("quota exceeded: owner %q already has %d/%d stores", e.Owner, e.Count, e.Limit)
}

// Evaluator evaluates store counts against the configured thresholds.
type Evaluator struct {
	reader      client.Reader
	maxStores   int
	maxPerOwner int
	maxGlobal   int
}

func NewEvaluator(reader client.Reader, maxStores int, maxPerOwner int, maxGlobal int) *Evaluator {
	return &Evaluator{
		reader:      reader,
		maxStores:   maxStores,
		maxPerOwner: maxPerOwner,
		maxGlobal:   maxGlobal,
	}
}

// Count returns the number of stores owned by the given owner.
func (e *Evaluator) Count(ctx context.Context, owner string) (int, error) {
	storeList := &storev1.StoreList{}
	if err := e.reader.List(ctx, storeList); err != nil {
		return 0, err
	}
	owned := slices.Select(storeList.Items, func(store storev1.Store) bool {
		return store.EffectiveOwner() == owner
	})
	return len(owned), nil
}

// CountAll returns the total number of stores in the cluster.
func (e *Evaluator) CountAll(ctx context.Context) (int, error) {
	storeList := &storev1.StoreList{}
	if err := e.reader.List(ctx, storeList); err != nil {
		return 0, err
	}
	return len(storeList.Items), nil
}

// CheckAdmission applies the admission-time thresholds: a pre-create count
// at or above either limit rejects.
func (e *Evaluator) CheckAdmission(ctx context.Context, owner string) error {
	owned, err := e.Count(ctx, owner)
	if err != nil {
		return err
	}
	if owned >= e.maxPerOwner {
		return ExceededError{Owner: owner, Count: owned, Limit: e.maxPerOwner}
	}
	total, err := e.CountAll(ctx)
	if err != nil {
		return err
	}
	if total >= e.maxGlobal {
		return ExceededError{Count: total, Limit: e.maxGlobal}
	}
	return nil
}

// CheckReconcile applies the reconciler-side threshold. It intentionally
// uses a strict greater-than where admission uses at-or-above; the admission
// check is the primary enforcement and this one only catches races.
func (e *Evaluator) CheckReconcile(ctx context.Context, owner string) error {
	owned, err := e.Count(ctx, owner)
	if err != nil {
		return err
	}
	if owned > e.maxStores {
		return ExceededError{Owner: owner, Count: owned, Limit: e.maxStores}
	}
	return nil
}
