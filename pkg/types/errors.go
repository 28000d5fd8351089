/*
SPDX-FileCopyrightText: 2026 urumi.ai and store-operator contributors
SPDX-License-Identifier: Apache-2.0
*/

package types

import (
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// TransientError is a non-fatal handler outcome asking the scheduler to run
// the same reconciliation again after the given delay. It is the only error
// used for control flow; everything else counts as a real failure.
type TransientError struct {
	err        error
	retryAfter time.Duration
}

func NewTransientError(err error, retryAfter time.Duration) TransientError {
	return TransientError{err: err, retryAfter: retryAfter}
}

func (e TransientError) Error() string {
	return e.err.Error()
}

func (e TransientError) Unwrap() error {
	return e.err
}

func (e TransientError) Cause() error {
	return e.err
}

func (e TransientError) RetryAfter() time.Duration {
	return e.retryAfter
}

// IsTransientAPIError reports whether a Kubernetes API error is worth
// retrying (throttling, timeouts, 5xx); not-found and validation failures
// are not.
func IsTransientAPIError(err error) bool {
	return apierrors.IsServerTimeout(err) ||
		apierrors.IsTimeout(err) ||
		apierrors.IsTooManyRequests(err) ||
		apierrors.IsServiceUnavailable(err) ||
		apierrors.IsInternalError(err)
}
