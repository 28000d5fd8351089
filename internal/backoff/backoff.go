/*
SPDX-FileCopyrightText: 2026 urumi.ai and store-operator contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package backoff schedules re-checks for a store with exponential delays,
// keyed by store name and activity. Switching to a different activity, or
// forgetting the store, resets the delay sequence.
package backoff

import (
	"sync"
	"time"

	"k8s.io/client-go/util/workqueue"
)

type key struct {
	store    string
	activity string
}

type Backoff struct {
	lock       sync.Mutex
	activities map[string]string
	limiter    workqueue.TypedRateLimiter[key]
}

func New(baseDelay time.Duration, maxDelay time.Duration) *Backoff {
	return &Backoff{
		activities: make(map[string]string),
		limiter:    workqueue.NewTypedItemExponentialFailureRateLimiter[key](baseDelay, maxDelay),
	}
}

// Next returns the delay before the given activity should run again for the
// store.
func (b *Backoff) Next(store string, activity string) time.Duration {
	b.lock.Lock()
	defer b.lock.Unlock()

	if previous, ok := b.activities[store]; ok && previous != activity {
		b.limiter.Forget(key{store: store, activity: previous})
	}
	b.activities[store] = activity
	return b.limiter.When(key{store: store, activity: activity})
}

// Forget resets the store's delay sequence.
func (b *Backoff) Forget(store string) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if activity, ok := b.activities[store]; ok {
		b.limiter.Forget(key{store: store, activity: activity})
	}
	delete(b.activities, store)
}
