/*
SPDX-FileCopyrightText: 2026 urumi.ai and store-operator contributors
SPDX-License-Identifier: Apache-2.0
*/

// Package status provides pure helpers for assembling Store status patches.
// Nothing here performs I/O.
package status

import (
	"time"
	"unicode/utf8"

	storev1 "github.com/urumi-ai/store-operator/api/v1"
)

const timeLayout = "2006-01-02T15:04:05Z"

// Now returns the current UTC time as RFC3339 with second precision.
func Now() string {
	return time.Now().UTC().Format(timeLayout)
}

// UpsertCondition updates the condition of the given type in place, or
// appends it. LastTransitionTime is refreshed on every write; callers relying
// on transition detection must compare status themselves.
func UpsertCondition(conditions []storev1.Condition, condType storev1.ConditionType, condStatus storev1.ConditionStatus, reason string, message string) []storev1.Condition {
	for i := 0; i < len(conditions); i++ {
		if conditions[i].Type == condType {
			conditions[i].Status = condStatus
			conditions[i].Reason = reason
			conditions[i].Message = message
			conditions[i].LastTransitionTime = Now()
			return conditions
		}
	}
	return append(conditions, storev1.Condition{
		Type:               condType,
		Status:             condStatus,
		Reason:             reason,
		Message:            message,
		LastTransitionTime: Now(),
	})
}

// AppendActivity appends an entry to the activity log, evicting from the
// front until the log holds at most ActivityLogMaxEntries entries.
func AppendActivity(log []storev1.ActivityLogEntry, event string, message string) []storev1.ActivityLogEntry {
	log = append(log, storev1.ActivityLogEntry{
		Timestamp: Now(),
		Event:     event,
		Message:   message,
	})
	for len(log) > storev1.ActivityLogMaxEntries {
		log = log[1:]
	}
	return log
}

// Truncate bounds user-visible messages; status.message carries at most 200
// chars. The cut never splits a multi-byte rune.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
