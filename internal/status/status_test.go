/*
SPDX-FileCopyrightText: 2026 urumi.ai and store-operator contributors
SPDX-License-Identifier: Apache-2.0
*/

package status_test

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	storev1 "github.com/urumi-ai/store-operator/api/v1"
	"github.com/urumi-ai/store-operator/internal/status"
)

var _ = Describe("Now", func() {
	It("should return RFC3339 UTC with second precision", func() {
		now := status.Now()
		Expect(now).To(HaveSuffix("Z"))
		parsed, err := time.Parse(time.RFC3339, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(parsed.Nanosecond()).To(Equal(0))
	})
})

var _ = Describe("UpsertCondition", func() {
	It("should append a new condition", func() {
		conditions := status.UpsertCondition(nil, storev1.ConditionTypeNamespaceReady, storev1.ConditionTrue, "Created", "namespace exists")
		Expect(conditions).To(HaveLen(1))
		Expect(conditions[0].Type).To(Equal(storev1.ConditionTypeNamespaceReady))
		Expect(conditions[0].Status).To(Equal(storev1.ConditionTrue))
		Expect(conditions[0].Reason).To(Equal("Created"))
		Expect(conditions[0].LastTransitionTime).NotTo(BeEmpty())
	})

	It("should update an existing condition in place", func() {
		conditions := status.UpsertCondition(nil, storev1.ConditionTypeBackendReady, storev1.ConditionFalse, "NoPods", "no pods found")
		conditions = status.UpsertCondition(conditions, storev1.ConditionTypeHelmInstalled, storev1.ConditionTrue, "Installed", "")
		conditions = status.UpsertCondition(conditions, storev1.ConditionTypeBackendReady, storev1.ConditionTrue, "AllRunning", "all pods running")
		Expect(conditions).To(HaveLen(2))
		Expect(conditions[0].Type).To(Equal(storev1.ConditionTypeBackendReady))
		Expect(conditions[0].Status).To(Equal(storev1.ConditionTrue))
		Expect(conditions[0].Reason).To(Equal("AllRunning"))
	})

	It("should refresh the transition time on every write", func() {
		conditions := status.UpsertCondition(nil, storev1.ConditionTypeHealthCheck, storev1.ConditionTrue, "Healthy", "")
		conditions = status.UpsertCondition(conditions, storev1.ConditionTypeHealthCheck, storev1.ConditionTrue, "Healthy", "")
		Expect(conditions).To(HaveLen(1))
		Expect(conditions[0].LastTransitionTime).NotTo(BeEmpty())
	})
})

var _ = Describe("AppendActivity", func() {
	It("should append entries in order", func() {
		log := status.AppendActivity(nil, "PROVISIONING_START", "started")
		log = status.AppendActivity(log, "STORE_READY", "ready")
		Expect(log).To(HaveLen(2))
		Expect(log[0].Event).To(Equal("PROVISIONING_START"))
		Expect(log[1].Event).To(Equal("STORE_READY"))
		Expect(log[1].Timestamp).NotTo(BeEmpty())
	})

	It("should evict the oldest entries beyond the bound", func() {
		var log []storev1.ActivityLogEntry
		for i := 0; i < storev1.ActivityLogMaxEntries+5; i++ {
			log = status.AppendActivity(log, fmt.Sprintf("EVENT_%d", i), "")
		}
		Expect(log).To(HaveLen(storev1.ActivityLogMaxEntries))
		Expect(log[0].Event).To(Equal("EVENT_5"))
		Expect(log[len(log)-1].Event).To(Equal(fmt.Sprintf("EVENT_%d", storev1.ActivityLogMaxEntries+4)))
	})
})

var _ = Describe("Truncate", func() {
	It("should leave short strings alone", func() {
		Expect(status.Truncate("short", 200)).To(Equal("short"))
	})

	It("should cut long strings at the bound", func() {
		long := strings.Repeat("x", 500)
		Expect(status.Truncate(long, 200)).To(HaveLen(200))
	})

	It("should not split a multi-byte rune", func() {
		long := strings.Repeat("ü", 150)
		cut := status.Truncate(long, 199)
		Expect(len(cut)).To(BeNumerically("<=", 199))
		Expect(utf8.ValidString(cut)).To(BeTrue())
	})
})
