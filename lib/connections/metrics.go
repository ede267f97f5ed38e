// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package connections

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricPayloadsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clipsync",
		Subsystem: "connections",
		Name:      "payloads_sent_total",
		Help:      "Number of payloads successfully sent, per kind.",
	}, []string{"kind"})
	metricPayloadsRecv = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clipsync",
		Subsystem: "connections",
		Name:      "payloads_received_total",
		Help:      "Number of valid payloads received, per kind.",
	}, []string{"kind"})
	metricPayloadsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clipsync",
		Subsystem: "connections",
		Name:      "payloads_send_failed_total",
		Help:      "Number of per-device sends that failed or timed out.",
	})
	metricPayloadsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clipsync",
		Subsystem: "connections",
		Name:      "payloads_dropped_total",
		Help:      "Number of inbound payloads dropped, per reason.",
	}, []string{"reason"})
)
