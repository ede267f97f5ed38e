// Copyright (C) 2025 The Clipsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAnnouncesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clipsync",
		Subsystem: "discover",
		Name:      "announces_sent_total",
		Help:      "Number of announcement rounds sent.",
	})
	metricAnnouncesRecv = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clipsync",
		Subsystem: "discover",
		Name:      "announces_received_total",
		Help:      "Number of peer announcements received.",
	})
	metricDevicesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clipsync",
		Subsystem: "discover",
		Name:      "devices_rejected_total",
		Help:      "Number of announcements rejected by the pairing gate.",
	})
)
