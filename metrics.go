// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectAttempts  = promauto.NewCounter(prometheus.CounterOpts{Name: "udprpc_connect_attempts_total", Help: "Connect attempts that acquired the Connecting state"})
	connectResults   = promauto.NewCounterVec(prometheus.CounterOpts{Name: "udprpc_connect_results_total", Help: "Connect attempt outcomes"}, []string{"result"})
	liveConnections  = promauto.NewGauge(prometheus.GaugeOpts{Name: "udprpc_live_connections", Help: "Connections published in a connection registry"})
	questsDispatched = promauto.NewCounter(prometheus.CounterOpts{Name: "udprpc_quests_dispatched_total", Help: "Inbound quests handed to a worker pool"})
	questsRejected   = promauto.NewCounterVec(prometheus.CounterOpts{Name: "udprpc_quests_rejected_total", Help: "Inbound quests not handed to a worker pool"}, []string{"reason"})
	errorAnswersSent = promauto.NewCounter(prometheus.CounterOpts{Name: "udprpc_error_answers_sent_total", Help: "Error answers synthesized for rejected two-way quests"})
)
