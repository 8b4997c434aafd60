package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cubeathon",
		Name:      "sessions_started_total",
		Help:      "Sessions successfully started.",
	})

	submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cubeathon",
		Name:      "submissions_total",
		Help:      "Proof-gated submissions by kind and result.",
	}, []string{"kind", "result"})

	sessionsDecided = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cubeathon",
		Name:      "sessions_decided_total",
		Help:      "Sessions that reached a winner, by mode.",
	}, []string{"mode"})

	wsClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cubeathon",
		Name:      "websocket_clients",
		Help:      "Connected websocket spectators.",
	})
)
