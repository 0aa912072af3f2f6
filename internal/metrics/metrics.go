package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crazygift"

var (
	CaseOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "case_opens_total",
		Help:      "Case open attempts by result.",
	}, []string{"result"})

	CaseOpenDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "case_open_duration_seconds",
		Help:      "Time spent in the case open transaction.",
		Buckets:   prometheus.DefBuckets,
	})

	Webhooks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhooks_total",
		Help:      "Payment webhooks by rail and result.",
	}, []string{"rail", "result"})

	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciliations_total",
		Help:      "Finished reconciliation jobs by rail and outcome.",
	}, []string{"rail", "outcome"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "User notifications by result.",
	}, []string{"result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	ReconcileQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reconcile_queue_depth",
		Help:      "Jobs waiting in the reconciliation queue.",
	})

	LiveDropClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_drop_clients",
		Help:      "Connected live drop websocket clients.",
	})
)

// значения label result
const (
	ResultOK           = "ok"
	ResultInsufficient = "insufficient_funds"
	ResultNotFound     = "not_found"
	ResultConflict     = "conflict"
	ResultError        = "error"
	ResultDropped      = "dropped"
	ResultFailed       = "failed"
)
