package txn

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Admission metrics, registered on the default Prometheus registry. Hosts
// that expose promhttp get them for free; everyone else pays one counter
// increment per admission event.
var (
	admittedTransactions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txn_admitted_total",
		Help: "Total number of transactions granted an admission slot.",
	})
	queuedTransactions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txn_queued_total",
		Help: "Total number of transactions queued waiting for a slot.",
	})
	releasedTransactions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txn_released_total",
		Help: "Total number of admission slot releases.",
	})
	timedOutTransactions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txn_timeout_total",
		Help: "Total number of transactions that hit the process-wide maxTime.",
	})
	pendingTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "txn_pending",
		Help: "Transactions currently queued for admission.",
	})
)
