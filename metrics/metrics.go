// Package metrics defines the prometheus metrics shared by the transfer
// harness and the subscriber.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values for Transfers.
const (
	ResultAcked        = "acked"
	ResultTimeout      = "timeout"
	ResultOK           = "ok"
	ResultPublishError = "publish-error"
	ResultFetchError   = "fetch-error"
)

var (
	Transfers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filexfer_transfers_total",
			Help: "Number of file transfer repetitions by protocol, variant and result.",
		},
		[]string{"protocol", "variant", "result"},
	)
	TransferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "filexfer_transfer_duration_seconds",
			Help: "Elapsed time of a file transfer repetition.",
			Buckets: []float64{
				.001, .0025, .005, .01, .025, .05,
				.1, .25, .5, 1, 2.5, 5,
				10, 25, 60, 120},
		},
		[]string{"protocol", "variant"},
	)
	PlanEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filexfer_plan_entries_total",
			Help: "Number of experiment plan entries processed, by outcome.",
		},
		[]string{"protocol", "result"},
	)
	AcksReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filexfer_acks_received_total",
			Help: "Number of acknowledgements noted by the sender.",
		},
	)
	LateAcks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filexfer_late_acks_total",
			Help: "Number of acknowledgements dropped because their repetition had timed out.",
		},
	)
	ReceivedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filexfer_received_messages_total",
			Help: "Number of inbound file messages handled by the subscriber, by result.",
		},
		[]string{"result"},
	)
	OverheadRatio = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "filexfer_overhead_ratio",
			Help: "Estimated application bytes over payload bytes for received files.",
			Buckets: []float64{
				1.0001, 1.001, 1.01, 1.05, 1.1, 1.25, 1.5, 2, 4},
		},
	)
)
