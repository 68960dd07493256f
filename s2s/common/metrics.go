package common

import (
	"fmt"
	"github.com/VictoriaMetrics/metrics"
	"io"
	"time"
)

// Transaction outcomes used as metric labels
const (
	OutcomeCommitted = "committed"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// RecordTransaction updates the process wide transaction metrics
func RecordTransaction(direction TransferDirection, outcome string, flowFiles int, bytes uint64, took time.Duration) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`s2s_transactions_total{direction=%q,outcome=%q}`, direction, outcome)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`s2s_transaction_duration_seconds{direction=%q}`, direction)).Update(took.Seconds())

	if outcome != OutcomeCommitted {
		return
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`s2s_flowfiles_total{direction=%q}`, direction)).Add(flowFiles)
	metrics.GetOrCreateCounter(fmt.Sprintf(`s2s_bytes_total{direction=%q}`, direction)).Add(int(bytes))
}

// RecordHandshakeFailure counts a failed handshake against the given address
func RecordHandshakeFailure(address string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`s2s_handshake_failures_total{peer=%q}`, address)).Inc()
}

// RecordPeerTransaction counts a transaction served by the peer side
func RecordPeerTransaction(request string, outcome string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`s2s_peer_transactions_total{request=%q,outcome=%q}`, request, outcome)).Inc()
}

// WriteMetrics writes all metrics in prometheus text format
func WriteMetrics(w io.Writer) {
	metrics.WritePrometheus(w, true)
}
