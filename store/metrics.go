package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics mirrors the teacher's storage/disk/metrics.go: a small set of
// prometheus histograms observed around every store-level transaction,
// registered lazily (not against the global DefaultRegisterer, so multiple
// BadgerStore instances in one process — e.g. in tests — don't collide).
type metrics struct {
	commit      prometheus.Histogram
	keysWritten prometheus.Histogram
	keysDeleted prometheus.Histogram
}

func newMetrics() *metrics {
	return &metrics{
		commit:      newHist("dinsd_store_commit_seconds", "How long a store-level transaction took to commit"),
		keysWritten: newHist("dinsd_store_keys_written_per_txn", "How many keys a store-level write transaction wrote"),
		keysDeleted: newHist("dinsd_store_keys_deleted_per_txn", "How many keys a store-level write transaction deleted"),
	}
}

func newHist(name, help string) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    name,
		Help:    help,
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
}

// Register adds every metric to reg, for callers that want to expose them
// on their own /metrics endpoint (dinsd itself has no HTTP surface — see
// SPEC_FULL.md §4.7).
func (m *metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.commit, m.keysWritten, m.keysDeleted} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *metrics) startTimer() func() {
	start := time.Now()
	return func() {
		m.commit.Observe(time.Since(start).Seconds())
	}
}
