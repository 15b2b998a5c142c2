// Package stats registers and tracks engine and shard statistics, for the
// most part "counter" and "latency" kinds, exported via Prometheus.
//
// Naming convention:
//
//	-> "*.n"    - counter
//	-> "*.ns"   - latency (nanoseconds)
//	-> "*.size" - size (bytes)
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// KindCounter & KindSize
	WriteCount       = "write.n"
	WriteSize        = "write.size"
	ScanCount        = "scan.n"
	ScanSegments     = "scan.segments.n"
	CompactCount     = "compact.n"
	CASConflictCount = "shard.cas.conflict.n"
	ManifestDeltas   = "manifest.delta.n"

	// KindLatency
	WriteLatency = "write.ns"
	ScanLatency  = "scan.ns"
)

// promName flattens the dotted metric name into the prometheus namespace.
func promName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			out[i] = '_'
		} else {
			out[i] = name[i]
		}
	}
	return "mergestore_" + string(out)
}

var (
	writeCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: promName(WriteCount), Help: "segments written",
	})
	writeSize = promauto.NewCounter(prometheus.CounterOpts{
		Name: promName(WriteSize), Help: "segment bytes uploaded",
	})
	writeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: promName(WriteLatency), Help: "write latency, ns",
		Buckets: prometheus.ExponentialBuckets(1e6, 4, 10),
	})
	scanCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: promName(ScanCount), Help: "scans served",
	})
	scanSegments = promauto.NewCounter(prometheus.CounterOpts{
		Name: promName(ScanSegments), Help: "segments selected across scans",
	})
	scanLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: promName(ScanLatency), Help: "scan planning latency, ns",
		Buckets: prometheus.ExponentialBuckets(1e5, 4, 10),
	})
	compactCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: promName(CompactCount), Help: "compactions completed",
	})
	casConflictCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: promName(CASConflictCount), Help: "shard version CAS conflicts",
	})
	manifestDeltas = promauto.NewCounter(prometheus.CounterOpts{
		Name: promName(ManifestDeltas), Help: "manifest deltas appended",
	})
)

func IncWrite(sizeBytes uint64, latencyNs int64) {
	writeCount.Inc()
	writeSize.Add(float64(sizeBytes))
	writeLatency.Observe(float64(latencyNs))
}

func IncScan(numSegments int, latencyNs int64) {
	scanCount.Inc()
	scanSegments.Add(float64(numSegments))
	scanLatency.Observe(float64(latencyNs))
}

func IncCompact()       { compactCount.Inc() }
func IncCASConflict()   { casConflictCount.Inc() }
func IncManifestDelta() { manifestDeltas.Inc() }
